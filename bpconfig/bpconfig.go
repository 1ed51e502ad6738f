// Package bpconfig loads declarative pool descriptors: a HuJSON (JSON with
// comments and trailing commas) file naming a capacity, an eviction policy,
// and a backing store, for callers that want to describe a pool instead of
// wiring one up in code. It is a library loader, not a command: it has no
// flag parsing and no main.
package bpconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// Policy names recognized in the "policy" field.
const (
	PolicyBottomUp = "bottom_up"
	PolicyRandom   = "random"
	PolicyClock    = "clock"
)

// Backing store kinds recognized in the "backing.kind" field.
const (
	BackingMem  = "mem"
	BackingFile = "file"
	BackingBolt = "bolt"
)

var (
	// ErrUnknownPolicy is returned when the "policy" field names a policy
	// this package does not recognize.
	ErrUnknownPolicy = errors.New("bpconfig: unknown policy")

	// ErrUnknownBackingKind is returned when "backing.kind" is not one of
	// mem, file, or bolt.
	ErrUnknownBackingKind = errors.New("bpconfig: unknown backing kind")

	// ErrZeroCapacity is returned when "capacity" is absent or zero.
	ErrZeroCapacity = errors.New("bpconfig: capacity must be > 0")
)

// Backing describes which BackingStore implementation to construct and
// where its data lives. Path is ignored for kind "mem".
type Backing struct {
	Kind string `json:"kind"`
	Path string `json:"path,omitempty"`
}

// Options is the parsed shape of a pool descriptor file.
type Options struct {
	Capacity uint64  `json:"capacity"`
	Policy   string  `json:"policy"`
	Backing  Backing `json:"backing"`
}

// Load reads the HuJSON descriptor at path, standardizes it to plain JSON,
// and unmarshals and validates it. It does not construct the pool itself;
// callers pass the resulting Options to the store and evict constructors
// that match the named kind and policy.
func Load(path string) (Options, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled, as with a config flag
	if err != nil {
		return Options{}, fmt.Errorf("bpconfig: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse standardizes HuJSON bytes to JSON, unmarshals into Options, and
// validates the result.
func Parse(raw []byte) (Options, error) {
	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return Options{}, fmt.Errorf("bpconfig: invalid JSONC: %w", err)
	}

	var opts Options
	if err := json.Unmarshal(standardized, &opts); err != nil {
		return Options{}, fmt.Errorf("bpconfig: invalid JSON: %w", err)
	}

	if err := validate(opts); err != nil {
		return Options{}, err
	}
	return opts, nil
}

func validate(opts Options) error {
	if opts.Capacity == 0 {
		return ErrZeroCapacity
	}
	switch opts.Policy {
	case PolicyBottomUp, PolicyRandom, PolicyClock:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPolicy, opts.Policy)
	}
	switch opts.Backing.Kind {
	case BackingMem, BackingFile, BackingBolt:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackingKind, opts.Backing.Kind)
	}
	return nil
}
