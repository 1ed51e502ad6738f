package store

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc64"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
)

var crcTable = crc64.MakeTable(crc64.ISO)

// sentinel marks a slot that Resize reserved but that was never Put; it is
// written verbatim (not through the checksum envelope) so GetRef can
// recognize it without attempting to verify a checksum over nothing.
const sentinel = "{}"

// File is a BackingStore[T] that keeps one JSON file per frame under dir,
// named page_<FID>, matching the layout informatively described for
// persistent backends. Each write is durable: the payload is written to a
// temp file in dir and renamed into place via natefinch/atomic, and is
// trailed with a CRC64 checksum so a torn or corrupted read is detected
// rather than silently deserialized.
type File[T any] struct {
	dir         string
	initialized bool
	size        uint64
}

// NewFile returns a File backing store rooted at dir. NewFile does not
// create the directory; the first GetRef, Put, Resize or AssessSize call
// creates it, including a GetRef that finds no frame.
func NewFile[T any](dir string) *File[T] {
	return &File[T]{dir: dir}
}

func (f *File[T]) ensureDir() error {
	if f.initialized {
		return nil
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("store: create directory %q: %w", f.dir, err)
	}
	f.initialized = true
	return nil
}

func (f *File[T]) path(fid uint64) string {
	return filepath.Join(f.dir, fmt.Sprintf("page_%d", fid))
}

// GetRef implements BackingStore.
func (f *File[T]) GetRef(fid uint64) (T, error) {
	var zero T
	if err := f.ensureDir(); err != nil {
		return zero, err
	}

	raw, err := os.ReadFile(f.path(fid))
	if err != nil {
		if os.IsNotExist(err) {
			return zero, ErrNoSuchFrame
		}
		return zero, fmt.Errorf("store: read %q: %w", f.path(fid), err)
	}

	if string(raw) == sentinel {
		return zero, ErrNoSuchFrame
	}

	if len(raw) < 8 {
		return zero, fmt.Errorf("store: page %d: truncated file", fid)
	}
	wantSum := binary.LittleEndian.Uint64(raw[:8])
	payload := raw[8:]
	if gotSum := crc64.Checksum(payload, crcTable); gotSum != wantSum {
		return zero, fmt.Errorf("store: page %d: checksum mismatch (corrupt frame)", fid)
	}

	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return zero, fmt.Errorf("store: page %d: decode: %w", fid, err)
	}
	return v, nil
}

// Put implements BackingStore.
func (f *File[T]) Put(fid uint64, data T) error {
	if err := f.ensureDir(); err != nil {
		return err
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("store: page %d: encode: %w", fid, err)
	}

	sum := crc64.Checksum(payload, crcTable)
	var buf bytes.Buffer
	buf.Grow(8 + len(payload))
	var sumBuf [8]byte
	binary.LittleEndian.PutUint64(sumBuf[:], sum)
	buf.Write(sumBuf[:])
	buf.Write(payload)

	if err := atomic.WriteFile(f.path(fid), &buf); err != nil {
		return fmt.Errorf("store: page %d: write: %w", fid, err)
	}
	if fid >= f.size {
		f.size = fid + 1
	}
	return nil
}

// Resize implements BackingStore. New slots are written as the sentinel
// file if they do not already exist.
func (f *File[T]) Resize(extra uint64) error {
	if err := f.ensureDir(); err != nil {
		return err
	}

	old := f.size
	for i := uint64(0); i < extra; i++ {
		fid := old + i
		p := f.path(fid)
		if _, err := os.Stat(p); err == nil {
			continue
		}
		if err := atomic.WriteFile(p, strings.NewReader(sentinel)); err != nil {
			return fmt.Errorf("store: page %d: reserve: %w", fid, err)
		}
	}
	f.size = old + extra
	return nil
}

// Size implements BackingStore.
func (f *File[T]) Size() uint64 {
	return f.size
}

// AssessSize implements BackingStore, recomputing size by counting page_*
// files in dir, to reconcile after out-of-band writes to the directory.
func (f *File[T]) AssessSize() (uint64, error) {
	if err := f.ensureDir(); err != nil {
		return 0, err
	}

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return 0, fmt.Errorf("store: read directory %q: %w", f.dir, err)
	}

	var count uint64
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "page_") {
			count++
		}
	}
	f.size = count
	return count, nil
}
