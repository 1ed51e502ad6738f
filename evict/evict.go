// Package evict implements eviction policies: pure functions from the
// buffer pool's current slot contents and recency order to a victim slot
// index, matching the EvictionFn signature in spec.md §6.
package evict

import (
	"errors"
	"math/rand"
	"sync"

	"github.com/kuzu-labs/bufferpool/frame"
	"github.com/kuzu-labs/bufferpool/recency"
)

// ErrNoEvictablePage is returned when every occupied slot is pinned, so no
// victim can be selected.
var ErrNoEvictablePage = errors.New("evict: no evictable page")

// Func is the eviction policy signature: given the pool's slot vector (nil
// entries are empty slots) and its recency tracker, return the slot index
// to evict. Implementations must be pure with respect to their arguments —
// any internal state (a clock hand, a counter) must live in a closure or a
// companion struct, never be read from or written to the pool itself.
type Func[T any] func(slots []*frame.Frame[T], rec *recency.Tracker[uint64]) (uint64, error)

// BottomUp is the LRU realization: it walks the recency tracker from
// least- to most-recently-used and returns the first occupied, unpinned
// slot. It is the policy spec.md mandates as "the LRU realization".
func BottomUp[T any](slots []*frame.Frame[T], rec *recency.Tracker[uint64]) (uint64, error) {
	for _, sid := range rec.Order() {
		if sid >= uint64(len(slots)) {
			continue
		}
		f := slots[sid]
		if f == nil || f.Pinned() {
			continue
		}
		return sid, nil
	}
	return 0, ErrNoEvictablePage
}

// Random returns a policy that repeatedly draws a uniform random slot index
// and accepts the first occupied, unpinned one it finds, giving up after
// len(slots) failed trials. rng is supplied by the caller so tests can get
// deterministic behavior; pass rand.New(rand.NewSource(seed)).
func Random[T any](rng *rand.Rand) Func[T] {
	return func(slots []*frame.Frame[T], _ *recency.Tracker[uint64]) (uint64, error) {
		n := len(slots)
		if n == 0 {
			return 0, ErrNoEvictablePage
		}
		for trials := 0; trials < n; trials++ {
			idx := rng.Intn(n)
			f := slots[idx]
			if f != nil && !f.Pinned() {
				return uint64(idx), nil
			}
		}
		return 0, ErrNoEvictablePage
	}
}

// Clock is a second-chance approximation of LRU: it sweeps a hand over the
// slot vector, giving one pass to any slot currently in the
// more-recently-used half of the recency order (its "reference bit"), and
// evicting the first occupied, unpinned slot that is either unreferenced or
// has already had its reference bit cleared on a previous sweep. The hand
// position is the only state Clock carries, and it lives on the Clock value
// itself rather than the pool, per the "policy as value" design: the pool
// never inspects or mutates it.
//
// Clock is offered alongside BottomUp and Random as a second realistic
// EvictionFn, grounded on the CLOCK reference-bit design used by several
// buffer pool implementations that favor an O(1) amortized sweep over a
// strict recency walk.
type Clock[T any] struct {
	mu   sync.Mutex
	hand uint64
}

// NewClock returns a Clock policy with its hand at slot 0.
func NewClock[T any]() *Clock[T] {
	return &Clock[T]{}
}

// Func returns the Clock's eviction function, suitable for passing to
// bufferpool.New.
func (c *Clock[T]) Func() Func[T] {
	return c.evict
}

func (c *Clock[T]) evict(slots []*frame.Frame[T], rec *recency.Tracker[uint64]) (uint64, error) {
	n := uint64(len(slots))
	if n == 0 {
		return 0, ErrNoEvictablePage
	}

	referenced := mruHalf(rec)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hand >= n {
		c.hand = 0
	}

	for sweeps := uint64(0); sweeps < 2*n; sweeps++ {
		idx := c.hand
		c.hand = (c.hand + 1) % n

		f := slots[idx]
		if f == nil || f.Pinned() {
			continue
		}
		if referenced[idx] {
			// Second chance: clear the bit for next sweep, don't evict yet.
			referenced[idx] = false
			continue
		}
		return idx, nil
	}
	return 0, ErrNoEvictablePage
}

// mruHalf returns the set of slot indices occupying the more-recently-used
// half of the recency order, used as Clock's reference bits.
func mruHalf(rec *recency.Tracker[uint64]) map[uint64]bool {
	order := rec.Order()
	half := len(order) / 2
	referenced := make(map[uint64]bool, len(order)-half)
	for _, sid := range order[half:] {
		referenced[sid] = true
	}
	return referenced
}
