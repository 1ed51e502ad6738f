// Package bufferpool implements a fixed-capacity in-memory cache that
// mediates access to a larger, slower backing store of fixed-size frames.
// Callers address data by a stable frame identifier (FID); the pool loads,
// caches, and evicts frames transparently, honoring a pluggable eviction
// policy and a pin/dirty protocol so cached frames can be safely mutated
// and written back.
//
// The pool is single-threaded with respect to its own state (the slot
// vector, the FID/SID maps, and the recency tracker are not safe for
// concurrent mutation); frame containers themselves are internally
// thread-safe, so a caller may hand a frame out to worker goroutines that
// pin, read, and mutate it concurrently with the pool being otherwise idle.
package bufferpool

import (
	"errors"
	"fmt"

	"github.com/kuzu-labs/bufferpool/bplog"
	"github.com/kuzu-labs/bufferpool/evict"
	"github.com/kuzu-labs/bufferpool/frame"
	"github.com/kuzu-labs/bufferpool/recency"
	"github.com/kuzu-labs/bufferpool/store"
)

// Sentinel errors, matching the taxonomy in spec.md §6.
var (
	// ErrNoPageAvailable is returned by Put when the frame is out of bounds
	// or cannot be loaded (including when eviction finds no victim).
	ErrNoPageAvailable = errors.New("bufferpool: no page available")

	// ErrOutOfBounds is returned when a FID is not addressable by the
	// current backing store size.
	ErrOutOfBounds = errors.New("bufferpool: out of bounds")
)

// allocationErr, loadingErr and flushingErr tag a backing-store error with
// the phase it occurred in, so
// callers can tell an allocation failure from a load failure from a flush
// failure, per spec.md §6's error taxonomy.
func allocationErr(err error) error { return fmt.Errorf("bufferpool: allocation error: %w", err) }
func loadingErr(err error) error    { return fmt.Errorf("bufferpool: loading error: %w", err) }
func flushingErr(err error) error   { return fmt.Errorf("bufferpool: flushing error: %w", err) }

// Pool is the buffer pool coordinator: a fixed vector of slots, two
// bijective maps between slot id (SID) and frame id (FID), a recency
// tracker, a reference to one backing store, and one eviction policy.
type Pool[T any] struct {
	capacity uint64
	slots    []*frame.Frame[T]
	slot2fid map[uint64]uint64
	fid2slot map[uint64]uint64
	rec      *recency.Tracker[uint64]
	backing  store.BackingStore[T]
	policy   evict.Func[T]
	clone    frame.CloneFunc[T]
}

// New constructs a Pool with the given capacity, backing store, and
// eviction policy. Construction ensures the backing store has capacity for
// at least `capacity` frames.
//
// clone is forwarded to every Frame the pool creates, for copy-on-write on
// Mutate; pass nil for the default shallow-copy behavior described in
// frame.CloneFunc.
func New[T any](capacity uint64, backing store.BackingStore[T], policy evict.Func[T], clone frame.CloneFunc[T]) (*Pool[T], error) {
	p := &Pool[T]{
		capacity: capacity,
		slots:    make([]*frame.Frame[T], capacity),
		slot2fid: make(map[uint64]uint64, capacity),
		fid2slot: make(map[uint64]uint64, capacity),
		rec:      recency.New[uint64](),
		backing:  backing,
		policy:   policy,
		clone:    clone,
	}
	if backing.Size() < capacity {
		if err := backing.Resize(capacity - backing.Size()); err != nil {
			return nil, allocationErr(err)
		}
	}
	return p, nil
}

// Get returns a handle to the frame for fid, loading it from the backing
// store if necessary. It returns a nil frame and an error if fid is out of
// bounds (ErrOutOfBounds), the backing store fails to produce the frame (a
// wrapped loading error), or every slot is pinned so no victim can be
// evicted to make room (evict.ErrNoEvictablePage).
func (p *Pool[T]) Get(fid uint64) (*frame.Frame[T], error) {
	if fid >= p.backing.Size() {
		return nil, ErrOutOfBounds
	}

	if sid, ok := p.fid2slot[fid]; ok {
		p.rec.Push(sid)
		bplog.Debug("get hit", "fid", fid, "sid", sid)
		return p.slots[sid], nil
	}

	sid, err := p.loadMiss(fid)
	if err != nil {
		return nil, err
	}

	p.rec.Push(sid)
	bplog.Debug("get miss loaded", "fid", fid, "sid", sid)
	return p.slots[sid], nil
}

// loadMiss implements the miss path of Get: eviction if full, finding a
// free slot, reading through to the backing store, and installing the new
// frame. On any failure the cache is left exactly as it was before the
// call.
func (p *Pool[T]) loadMiss(fid uint64) (uint64, error) {
	data, err := p.backing.GetRef(fid)
	if err != nil {
		return 0, loadingErr(err)
	}

	if uint64(len(p.fid2slot)) == p.capacity {
		if err := p.evictOne(); err != nil {
			return 0, err
		}
	}

	sid, ok := p.firstEmptySlot()
	if !ok {
		// Every slot is occupied even after eviction: a programming
		// invariant violation, not a user-facing condition, but surfaced
		// the same way a failed eviction is.
		return 0, evict.ErrNoEvictablePage
	}

	p.slots[sid] = frame.New(data, p.clone)
	p.slot2fid[sid] = fid
	p.fid2slot[fid] = sid
	return sid, nil
}

func (p *Pool[T]) firstEmptySlot() (uint64, bool) {
	for i, f := range p.slots {
		if f == nil {
			return uint64(i), true
		}
	}
	return 0, false
}

// evictOne runs the eviction subprotocol from spec.md §4.5.1: ask the
// policy for a victim, flush it if dirty, then clear the slot and remove it
// from both maps and the recency tracker. It deletes the victim's own FID
// from fid2slot — not the FID that triggered the miss — which spec.md §9
// flags as a bug some source revisions have and that must not be
// reproduced here.
func (p *Pool[T]) evictOne() error {
	victimSID, err := p.policy(p.slots, p.rec)
	if err != nil {
		return err
	}

	victimFID := p.slot2fid[victimSID]
	victim := p.slots[victimSID]

	if victim.Dirty() {
		if err := p.backing.Put(victimFID, victim.Snapshot()); err != nil {
			return flushingErr(err)
		}
	}

	p.slots[victimSID] = nil
	delete(p.slot2fid, victimSID)
	delete(p.fid2slot, victimFID)
	p.rec.Delete(victimSID)

	bplog.Debug("evicted", "sid", victimSID, "fid", victimFID)
	return nil
}

// Put loads fid (if necessary) and replaces its data, marking the frame
// dirty. It returns ErrNoPageAvailable if fid is out of bounds or cannot be
// loaded.
func (p *Pool[T]) Put(fid uint64, data T) error {
	f, err := p.Get(fid)
	if err != nil {
		return ErrNoPageAvailable
	}
	f.Replace(data)
	return nil
}

// Sync writes fid's current data to the backing store if the cached frame
// is dirty, and clears the dirty flag on success. It is a no-op if fid is
// not cached or not dirty, and leaves the frame cached either way.
func (p *Pool[T]) Sync(fid uint64) error {
	sid, ok := p.fid2slot[fid]
	if !ok {
		return nil
	}
	f := p.slots[sid]
	if !f.Dirty() {
		return nil
	}
	if err := p.backing.Put(fid, f.Snapshot()); err != nil {
		return flushingErr(err)
	}
	f.SetDirty(false)
	bplog.Debug("synced", "fid", fid, "sid", sid)
	return nil
}

// FlushAll applies Sync to every cached, dirty frame in an unspecified
// order. It accumulates errors across frames rather than stopping at the
// first one, so partial progress from a failing flush is preserved; the
// caller may retry the returned error's underlying frames individually via
// Sync.
func (p *Pool[T]) FlushAll() error {
	var errs []error
	for sid, fid := range p.slot2fid {
		f := p.slots[sid]
		if !f.Dirty() {
			continue
		}
		if err := p.backing.Put(fid, f.Snapshot()); err != nil {
			errs = append(errs, flushingErr(err))
			continue
		}
		f.SetDirty(false)
	}
	return errors.Join(errs...)
}

// Backing returns the pool's backing store, for collaborators (such as the
// stride mapper) that need to write through to it directly, bypassing the
// pool's cache.
func (p *Pool[T]) Backing() store.BackingStore[T] {
	return p.backing
}

// ResizeBacking delegates to the backing store's Resize.
func (p *Pool[T]) ResizeBacking(extra uint64) error {
	if err := p.backing.Resize(extra); err != nil {
		return allocationErr(err)
	}
	return nil
}

// Iter yields the frame data for every FID from 0 to the backing store's
// current size, in ascending order, routing each access through Get. This
// is not a cursor over cached state: misses transparently load and may
// cause evictions. It yields cloned data values, not frame handles, so the
// sequence has no lifetime entanglement with the pool's mutable state.
//
// If a FID cannot be loaded, iteration stops: Iter stops calling yield and
// returns. Iter reports no error, so a sequence cut short by a load failure
// ends the same way as a complete one.
func (p *Pool[T]) Iter(yield func(T) bool) {
	size := p.backing.Size()
	for fid := uint64(0); fid < size; fid++ {
		f, err := p.Get(fid)
		if err != nil {
			return
		}
		var v T
		f.Read(func(data T) { v = data })
		if !yield(v) {
			return
		}
	}
}
