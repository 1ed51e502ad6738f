// Package stride implements the stride mapper: an adapter that exposes
// vector-style indexing for a sequence of elements on top of a
// frame-granular buffer pool, by mapping a logical element index to a frame
// id via integer division by a fixed stride.
package stride

import (
	"errors"
	"fmt"

	bufferpool "github.com/kuzu-labs/bufferpool"
)

// ErrInvalidStride is returned by New when stride is less than 1.
var ErrInvalidStride = errors.New("stride: stride must be >= 1")

// Mapper maps a logical element index to frame id ⌊idx/stride⌋, and
// routes reads and writes through a buffer pool. Elements within a stride
// other than offset 0 are not individually addressable.
type Mapper[T any] struct {
	stride uint64
	pool   *bufferpool.Pool[T]
}

// New returns a Mapper with the given stride, fronting pool.
func New[T any](stride uint64, pool *bufferpool.Pool[T]) (*Mapper[T], error) {
	if stride < 1 {
		return nil, ErrInvalidStride
	}
	return &Mapper[T]{stride: stride, pool: pool}, nil
}

// Get returns the element data at ⌊idx/stride⌋ via the buffer pool.
func (m *Mapper[T]) Get(idx uint64) (T, error) {
	var zero T
	fid := idx / m.stride
	f, err := m.pool.Get(fid)
	if err != nil {
		return zero, err
	}
	var v T
	f.Read(func(data T) { v = data })
	return v, nil
}

// Flush performs a two-phase commit of seq into the backing pool. Phase 1
// writes seq[i*stride] directly to backing FID i, for every full stride
// boundary, bypassing the pool's cache; any phase-1 failure aborts before
// phase 2 runs and the pool's cache is left untouched. Phase 2 then updates
// the pool itself via Put for each written FID, accumulating its own
// errors and reporting them together rather than stopping at the first.
//
// Backing is made authoritative first so a crash between phases leaves a
// consistent backing store; the alternative (updating the cache first)
// risks a cache that acknowledges data the backing store never received.
func (m *Mapper[T]) Flush(seq []T) error {
	frameCount := (uint64(len(seq)) + m.stride - 1) / m.stride
	if have := m.pool.Backing().Size(); have < frameCount {
		if err := m.pool.ResizeBacking(frameCount - have); err != nil {
			return fmt.Errorf("stride: resize backing: %w", err)
		}
	}

	boundaries := make([]uint64, 0, frameCount)
	for i := uint64(0); i*m.stride < uint64(len(seq)); i++ {
		boundaries = append(boundaries, i)
	}

	// Phase 1: backing becomes authoritative.
	backing := m.pool.Backing()
	for _, fid := range boundaries {
		if err := backing.Put(fid, seq[fid*m.stride]); err != nil {
			return fmt.Errorf("stride: phase 1 write fid %d: %w", fid, err)
		}
	}

	// Phase 2: update the pool's cache, accumulating errors.
	var errs []error
	for _, fid := range boundaries {
		if err := m.pool.Put(fid, seq[fid*m.stride]); err != nil {
			errs = append(errs, fmt.Errorf("stride: phase 2 update fid %d: %w", fid, err))
		}
	}
	return errors.Join(errs...)
}
