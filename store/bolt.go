package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("frames")

// Bolt is a BackingStore[T] backed by a single embedded bbolt database,
// keyed by the 8-byte big-endian FID, for callers who want one file instead
// of a directory of thousands of small ones.
type Bolt[T any] struct {
	db   *bolt.DB
	size uint64
}

// OpenBolt opens (or creates) a bbolt database at path and ensures its
// frames bucket exists.
func OpenBolt[T any](path string) (*Bolt[T], error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open bbolt database %q: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create bbolt bucket: %w", err)
	}

	b := &Bolt[T]{db: db}
	if _, err := b.AssessSize(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

// Close releases the underlying database handle.
func (b *Bolt[T]) Close() error {
	return b.db.Close()
}

func keyFor(fid uint64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], fid)
	return key[:]
}

// GetRef implements BackingStore.
func (b *Bolt[T]) GetRef(fid uint64) (T, error) {
	var zero, v T
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		raw := bucket.Get(keyFor(fid))
		if raw == nil {
			return ErrNoSuchFrame
		}
		return json.Unmarshal(raw, &v)
	})
	if err != nil {
		if err == ErrNoSuchFrame {
			return zero, ErrNoSuchFrame
		}
		return zero, fmt.Errorf("store: page %d: %w", fid, err)
	}
	return v, nil
}

// Put implements BackingStore. bbolt commits are fsynced by default, so this
// is durable before returning.
func (b *Bolt[T]) Put(fid uint64, data T) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("store: page %d: encode: %w", fid, err)
	}

	err = b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(keyFor(fid), raw)
	})
	if err != nil {
		return fmt.Errorf("store: page %d: write: %w", fid, err)
	}
	if fid >= b.size {
		b.size = fid + 1
	}
	return nil
}

// Resize implements BackingStore. bbolt has no fixed capacity to extend, so
// Resize is bookkeeping only: it raises the reported size, leaving newly
// addressable FIDs unpopulated (GetRef on them returns ErrNoSuchFrame).
func (b *Bolt[T]) Resize(extra uint64) error {
	b.size += extra
	return nil
}

// Size implements BackingStore.
func (b *Bolt[T]) Size() uint64 {
	return b.size
}

// AssessSize implements BackingStore, recomputing size from the highest key
// present in the bucket plus the bookkeeping size, to reconcile after an
// out-of-band writer added keys directly to the database file.
func (b *Bolt[T]) AssessSize() (uint64, error) {
	var maxKey uint64
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		k, _ := c.Last()
		if k != nil {
			maxKey = binary.BigEndian.Uint64(k)
			found = true
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: assess size: %w", err)
	}
	if found && maxKey+1 > b.size {
		b.size = maxKey + 1
	}
	return b.size, nil
}
