package store_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuzu-labs/bufferpool/store"
)

func TestMemPutGet(t *testing.T) {
	s := store.NewMem[string]()
	require.NoError(t, s.Put(0, "hello"))

	v, err := s.GetRef(0)
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
	assert.Equal(t, uint64(1), s.Size())
}

func TestMemGetMissing(t *testing.T) {
	s := store.NewMem[string]()
	_, err := s.GetRef(0)
	assert.ErrorIs(t, err, store.ErrNoSuchFrame)
}

func TestMemResizeReservesUninitializedSlots(t *testing.T) {
	s := store.NewMem[int]()
	require.NoError(t, s.Resize(5))
	assert.Equal(t, uint64(5), s.Size())

	_, err := s.GetRef(2)
	assert.ErrorIs(t, err, store.ErrNoSuchFrame)

	require.NoError(t, s.Resize(3))
	assert.Equal(t, uint64(8), s.Size())
}

func TestMemAssessSize(t *testing.T) {
	s := store.NewMem[int]()
	require.NoError(t, s.Resize(10))
	sz, err := s.AssessSize()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), sz)
}

func TestFilePutGet(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "frames")
	s := store.NewFile[[]int](dir)

	require.NoError(t, s.Put(0, []int{1, 2, 3}))
	v, err := s.GetRef(0)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, v)
}

func TestFileGetMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "frames")
	s := store.NewFile[int](dir)
	_, err := s.GetRef(0)
	assert.ErrorIs(t, err, store.ErrNoSuchFrame)
}

func TestFileResizeSentinel(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "frames")
	s := store.NewFile[int](dir)

	require.NoError(t, s.Resize(3))
	assert.Equal(t, uint64(3), s.Size())

	_, err := s.GetRef(1)
	assert.ErrorIs(t, err, store.ErrNoSuchFrame)

	require.NoError(t, s.Put(1, 42))
	v, err := s.GetRef(1)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestFileAssessSizeCountsFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "frames")
	s := store.NewFile[int](dir)
	require.NoError(t, s.Resize(5))

	sz, err := s.AssessSize()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), sz)
}

func TestFilePersistsAcrossInstances(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "frames")

	s1 := store.NewFile[string](dir)
	require.NoError(t, s1.Put(0, "durable"))

	s2 := store.NewFile[string](dir)
	v, err := s2.GetRef(0)
	require.NoError(t, err)
	assert.Equal(t, "durable", v)
}

func TestBoltPutGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.db")
	s, err := store.OpenBolt[string](path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(0, "hello"))
	v, err := s.GetRef(0)
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

func TestBoltGetMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.db")
	s, err := store.OpenBolt[int](path)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.GetRef(0)
	assert.True(t, errors.Is(err, store.ErrNoSuchFrame))
}

func TestBoltPersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.db")

	s1, err := store.OpenBolt[string](path)
	require.NoError(t, err)
	require.NoError(t, s1.Put(3, "persisted"))
	require.NoError(t, s1.Close())

	s2, err := store.OpenBolt[string](path)
	require.NoError(t, err)
	defer s2.Close()

	v, err := s2.GetRef(3)
	require.NoError(t, err)
	assert.Equal(t, "persisted", v)
	assert.Equal(t, uint64(4), s2.Size())
}
