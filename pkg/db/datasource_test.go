package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeCounter struct {
	TransactableStorage
	closes int
}

func (c *closeCounter) Close() error {
	c.closes++
	return nil
}

func newCounted() *closeCounter {
	return &closeCounter{TransactableStorage: Sequential(newMapStore())}
}

func TestDataSource_ClonesShareBackend(t *testing.T) {
	backend := newCounted()
	ds := NewDataSource(backend)

	clone, err := ds.Clone()
	require.NoError(t, err)
	assert.Equal(t, int64(2), ds.Refs())

	_, _, err = ds.Put([]byte("a"), 1, []byte("1"))
	require.NoError(t, err)

	// Writes through one handle are visible through the other
	v, ok, err := clone.Get([]byte("a"), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	require.NoError(t, ds.Close())
	assert.Equal(t, 0, backend.closes)
	assert.Equal(t, int64(1), clone.Refs())

	// Closing the same handle twice does not release the clone's reference
	require.NoError(t, ds.Close())
	assert.Equal(t, int64(1), clone.Refs())

	require.NoError(t, clone.Close())
	assert.Equal(t, 1, backend.closes)
}

func TestDataSource_ReleasedHandle(t *testing.T) {
	ds := NewDataSource(newCounted())
	require.NoError(t, ds.Close())

	_, _, err := ds.Get([]byte("a"), 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, _, err = ds.Put([]byte("a"), 1, nil)
	assert.ErrorIs(t, err, ErrClosed)
	_, _, err = ds.Delete([]byte("a"), 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = ds.Exists([]byte("a"), 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, ds.BatchWrite(nil), ErrClosed)

	it := ds.Iterate(1, IterOptions{})
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), ErrClosed)

	_, err = ds.Clone()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDataSource_String(t *testing.T) {
	ds := NewDataSource(newCounted())
	defer ds.Close() //nolint:errcheck // backend close never fails
	assert.Equal(t, "DataSource(sequential(*db.mapStore))", ds.String())
}
