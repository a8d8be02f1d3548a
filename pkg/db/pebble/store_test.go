package pebble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/statedb/pkg/db"
	"github.com/eigerco/statedb/pkg/db/dbtest"
)

func TestKVStore(t *testing.T) {
	dbtest.Run(t, func(t *testing.T) db.Backend {
		store, err := NewKVStore()
		require.NoError(t, err)
		return store
	})
}

func TestKVStore_OnDisk(t *testing.T) {
	dbtest.Run(t, func(t *testing.T) db.Backend {
		store, err := NewKVStore(WithPath(t.TempDir()), WithoutSync())
		require.NoError(t, err)
		return store
	})
}

func TestKVStore_Reopen(t *testing.T) {
	path := t.TempDir()

	store, err := NewKVStore(WithPath(path))
	require.NoError(t, err)
	err = store.BatchWrite([]db.WriteOperation{
		db.Insert([]byte("key1"), 1, []byte("value1")),
		db.Insert([]byte("key2"), 2, []byte("value2")),
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = NewKVStore(WithPath(path))
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck // test cleanup

	val, ok, err := store.Get([]byte("key1"), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("value1"), val)

	exists, err := store.Exists([]byte("key2"), 2)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestIterator_Validity(t *testing.T) {
	store, err := NewKVStore()
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck // test cleanup

	_, _, err = store.Put([]byte("key1"), 1, []byte("value1"))
	require.NoError(t, err)
	_, _, err = store.Put([]byte("key2"), 1, []byte("value2"))
	require.NoError(t, err)

	iter := store.Iterate(1, db.IterOptions{})

	// First Next() should position at first element
	assert.True(t, iter.Next())
	assert.Equal(t, []byte("key1"), iter.Key())
	assert.Equal(t, []byte("value1"), iter.Value())

	// Should be able to move to second element
	assert.True(t, iter.Next())
	assert.Equal(t, []byte("key2"), iter.Key())

	// No more elements
	assert.False(t, iter.Next())
	assert.NoError(t, iter.Err())
	assert.Nil(t, iter.Key())

	require.NoError(t, iter.Close())

	// Next() after close reports the misuse
	assert.False(t, iter.Next())
	assert.ErrorIs(t, iter.Err(), db.ErrIteratorClosed)
}

func TestKVStore_ClosedErrors(t *testing.T) {
	store, err := NewKVStore()
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, _, err = store.Get([]byte("key"), 1)
	assert.ErrorIs(t, err, ErrClosed)

	err = store.BatchWrite([]db.WriteOperation{db.Insert([]byte("key"), 1, nil)})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBatchWrite_RejectsUnknownOperation(t *testing.T) {
	store, err := NewKVStore()
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck // test cleanup

	err = store.BatchWrite([]db.WriteOperation{
		db.Insert([]byte("key1"), 1, []byte("value1")),
		{Kind: 0, Key: []byte("bad"), Column: 1},
	})
	var batchErr *db.BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 1, batchErr.Index)

	// Nothing from the failed batch is visible
	_, ok, err := store.Get([]byte("key1"), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKVStore_Exists(t *testing.T) {
	store, err := NewKVStore()
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck // test cleanup

	_, _, err = store.Put([]byte("k"), 1, []byte("v"))
	require.NoError(t, err)
	_, _, err = store.Put([]byte("k1"), 1, []byte("v"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		key    []byte
		column db.Column
		want   bool
	}{
		{name: "present", key: []byte("k"), column: 1, want: true},
		{name: "longer_key_only", key: []byte("k0"), column: 1, want: false},
		{name: "shorter_key", key: []byte(""), column: 1, want: false},
		{name: "other_column", key: []byte("k"), column: 2, want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var exists bool
			require.NotPanics(t, func() {
				exists, err = store.Exists(tc.key, tc.column)
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, exists)
		})
	}
}

func TestIterate_EmptyRange(t *testing.T) {
	store, err := NewKVStore()
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck // test cleanup

	_, _, err = store.Put([]byte("b"), 1, []byte("v"))
	require.NoError(t, err)

	// Start past the end of the prefix leaves nothing to visit
	entries, err := db.Collect(store.Iterate(1, db.IterOptions{Prefix: []byte("a"), Start: []byte("b")}))
	require.NoError(t, err)
	assert.Empty(t, entries)
}
