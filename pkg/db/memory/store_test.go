package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/statedb/pkg/db"
	"github.com/eigerco/statedb/pkg/db/dbtest"
)

func TestKVStore(t *testing.T) {
	dbtest.Run(t, func(t *testing.T) db.Backend {
		return NewKVStore()
	})
}

func TestIterate_SnapshotIsStable(t *testing.T) {
	store := NewKVStore()
	defer store.Close() //nolint:errcheck // test cleanup

	for _, k := range []string{"a", "b", "c"} {
		_, _, err := store.Put([]byte(k), 1, []byte(k))
		require.NoError(t, err)
	}

	iter := store.Iterate(1, db.IterOptions{})
	defer iter.Close() //nolint:errcheck // test cleanup

	require.True(t, iter.Next())
	assert.Equal(t, []byte("a"), iter.Key())

	// Writes after the iterator was created are not observed by it
	_, _, err := store.Delete([]byte("b"), 1)
	require.NoError(t, err)
	_, _, err = store.Put([]byte("bb"), 1, []byte("bb"))
	require.NoError(t, err)

	require.True(t, iter.Next())
	assert.Equal(t, []byte("b"), iter.Key())
	require.True(t, iter.Next())
	assert.Equal(t, []byte("c"), iter.Key())
	assert.False(t, iter.Next())
}

func TestGet_ReturnsCopy(t *testing.T) {
	store := NewKVStore()
	defer store.Close() //nolint:errcheck // test cleanup

	value := []byte("value")
	_, _, err := store.Put([]byte("key"), 1, value)
	require.NoError(t, err)
	value[0] = 'X'

	got, _, err := store.Get([]byte("key"), 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got)

	got[0] = 'Y'
	again, _, err := store.Get([]byte("key"), 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), again)
}

func TestPutDelete_ReturnCopies(t *testing.T) {
	store := NewKVStore()
	defer store.Close() //nolint:errcheck // test cleanup

	_, _, err := store.Put([]byte("a"), 1, []byte("first"))
	require.NoError(t, err)
	_, _, err = store.Put([]byte("b"), 1, []byte("second"))
	require.NoError(t, err)

	iter := store.Iterate(1, db.IterOptions{})
	defer iter.Close() //nolint:errcheck // test cleanup

	// Mutating returned previous values must not reach the open snapshot
	prev, _, err := store.Put([]byte("a"), 1, []byte("replaced"))
	require.NoError(t, err)
	prev[0] = 'X'
	prev, _, err = store.Delete([]byte("b"), 1)
	require.NoError(t, err)
	prev[0] = 'X'

	entries, err := db.Collect(iter)
	require.NoError(t, err)
	assert.Equal(t, []db.KV{
		{Key: []byte("a"), Value: []byte("first")},
		{Key: []byte("b"), Value: []byte("second")},
	}, entries)
}
