package badger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/statedb/pkg/db"
	"github.com/eigerco/statedb/pkg/db/dbtest"
)

func TestEngine(t *testing.T) {
	dbtest.Run(t, func(t *testing.T) db.Backend {
		engine, err := NewEngine(Config{InMemory: true})
		require.NoError(t, err)
		return engine
	})
}

func TestEngine_Reopen(t *testing.T) {
	path := t.TempDir()

	engine, err := NewEngine(Config{DataPath: path, SyncWrites: true})
	require.NoError(t, err)
	err = engine.BatchWrite([]db.WriteOperation{
		db.Insert([]byte("key1"), 1, []byte("value1")),
		db.Insert([]byte("key2"), 1, []byte("value2")),
		db.Remove([]byte("key2"), 1),
	})
	require.NoError(t, err)
	require.NoError(t, engine.Close())

	engine, err = NewEngine(Config{DataPath: path})
	require.NoError(t, err)
	defer engine.Close() //nolint:errcheck // test cleanup

	entries, err := db.Collect(engine.Iterate(1, db.IterOptions{}))
	require.NoError(t, err)
	assert.Equal(t, []db.KV{{Key: []byte("key1"), Value: []byte("value1")}}, entries)
}

func TestEngine_ClosedErrors(t *testing.T) {
	engine, err := NewEngine(Config{InMemory: true})
	require.NoError(t, err)
	require.NoError(t, engine.Close())

	_, err = engine.Exists([]byte("key"), 1)
	assert.ErrorIs(t, err, ErrClosed)

	err = engine.BatchWrite(nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestIterate_ReverseSkipsNextColumn(t *testing.T) {
	engine, err := NewEngine(Config{InMemory: true})
	require.NoError(t, err)
	defer engine.Close() //nolint:errcheck // test cleanup

	for _, k := range []string{"a", "b"} {
		_, _, err := engine.Put([]byte(k), 1, []byte(k))
		require.NoError(t, err)
	}
	// Stored exactly at the exclusive upper bound of column 1
	_, _, err = engine.Put([]byte{}, 2, []byte("next"))
	require.NoError(t, err)

	entries, err := db.Collect(engine.Iterate(1, db.IterOptions{Direction: db.Reverse}))
	require.NoError(t, err)
	assert.Equal(t, []db.KV{
		{Key: []byte("b"), Value: []byte("b")},
		{Key: []byte("a"), Value: []byte("a")},
	}, entries)
}
