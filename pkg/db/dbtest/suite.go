// Package dbtest is the behaviour every db.Backend must share. Engine packages
// run it from their own tests.
package dbtest

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/statedb/pkg/db"
)

const (
	colA db.Column = 1
	colB db.Column = 2
)

// Factory opens a fresh, empty backend.
type Factory func(t *testing.T) db.Backend

// Run executes the conformance suite against backends produced by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store db.Backend)
	}{
		{name: "basic_put_get", fn: testBasicPutGet},
		{name: "put_returns_previous", fn: testPutReturnsPrevious},
		{name: "empty_value", fn: testEmptyValue},
		{name: "delete_operations", fn: testDelete},
		{name: "exists_matches_get", fn: testExists},
		{name: "columns_are_isolated", fn: testColumnIsolation},
		{name: "iterate_forward", fn: testIterateForward},
		{name: "iterate_reverse", fn: testIterateReverse},
		{name: "iterate_prefix_and_start", fn: testIteratePrefixAndStart},
		{name: "iterate_empty_column", fn: testIterateEmptyColumn},
		{name: "empty_key", fn: testEmptyKey},
		{name: "empty_key_in_next_column", fn: testEmptyKeyInNextColumn},
		{name: "batch_write", fn: testBatchWrite},
		{name: "concurrent_access", fn: testConcurrentAccess},
		{name: "store_closure", fn: testStoreClosure},
	}
	tests = append(tests, transactionTests...)

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newStore(t)
			defer store.Close() //nolint:errcheck // double close is a no-op

			tc.fn(t, store)
		})
	}
}

func testBasicPutGet(t *testing.T, store db.Backend) {
	key := []byte("test-key")
	value := []byte("test-value")

	_, existed, err := store.Put(key, colA, value)
	require.NoError(t, err)
	assert.False(t, existed)

	retrieved, ok, err := store.Get(key, colA)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, value, retrieved)

	// Test non-existent key
	_, ok, err = store.Get([]byte("non-existent"), colA)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testPutReturnsPrevious(t *testing.T, store db.Backend) {
	key := []byte("key")

	_, _, err := store.Put(key, colA, []byte("v1"))
	require.NoError(t, err)

	prev, existed, err := store.Put(key, colA, []byte("v2"))
	require.NoError(t, err)
	require.True(t, existed)
	assert.Equal(t, []byte("v1"), prev)

	got, _, err := store.Get(key, colA)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func testEmptyValue(t *testing.T, store db.Backend) {
	_, _, err := store.Put([]byte("empty"), colA, []byte{})
	require.NoError(t, err)

	got, ok, err := store.Get([]byte("empty"), colA)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, got)

	exists, err := store.Exists([]byte("empty"), colA)
	require.NoError(t, err)
	assert.True(t, exists)
}

func testDelete(t *testing.T, store db.Backend) {
	key := []byte("delete-test")
	value := []byte("to-be-deleted")

	_, _, err := store.Put(key, colA, value)
	require.NoError(t, err)

	prev, existed, err := store.Delete(key, colA)
	require.NoError(t, err)
	require.True(t, existed)
	assert.Equal(t, value, prev)

	_, ok, err := store.Get(key, colA)
	require.NoError(t, err)
	assert.False(t, ok)

	// Delete again is a no-op
	_, existed, err = store.Delete(key, colA)
	require.NoError(t, err)
	assert.False(t, existed)

	// Delete non-existent key should not error
	_, existed, err = store.Delete([]byte("non-existent"), colB)
	require.NoError(t, err)
	assert.False(t, existed)
}

func testExists(t *testing.T, store db.Backend) {
	keys := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	for _, k := range keys[:2] {
		_, _, err := store.Put(k, colA, k)
		require.NoError(t, err)
	}
	_, _, err := store.Delete(keys[1], colA)
	require.NoError(t, err)

	for _, k := range keys {
		_, ok, err := store.Get(k, colA)
		require.NoError(t, err)
		exists, err := store.Exists(k, colA)
		require.NoError(t, err)
		assert.Equal(t, ok, exists, "key %s", k)
	}
}

func testColumnIsolation(t *testing.T, store db.Backend) {
	key := []byte("shared")

	_, _, err := store.Put(key, colA, []byte("in-a"))
	require.NoError(t, err)
	_, _, err = store.Put(key, colB, []byte("in-b"))
	require.NoError(t, err)

	a, _, err := store.Get(key, colA)
	require.NoError(t, err)
	b, _, err := store.Get(key, colB)
	require.NoError(t, err)
	assert.Equal(t, []byte("in-a"), a)
	assert.Equal(t, []byte("in-b"), b)

	_, _, err = store.Delete(key, colA)
	require.NoError(t, err)
	exists, err := store.Exists(key, colB)
	require.NoError(t, err)
	assert.True(t, exists)

	entries, err := db.Collect(store.Iterate(colB, db.IterOptions{}))
	require.NoError(t, err)
	assert.Equal(t, []db.KV{{Key: key, Value: []byte("in-b")}}, entries)
}

func fill(t *testing.T, store db.Backend, column db.Column, keys ...string) {
	t.Helper()
	for _, k := range keys {
		_, _, err := store.Put([]byte(k), column, []byte("value-"+k))
		require.NoError(t, err)
	}
}

func keysOf(entries []db.KV) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, string(e.Key))
	}
	return out
}

func testIterateForward(t *testing.T, store db.Backend) {
	fill(t, store, colA, "d", "b", "a", "c")
	fill(t, store, colB, "aa", "zz")

	entries, err := db.Collect(store.Iterate(colA, db.IterOptions{}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, keysOf(entries))
	for _, e := range entries {
		assert.Equal(t, "value-"+string(e.Key), string(e.Value))
	}
}

func testIterateReverse(t *testing.T, store db.Backend) {
	fill(t, store, colA, "d", "b", "a", "c")
	fill(t, store, colB, "aa", "zz")

	entries, err := db.Collect(store.Iterate(colA, db.IterOptions{Direction: db.Reverse}))
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c", "b", "a"}, keysOf(entries))
}

func testIteratePrefixAndStart(t *testing.T, store db.Backend) {
	fill(t, store, colA, "a", "ab", "ab1", "ab2", "ab3", "ac", "b")

	tests := []struct {
		name string
		opts db.IterOptions
		want []string
	}{
		{
			name: "prefix",
			opts: db.IterOptions{Prefix: []byte("ab")},
			want: []string{"ab", "ab1", "ab2", "ab3"},
		},
		{
			name: "prefix_reverse",
			opts: db.IterOptions{Prefix: []byte("ab"), Direction: db.Reverse},
			want: []string{"ab3", "ab2", "ab1", "ab"},
		},
		{
			name: "start",
			opts: db.IterOptions{Start: []byte("ab2")},
			want: []string{"ab2", "ab3", "ac", "b"},
		},
		{
			name: "start_reverse",
			opts: db.IterOptions{Start: []byte("ab2"), Direction: db.Reverse},
			want: []string{"ab2", "ab1", "ab", "a"},
		},
		{
			name: "prefix_and_start",
			opts: db.IterOptions{Prefix: []byte("ab"), Start: []byte("ab2")},
			want: []string{"ab2", "ab3"},
		},
		{
			name: "prefix_and_start_reverse",
			opts: db.IterOptions{Prefix: []byte("ab"), Start: []byte("ab2"), Direction: db.Reverse},
			want: []string{"ab2", "ab1", "ab"},
		},
		{
			name: "start_between_keys",
			opts: db.IterOptions{Start: []byte("ab25")},
			want: []string{"ab3", "ac", "b"},
		},
		{
			name: "start_outside_prefix",
			opts: db.IterOptions{Prefix: []byte("ab"), Start: []byte("b")},
			want: []string{},
		},
		{
			name: "start_before_prefix_reverse",
			opts: db.IterOptions{Prefix: []byte("ab"), Start: []byte("a"), Direction: db.Reverse},
			want: []string{},
		},
		{
			name: "start_after_prefix_reverse",
			opts: db.IterOptions{Prefix: []byte("ab"), Start: []byte("ab9"), Direction: db.Reverse},
			want: []string{"ab3", "ab2", "ab1", "ab"},
		},
		{
			name: "missing_prefix",
			opts: db.IterOptions{Prefix: []byte("zz")},
			want: []string{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			entries, err := db.Collect(store.Iterate(colA, tc.opts))
			require.NoError(t, err)
			assert.Equal(t, tc.want, keysOf(entries))
		})
	}
}

func testIterateEmptyColumn(t *testing.T, store db.Backend) {
	it := store.Iterate(colB, db.IterOptions{})
	assert.False(t, it.Next())
	assert.NoError(t, it.Err())
	assert.NoError(t, it.Close())
	// Double close should not error
	assert.NoError(t, it.Close())
}

func testEmptyKey(t *testing.T, store db.Backend) {
	fill(t, store, colA, "a")

	_, existed, err := store.Put([]byte{}, colA, []byte("empty-key"))
	require.NoError(t, err)
	assert.False(t, existed)

	got, ok, err := store.Get([]byte{}, colA)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("empty-key"), got)

	exists, err := store.Exists(nil, colA)
	require.NoError(t, err)
	assert.True(t, exists)

	// The empty key sorts before every other key
	entries, err := db.Collect(store.Iterate(colA, db.IterOptions{}))
	require.NoError(t, err)
	assert.Equal(t, []string{"", "a"}, keysOf(entries))

	entries, err = db.Collect(store.Iterate(colA, db.IterOptions{Direction: db.Reverse}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", ""}, keysOf(entries))

	prev, existed, err := store.Delete([]byte{}, colA)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, []byte("empty-key"), prev)

	exists, err = store.Exists([]byte{}, colA)
	require.NoError(t, err)
	assert.False(t, exists)
}

// The empty key of the following column sits exactly at the end of colA's range.
func testEmptyKeyInNextColumn(t *testing.T, store db.Backend) {
	fill(t, store, colA, "a", "b")
	_, _, err := store.Put([]byte{}, colA+1, []byte("next"))
	require.NoError(t, err)

	entries, err := db.Collect(store.Iterate(colA, db.IterOptions{Direction: db.Reverse}))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, keysOf(entries))

	entries, err = db.Collect(store.Iterate(colA, db.IterOptions{}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keysOf(entries))

	entries, err = db.Collect(store.Iterate(colA+1, db.IterOptions{Direction: db.Reverse}))
	require.NoError(t, err)
	assert.Equal(t, []string{""}, keysOf(entries))
}

func testBatchWrite(t *testing.T, store db.Backend) {
	fill(t, store, colA, "key2")

	err := store.BatchWrite([]db.WriteOperation{
		db.Insert([]byte("key1"), colA, []byte("value1")),
		db.Insert([]byte("key3"), colB, []byte("value3")),
		db.Remove([]byte("key2"), colA),
		db.Remove([]byte("absent"), colA),
	})
	require.NoError(t, err)

	val1, ok, err := store.Get([]byte("key1"), colA)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("value1"), val1)

	_, ok, err = store.Get([]byte("key2"), colA)
	require.NoError(t, err)
	assert.False(t, ok)

	val3, ok, err := store.Get([]byte("key3"), colB)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("value3"), val3)

	// The last write to a key within a batch wins
	err = store.BatchWrite([]db.WriteOperation{
		db.Insert([]byte("key4"), colA, []byte("first")),
		db.Insert([]byte("key4"), colA, []byte("second")),
	})
	require.NoError(t, err)
	val4, _, err := store.Get([]byte("key4"), colA)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), val4)

	require.NoError(t, store.BatchWrite(nil))
}

func testConcurrentAccess(t *testing.T, store db.Backend) {
	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWorker {
				key := []byte(fmt.Sprintf("w%02d-%03d", w, i))
				if _, _, err := store.Put(key, colA, key); err != nil {
					t.Error(err)
					return
				}
				if _, _, err := store.Get(key, colA); err != nil {
					t.Error(err)
					return
				}
				it := store.Iterate(colA, db.IterOptions{Prefix: key[:3]})
				for it.Next() {
				}
				if err := it.Err(); err != nil {
					t.Error(err)
				}
				_ = it.Close()
			}
		}()
	}
	wg.Wait()

	entries, err := db.Collect(store.Iterate(colA, db.IterOptions{}))
	require.NoError(t, err)
	assert.Len(t, entries, workers*perWorker)
}

func testStoreClosure(t *testing.T, store db.Backend) {
	err := store.Close()
	require.NoError(t, err)

	// Test operations after close
	_, _, err = store.Get([]byte("key"), colA)
	assert.Error(t, err)

	_, _, err = store.Put([]byte("key"), colA, []byte("value"))
	assert.Error(t, err)

	_, _, err = store.Delete([]byte("key"), colA)
	assert.Error(t, err)

	it := store.Iterate(colA, db.IterOptions{})
	assert.False(t, it.Next())
	assert.Error(t, it.Err())

	// Double close should not error
	err = store.Close()
	assert.NoError(t, err)
}
