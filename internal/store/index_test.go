package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/statedb/internal/testutils"
	"github.com/eigerco/statedb/pkg/db"
	"github.com/eigerco/statedb/pkg/db/memory"
	"github.com/eigerco/statedb/pkg/db/txn"
)

func newIndex(t *testing.T) (*OwnerIndex, *memory.KVStore) {
	store := memory.NewKVStore()
	t.Cleanup(func() {
		_ = store.Close()
	})
	return NewOwnerIndex(store), store
}

func items(ids ...string) [][]byte {
	out := make([][]byte, 0, len(ids))
	for _, id := range ids {
		out = append(out, []byte(id))
	}
	return out
}

func TestOwnerIndex_AddRemoveContains(t *testing.T) {
	index, _ := newIndex(t)
	owner := testutils.RandomHash(t)

	added, err := index.Add(owner, []byte("item-1"))
	require.NoError(t, err)
	assert.True(t, added)

	added, err = index.Add(owner, []byte("item-1"))
	require.NoError(t, err)
	assert.False(t, added)

	ok, err := index.Contains(owner, []byte("item-1"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = index.Contains(testutils.RandomHash(t), []byte("item-1"))
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err := index.Remove(owner, []byte("item-1"))
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = index.Remove(owner, []byte("item-1"))
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestOwnerIndex_List(t *testing.T) {
	index, _ := newIndex(t)
	owner := testutils.RandomHash(t)
	other := testutils.RandomHash(t)

	for _, id := range []string{"c", "a", "e", "b", "d"} {
		_, err := index.Add(owner, []byte(id))
		require.NoError(t, err)
	}
	_, err := index.Add(other, []byte("x"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		start []byte
		dir   db.IterDirection
		limit int
		want  [][]byte
	}{
		{name: "all", want: items("a", "b", "c", "d", "e")},
		{name: "reverse", dir: db.Reverse, want: items("e", "d", "c", "b", "a")},
		{name: "limit", limit: 2, want: items("a", "b")},
		{name: "start", start: []byte("c"), want: items("c", "d", "e")},
		{name: "start_reverse", start: []byte("c"), dir: db.Reverse, want: items("c", "b", "a")},
		{name: "start_reverse_limit", start: []byte("d"), dir: db.Reverse, limit: 1, want: items("d")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := index.List(owner, tc.start, tc.dir, tc.limit)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	got, err := index.List(testutils.RandomHash(t), nil, db.Forward, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOwnerIndex_Transfer(t *testing.T) {
	index, _ := newIndex(t)
	alice := testutils.RandomHash(t)
	bob := testutils.RandomHash(t)

	_, err := index.Add(alice, []byte("item"))
	require.NoError(t, err)

	require.NoError(t, index.Transfer([]byte("item"), alice, bob))

	ok, err := index.Contains(alice, []byte("item"))
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = index.Contains(bob, []byte("item"))
	require.NoError(t, err)
	assert.True(t, ok)

	// Alice no longer holds the item, so nothing changes
	err = index.Transfer([]byte("item"), alice, bob)
	require.ErrorIs(t, err, txn.ErrAborted)
	ok, err = index.Contains(bob, []byte("item"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOwnerIndex_InsideTransaction(t *testing.T) {
	_, store := newIndex(t)
	owner := testutils.RandomHash(t)
	errStop := errors.New("stop")

	err := txn.Do(store, func(v *txn.View) error {
		index := NewOwnerIndex(v)
		if _, err := index.Add(owner, []byte("a")); err != nil {
			return err
		}
		// The nested transfer only lands in the outer view
		if err := index.Transfer([]byte("a"), owner, owner); err != nil {
			return err
		}
		return errStop
	})
	require.ErrorIs(t, err, errStop)

	ok, err := NewOwnerIndex(store).Contains(owner, []byte("a"))
	require.NoError(t, err)
	assert.False(t, ok)
}
