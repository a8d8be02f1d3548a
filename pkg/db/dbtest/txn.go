package dbtest

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/statedb/pkg/db"
	"github.com/eigerco/statedb/pkg/db/txn"
)

var errRollback = errors.New("rollback")

// transactionTests run the transaction mechanism against the backend under test.
var transactionTests = []struct {
	name string
	fn   func(t *testing.T, store db.Backend)
}{
	{name: "txn_commit", fn: testTxnCommit},
	{name: "txn_abort", fn: testTxnAbort},
	{name: "txn_nested_commit_outer_abort", fn: testTxnNestedCommitOuterAbort},
	{name: "txn_nested_abort_outer_commit", fn: testTxnNestedAbortOuterCommit},
	{name: "txn_disjoint_concurrent", fn: testTxnDisjointConcurrent},
	{name: "txn_iterate_view", fn: testTxnIterateView},
}

func requireValue(t *testing.T, store db.KeyValueStore, key, want string) {
	t.Helper()
	got, ok, err := store.Get([]byte(key), colA)
	require.NoError(t, err)
	require.True(t, ok, "key %q is absent", key)
	assert.Equal(t, want, string(got))
}

func requireAbsent(t *testing.T, store db.KeyValueStore, key string) {
	t.Helper()
	ok, err := store.Exists([]byte(key), colA)
	require.NoError(t, err)
	require.False(t, ok, "key %q is present", key)
}

func put(v *txn.View, key, value string) error {
	_, _, err := v.Put([]byte(key), colA, []byte(value))
	return err
}

func testTxnCommit(t *testing.T, store db.Backend) {
	err := txn.Do(store, func(v *txn.View) error {
		return put(v, "a", "1")
	})
	require.NoError(t, err)
	requireValue(t, store, "a", "1")
}

func testTxnAbort(t *testing.T, store db.Backend) {
	err := txn.Do(store, func(v *txn.View) error {
		if err := put(v, "a", "1"); err != nil {
			return err
		}
		return errRollback
	})
	require.ErrorIs(t, err, txn.ErrAborted)
	require.ErrorIs(t, err, errRollback)
	requireAbsent(t, store, "a")
}

func testTxnNestedCommitOuterAbort(t *testing.T, store db.Backend) {
	err := txn.Do(store, func(outer *txn.View) error {
		err := txn.Do(outer, func(inner *txn.View) error {
			return put(inner, "x", "9")
		})
		if err != nil {
			return err
		}
		return errRollback
	})
	require.ErrorIs(t, err, errRollback)
	requireAbsent(t, store, "x")
}

func testTxnNestedAbortOuterCommit(t *testing.T, store db.Backend) {
	err := txn.Do(store, func(outer *txn.View) error {
		if err := put(outer, "kept", "1"); err != nil {
			return err
		}
		err := txn.Do(outer, func(inner *txn.View) error {
			if err := put(inner, "dropped", "2"); err != nil {
				return err
			}
			return errRollback
		})
		if !errors.Is(err, errRollback) {
			return errors.New("inner transaction should have aborted")
		}
		return nil
	})
	require.NoError(t, err)
	requireValue(t, store, "kept", "1")
	requireAbsent(t, store, "dropped")
}

func testTxnDisjointConcurrent(t *testing.T, store db.Backend) {
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, key := range []string{"a", "b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = txn.Do(store, func(v *txn.View) error {
				return put(v, key, key)
			})
		}()
	}
	wg.Wait()

	require.NoError(t, errors.Join(errs...))
	requireValue(t, store, "a", "a")
	requireValue(t, store, "b", "b")
}

func testTxnIterateView(t *testing.T, store db.Backend) {
	fill(t, store, colA, "a", "c", "e")

	err := txn.Do(store, func(v *txn.View) error {
		if err := put(v, "b", "value-b"); err != nil {
			return err
		}
		if _, _, err := v.Delete([]byte("c"), colA); err != nil {
			return err
		}
		if err := put(v, "e", "value-e2"); err != nil {
			return err
		}

		entries, err := db.Collect(v.Iterate(colA, db.IterOptions{}))
		if err != nil {
			return err
		}
		require.Equal(t, []string{"a", "b", "e"}, keysOf(entries))
		assert.Equal(t, "value-e2", string(entries[2].Value))

		entries, err = db.Collect(v.Iterate(colA, db.IterOptions{Direction: db.Reverse}))
		if err != nil {
			return err
		}
		assert.Equal(t, []string{"e", "b", "a"}, keysOf(entries))

		// Nothing reaches the backend before commit
		ok, err := store.Exists([]byte("b"), colA)
		if err != nil {
			return err
		}
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)

	entries, err := db.Collect(store.Iterate(colA, db.IterOptions{}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "e"}, keysOf(entries))
}
