// Package ordered holds the btree-backed sorted map shared by the in-memory
// engine and the transaction overlay.
package ordered

import (
	"bytes"
	"iter"

	"github.com/google/btree"

	"github.com/eigerco/statedb/pkg/db"
)

const degree = 32

// Entry is a key with either a value or a tombstone.
type Entry struct {
	Key     []byte
	Value   []byte
	Deleted bool
}

func less(a, b Entry) bool {
	return bytes.Compare(a.Key, b.Key) < 0
}

// Tree is a sorted map from keys to entries. It is not safe for concurrent
// mutation; a Clone may be read while the original keeps changing.
type Tree struct {
	t *btree.BTreeG[Entry]
}

func New() *Tree {
	return &Tree{t: btree.NewG(degree, less)}
}

func (t *Tree) Get(key []byte) (Entry, bool) {
	return t.t.Get(Entry{Key: key})
}

// Set stores e and returns the entry it replaced.
func (t *Tree) Set(e Entry) (Entry, bool) {
	return t.t.ReplaceOrInsert(e)
}

func (t *Tree) Delete(key []byte) (Entry, bool) {
	return t.t.Delete(Entry{Key: key})
}

func (t *Tree) Len() int {
	return t.t.Len()
}

// Clone returns a lazy copy-on-write snapshot.
func (t *Tree) Clone() *Tree {
	return &Tree{t: t.t.Clone()}
}

// Walk visits entries with lower <= key < upper in the given direction until fn returns false.
func (t *Tree) Walk(lower, upper []byte, dir db.IterDirection, fn func(Entry) bool) {
	if dir == db.Reverse {
		visit := func(e Entry) bool {
			if upper != nil && bytes.Compare(e.Key, upper) >= 0 {
				return true
			}
			if lower != nil && bytes.Compare(e.Key, lower) < 0 {
				return false
			}
			return fn(e)
		}
		if upper == nil {
			t.t.Descend(visit)
		} else {
			t.t.DescendLessOrEqual(Entry{Key: upper}, visit)
		}
		return
	}

	visit := func(e Entry) bool {
		if upper != nil && bytes.Compare(e.Key, upper) >= 0 {
			return false
		}
		return fn(e)
	}
	if lower == nil {
		t.t.Ascend(visit)
	} else {
		t.t.AscendGreaterOrEqual(Entry{Key: lower}, visit)
	}
}

// Seq returns the entries of Walk as a lazy sequence.
func (t *Tree) Seq(lower, upper []byte, dir db.IterDirection) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		t.Walk(lower, upper, dir, yield)
	}
}
