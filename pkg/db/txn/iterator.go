package txn

import (
	"bytes"
	"iter"

	"github.com/eigerco/statedb/pkg/db"
	"github.com/eigerco/statedb/pkg/db/internal/ordered"
)

// mergeIterator merges a base iterator with buffered entries of one column.
// Both inputs are ordered in the same direction. On equal keys the buffered
// entry wins and tombstones hide the base entry.
type mergeIterator struct {
	base        db.Iterator
	nextPending func() (ordered.Entry, bool)
	stopPending func()
	dir         db.IterDirection

	baseHead    db.KV
	baseLoaded  bool
	baseDone    bool
	pendingHead ordered.Entry
	pendLoaded  bool
	pendDone    bool

	cur    db.KV
	err    error
	closed bool
}

func newMergeIterator(base db.Iterator, pending iter.Seq[ordered.Entry], dir db.IterDirection) *mergeIterator {
	next, stop := iter.Pull(pending)
	return &mergeIterator{
		base:        base,
		nextPending: next,
		stopPending: stop,
		dir:         dir,
	}
}

func (it *mergeIterator) Next() bool {
	if it.closed {
		it.err = db.ErrIteratorClosed
		return false
	}
	if it.err != nil {
		return false
	}
	for {
		if !it.baseLoaded && !it.baseDone {
			if it.base.Next() {
				it.baseHead = db.KV{Key: it.base.Key(), Value: it.base.Value()}
				it.baseLoaded = true
			} else {
				it.baseDone = true
				if err := it.base.Err(); err != nil {
					it.err = err
					it.cur = db.KV{}
					return false
				}
			}
		}
		if !it.pendLoaded && !it.pendDone {
			if e, ok := it.nextPending(); ok {
				it.pendingHead = e
				it.pendLoaded = true
			} else {
				it.pendDone = true
			}
		}

		switch {
		case !it.baseLoaded && !it.pendLoaded:
			it.cur = db.KV{}
			return false
		case !it.pendLoaded:
			it.takeBase()
			return true
		case it.baseLoaded:
			c := bytes.Compare(it.baseHead.Key, it.pendingHead.Key)
			if it.dir == db.Reverse {
				c = -c
			}
			if c < 0 {
				it.takeBase()
				return true
			}
			if c == 0 {
				// shadowed by the buffered entry
				it.baseLoaded = false
			}
		}

		it.pendLoaded = false
		if it.pendingHead.Deleted {
			continue
		}
		it.cur = db.KV{Key: bytes.Clone(it.pendingHead.Key), Value: bytes.Clone(it.pendingHead.Value)}
		return true
	}
}

func (it *mergeIterator) takeBase() {
	it.cur = it.baseHead
	it.baseLoaded = false
}

func (it *mergeIterator) Key() []byte {
	return bytes.Clone(it.cur.Key)
}

func (it *mergeIterator) Value() []byte {
	return bytes.Clone(it.cur.Value)
}

func (it *mergeIterator) Err() error {
	return it.err
}

func (it *mergeIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.stopPending()
	return it.base.Close()
}
