package ordered

import (
	"bytes"
	"iter"

	"github.com/eigerco/statedb/pkg/db"
)

// Iterator adapts a sequence of live entries to db.Iterator. Tombstones are skipped.
type Iterator struct {
	next   func() (Entry, bool)
	stop   func()
	cur    Entry
	closed bool
	err    error
}

var _ db.Iterator = (*Iterator)(nil)

func NewIterator(seq iter.Seq[Entry]) *Iterator {
	next, stop := iter.Pull(seq)
	return &Iterator{next: next, stop: stop}
}

func (it *Iterator) Next() bool {
	if it.closed {
		it.err = db.ErrIteratorClosed
		return false
	}
	for {
		e, ok := it.next()
		if !ok {
			it.cur = Entry{}
			return false
		}
		if e.Deleted {
			continue
		}
		it.cur = e
		return true
	}
}

func (it *Iterator) Key() []byte {
	return bytes.Clone(it.cur.Key)
}

func (it *Iterator) Value() []byte {
	return bytes.Clone(it.cur.Value)
}

func (it *Iterator) Err() error {
	return it.err
}

func (it *Iterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.stop()
	return nil
}
