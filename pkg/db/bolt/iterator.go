package bolt

import (
	"bytes"

	bolt "go.etcd.io/bbolt"

	"github.com/eigerco/statedb/pkg/db"
)

// Iterator holds a read transaction until it is exhausted or closed.
// The store cannot be closed while iterators are open.
type Iterator struct {
	tx         *bolt.Tx
	cursor     *bolt.Cursor
	codec      codec
	lower      []byte
	upper      []byte
	dir        db.IterDirection
	positioned bool
	key        []byte
	value      []byte
	err        error
	closed     bool
}

func (s *Store) Iterate(column db.Column, opts db.IterOptions) db.Iterator {
	if s.closed.Load() {
		return db.ErrorIterator(ErrClosed)
	}
	tx, err := s.db.Begin(false)
	if err != nil {
		return db.ErrorIterator(s.wrap("iterate", err))
	}
	lower, upper := opts.Range()
	lower, upper = db.ColumnRange(column, lower, upper)
	return &Iterator{
		tx:     tx,
		cursor: tx.Bucket(dataBucket).Cursor(),
		codec:  s.codec,
		lower:  lower,
		upper:  upper,
		dir:    opts.Direction,
	}
}

func (it *Iterator) Next() bool {
	if it.closed {
		it.err = db.ErrIteratorClosed
		return false
	}
	if it.err != nil || it.tx == nil {
		return false
	}

	k, v := it.step()
	it.positioned = true
	if k == nil || !db.InRange(k, it.lower, it.upper) {
		it.release()
		return false
	}

	value, err := it.codec.decode(v)
	if err != nil {
		it.err = err
		it.release()
		return false
	}
	_, key, err := db.SplitColumnKey(k)
	if err != nil {
		it.err = err
		it.release()
		return false
	}
	it.key = bytes.Clone(key)
	it.value = value
	return true
}

func (it *Iterator) step() ([]byte, []byte) {
	if it.positioned {
		if it.dir == db.Reverse {
			return it.cursor.Prev()
		}
		return it.cursor.Next()
	}

	if it.dir != db.Reverse {
		return it.cursor.Seek(it.lower)
	}
	if it.upper == nil {
		return it.cursor.Last()
	}
	// Seek lands on the first key >= upper; the previous one is the last key in range.
	if k, _ := it.cursor.Seek(it.upper); k == nil {
		return it.cursor.Last()
	}
	return it.cursor.Prev()
}

// release ends the read transaction as soon as the range is exhausted.
func (it *Iterator) release() {
	it.key, it.value = nil, nil
	if it.tx != nil {
		_ = it.tx.Rollback()
		it.tx = nil
	}
}

func (it *Iterator) Key() []byte {
	return it.key
}

func (it *Iterator) Value() []byte {
	return it.value
}

func (it *Iterator) Err() error {
	return it.err
}

func (it *Iterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.release()
	return nil
}
