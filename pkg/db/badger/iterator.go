package badger

import (
	"bytes"

	"github.com/dgraph-io/badger/v4"

	"github.com/eigerco/statedb/pkg/db"
)

// Iterator reads from a read-only transaction, so it sees the state as of
// its creation. Values are fetched from the value log one at a time.
type Iterator struct {
	txn        *badger.Txn
	iter       *badger.Iterator
	lower      []byte
	upper      []byte
	dir        db.IterDirection
	positioned bool
	key        []byte
	value      []byte
	err        error
	closed     bool
}

func (e *Engine) Iterate(column db.Column, opts db.IterOptions) db.Iterator {
	if e.db.IsClosed() {
		return db.ErrorIterator(ErrClosed)
	}
	lower, upper := opts.Range()
	lower, upper = db.ColumnRange(column, lower, upper)

	iterOpts := badger.DefaultIteratorOptions
	iterOpts.PrefetchValues = false
	iterOpts.Reverse = opts.Direction == db.Reverse

	txn := e.db.NewTransaction(false)
	return &Iterator{
		txn:   txn,
		iter:  txn.NewIterator(iterOpts),
		lower: lower,
		upper: upper,
		dir:   opts.Direction,
	}
}

func (it *Iterator) Next() bool {
	if it.closed {
		it.err = db.ErrIteratorClosed
		return false
	}
	if it.err != nil {
		return false
	}

	if !it.positioned {
		it.seek()
		it.positioned = true
	} else {
		it.iter.Next()
	}

	if !it.iter.Valid() {
		it.key, it.value = nil, nil
		return false
	}
	item := it.iter.Item()
	k := item.KeyCopy(nil)
	if !db.InRange(k, it.lower, it.upper) {
		it.key, it.value = nil, nil
		return false
	}

	value, err := item.ValueCopy(nil)
	if err != nil {
		it.key, it.value = nil, nil
		it.err = wrap("iterate", err)
		return false
	}
	_, key, err := db.SplitColumnKey(k)
	if err != nil {
		it.err = err
		return false
	}
	if value == nil {
		value = []byte{}
	}
	it.key = key
	it.value = value
	return true
}

func (it *Iterator) seek() {
	if it.dir != db.Reverse {
		it.iter.Seek(it.lower)
		return
	}
	if it.upper == nil {
		// past every key of the last column
		it.iter.Seek(bytes.Repeat([]byte{0xff}, db.ColumnSize+1))
		return
	}
	// Reverse Seek lands on the largest key <= upper; upper itself is excluded.
	// The iterator is not restricted to the column prefix, so a key equal to
	// upper from the next column is seen and skipped here.
	it.iter.Seek(it.upper)
	for it.iter.Valid() && bytes.Compare(it.iter.Item().Key(), it.upper) >= 0 {
		it.iter.Next()
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
	it.iter.Close()
	it.txn.Discard()
	return nil
}
