package pebble

import (
	"bytes"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/eigerco/statedb/pkg/db"
)

// Iterator walks a consistent snapshot of one column.
type Iterator struct {
	iter       *pebble.Iterator
	dir        db.IterDirection
	positioned bool
	key        []byte
	value      []byte
	err        error
	closed     bool
}

func (p *KVStore) Iterate(column db.Column, opts db.IterOptions) db.Iterator {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return db.ErrorIterator(ErrClosed)
	}
	lower, upper := opts.Range()
	lower, upper = db.ColumnRange(column, lower, upper)
	if upper != nil && bytes.Compare(lower, upper) >= 0 {
		return db.ErrorIterator(nil)
	}
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return db.ErrorIterator(fmt.Errorf(ErrInIteratorCreation, err))
	}
	return &Iterator{iter: iter, dir: opts.Direction}
}

func (it *Iterator) Next() bool {
	if it.closed {
		it.err = db.ErrIteratorClosed
		return false
	}
	if it.err != nil {
		return false
	}

	var ok bool
	switch {
	case !it.positioned && it.dir == db.Reverse:
		ok = it.iter.Last()
	case !it.positioned:
		ok = it.iter.First()
	case it.dir == db.Reverse:
		ok = it.iter.Prev()
	default:
		ok = it.iter.Next()
	}
	it.positioned = true

	if !ok {
		it.key, it.value = nil, nil
		if err := it.iter.Error(); err != nil {
			it.err = fmt.Errorf("kv-store: iterate: %w", err)
		}
		return false
	}

	val, err := it.iter.ValueAndErr()
	if err != nil {
		it.key, it.value = nil, nil
		it.err = fmt.Errorf(ErrIteratorValue, err)
		return false
	}
	_, key, err := db.SplitColumnKey(it.iter.Key())
	if err != nil {
		it.err = err
		return false
	}
	it.key = append([]byte{}, key...)
	it.value = append([]byte{}, val...)
	return true
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
	return it.iter.Close()
}
