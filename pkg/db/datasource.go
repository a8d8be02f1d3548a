package db

import (
	"errors"
	"sync/atomic"
)

var (
	ErrClosed         = errors.New("db: data source is closed")
	ErrIteratorClosed = errors.New("db: iterator is closed")
)

// DataSource is a shared handle to one backend. Clones share the backend and
// never copy data; the backend is closed when the last handle is closed.
// A DataSource is safe for concurrent use as long as the backend is.
type DataSource struct {
	shared   *shared
	released atomic.Bool
}

type shared struct {
	backend Backend
	refs    atomic.Int64
}

// NewDataSource wraps a backend in its first handle.
func NewDataSource(b Backend) *DataSource {
	s := &shared{backend: b}
	s.refs.Store(1)
	return &DataSource{shared: s}
}

// Clone returns a new handle to the same backend.
func (d *DataSource) Clone() (*DataSource, error) {
	if d.released.Load() {
		return nil, ErrClosed
	}
	d.shared.refs.Add(1)
	return &DataSource{shared: d.shared}, nil
}

// Close releases this handle. Closing a handle twice is a no-op.
func (d *DataSource) Close() error {
	if !d.released.CompareAndSwap(false, true) {
		return nil
	}
	if d.shared.refs.Add(-1) == 0 {
		return d.shared.backend.Close()
	}
	return nil
}

// Refs returns the number of open handles sharing the backend.
func (d *DataSource) Refs() int64 {
	return d.shared.refs.Load()
}

func (d *DataSource) backend() (Backend, error) {
	if d.released.Load() {
		return nil, ErrClosed
	}
	return d.shared.backend, nil
}

func (d *DataSource) Get(key []byte, column Column) ([]byte, bool, error) {
	b, err := d.backend()
	if err != nil {
		return nil, false, err
	}
	return b.Get(key, column)
}

func (d *DataSource) Put(key []byte, column Column, value []byte) ([]byte, bool, error) {
	b, err := d.backend()
	if err != nil {
		return nil, false, err
	}
	return b.Put(key, column, value)
}

func (d *DataSource) Delete(key []byte, column Column) ([]byte, bool, error) {
	b, err := d.backend()
	if err != nil {
		return nil, false, err
	}
	return b.Delete(key, column)
}

func (d *DataSource) Exists(key []byte, column Column) (bool, error) {
	b, err := d.backend()
	if err != nil {
		return false, err
	}
	return b.Exists(key, column)
}

func (d *DataSource) Iterate(column Column, opts IterOptions) Iterator {
	b, err := d.backend()
	if err != nil {
		return ErrorIterator(err)
	}
	return b.Iterate(column, opts)
}

func (d *DataSource) BatchWrite(ops []WriteOperation) error {
	b, err := d.backend()
	if err != nil {
		return err
	}
	return b.BatchWrite(ops)
}

func (d *DataSource) String() string {
	return "DataSource(" + d.shared.backend.String() + ")"
}
