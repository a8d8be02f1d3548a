package db

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Column partitions the key space. Identical keys in different columns never
// collide. The meaning of a column is assigned by the layers above.
type Column uint32

// ColumnSize is the width of an encoded column identifier.
const ColumnSize = 4

// Bytes returns the big-endian encoding of the column, which keeps columns
// ordered numerically when used as a key prefix.
func (c Column) Bytes() []byte {
	b := make([]byte, ColumnSize)
	binary.BigEndian.PutUint32(b, uint32(c))
	return b
}

// KeyValueStore is the capability set every storage backend provides.
// Absence is not an error: Get, Put and Delete report it through ok/existed.
type KeyValueStore interface {
	// Get returns the stored value and true, or false if the key is absent.
	Get(key []byte, column Column) (value []byte, ok bool, err error)
	// Put upserts the value and returns the value it replaced, if any.
	Put(key []byte, column Column, value []byte) (prev []byte, existed bool, err error)
	// Delete removes the key and returns the removed value, if any.
	// Deleting an absent key succeeds.
	Delete(key []byte, column Column) (prev []byte, existed bool, err error)
	// Exists reports whether the key is present without necessarily reading its value.
	Exists(key []byte, column Column) (bool, error)
	// Iterate returns a lazy single-pass iterator over the column.
	Iterate(column Column, opts IterOptions) Iterator
}

// BatchWriter applies a sequence of write operations.
type BatchWriter interface {
	BatchWrite(ops []WriteOperation) error
}

// TransactableStorage is what the transaction layer runs against.
// String is the debug representation of the storage.
type TransactableStorage interface {
	KeyValueStore
	BatchWriter
	fmt.Stringer
}

// Backend is a concrete engine owning its resources.
// Implementations must be safe for concurrent use.
type Backend interface {
	TransactableStorage
	io.Closer
}

// Iterator provides sequential access over a range of key-value pairs.
// Next returns false when the range is exhausted or a failure occurred;
// Err distinguishes the two. Keys and values returned are owned by the caller.
// Iterators must be closed after use.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Err() error
	Close() error
}

// KV is a single key-value pair produced by iteration.
type KV struct {
	Key   []byte
	Value []byte
}
