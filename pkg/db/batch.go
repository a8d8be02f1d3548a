package db

import (
	"fmt"
)

// OpKind tags a WriteOperation.
type OpKind uint8

const (
	OpInsert OpKind = iota + 1
	OpRemove
)

func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// WriteOperation is one entry of a batch. Value is only meaningful for inserts.
type WriteOperation struct {
	Kind   OpKind
	Key    []byte
	Column Column
	Value  []byte
}

// Insert builds an upsert operation.
func Insert(key []byte, column Column, value []byte) WriteOperation {
	return WriteOperation{Kind: OpInsert, Key: key, Column: column, Value: value}
}

// Remove builds a delete operation.
func Remove(key []byte, column Column) WriteOperation {
	return WriteOperation{Kind: OpRemove, Key: key, Column: column}
}

// BatchError reports the operation that failed while applying a batch.
type BatchError struct {
	Index int
	Op    WriteOperation
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch entry %d (%s column %d key %x): %v", e.Index, e.Op.Kind, e.Op.Column, e.Op.Key, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// ApplySequential is the default BatchWrite: entries are applied one at a
// time through Put and Delete. It gives no cross-entry atomicity; it stops at
// and returns the first failure, leaving earlier entries applied.
func ApplySequential(kv KeyValueStore, ops []WriteOperation) error {
	for i, op := range ops {
		var err error
		switch op.Kind {
		case OpInsert:
			_, _, err = kv.Put(op.Key, op.Column, op.Value)
		case OpRemove:
			_, _, err = kv.Delete(op.Key, op.Column)
		default:
			err = fmt.Errorf("unknown operation kind %d", op.Kind)
		}
		if err != nil {
			return &BatchError{Index: i, Op: op, Err: err}
		}
	}
	return nil
}

// Sequential lifts a store that only offers the basic capabilities into a
// TransactableStorage whose BatchWrite falls back to ApplySequential.
func Sequential(kv KeyValueStore) TransactableStorage {
	return sequential{KeyValueStore: kv}
}

type sequential struct {
	KeyValueStore
}

func (s sequential) BatchWrite(ops []WriteOperation) error {
	return ApplySequential(s.KeyValueStore, ops)
}

func (s sequential) String() string {
	if str, ok := s.KeyValueStore.(fmt.Stringer); ok {
		return "sequential(" + str.String() + ")"
	}
	return fmt.Sprintf("sequential(%T)", s.KeyValueStore)
}
