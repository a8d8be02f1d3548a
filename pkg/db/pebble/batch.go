package pebble

import (
	"fmt"

	"github.com/eigerco/statedb/pkg/db"
)

// BatchWrite commits all operations in one pebble batch: either every
// operation is applied or none is.
func (p *KVStore) BatchWrite(ops []db.WriteOperation) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	batch := p.db.NewBatch()
	defer batch.Close() //nolint:errcheck // the batch is discarded either way

	for i, op := range ops {
		var err error
		k := db.ColumnKey(op.Column, op.Key)
		switch op.Kind {
		case db.OpInsert:
			err = batch.Set(k, op.Value, nil)
		case db.OpRemove:
			err = batch.Delete(k, nil)
		default:
			err = fmt.Errorf("unknown operation kind %d", op.Kind)
		}
		if err != nil {
			return &db.BatchError{Index: i, Op: op, Err: err}
		}
	}

	if err := batch.Commit(p.writeOpts); err != nil {
		return fmt.Errorf("kv-store: commit batch: %w", err)
	}
	return nil
}
