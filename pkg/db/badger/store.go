// Package badger is a persistent engine on BadgerDB, an LSM tree with a
// separate value log.
package badger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/eigerco/statedb/pkg/db"
	"github.com/eigerco/statedb/pkg/log"
)

var ErrClosed = errors.New("badger: database is closed")

type Config struct {
	DataPath   string
	InMemory   bool
	SyncWrites bool
}

// Engine keeps every column in one keyspace under column-prefixed keys.
type Engine struct {
	db       *badger.DB
	location string
	// Put and Delete read before they write; serializing writers avoids
	// badger.ErrConflict between them.
	mu sync.Mutex
}

var _ db.Backend = (*Engine)(nil)

func NewEngine(config Config) (*Engine, error) {
	opts := badger.DefaultOptions(config.DataPath)
	location := config.DataPath
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
		location = "memory"
	}
	opts = opts.WithSyncWrites(config.SyncWrites).
		WithLogger(log.EngineLogger{Logger: log.Storage.With().Str("engine", "badger").Logger()})

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	log.Storage.Info().Str("engine", "badger").Str("path", location).Msg("opened store")
	return &Engine{db: bdb, location: location}, nil
}

func (e *Engine) Get(key []byte, column db.Column) ([]byte, bool, error) {
	var (
		value []byte
		ok    bool
	)
	err := e.db.View(func(txn *badger.Txn) error {
		var err error
		value, ok, err = get(txn, db.ColumnKey(column, key))
		return err
	})
	if err != nil {
		return nil, false, wrap("get", err)
	}
	return value, ok, nil
}

func (e *Engine) Put(key []byte, column db.Column, value []byte) ([]byte, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		prev    []byte
		existed bool
	)
	err := e.db.Update(func(txn *badger.Txn) error {
		k := db.ColumnKey(column, key)
		var err error
		prev, existed, err = get(txn, k)
		if err != nil {
			return err
		}
		return txn.Set(k, value)
	})
	if err != nil {
		return nil, false, wrap("put", err)
	}
	return prev, existed, nil
}

func (e *Engine) Delete(key []byte, column db.Column) ([]byte, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		prev    []byte
		existed bool
	)
	err := e.db.Update(func(txn *badger.Txn) error {
		k := db.ColumnKey(column, key)
		var err error
		prev, existed, err = get(txn, k)
		if err != nil || !existed {
			return err
		}
		return txn.Delete(k)
	})
	if err != nil {
		return nil, false, wrap("delete", err)
	}
	return prev, existed, nil
}

// Exists only looks up the key's index entry; the value log is not read.
func (e *Engine) Exists(key []byte, column db.Column) (bool, error) {
	err := e.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(db.ColumnKey(column, key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, wrap("exists", err)
	}
	return true, nil
}

// BatchWrite performs all operations in a single transaction. A batch too
// large for one transaction fails with badger.ErrTxnTooBig and applies nothing.
func (e *Engine) BatchWrite(ops []db.WriteOperation) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.db.Update(func(txn *badger.Txn) error {
		for i, op := range ops {
			var err error
			k := db.ColumnKey(op.Column, op.Key)
			switch op.Kind {
			case db.OpInsert:
				err = txn.Set(k, op.Value)
			case db.OpRemove:
				err = txn.Delete(k)
			default:
				err = fmt.Errorf("unknown operation kind %d", op.Kind)
			}
			if err != nil {
				return &db.BatchError{Index: i, Op: op, Err: err}
			}
		}
		return nil
	})
	if err != nil {
		return wrap("batch write", err)
	}
	return nil
}

func (e *Engine) Close() error {
	if e.db.IsClosed() {
		return nil
	}
	log.Storage.Info().Str("engine", "badger").Str("path", e.location).Msg("closing store")
	return e.db.Close()
}

func (e *Engine) String() string {
	return fmt.Sprintf("badger.Engine{path: %s}", e.location)
}

func get(txn *badger.Txn, k []byte) ([]byte, bool, error) {
	item, err := txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	if value == nil {
		value = []byte{}
	}
	return value, true, nil
}

func wrap(op string, err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	return fmt.Errorf("badger: %s: %w", op, err)
}
