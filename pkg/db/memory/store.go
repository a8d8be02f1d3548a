// Package memory is the always-available in-memory storage engine.
package memory

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/eigerco/statedb/pkg/db"
	"github.com/eigerco/statedb/pkg/db/internal/ordered"
	"github.com/eigerco/statedb/pkg/log"
)

// KVStore keeps one sorted tree per column behind a single RWMutex.
type KVStore struct {
	mu      sync.RWMutex
	columns map[db.Column]*ordered.Tree
	closed  bool
}

var _ db.Backend = (*KVStore)(nil)

func NewKVStore() *KVStore {
	log.Storage.Debug().Str("engine", "memory").Msg("opened store")
	return &KVStore{columns: make(map[db.Column]*ordered.Tree)}
}

func (s *KVStore) Get(key []byte, column db.Column) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, db.ErrClosed
	}
	tree, ok := s.columns[column]
	if !ok {
		return nil, false, nil
	}
	e, ok := tree.Get(key)
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(e.Value), true, nil
}

func (s *KVStore) Put(key []byte, column db.Column, value []byte) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false, db.ErrClosed
	}
	prev, existed := s.put(key, column, value)
	return bytes.Clone(prev.Value), existed, nil
}

func (s *KVStore) Delete(key []byte, column db.Column) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false, db.ErrClosed
	}
	prev, existed := s.delete(key, column)
	return bytes.Clone(prev.Value), existed, nil
}

func (s *KVStore) Exists(key []byte, column db.Column) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, db.ErrClosed
	}
	tree, ok := s.columns[column]
	if !ok {
		return false, nil
	}
	_, ok = tree.Get(key)
	return ok, nil
}

// Iterate walks a snapshot of the column taken when Iterate is called,
// so concurrent writers never disturb an open iterator.
func (s *KVStore) Iterate(column db.Column, opts db.IterOptions) db.Iterator {
	// Clone mutates the copy-on-write state of the source tree, so take the write lock.
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return db.ErrorIterator(db.ErrClosed)
	}
	tree, ok := s.columns[column]
	if !ok {
		tree = ordered.New()
	} else {
		tree = tree.Clone()
	}
	lower, upper := opts.Range()
	return ordered.NewIterator(tree.Seq(lower, upper, opts.Direction))
}

// BatchWrite applies all operations under one write lock, so readers observe
// either none or all of them.
func (s *KVStore) BatchWrite(ops []db.WriteOperation) error {
	for i, op := range ops {
		if op.Kind != db.OpInsert && op.Kind != db.OpRemove {
			return &db.BatchError{Index: i, Op: op, Err: fmt.Errorf("unknown operation kind %d", op.Kind)}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return db.ErrClosed
	}
	for _, op := range ops {
		switch op.Kind {
		case db.OpInsert:
			s.put(op.Key, op.Column, op.Value)
		case db.OpRemove:
			s.delete(op.Key, op.Column)
		}
	}
	return nil
}

func (s *KVStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.columns = nil
	log.Storage.Debug().Str("engine", "memory").Msg("closed store")
	return nil
}

func (s *KVStore) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("memory.KVStore{columns: %d}", len(s.columns))
}

func (s *KVStore) put(key []byte, column db.Column, value []byte) (ordered.Entry, bool) {
	tree, ok := s.columns[column]
	if !ok {
		tree = ordered.New()
		s.columns[column] = tree
	}
	return tree.Set(ordered.Entry{Key: bytes.Clone(key), Value: cloneValue(value)})
}

func (s *KVStore) delete(key []byte, column db.Column) (ordered.Entry, bool) {
	tree, ok := s.columns[column]
	if !ok {
		return ordered.Entry{}, false
	}
	return tree.Delete(key)
}

// cloneValue copies value keeping empty values distinguishable from absent ones.
func cloneValue(value []byte) []byte {
	if value == nil {
		return []byte{}
	}
	return bytes.Clone(value)
}
