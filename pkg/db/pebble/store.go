package pebble

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"

	"github.com/eigerco/statedb/pkg/db"
	"github.com/eigerco/statedb/pkg/log"
)

// KVStore is the persistent engine. All columns share one pebble keyspace
// with keys prefixed by their column (see db.ColumnKey).
type KVStore struct {
	db        *pebble.DB
	writeOpts *pebble.WriteOptions
	location  string
	closed    bool
	// Put and Delete read the previous value before writing, so writers are serialized.
	mu sync.RWMutex
}

var _ db.Backend = (*KVStore)(nil)

// comparer is the default bytewise ordering with the whole key as its prefix,
// which SeekPrefixGE and the bloom filters require. The name is unchanged so
// existing databases still open.
var comparer = func() *pebble.Comparer {
	c := *pebble.DefaultComparer
	c.Split = func(a []byte) int { return len(a) }
	return &c
}()

// NewKVStore opens a pebble database. Without WithPath it lives in memory.
func NewKVStore(opts ...Option) (*KVStore, error) {
	cfg := config{cacheSize: defaultCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.path == "" && cfg.fs == nil {
		InMemory()(&cfg)
	}

	cache := pebble.NewCache(cfg.cacheSize)
	defer cache.Unref()

	pebbleOpts := &pebble.Options{
		Cache:                       cache,
		MemTableSize:                defaultMemTableSize,
		MemTableStopWritesThreshold: defaultMemTableStopWrites,
		FS:                          cfg.fs,
		Comparer:                    comparer,
		Logger:                      log.EngineLogger{Logger: log.Storage.With().Str("engine", "pebble").Logger()},

		Levels: []pebble.LevelOptions{{
			FilterPolicy: bloom.FilterPolicy(defaultBloomBitsPerKey),
		}},
	}

	location := cfg.path
	if cfg.path == "" {
		location = "memory"
	}
	pdb, err := pebble.Open(cfg.path, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf(ErrOpen, location, err)
	}

	writeOpts := pebble.Sync
	if cfg.noSync {
		writeOpts = pebble.NoSync
	}
	log.Storage.Info().Str("engine", "pebble").Str("path", location).Msg("opened store")
	return &KVStore{db: pdb, writeOpts: writeOpts, location: location}, nil
}

func (p *KVStore) Get(key []byte, column db.Column) ([]byte, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, false, ErrClosed
	}
	return p.get(db.ColumnKey(column, key))
}

func (p *KVStore) Put(key []byte, column db.Column, value []byte) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, false, ErrClosed
	}
	k := db.ColumnKey(column, key)
	prev, existed, err := p.get(k)
	if err != nil {
		return nil, false, err
	}
	if err := p.db.Set(k, value, p.writeOpts); err != nil {
		return nil, false, fmt.Errorf("kv-store: put: %w", err)
	}
	return prev, existed, nil
}

func (p *KVStore) Delete(key []byte, column db.Column) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, false, ErrClosed
	}
	k := db.ColumnKey(column, key)
	prev, existed, err := p.get(k)
	if err != nil {
		return nil, false, err
	}
	if !existed {
		return nil, false, nil
	}
	if err := p.db.Delete(k, p.writeOpts); err != nil {
		return nil, false, fmt.Errorf("kv-store: delete: %w", err)
	}
	return prev, true, nil
}

// Exists consults the table bloom filters through a bounded iterator seek
// instead of copying the value out.
func (p *KVStore) Exists(key []byte, column db.Column) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return false, ErrClosed
	}
	k := db.ColumnKey(column, key)
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: k,
		UpperBound: append(bytes.Clone(k), 0),
	})
	if err != nil {
		return false, fmt.Errorf(ErrInIteratorCreation, err)
	}
	found := iter.SeekPrefixGE(k)
	if err := iter.Close(); err != nil {
		return false, fmt.Errorf("kv-store: exists: %w", err)
	}
	return found, nil
}

func (p *KVStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	log.Storage.Info().Str("engine", "pebble").Str("path", p.location).Msg("closing store")
	return p.db.Close()
}

func (p *KVStore) String() string {
	return fmt.Sprintf("pebble.KVStore{path: %s}", p.location)
}

func (p *KVStore) get(k []byte) ([]byte, bool, error) {
	value, closer, err := p.db.Get(k)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv-store: get: %w", err)
	}
	defer closer.Close() //nolint:errcheck // closer only releases the block handle

	result := make([]byte, len(value))
	copy(result, value)
	return result, true, nil
}
