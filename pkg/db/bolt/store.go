// Package bolt is a persistent engine on bbolt, an embedded B+ tree.
package bolt

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	bolt "go.etcd.io/bbolt"

	"github.com/eigerco/statedb/pkg/db"
	"github.com/eigerco/statedb/pkg/log"
)

var (
	ErrClosed              = errors.New("bolt: database is closed")
	ErrCompressionMismatch = errors.New("bolt: compression differs from the stored setting")
)

var (
	dataBucket = []byte("kv")
	metaBucket = []byte("meta")

	metaCompression = []byte("compression")
)

const (
	defaultExpectedKeys = 1 << 20
	bloomFalsePositive  = 0.01
	openTimeout         = time.Second
)

// Options configure a Store.
type Options struct {
	// Compression stores values snappy-compressed. It is fixed when the
	// database is created; reopening with a different setting fails.
	Compression bool
	// NoSync skips fsync after each commit.
	NoSync bool
	// ExpectedKeys sizes the in-process bloom filter used by Exists.
	ExpectedKeys uint
}

// Store keeps every column in one bucket under column-prefixed keys.
type Store struct {
	db     *bolt.DB
	path   string
	codec  codec
	closed atomic.Bool

	filterMu sync.Mutex
	filter   *bloom.BloomFilter
}

var _ db.Backend = (*Store)(nil)

// Open creates or opens a bbolt database at the given path.
func Open(path string, opts Options) (*Store, error) {
	bdb, err := bolt.Open(path, 0600, &bolt.Options{Timeout: openTimeout, NoSync: opts.NoSync})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	s := &Store{db: bdb, path: path}
	if err := s.init(opts); err != nil {
		_ = bdb.Close()
		return nil, err
	}
	log.Storage.Info().Str("engine", "bolt").Str("path", path).
		Bool("compression", s.codec.compress).Msg("opened store")
	return s, nil
}

// init creates the buckets, settles the codec and loads the bloom filter.
func (s *Store) init(opts Options) error {
	expected := opts.ExpectedKeys
	if expected == 0 {
		expected = defaultExpectedKeys
	}
	s.filter = bloom.NewWithEstimates(expected, bloomFalsePositive)

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := tx.CreateBucketIfNotExists(dataBucket)
		if err != nil {
			return fmt.Errorf("creating bucket: %w", err)
		}
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return fmt.Errorf("creating bucket: %w", err)
		}

		want := []byte{0}
		if opts.Compression {
			want[0] = 1
		}
		stored := meta.Get(metaCompression)
		switch {
		case stored == nil:
			if err := meta.Put(metaCompression, want); err != nil {
				return fmt.Errorf("storing compression setting: %w", err)
			}
		case stored[0] != want[0]:
			return ErrCompressionMismatch
		}
		s.codec = codec{compress: opts.Compression}

		return data.ForEach(func(k, _ []byte) error {
			s.filter.Add(k)
			return nil
		})
	})
}

func (s *Store) Get(key []byte, column db.Column) ([]byte, bool, error) {
	var (
		value []byte
		ok    bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		value, ok, err = s.get(tx, db.ColumnKey(column, key))
		return err
	})
	if err != nil {
		return nil, false, s.wrap("get", err)
	}
	return value, ok, nil
}

func (s *Store) Put(key []byte, column db.Column, value []byte) ([]byte, bool, error) {
	var (
		prev    []byte
		existed bool
	)
	err := s.db.Update(func(tx *bolt.Tx) error {
		k := db.ColumnKey(column, key)
		var err error
		prev, existed, err = s.get(tx, k)
		if err != nil {
			return err
		}
		return s.put(tx, k, value)
	})
	if err != nil {
		return nil, false, s.wrap("put", err)
	}
	return prev, existed, nil
}

func (s *Store) Delete(key []byte, column db.Column) ([]byte, bool, error) {
	var (
		prev    []byte
		existed bool
	)
	err := s.db.Update(func(tx *bolt.Tx) error {
		k := db.ColumnKey(column, key)
		var err error
		prev, existed, err = s.get(tx, k)
		if err != nil || !existed {
			return err
		}
		return tx.Bucket(dataBucket).Delete(k)
	})
	if err != nil {
		return nil, false, s.wrap("delete", err)
	}
	return prev, existed, nil
}

// Exists answers negatively from the bloom filter without opening a
// transaction; only possible hits are checked against the tree.
func (s *Store) Exists(key []byte, column db.Column) (bool, error) {
	k := db.ColumnKey(column, key)
	s.filterMu.Lock()
	maybe := s.filter.Test(k)
	s.filterMu.Unlock()
	if !maybe {
		if s.closed.Load() {
			return false, ErrClosed
		}
		return false, nil
	}

	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(dataBucket).Get(k) != nil
		return nil
	})
	if err != nil {
		return false, s.wrap("exists", err)
	}
	return found, nil
}

// BatchWrite applies all operations in one bbolt read-write transaction.
func (s *Store) BatchWrite(ops []db.WriteOperation) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(dataBucket)
		for i, op := range ops {
			var err error
			k := db.ColumnKey(op.Column, op.Key)
			switch op.Kind {
			case db.OpInsert:
				err = s.put(tx, k, op.Value)
			case db.OpRemove:
				err = bucket.Delete(k)
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
		return s.wrap("batch write", err)
	}
	return nil
}

func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	log.Storage.Info().Str("engine", "bolt").Str("path", s.path).Msg("closing store")
	return s.db.Close()
}

func (s *Store) String() string {
	return fmt.Sprintf("bolt.Store{path: %s, compression: %t}", s.path, s.codec.compress)
}

func (s *Store) get(tx *bolt.Tx, k []byte) ([]byte, bool, error) {
	raw := tx.Bucket(dataBucket).Get(k)
	if raw == nil {
		return nil, false, nil
	}
	value, err := s.codec.decode(raw)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *Store) put(tx *bolt.Tx, k, value []byte) error {
	if err := tx.Bucket(dataBucket).Put(k, s.codec.encode(value)); err != nil {
		return err
	}
	// Filter entries added by a transaction that later rolls back only cost a false positive.
	s.filterMu.Lock()
	s.filter.Add(k)
	s.filterMu.Unlock()
	return nil
}

func (s *Store) wrap(op string, err error) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return fmt.Errorf("bolt: %s: %w", op, err)
}
