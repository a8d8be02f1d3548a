// Package storage opens the configured backend as a shared data source.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/eigerco/statedb/internal/config"
	"github.com/eigerco/statedb/pkg/db"
	"github.com/eigerco/statedb/pkg/db/badger"
	"github.com/eigerco/statedb/pkg/db/bolt"
	"github.com/eigerco/statedb/pkg/db/memory"
	"github.com/eigerco/statedb/pkg/db/pebble"
	"github.com/eigerco/statedb/pkg/log"
)

// Open validates cfg and opens the backend it names. The returned data
// source owns the backend; closing its last handle closes the backend.
func Open(cfg config.StorageConfig) (*db.DataSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	backend, err := openBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Engine, err)
	}
	log.Storage.Debug().Stringer("backend", backend).Msg("storage ready")
	return db.NewDataSource(backend), nil
}

func openBackend(cfg config.StorageConfig) (db.Backend, error) {
	switch cfg.Engine {
	case config.EngineMemory:
		return memory.NewKVStore(), nil
	case config.EnginePebble:
		if err := ensureDir(cfg.Path); err != nil {
			return nil, err
		}
		opts := []pebble.Option{
			pebble.WithPath(cfg.Path),
			pebble.WithCacheSize(cfg.CacheSizeMB << 20),
		}
		if !cfg.Sync {
			opts = append(opts, pebble.WithoutSync())
		}
		return pebble.NewKVStore(opts...)
	case config.EngineBolt:
		if err := ensureDir(filepath.Dir(cfg.Path)); err != nil {
			return nil, err
		}
		return bolt.Open(cfg.Path, bolt.Options{
			Compression:  cfg.Compression,
			NoSync:       !cfg.Sync,
			ExpectedKeys: cfg.BloomExpectedKeys,
		})
	case config.EngineBadger:
		if err := ensureDir(cfg.Path); err != nil {
			return nil, err
		}
		return badger.NewEngine(badger.Config{
			DataPath:   cfg.Path,
			SyncWrites: cfg.Sync,
		})
	default:
		return nil, fmt.Errorf("%w: unknown storage engine %q", config.ErrInvalidConfig, cfg.Engine)
	}
}

func ensureDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("%w: storage path cannot be empty", config.ErrInvalidConfig)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}
