package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/statedb/internal/config"
	"github.com/eigerco/statedb/pkg/db"
	"github.com/eigerco/statedb/pkg/db/txn"
)

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		cfg  config.StorageConfig
	}{
		{name: "memory", cfg: config.StorageConfig{Engine: config.EngineMemory}},
		{name: "pebble", cfg: config.StorageConfig{Engine: config.EnginePebble, Path: filepath.Join(dir, "pebble"), CacheSizeMB: 8}},
		{name: "bolt", cfg: config.StorageConfig{Engine: config.EngineBolt, Path: filepath.Join(dir, "bolt", "state.db"), Compression: true}},
		{name: "badger", cfg: config.StorageConfig{Engine: config.EngineBadger, Path: filepath.Join(dir, "badger")}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			source, err := Open(tc.cfg)
			require.NoError(t, err)

			err = txn.Do(source, func(v *txn.View) error {
				_, _, err := v.Put([]byte("key"), 1, []byte("value"))
				return err
			})
			require.NoError(t, err)

			value, ok, err := source.Get([]byte("key"), 1)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []byte("value"), value)

			require.NoError(t, source.Close())
			_, _, err = source.Get([]byte("key"), 1)
			assert.ErrorIs(t, err, db.ErrClosed)
		})
	}
}

func TestOpen_Reopen(t *testing.T) {
	cfg := config.StorageConfig{Engine: config.EnginePebble, Path: filepath.Join(t.TempDir(), "pebble"), Sync: true}

	source, err := Open(cfg)
	require.NoError(t, err)
	_, _, err = source.Put([]byte("durable"), 1, []byte("yes"))
	require.NoError(t, err)
	require.NoError(t, source.Close())

	source, err = Open(cfg)
	require.NoError(t, err)
	defer source.Close() //nolint:errcheck // test cleanup
	ok, err := source.Exists([]byte("durable"), 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpen_Invalid(t *testing.T) {
	_, err := Open(config.StorageConfig{Engine: "rocks"})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = Open(config.StorageConfig{Engine: config.EnginePebble})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	path := filepath.Join(t.TempDir(), "pebble")
	_, err = Open(config.StorageConfig{Engine: config.EnginePebble, Path: path, CacheSizeMB: -1})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	// Rejected before anything touches the disk
	assert.NoDirExists(t, path)
}
