package pebble

import (
	"github.com/cockroachdb/pebble/vfs"
)

const (
	defaultCacheSize          = 64 * 1024 * 1024 // 64MB
	defaultMemTableSize       = 32 * 1024 * 1024 // 32MB
	defaultMemTableStopWrites = 4
	defaultBloomBitsPerKey    = 10
)

type config struct {
	path      string
	fs        vfs.FS
	cacheSize int64
	noSync    bool
}

// Option configures a KVStore.
type Option func(*config)

// WithPath stores the database on disk under path.
func WithPath(path string) Option {
	return func(c *config) {
		c.path = path
	}
}

// InMemory keeps the database in a memory-backed filesystem. Useful for tests.
func InMemory() Option {
	return func(c *config) {
		c.fs = vfs.NewMem()
		c.path = ""
	}
}

// WithCacheSize sets the block cache size in bytes.
func WithCacheSize(bytes int64) Option {
	return func(c *config) {
		if bytes > 0 {
			c.cacheSize = bytes
		}
	}
}

// WithoutSync commits batches without waiting for the WAL to reach disk.
func WithoutSync() Option {
	return func(c *config) {
		c.noSync = true
	}
}
