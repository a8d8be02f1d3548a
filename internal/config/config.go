package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Storage engines
const (
	EngineMemory = "memory"
	EnginePebble = "pebble"
	EngineBolt   = "bolt"
	EngineBadger = "badger"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Log     LogConfig     `toml:"log" yaml:"log"`
	Storage StorageConfig `toml:"storage" yaml:"storage"`
}

type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

type StorageConfig struct {
	Engine string `toml:"engine" yaml:"engine"`
	Path   string `toml:"path" yaml:"path"`
	// Sync makes every commit durable before it returns.
	Sync bool `toml:"sync" yaml:"sync"`
	// CacheSizeMB sizes the pebble block cache.
	CacheSizeMB int64 `toml:"cache_size_mb" yaml:"cache_size_mb"`
	// Compression and BloomExpectedKeys apply to the bolt engine.
	Compression       bool `toml:"compression" yaml:"compression"`
	BloomExpectedKeys uint `toml:"bloom_expected_keys" yaml:"bloom_expected_keys"`
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Storage: StorageConfig{
			Engine:            EnginePebble,
			Path:              "~/.statedb/data",
			Sync:              true,
			CacheSizeMB:       64,
			BloomExpectedKeys: 1 << 20,
		},
	}
}

// Load reads a config file and returns the parsed Config with environment
// overrides applied. YAML is used for .yaml and .yml files, TOML otherwise.
// If path is empty, the default location is tried and defaults are returned
// when it does not exist.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		// Try default location
		path = expandHome("~/.statedb/config.toml")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = ""
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	loadFromEnvironment(cfg)
	cfg.Storage.Path = expandHome(cfg.Storage.Path)
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		_, err := toml.Decode(string(data), cfg)
		return err
	}
}

func loadFromEnvironment(cfg *Config) {
	if level := os.Getenv("STATEDB_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if engine := os.Getenv("STATEDB_STORAGE_ENGINE"); engine != "" {
		cfg.Storage.Engine = engine
	}
	if path := os.Getenv("STATEDB_STORAGE_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if sync := os.Getenv("STATEDB_STORAGE_SYNC"); sync != "" {
		if b, err := strconv.ParseBool(sync); err == nil {
			cfg.Storage.Sync = b
		}
	}
}

// Validate reports the first setting that cannot be used to open a store.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Log.Format)
	}

	return c.Storage.Validate()
}

// Validate reports the first storage setting that cannot be used to open a store.
func (s StorageConfig) Validate() error {
	switch s.Engine {
	case EngineMemory:
		return nil
	case EnginePebble, EngineBolt, EngineBadger:
	default:
		return fmt.Errorf("%w: unknown storage engine %q", ErrInvalidConfig, s.Engine)
	}
	if s.Path == "" {
		return fmt.Errorf("%w: storage path cannot be empty for engine %s", ErrInvalidConfig, s.Engine)
	}
	if s.CacheSizeMB < 0 {
		return fmt.Errorf("%w: cache size must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ExpandHome resolves a leading ~/ to the user's home directory.
func ExpandHome(path string) string {
	return expandHome(path)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
