// Package config loads trindex settings from YAML with environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aleksaelezovic/trindex/internal/logging"
	"github.com/aleksaelezovic/trindex/pkg/index"
)

const (
	BackendFile   = "file"
	BackendBadger = "badger"

	DefaultDataDir = "./trindex_data"
)

// Config is the complete trindex configuration
type Config struct {
	DataDir  string        `yaml:"data_dir"`
	Backend  string        `yaml:"backend"`
	Patterns []string      `yaml:"patterns"`
	Indexer  IndexerConfig `yaml:"indexer"`
	Storage  StorageConfig `yaml:"storage"`
	Log      LogConfig     `yaml:"log"`
}

type IndexerConfig struct {
	MaxBatchSize     int `yaml:"max_batch_size"`
	MaxPending       int `yaml:"max_pending"` // 0 = unbounded
	FlushConcurrency int `yaml:"flush_concurrency"`
}

type StorageConfig struct {
	DocumentCache int  `yaml:"document_cache"`
	SyncWrites    bool `yaml:"sync_writes"` // badger only
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns the built-in configuration
func Default() *Config {
	patterns := make([]string, len(index.AllPatterns))
	for i, p := range index.AllPatterns {
		patterns[i] = string(p)
	}
	return &Config{
		DataDir:  DefaultDataDir,
		Backend:  BackendBadger,
		Patterns: patterns,
		Indexer: IndexerConfig{
			MaxBatchSize:     index.DefaultMaxBatchSize,
			FlushConcurrency: index.DefaultFlushConcurrency,
		},
		Storage: StorageConfig{
			DocumentCache: 256,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// TRINDEX_* environment overrides and validates the result. An empty
// path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Fields absent from the file keep their defaults
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies TRINDEX_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TRINDEX_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("TRINDEX_BACKEND"); v != "" {
		c.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("TRINDEX_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks the configuration for values the indexer cannot run with
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	if c.Backend != BackendFile && c.Backend != BackendBadger {
		return fmt.Errorf("backend must be %q or %q, got %q", BackendFile, BackendBadger, c.Backend)
	}
	if len(c.Patterns) == 0 {
		return errors.New("patterns must name at least one index pattern")
	}
	if _, err := c.IndexPatterns(); err != nil {
		return err
	}
	if c.Indexer.MaxBatchSize < 0 {
		return fmt.Errorf("indexer.max_batch_size must be non-negative, got %d", c.Indexer.MaxBatchSize)
	}
	if c.Indexer.MaxPending < 0 {
		return fmt.Errorf("indexer.max_pending must be non-negative, got %d", c.Indexer.MaxPending)
	}
	if c.Indexer.FlushConcurrency < 1 {
		return fmt.Errorf("indexer.flush_concurrency must be at least 1, got %d", c.Indexer.FlushConcurrency)
	}
	if c.Storage.DocumentCache < 0 {
		return fmt.Errorf("storage.document_cache must be non-negative, got %d", c.Storage.DocumentCache)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be \"text\" or \"json\", got %q", c.Log.Format)
	}
	return nil
}

// IndexPatterns returns the configured index patterns
func (c *Config) IndexPatterns() ([]index.Pattern, error) {
	return index.ParsePatterns(c.Patterns)
}

// Logging returns the logger configuration
func (c *Config) Logging() logging.Config {
	return logging.Config{
		Level:    c.Log.Level,
		Format:   c.Log.Format,
		FilePath: c.Log.File,
	}
}

// WriteYAML writes the configuration as YAML
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return enc.Close()
}
