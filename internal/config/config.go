// Package config provides configuration loading for recalld.
//
// Configuration is loaded from an optional YAML file, then overridden
// by environment variables. Every field has a sensible default so the
// daemon starts with no configuration at all.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/recalld/internal/logging"
)

// Config holds the complete recalld configuration.
type Config struct {
	Server  ServerConfig   `koanf:"server"`
	Logging logging.Config `koanf:"logging"`
	Store   StoreConfig    `koanf:"store"`
	Vectors VectorConfig   `koanf:"vectors"`
	Query   QueryConfig    `koanf:"query"`
	Rebuild RebuildConfig  `koanf:"rebuild"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// StoreConfig holds source entity store configuration.
type StoreConfig struct {
	// Path is the badger directory for the durable entity store.
	Path string `koanf:"path"`

	// InMemory runs the entity store without disk persistence. Only
	// for tests and local experiments; the source store is the system
	// of record and should normally be durable.
	InMemory bool `koanf:"in_memory"`
}

// VectorConfig holds the external vector index configuration.
type VectorConfig struct {
	// Path is the chromem persistence directory. Empty means a purely
	// in-memory index.
	Path string `koanf:"path"`

	// Compress enables gzip compression of persisted vectors.
	Compress bool `koanf:"compress"`
}

// QueryConfig holds query engine defaults.
type QueryConfig struct {
	// FuzzyThreshold is the default similarity cutoff for fuzzy
	// matching. Hard cutoff, never a soft boost.
	FuzzyThreshold float64 `koanf:"fuzzy_threshold"`

	// FuzzyLimit is the default result limit for fuzzy matching.
	FuzzyLimit int `koanf:"fuzzy_limit"`

	// MinSimilarity is the default cutoff for vector search.
	MinSimilarity float64 `koanf:"min_similarity"`

	// SearchLimit is the default result limit for vector search.
	SearchLimit int `koanf:"search_limit"`

	// MaxDepth caps traversal depth regardless of what callers request.
	MaxDepth int `koanf:"max_depth"`
}

// RebuildConfig holds self-healing configuration.
type RebuildConfig struct {
	// DebounceWindow suppresses repeated rebuild triggers. This is the
	// only rate limit on self-healing.
	DebounceWindow Duration `koanf:"debounce_window"`

	// RemoteEndpoint, when set, is tried first for rebuild dispatch
	// (POST {endpoint}/internal/rebuild). When unset or failing, the
	// local background executor is used.
	RemoteEndpoint string `koanf:"remote_endpoint"`

	// Secret authenticates internal rebuild requests. Never logged.
	Secret Secret `koanf:"secret"`

	// Global rebuilds the entire index on any structural miss instead
	// of only the scope that missed.
	Global bool `koanf:"global"`
}

// applyDefaults fills in zero-valued fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9190
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Query.FuzzyThreshold == 0 {
		cfg.Query.FuzzyThreshold = 0.3
	}
	if cfg.Query.FuzzyLimit == 0 {
		cfg.Query.FuzzyLimit = 10
	}
	if cfg.Query.MinSimilarity == 0 {
		cfg.Query.MinSimilarity = 0.7
	}
	if cfg.Query.SearchLimit == 0 {
		cfg.Query.SearchLimit = 10
	}
	if cfg.Query.MaxDepth == 0 {
		cfg.Query.MaxDepth = 5
	}
	if cfg.Rebuild.DebounceWindow == 0 {
		cfg.Rebuild.DebounceWindow = Duration(30 * time.Second)
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be in [1, 65535], got %d", c.Server.Port)
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("store path is required unless store.in_memory is set")
	}
	if c.Query.FuzzyThreshold < 0 || c.Query.FuzzyThreshold > 1 {
		return fmt.Errorf("fuzzy threshold must be in [0, 1], got %g", c.Query.FuzzyThreshold)
	}
	if c.Query.MinSimilarity < -1 || c.Query.MinSimilarity > 1 {
		return fmt.Errorf("min similarity must be in [-1, 1], got %g", c.Query.MinSimilarity)
	}
	if c.Query.FuzzyLimit < 1 || c.Query.SearchLimit < 1 {
		return fmt.Errorf("query limits must be positive")
	}
	if c.Query.MaxDepth < 1 {
		return fmt.Errorf("max traversal depth must be >= 1, got %d", c.Query.MaxDepth)
	}
	if c.Rebuild.DebounceWindow.Duration() < time.Second {
		return fmt.Errorf("rebuild debounce window must be at least 1s, got %s", c.Rebuild.DebounceWindow.Duration())
	}
	return nil
}
