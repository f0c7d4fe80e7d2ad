package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// envPrefix namespaces recalld environment variables:
	// RECALLD_SERVER_PORT -> server.port
	// RECALLD_REBUILD_DEBOUNCE_WINDOW -> rebuild.debounce_window
	envPrefix = "RECALLD_"
)

// Load loads configuration from the YAML file at configPath (default
// ~/.config/recalld/config.yaml when empty), then overrides with
// RECALLD_* environment variables, then applies defaults and validates.
//
// The config file may hold the rebuild shared secret, so files with
// permissions wider than 0600 are rejected (skipped on Windows, which
// has no POSIX permission bits).
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "recalld", "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		// Open once and validate through the descriptor to avoid a
		// TOCTOU race between the permission check and the read.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFile(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if len(content) > maxConfigFileSize {
			return nil, fmt.Errorf("config file exceeds %d bytes", maxConfigFileSize)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Environment variables override file values.
	// RECALLD_SERVER_PORT -> server.port (split on first underscore:
	// section, then field name with underscores preserved).
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validateConfigFile rejects config files readable by group or world.
func validateConfigFile(info os.FileInfo) error {
	if !info.Mode().IsRegular() {
		return fmt.Errorf("config path is not a regular file")
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file exceeds %d bytes", maxConfigFileSize)
	}
	if runtime.GOOS == "windows" {
		return nil
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return fmt.Errorf("config file permissions %04o are too permissive, want 0600", perm)
	}
	return nil
}
