// Package logging wraps Zap with recalld's encoder configuration and
// context correlation fields.
package logging

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum level to emit: debug, info, warn, error.
	Level string `koanf:"level"`

	// Format selects the encoder: "json" or "console".
	Format string `koanf:"format"`

	// Caller enables file:line caller annotation.
	Caller bool `koanf:"caller"`

	// Fields are constant fields attached to every log line.
	Fields map[string]string `koanf:"fields"`
}

// NewDefaultConfig returns config with production-ready defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "json",
		Caller: true,
		Fields: map[string]string{
			"service": "recalld",
		},
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("invalid log format %q (want json or console)", c.Format)
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(c.Level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	return nil
}

// zapLevel parses the configured level. Config must be validated first.
func (c *Config) zapLevel() zapcore.Level {
	var l zapcore.Level
	_ = l.UnmarshalText([]byte(c.Level))
	return l
}
