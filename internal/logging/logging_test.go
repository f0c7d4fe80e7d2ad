package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", *NewDefaultConfig(), false},
		{"console format", Config{Level: "debug", Format: "console"}, false},
		{"bad format", Config{Level: "info", Format: "xml"}, true},
		{"bad level", Config{Level: "loud", Format: "json"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew(t *testing.T) {
	logger, err := New(NewDefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, logger)
	logger.Info("smoke test")

	// Nil config falls back to defaults.
	logger, err = New(nil)
	require.NoError(t, err)
	require.NotNil(t, logger)

	_, err = New(&Config{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestContextFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ContextFields(ctx))

	ctx = ContextWithScope(ctx, "acme")
	ctx = ContextWithRequestID(ctx, "req-123")

	assert.Equal(t, "acme", ScopeFromContext(ctx))
	assert.Equal(t, "req-123", RequestIDFromContext(ctx))
	assert.Len(t, ContextFields(ctx), 2)
}
