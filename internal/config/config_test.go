package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440001", cfg.DemoUserID)
	assert.Equal(t, 100, cfg.SessionCapacity)
	assert.Contains(t, cfg.AllowedOrigins, "https://claude.ai")
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PENGUIN_ADDR", ":9090")
	t.Setenv("PENGUIN_LOG_LEVEL", "debug")
	t.Setenv("PENGUIN_DATABASE_URL", "postgres://localhost/penguin")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "postgres://localhost/penguin", cfg.DatabaseURL)
	// Untouched keys keep their defaults.
	assert.Equal(t, "penguin-bank", cfg.ServerName)
}

func TestLoad_AllowedOriginsSplitsOnComma(t *testing.T) {
	t.Setenv("PENGUIN_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}
