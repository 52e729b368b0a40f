// Package config loads server configuration from PENGUIN_-prefixed
// environment variables.
package config

import (
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

// Config holds everything the server needs at startup.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DatabaseURL is the PostgreSQL connection string. Empty means the
	// server runs against the seeded in-memory store.
	DatabaseURL string `koanf:"database-url"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `koanf:"log-level"`

	// AllowedOrigins are echoed back with credentials permitted; any other
	// origin gets the wildcard without credentials.
	AllowedOrigins []string `koanf:"allowed-origins"`

	// DemoUserID scopes every tool call to a single seeded user.
	DemoUserID string `koanf:"demo-user-id"`

	ServerName      string `koanf:"server-name"`
	ServerVersion   string `koanf:"server-version"`
	SessionCapacity int    `koanf:"session-capacity"`
}

// Default returns the configuration used when no environment overrides are set.
func Default() Config {
	return Config{
		Addr:     ":8080",
		LogLevel: "info",
		AllowedOrigins: []string{
			"https://penguinbank.cloud",
			"https://www.penguinbank.cloud",
			"https://claude.ai",
		},
		DemoUserID:      "550e8400-e29b-41d4-a716-446655440001",
		ServerName:      "penguin-bank",
		ServerVersion:   "1.0.0",
		SessionCapacity: 100,
	}
}

// Load reads PENGUIN_-prefixed environment variables on top of the defaults.
// PENGUIN_DATABASE_URL maps to database-url, PENGUIN_ALLOWED_ORIGINS takes a
// comma-separated list.
func Load() (Config, error) {
	k := koanf.New(".")

	err := k.Load(env.ProviderWithValue("PENGUIN_", ".", func(key, value string) (string, interface{}) {
		configKey := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(key, "PENGUIN_"), "_", "-"))
		if configKey == "allowed-origins" {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			return configKey, parts
		}
		return configKey, value
	}), nil)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to load environment variables")
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to unmarshal config")
	}
	return cfg, nil
}
