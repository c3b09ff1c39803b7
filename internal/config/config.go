// Bitrix Dash - Bitrix24 Department Task Dashboard
// Copyright 2026 Roughriver74
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Roughriver74/bitrix-dash

// Package config loads and validates Bitrix Dash configuration.
//
// Configuration is layered: struct defaults, then an optional YAML file,
// then environment variables. Environment variables use the BITRIXDASH_
// prefix with underscores for nesting, e.g. BITRIXDASH_SERVER_PORT=8080,
// BITRIXDASH_BITRIX_WEBHOOK_URL=https://example.bitrix24.ru/rest/1/token.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the service.
type Config struct {
	Server    ServerConfig    `koanf:"server" validate:"required"`
	Bitrix    BitrixConfig    `koanf:"bitrix" validate:"required"`
	Dashboard DashboardConfig `koanf:"dashboard" validate:"required"`
	Cache     CacheConfig     `koanf:"cache" validate:"required"`
	Log       LogConfig       `koanf:"log" validate:"required"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"required,gt=0,lte=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"required,gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"required,gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"required,gt=0"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimit       int           `koanf:"rate_limit" validate:"gte=0"`
	RateWindow      time.Duration `koanf:"rate_window" validate:"gt=0"`
}

// BitrixConfig holds upstream Bitrix24 REST settings.
type BitrixConfig struct {
	// WebhookURL is the inbound webhook base, including user ID and token:
	// https://<portal>.bitrix24.ru/rest/<user>/<token>
	WebhookURL string `koanf:"webhook_url" validate:"required,url"`

	// Timeout bounds every individual REST call.
	Timeout time.Duration `koanf:"timeout" validate:"required,gt=0"`

	// RequestsPerSecond caps the outbound call rate. Bitrix24 throttles at
	// roughly 2 req/s per webhook on most plans.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gt=0"`

	// Burst is the rate limiter burst allowance.
	Burst int `koanf:"burst" validate:"gt=0"`
}

// DashboardConfig holds pipeline settings.
type DashboardConfig struct {
	// DepartmentName is the exact department name to resolve in the
	// portal's department tree. Matching is case-sensitive.
	DepartmentName string `koanf:"department_name" validate:"required"`

	// CompletedWindow is how far back closed tasks are fetched.
	CompletedWindow time.Duration `koanf:"completed_window" validate:"required,gt=0"`

	// ChunkSize is how many responsible user IDs go into one task filter.
	ChunkSize int `koanf:"chunk_size" validate:"required,gt=0"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	// TTL is how long a computed dashboard result stays fresh.
	TTL time.Duration `koanf:"ttl" validate:"required,gt=0"`

	// CleanupInterval is how often expired entries are purged.
	CleanupInterval time.Duration `koanf:"cleanup_interval" validate:"required,gt=0"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level" validate:"required,oneof=trace debug info warn error fatal panic"`
	Format string `koanf:"format" validate:"required,oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the built-in defaults, applied before file and
// environment layers.
func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimit:       60,
			RateWindow:      time.Minute,
		},
		Bitrix: BitrixConfig{
			Timeout:           30 * time.Second,
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Dashboard: DashboardConfig{
			CompletedWindow: 30 * 24 * time.Hour,
			ChunkSize:       10,
		},
		Cache: CacheConfig{
			TTL:             15 * time.Minute,
			CleanupInterval: 5 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
