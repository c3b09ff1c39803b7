// Bitrix Dash - Bitrix24 Department Task Dashboard
// Copyright 2026 Roughriver74
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Roughriver74/bitrix-dash

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/bitrix-dash/config.yaml",
	"/etc/bitrix-dash/config.yml",
}

// ConfigPathEnvVar points at a config file checked before the default paths.
const ConfigPathEnvVar = "CONFIG_PATH"

// EnvPrefix is the prefix for configuration environment variables.
const EnvPrefix = "BITRIXDASH_"

// Load builds the configuration from three layers, later layers overriding
// earlier ones:
//
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (BITRIXDASH_ prefix)
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths are parsed as comma-separated
// slices when they arrive as env var strings.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars come in as strings but the config expects
// slices; YAML values are already slices and pass through untouched.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envKeyMappings maps the flat environment variable names (prefix stripped,
// lowercased) to nested koanf paths. Keys with internal underscores cannot
// be derived mechanically, so each setting is listed explicitly.
var envKeyMappings = map[string]string{
	"server_host":             "server.host",
	"server_port":             "server.port",
	"server_read_timeout":     "server.read_timeout",
	"server_write_timeout":    "server.write_timeout",
	"server_shutdown_timeout": "server.shutdown_timeout",
	"server_cors_origins":     "server.cors_origins",
	"server_rate_limit":       "server.rate_limit",
	"server_rate_window":      "server.rate_window",

	"bitrix_webhook_url":         "bitrix.webhook_url",
	"bitrix_timeout":             "bitrix.timeout",
	"bitrix_requests_per_second": "bitrix.requests_per_second",
	"bitrix_burst":               "bitrix.burst",

	"dashboard_department_name":  "dashboard.department_name",
	"dashboard_completed_window": "dashboard.completed_window",
	"dashboard_chunk_size":       "dashboard.chunk_size",

	"cache_ttl":              "cache.ttl",
	"cache_cleanup_interval": "cache.cleanup_interval",

	"log_level":  "log.level",
	"log_format": "log.format",
	"log_caller": "log.caller",
}

// envTransformFunc maps BITRIXDASH_* environment variable names to koanf
// config paths, e.g. BITRIXDASH_BITRIX_WEBHOOK_URL -> bitrix.webhook_url.
// Unknown variables are dropped rather than guessed at.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if path, ok := envKeyMappings[key]; ok {
		return path
	}
	return ""
}
