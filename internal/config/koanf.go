// Eventcore - High-Throughput In-Process Event Processing Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventcore

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
// order of priority. The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/eventcore/config.yaml",
	"/etc/eventcore/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the
// config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load builds the application configuration from layered sources:
//  1. Defaults: built-in sensible defaults
//  2. File: optional YAML config (CONFIG_PATH or DefaultConfigPaths)
//  3. Environment: EVENTS_*, LOG_*, SERVER_*, DLQ_STORE_* overrides
//
// The merged configuration is validated before being returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, preferring
// the CONFIG_PATH override.
func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		return path
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envPrefixes maps environment variable prefixes to koanf key prefixes.
// Variables outside these prefixes are ignored.
var envPrefixes = map[string]string{
	"EVENTS_":    "events.",
	"LOG_":       "logging.",
	"SERVER_":    "server.",
	"DLQ_STORE_": "dlq_store.",
}

// envTransform maps environment variable names to koanf config paths.
//
// Examples:
//   - EVENTS_WORKER_COUNT   -> events.worker_count
//   - EVENTS_MAX_QUEUE_SIZE -> events.max_queue_size
//   - LOG_LEVEL             -> logging.level
//   - SERVER_PORT           -> server.port
func envTransform(key string) string {
	for envPrefix, keyPrefix := range envPrefixes {
		if strings.HasPrefix(key, envPrefix) {
			return keyPrefix + strings.ToLower(strings.TrimPrefix(key, envPrefix))
		}
	}
	return ""
}
