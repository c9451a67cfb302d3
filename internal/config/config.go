// Eventcore - High-Throughput In-Process Event Processing Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventcore

// Package config loads layered application configuration: built-in
// defaults, an optional YAML file, then environment overrides.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/eventcore/internal/engine"
	"github.com/tomtom215/eventcore/internal/logging"
)

// Config is the root application configuration.
type Config struct {
	Events   engine.Config  `koanf:"events"`
	Logging  logging.Config `koanf:"logging"`
	Server   ServerConfig   `koanf:"server"`
	DLQStore DLQStoreConfig `koanf:"dlq_store"`
}

// ServerConfig holds the operational HTTP API settings.
type ServerConfig struct {
	// Host is the listen address.
	// Env: SERVER_HOST (default: 0.0.0.0)
	Host string `koanf:"host" validate:"required"`

	// Port is the listen port.
	// Env: SERVER_PORT (default: 8217)
	Port int `koanf:"port" validate:"min=1,max=65535"`

	// ReadTimeout bounds request reads.
	ReadTimeout time.Duration `koanf:"read_timeout" validate:"min=1s"`

	// WriteTimeout bounds response writes. Must exceed the longest
	// fallback-sync handler budget or synchronous emissions are cut off.
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"min=1s"`

	// RateLimitReqs is the per-IP request budget for the emit route
	// within RateLimitWindow. 0 disables rate limiting.
	RateLimitReqs int `koanf:"rate_limit_reqs" validate:"min=0"`

	// RateLimitWindow is the rate limit window.
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"min=1s"`
}

// DLQStoreConfig holds the Badger dead-letter sink settings.
type DLQStoreConfig struct {
	// Enabled turns on persistent dead-letter storage.
	// Env: DLQ_STORE_ENABLED (default: false)
	Enabled bool `koanf:"enabled"`

	// Path is the Badger database directory.
	// Env: DLQ_STORE_PATH (default: /data/eventcore/dlq)
	Path string `koanf:"path"`

	// Retention is how long stored records are kept.
	Retention time.Duration `koanf:"retention" validate:"min=1m"`
}

// defaultConfig returns a Config struct with all default values. These
// are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Events:  engine.DefaultConfig(),
		Logging: logging.DefaultConfig(),
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8217,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			RateLimitReqs:   1000,
			RateLimitWindow: time.Minute,
		},
		DLQStore: DLQStoreConfig{
			Enabled:   false,
			Path:      "/data/eventcore/dlq",
			Retention: 7 * 24 * time.Hour,
		},
	}
}

// Validate checks struct tags and the engine's own constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if err := c.Events.Validate(); err != nil {
		return err
	}
	if c.DLQStore.Enabled && c.DLQStore.Path == "" {
		return fmt.Errorf("dlq_store.path required when dlq_store.enabled")
	}
	return nil
}
