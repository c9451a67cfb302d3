// Eventcore - High-Throughput In-Process Event Processing Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventcore

package engine

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment variable helper functions to reduce cyclomatic complexity

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

// Config holds engine configuration. Environment variables override
// defaults when present.
type Config struct {
	// Enabled controls whether the engine processes events at all.
	// When false, Emit returns a disabled error and nothing is started.
	// Env: EVENTS_ENABLED (default: true)
	Enabled bool `koanf:"enabled"`

	// WorkerCount is the initial worker count, constrained to [1, 20].
	// Env: EVENTS_WORKER_COUNT (default: 4)
	WorkerCount int `koanf:"worker_count"`

	// MaxQueueSize is the per-priority-class capacity in events. Minimum 100.
	// Env: EVENTS_MAX_QUEUE_SIZE (default: 4096)
	MaxQueueSize int `koanf:"max_queue_size"`

	// MaxEventSize is the per-event serialized byte limit. Minimum 1024.
	MaxEventSize int `koanf:"max_event_size"`

	// MaxMemoryBytes is a soft cap used only for health evaluation and
	// admission logging.
	// Env: EVENTS_MAX_MEMORY_BYTES (default: 256MB)
	MaxMemoryBytes int64 `koanf:"max_memory_bytes"`

	// MaxRetries is the retry budget per event, constrained to [0, 10].
	// Env: EVENTS_MAX_RETRIES (default: 3)
	MaxRetries int `koanf:"max_retries"`

	// RetryBaseDelay is the first retry delay. Minimum 100ms.
	RetryBaseDelay time.Duration `koanf:"retry_base_delay"`

	// RetryMultiplier is the exponential backoff multiplier.
	RetryMultiplier float64 `koanf:"retry_multiplier"`

	// RetryJitter applies a uniform random factor in [0.5, 1.5] to each
	// retry delay.
	RetryJitter bool `koanf:"retry_jitter"`

	// DLQMaxSize is the dead-letter capacity. When full, new entries are
	// dropped so the oldest failures are preserved for operators.
	DLQMaxSize int `koanf:"dlq_max_size"`

	// MetricsInterval is how often derived rates are sampled.
	MetricsInterval time.Duration `koanf:"metrics_interval"`

	// HealthCheckInterval is how often the health evaluator runs.
	HealthCheckInterval time.Duration `koanf:"health_check_interval"`

	// FallbackToSync executes handlers on the caller context when
	// asynchronous admission is impossible.
	FallbackToSync bool `koanf:"fallback_to_sync"`

	// GracefulShutdownTimeout bounds drain on shutdown and scale-down.
	GracefulShutdownTimeout time.Duration `koanf:"graceful_shutdown_timeout"`

	// WorkerRestartThreshold is the per-worker error count that triggers
	// a supervisor restart.
	WorkerRestartThreshold uint64 `koanf:"worker_restart_threshold"`

	// WorkerRestartDelay is the base restart backoff, doubled per
	// consecutive restart within the backoff window.
	WorkerRestartDelay time.Duration `koanf:"worker_restart_delay"`

	// IdleTimeout marks a worker unresponsive when it shows no activity
	// for this long while work is pending.
	IdleTimeout time.Duration `koanf:"idle_timeout"`

	// MinProcessingRate is the events/sec floor below which health
	// degrades. Zero disables the check.
	MinProcessingRate float64 `koanf:"min_processing_rate"`

	// EmitterImpactTarget is the acceptable share of emissions taking
	// the fallback-sync path, as a percentage.
	EmitterImpactTarget float64 `koanf:"emitter_impact_target"`

	// RandomSeed seeds the jitter source. When 0 (default), a time-based
	// seed is used; non-zero values give reproducible jitter in tests.
	RandomSeed int64 `koanf:"-"`
}

// DefaultConfig returns production defaults for the engine.
func DefaultConfig() Config {
	return Config{
		Enabled:                 true,
		WorkerCount:             4,
		MaxQueueSize:            4096,
		MaxEventSize:            8 * 1024,
		MaxMemoryBytes:          256 << 20, // 256MB
		MaxRetries:              3,
		RetryBaseDelay:          200 * time.Millisecond,
		RetryMultiplier:         2.0,
		RetryJitter:             true,
		DLQMaxSize:              1000,
		MetricsInterval:         10 * time.Second,
		HealthCheckInterval:     30 * time.Second,
		FallbackToSync:          true,
		GracefulShutdownTimeout: 30 * time.Second,
		WorkerRestartThreshold:  25,
		WorkerRestartDelay:      time.Second,
		IdleTimeout:             time.Minute,
		MinProcessingRate:       0,
		EmitterImpactTarget:     5.0,
	}
}

// LoadConfig loads engine configuration from environment variables.
// Unset variables use defaults from DefaultConfig.
func LoadConfig() Config {
	cfg := DefaultConfig()

	cfg.Enabled = getEnvBool("EVENTS_ENABLED", cfg.Enabled)
	cfg.WorkerCount = getEnvInt("EVENTS_WORKER_COUNT", cfg.WorkerCount)
	cfg.MaxQueueSize = getEnvInt("EVENTS_MAX_QUEUE_SIZE", cfg.MaxQueueSize)
	cfg.MaxMemoryBytes = getEnvInt64("EVENTS_MAX_MEMORY_BYTES", cfg.MaxMemoryBytes)
	cfg.MaxRetries = getEnvInt("EVENTS_MAX_RETRIES", cfg.MaxRetries)

	return cfg
}

// Validate checks all configuration constraints. Returns an error
// wrapping ErrInvalidConfig naming the violating field.
func (c Config) Validate() error {
	if c.WorkerCount < 1 || c.WorkerCount > 20 {
		return fmt.Errorf("%w: worker_count %d outside [1, 20]", ErrInvalidConfig, c.WorkerCount)
	}
	if c.MaxQueueSize < 100 {
		return fmt.Errorf("%w: max_queue_size %d below minimum 100", ErrInvalidConfig, c.MaxQueueSize)
	}
	if c.MaxEventSize < 1024 {
		return fmt.Errorf("%w: max_event_size %d below minimum 1024", ErrInvalidConfig, c.MaxEventSize)
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("%w: max_retries %d outside [0, 10]", ErrInvalidConfig, c.MaxRetries)
	}
	if c.RetryBaseDelay < 100*time.Millisecond {
		return fmt.Errorf("%w: retry_base_delay %s below minimum 100ms", ErrInvalidConfig, c.RetryBaseDelay)
	}
	if c.RetryMultiplier < 1.0 {
		return fmt.Errorf("%w: retry_multiplier %.2f below minimum 1.0", ErrInvalidConfig, c.RetryMultiplier)
	}
	if c.DLQMaxSize <= 0 {
		return fmt.Errorf("%w: dlq_max_size must be positive", ErrInvalidConfig)
	}
	if c.MaxMemoryBytes <= 0 {
		return fmt.Errorf("%w: max_memory_bytes must be positive", ErrInvalidConfig)
	}
	if c.MetricsInterval <= 0 {
		return fmt.Errorf("%w: metrics_interval must be positive", ErrInvalidConfig)
	}
	if c.HealthCheckInterval <= 0 {
		return fmt.Errorf("%w: health_check_interval must be positive", ErrInvalidConfig)
	}
	if c.GracefulShutdownTimeout <= 0 {
		return fmt.Errorf("%w: graceful_shutdown_timeout must be positive", ErrInvalidConfig)
	}
	if c.WorkerRestartThreshold == 0 {
		return fmt.Errorf("%w: worker_restart_threshold must be positive", ErrInvalidConfig)
	}
	if c.WorkerRestartDelay <= 0 {
		return fmt.Errorf("%w: worker_restart_delay must be positive", ErrInvalidConfig)
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("%w: idle_timeout must be positive", ErrInvalidConfig)
	}
	return nil
}
