// Eventcore - High-Throughput In-Process Event Processing Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventcore

package engine

import (
	"testing"
	"time"
)

// testConfig returns a valid config tuned for fast tests: no jitter,
// seeded randomness, short intervals.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.WorkerCount = 2
	cfg.MaxQueueSize = 100
	cfg.MaxEventSize = 4096
	cfg.MaxRetries = 2
	cfg.RetryBaseDelay = 100 * time.Millisecond
	cfg.RetryMultiplier = 2.0
	cfg.RetryJitter = false
	cfg.DLQMaxSize = 100
	cfg.MetricsInterval = 50 * time.Millisecond
	cfg.HealthCheckInterval = time.Second
	cfg.GracefulShutdownTimeout = 2 * time.Second
	cfg.WorkerRestartDelay = 100 * time.Millisecond
	cfg.IdleTimeout = time.Minute
	cfg.RandomSeed = 1
	return cfg
}

// waitFor polls the condition until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s: %s", timeout, msg)
}
