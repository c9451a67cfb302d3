// Eventcore - High-Throughput In-Process Event Processing Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventcore

package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestLoad_Defaults tests that loading with no file and no environment
// yields the built-in defaults.
func TestLoad_Defaults(t *testing.T) {
	chdirEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.Events.Enabled {
		t.Error("Events.Enabled = false, want true")
	}
	if cfg.Events.WorkerCount != 4 {
		t.Errorf("Events.WorkerCount = %d, want 4", cfg.Events.WorkerCount)
	}
	if cfg.Server.Port != 8217 {
		t.Errorf("Server.Port = %d, want 8217", cfg.Server.Port)
	}
	if cfg.DLQStore.Enabled {
		t.Error("DLQStore.Enabled = true, want false")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %s, want info", cfg.Logging.Level)
	}
}

// TestLoad_EnvOverrides tests environment variable layering.
func TestLoad_EnvOverrides(t *testing.T) {
	chdirEmpty(t)
	t.Setenv("EVENTS_WORKER_COUNT", "8")
	t.Setenv("EVENTS_MAX_QUEUE_SIZE", "2000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("DLQ_STORE_PATH", "/tmp/dlq")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Events.WorkerCount != 8 {
		t.Errorf("Events.WorkerCount = %d, want 8", cfg.Events.WorkerCount)
	}
	if cfg.Events.MaxQueueSize != 2000 {
		t.Errorf("Events.MaxQueueSize = %d, want 2000", cfg.Events.MaxQueueSize)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %s, want debug", cfg.Logging.Level)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.DLQStore.Path != "/tmp/dlq" {
		t.Errorf("DLQStore.Path = %s, want /tmp/dlq", cfg.DLQStore.Path)
	}
}

// TestLoad_ConfigFile tests YAML file layering below env overrides.
func TestLoad_ConfigFile(t *testing.T) {
	chdirEmpty(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
events:
  worker_count: 6
  max_retries: 5
server:
  port: 9100
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("EVENTS_MAX_RETRIES", "2") // Env wins over the file.

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Events.WorkerCount != 6 {
		t.Errorf("Events.WorkerCount = %d, want 6 from file", cfg.Events.WorkerCount)
	}
	if cfg.Events.MaxRetries != 2 {
		t.Errorf("Events.MaxRetries = %d, want 2 from env", cfg.Events.MaxRetries)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100 from file", cfg.Server.Port)
	}
}

// TestLoad_ValidationFailure tests that constraint violations abort the
// load.
func TestLoad_ValidationFailure(t *testing.T) {
	chdirEmpty(t)
	t.Setenv("EVENTS_WORKER_COUNT", "50")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should reject worker_count above 20")
	}
}

// TestEnvTransform tests the env-to-key mapping.
func TestEnvTransform(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "EVENTS_WORKER_COUNT", want: "events.worker_count"},
		{in: "EVENTS_MAX_QUEUE_SIZE", want: "events.max_queue_size"},
		{in: "LOG_LEVEL", want: "logging.level"},
		{in: "SERVER_PORT", want: "server.port"},
		{in: "DLQ_STORE_ENABLED", want: "dlq_store.enabled"},
		{in: "PATH", want: ""},
		{in: "HOME", want: ""},
	}

	for _, tt := range tests {
		if got := envTransform(tt.in); got != tt.want {
			t.Errorf("envTransform(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// chdirEmpty moves the test into an empty directory so stray config
// files cannot leak into the load.
func chdirEmpty(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
}
