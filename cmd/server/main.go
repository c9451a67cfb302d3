// Eventcore - High-Throughput In-Process Event Processing Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventcore

// Command server runs the Eventcore engine behind the operational HTTP
// API, supervised by a suture tree.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/eventcore/internal/api"
	"github.com/tomtom215/eventcore/internal/config"
	"github.com/tomtom215/eventcore/internal/dlqstore"
	"github.com/tomtom215/eventcore/internal/engine"
	"github.com/tomtom215/eventcore/internal/logging"
	"github.com/tomtom215/eventcore/internal/supervisor"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []engine.Option
	var store *dlqstore.Store
	if cfg.DLQStore.Enabled {
		store, err = dlqstore.Open(cfg.DLQStore.Path, cfg.DLQStore.Retention)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				logging.Error().Err(err).Msg("close dlq store failed")
			}
		}()
		opts = append(opts, engine.WithDLQSink(store))
	}

	eng, err := engine.New(cfg.Events, opts...)
	if err != nil {
		return err
	}

	tree := supervisor.NewTree(slog.Default(), supervisor.DefaultTreeConfig())
	tree.AddProcessingService(eng)
	if store != nil {
		tree.AddProcessingService(store)
	}
	tree.AddAPIService(api.NewServer(cfg.Server, eng))

	logging.Info().
		Bool("events_enabled", cfg.Events.Enabled).
		Bool("dlq_store_enabled", cfg.DLQStore.Enabled).
		Msg("eventcore starting")

	return tree.Serve(ctx)
}
