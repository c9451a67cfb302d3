// Eventcore - High-Throughput In-Process Event Processing Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventcore

// Package engine implements the buffered, priority-aware, worker-pool
// event bus at the heart of Eventcore.
//
// Producers call Emit on the hot path; events are serialized and
// admitted into a bounded shared queue with atomic indices. A pool of
// worker executors dequeues in strict priority order, dispatches to
// registered handlers through a retry engine with exponential backoff,
// and escalates terminal failures to a bounded dead-letter queue. A
// supervisor restarts faulted workers, and metrics and health loops keep
// the engine observable.
//
// Typical use:
//
//	eng, err := engine.New(engine.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	eng.RegisterHandler("user.signup", engine.HandlerFunc(onSignup))
//	if err := eng.Initialize(ctx); err != nil {
//		return err
//	}
//	res := eng.Emit(ctx, "user.signup", payload, engine.EmitOptions{})
//	if !res.Accepted {
//		log.Printf("emit rejected: %v", res.Err)
//	}
//
// Emission never blocks the caller beyond a single bounded admission
// attempt; when admission is impossible and FallbackToSync is enabled,
// the handler runs on the caller's goroutine instead.
package engine
