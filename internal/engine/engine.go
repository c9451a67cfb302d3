// Eventcore - High-Throughput In-Process Event Processing Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventcore

package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/eventcore/internal/logging"
	"github.com/tomtom215/eventcore/internal/metrics"
)

// Engine lifecycle states.
const (
	engineNew int32 = iota
	engineRunning
	engineDraining
	engineStopped
)

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithDLQSink forwards dead-letter records to the sink. Persistence is
// the sink's concern; the engine holds records in memory only.
func WithDLQSink(sink DLQSink) Option {
	return func(e *Engine) {
		e.sink = sink
	}
}

// EmitOptions carries per-emission parameters.
type EmitOptions struct {
	// Priority biases observation order. Defaults to normal.
	Priority Priority

	// CorrelationID is an opaque identifier preserved across retries.
	CorrelationID string

	// NonRetryable escalates the event to the DLQ on first failure
	// instead of retrying.
	NonRetryable bool
}

// EmitResult reports the outcome of one emission. EventID is always
// assigned, including on rejection.
type EmitResult struct {
	Accepted bool   `json:"accepted"`
	EventID  string `json:"event_id"`
	Err      error  `json:"-"`
}

// ShutdownSummary reports the final engine accounting after Shutdown.
type ShutdownSummary struct {
	Drained            bool          `json:"drained"`
	EventsProcessed    uint64        `json:"events_processed"`
	EventsDeadLettered uint64        `json:"events_dead_lettered"`
	DroppedOnShutdown  uint64        `json:"dropped_on_shutdown"`
	Elapsed            time.Duration `json:"elapsed"`
}

// Engine is the event processing front-end: it owns the priority queue,
// handler registry, retry engine, DLQ, worker pool, and observation
// loops. One engine per process is typical, but nothing here depends on
// process-wide state.
type Engine struct {
	cfg   Config
	state atomic.Int32

	queue      *PriorityQueue
	registry   *Registry
	serializer *Serializer
	collector  *Collector
	dlq        *DeadLetterQueue
	retry      *RetryEngine
	pool       *Pool
	supervisor *PoolSupervisor
	evaluator  *HealthEvaluator

	sink DLQSink

	loopCtx    context.Context
	loopCancel context.CancelFunc
	loopWg     sync.WaitGroup
}

// New creates an engine from the configuration. Construction validates
// the config; workers and timers start on Initialize.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}

	queue, err := NewPriorityQueue(cfg.MaxQueueSize, cfg.MaxEventSize)
	if err != nil {
		return nil, fmt.Errorf("create queue: %w", err)
	}

	e.queue = queue
	e.registry = NewRegistry()
	e.serializer = NewSerializer(cfg.MaxEventSize)
	e.collector = NewCollector()
	e.dlq = NewDeadLetterQueue(cfg.DLQMaxSize, e.sink)
	e.retry = NewRetryEngine(cfg, e.queue, e.serializer, e.dlq, e.collector)
	e.pool = NewPool(cfg, e.queue, e.registry, e.retry, e.serializer, e.collector)
	e.supervisor = NewPoolSupervisor(cfg, e.pool, e.queue)
	e.evaluator = NewHealthEvaluator(cfg)

	return e, nil
}

// Initialize spawns workers and starts the supervision, metrics, and
// health timers. Idempotent: repeated calls after a successful init are
// no-ops. A disabled engine initializes nothing.
func (e *Engine) Initialize(ctx context.Context) error {
	if !e.cfg.Enabled {
		return nil
	}
	if !e.state.CompareAndSwap(engineNew, engineRunning) {
		return nil
	}

	// Loop lifetime is bound to Shutdown, not the caller's context.
	e.loopCtx, e.loopCancel = context.WithCancel(context.Background())

	e.pool.Start(e.loopCtx, e.cfg.WorkerCount)

	e.loopWg.Add(1)
	go func() {
		defer e.loopWg.Done()
		_ = e.supervisor.Serve(e.loopCtx)
	}()

	e.loopWg.Add(1)
	go e.metricsLoop()

	e.loopWg.Add(1)
	go e.healthLoop()

	logging.Info().
		Int("workers", e.cfg.WorkerCount).
		Int("queue_capacity", e.queue.Capacity()).
		Int("max_event_size", e.cfg.MaxEventSize).
		Msg("engine initialized")
	return nil
}

// metricsLoop refreshes derived rates and gauges on the metrics interval.
func (e *Engine) metricsLoop() {
	defer e.loopWg.Done()
	ticker := time.NewTicker(e.cfg.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.loopCtx.Done():
			return
		case now := <-ticker.C:
			e.collector.Tick(now)
			metrics.UpdateQueueGauges(e.queue.Size(), e.queue.Utilization())
			metrics.UpdateDLQGauge(e.dlq.Len())
		}
	}
}

// healthLoop evaluates engine health on the health check interval.
func (e *Engine) healthLoop() {
	defer e.loopWg.Done()
	ticker := time.NewTicker(e.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.loopCtx.Done():
			return
		case <-ticker.C:
			report := e.Health()
			if report.Status != HealthHealthy {
				logging.Warn().
					Str("status", string(report.Status)).
					Float64("score", report.Score).
					Strs("recommendations", report.Recommendations).
					Msg("engine health degraded")
			}
		}
	}
}

// RegisterHandler binds the handler to the event type, replacing any
// prior registration.
func (e *Engine) RegisterHandler(eventType string, handler Handler) error {
	return e.registry.Register(eventType, handler)
}

// UnregisterHandler removes the handler for the event type.
func (e *Engine) UnregisterHandler(eventType string) {
	e.registry.Unregister(eventType)
}

// Emit validates the event, attempts queue admission, and applies the
// fallback-sync policy on rejection. Never blocks the caller beyond a
// single admission attempt unless the fallback path runs.
func (e *Engine) Emit(ctx context.Context, eventType string, payload any, opts EmitOptions) EmitResult {
	event := NewEvent(eventType, nil)
	raw, err := encodePayload(payload)
	if err != nil {
		return EmitResult{EventID: event.EventID, Err: &ValidationError{Field: "payload", Message: err.Error()}}
	}
	event.Payload = raw

	if opts.Priority != "" {
		event.Priority = opts.Priority
	}
	event.CorrelationID = opts.CorrelationID
	event.Retryable = !opts.NonRetryable

	result := EmitResult{EventID: event.EventID}

	if !e.cfg.Enabled {
		result.Err = ErrDisabled
		return result
	}

	data, err := e.serializer.Marshal(event)
	if err != nil {
		e.collector.RecordDropped(DropReasonValidation)
		result.Err = err
		return result
	}

	switch e.state.Load() {
	case engineRunning:
		e.collector.RecordEnqueued(event.Priority)
		if e.queue.TryEnqueue(event.Priority, data) {
			result.Accepted = true
			return result
		}
		if e.cfg.FallbackToSync {
			return e.fallbackSync(ctx, event, result)
		}
		e.collector.RecordDropped(DropReasonQueueFull)
		result.Err = ErrQueueFull
		return result

	case engineNew:
		if e.cfg.FallbackToSync {
			return e.fallbackSync(ctx, event, result)
		}
		result.Err = ErrNotInitialized
		return result

	default:
		if e.cfg.FallbackToSync && e.state.Load() == engineDraining {
			return e.fallbackSync(ctx, event, result)
		}
		result.Err = ErrDraining
		return result
	}
}

// fallbackSync executes the handler on the caller's goroutine with a
// shortened retry budget. The caller absorbs the handler latency.
func (e *Engine) fallbackSync(ctx context.Context, event *Event, result EmitResult) EmitResult {
	handler, ok := e.registry.Lookup(event.Type)
	if !ok {
		e.collector.RecordDropped(DropReasonNoHandler)
		result.Err = fmt.Errorf("%w: %s", ErrNoHandler, event.Type)
		return result
	}

	e.collector.RecordSyncFallback()
	if err := e.retry.DispatchSync(ctx, event, handler); err != nil {
		result.Err = err
		return result
	}
	result.Accepted = true
	return result
}

// encodePayload normalizes the caller's payload into a raw JSON value.
func encodePayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	default:
		return json.Marshal(v)
	}
}

// Snapshot returns the current metrics view including per-worker status.
func (e *Engine) Snapshot() MetricsSnapshot {
	return e.collector.Snapshot(
		e.queue.Size(),
		e.queue.Capacity(),
		e.queue.InvalidSlots(),
		e.dlq.Len(),
		e.pool.Statuses(),
	)
}

// Health evaluates the full check set against a fresh snapshot.
func (e *Engine) Health() HealthReport {
	return e.evaluator.Evaluate(e.Snapshot())
}

// DLQ exposes the dead-letter queue for read-only inspection.
func (e *Engine) DLQ() *DeadLetterQueue {
	return e.dlq
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// ScaleTo adjusts the worker pool to the target count. Only valid on a
// running engine.
func (e *Engine) ScaleTo(ctx context.Context, target int) error {
	if e.state.Load() != engineRunning {
		return ErrNotInitialized
	}
	return e.pool.ScaleTo(ctx, target)
}

// Shutdown stops admission, drains workers until the deadline, settles
// pending retries, force-stops stragglers, flushes metrics, and returns
// the final accounting. The drain timeout is GracefulShutdownTimeout,
// shortened to the context deadline when that comes sooner.
func (e *Engine) Shutdown(ctx context.Context) (ShutdownSummary, error) {
	start := time.Now()

	if !e.state.CompareAndSwap(engineRunning, engineDraining) {
		// Never initialized: nothing to drain.
		if e.state.CompareAndSwap(engineNew, engineStopped) {
			return ShutdownSummary{Drained: true}, nil
		}
		return ShutdownSummary{}, ErrDraining
	}

	timeout := e.cfg.GracefulShutdownTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	logging.Info().Dur("timeout", timeout).Msg("engine shutdown started")

	e.pool.Drain()
	drained := e.pool.AwaitStopped(timeout)
	if !drained {
		logging.Warn().Msg("graceful drain timed out, force-stopping workers")
		e.pool.Stop()
		e.pool.AwaitStopped(time.Second)
	}

	// Settle retry timers that have not matured; their events escalate
	// to the DLQ so final accounting is deterministic.
	e.retry.Stop()
	e.retry.AwaitPending(time.Second)

	e.loopCancel()
	e.loopWg.Wait()

	// Anything still queued was never observed by a worker.
	var droppedOnShutdown uint64
	for {
		if _, ok := e.queue.TryDequeue(); !ok {
			break
		}
		e.collector.RecordDropped(DropReasonShutdown)
		droppedOnShutdown++
	}

	e.collector.Tick(time.Now())
	e.state.Store(engineStopped)

	summary := ShutdownSummary{
		Drained:            drained,
		EventsProcessed:    e.collector.Processed(),
		EventsDeadLettered: e.dlq.TotalAdded(),
		DroppedOnShutdown:  droppedOnShutdown,
		Elapsed:            time.Since(start),
	}
	logging.Info().
		Bool("drained", summary.Drained).
		Uint64("processed", summary.EventsProcessed).
		Uint64("dead_lettered", summary.EventsDeadLettered).
		Uint64("dropped_on_shutdown", summary.DroppedOnShutdown).
		Dur("elapsed", summary.Elapsed).
		Msg("engine shutdown complete")
	return summary, nil
}

// Serve adapts the engine to suture.Service: initialize, run until the
// context is canceled, then shut down gracefully.
func (e *Engine) Serve(ctx context.Context) error {
	if err := e.Initialize(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	if _, err := e.Shutdown(context.Background()); err != nil && err != ErrDraining {
		return err
	}
	return ctx.Err()
}
