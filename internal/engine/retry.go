// Eventcore - High-Throughput In-Process Event Processing Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventcore

package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/eventcore/internal/logging"
)

// BackoffPolicy computes retry delays with exponential growth and
// optional jitter.
type BackoffPolicy struct {
	baseDelay  time.Duration
	multiplier float64
	jitter     bool

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewBackoffPolicy creates a backoff policy. When seed is 0, a
// time-based seed is used; non-zero values give reproducible jitter in
// tests.
func NewBackoffPolicy(baseDelay time.Duration, multiplier float64, jitter bool, seed int64) *BackoffPolicy {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &BackoffPolicy{
		baseDelay:  baseDelay,
		multiplier: multiplier,
		jitter:     jitter,
		//nolint:gosec // G404: Using weak random for non-cryptographic jitter in backoff timing
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Delay returns the delay before the retry following the given attempt:
// BaseDelay * Multiplier^attempt, multiplied by a uniform random factor
// in [0.5, 1.5] when jitter is enabled.
func (p *BackoffPolicy) Delay(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(p.multiplier, float64(attempt))

	if p.jitter {
		p.rngMu.Lock()
		factor := 0.5 + p.rng.Float64()
		p.rngMu.Unlock()
		delay *= factor
	}

	return time.Duration(delay)
}

// RetryEngine wraps handler invocations with bounded retries, backoff
// delays, and terminal-failure escalation to the DLQ.
//
// State machine per event attempt: pending -> running -> {succeeded |
// failing}; failing -> {pending (if attempts remain) | dead-lettered}.
type RetryEngine struct {
	policy     *BackoffPolicy
	maxRetries int

	queue      *PriorityQueue
	serializer *Serializer
	dlq        *DeadLetterQueue
	collector  *Collector

	// Pending retry timers, tracked so shutdown can settle them.
	pending  sync.WaitGroup
	timersMu sync.Mutex
	timers   map[string]*retryTimer
	stopped  atomic.Bool
}

type retryTimer struct {
	timer *time.Timer
	event *Event
	data  []byte
	cause error
}

// NewRetryEngine creates a retry engine bound to the queue, serializer,
// DLQ, and collector.
func NewRetryEngine(cfg Config, queue *PriorityQueue, serializer *Serializer, dlq *DeadLetterQueue, collector *Collector) *RetryEngine {
	return &RetryEngine{
		policy:     NewBackoffPolicy(cfg.RetryBaseDelay, cfg.RetryMultiplier, cfg.RetryJitter, cfg.RandomSeed),
		maxRetries: cfg.MaxRetries,
		queue:      queue,
		serializer: serializer,
		dlq:        dlq,
		collector:  collector,
		timers:     make(map[string]*retryTimer),
	}
}

// Policy returns the backoff policy.
func (r *RetryEngine) Policy() *BackoffPolicy {
	return r.policy
}

// DispatchOutcome is the terminal disposition of one Dispatch call.
type DispatchOutcome int

const (
	// DispatchSucceeded means the handler completed the attempt.
	DispatchSucceeded DispatchOutcome = iota
	// DispatchRescheduled means the attempt failed but a retry was
	// scheduled; the event is still in flight, not failed.
	DispatchRescheduled
	// DispatchDeadLettered means the attempt failed terminally and the
	// event was escalated to the DLQ.
	DispatchDeadLettered
)

// Dispatch runs one handler attempt for the event and drives the retry
// policy on failure. The outcome distinguishes a rescheduled retry from
// a terminal dead-letter so callers can count only genuine failures;
// the error is non-nil for both failure outcomes.
func (r *RetryEngine) Dispatch(ctx context.Context, event *Event, handler Handler) (DispatchOutcome, error) {
	start := time.Now()
	err := invokeHandler(ctx, handler, event)
	if err == nil {
		r.collector.RecordProcessed(time.Since(start))
		return DispatchSucceeded, nil
	}
	return r.handleFailure(ctx, event, err), err
}

// DispatchSync runs the handler on the caller's goroutine with a
// shortened retry budget, for the fallback-sync path. The full budget
// belongs to the async path; here a single retry bounded by the caller's
// context is allowed before escalation.
func (r *RetryEngine) DispatchSync(ctx context.Context, event *Event, handler Handler) error {
	budget := r.maxRetries
	if budget > 1 {
		budget = 1
	}

	for {
		start := time.Now()
		err := invokeHandler(ctx, handler, event)
		if err == nil {
			r.collector.RecordProcessed(time.Since(start))
			return nil
		}

		if IsTerminalError(err) || !event.Retryable || event.Attempt >= budget {
			r.deadLetter(ctx, event, err)
			return err
		}

		r.collector.RecordRetry()
		select {
		case <-time.After(r.policy.Delay(event.Attempt)):
		case <-ctx.Done():
			r.deadLetter(ctx, event, fmt.Errorf("%w: %s", ErrRetriesExhausted, ctx.Err()))
			return ctx.Err()
		}
		event.Attempt++
	}
}

// handleFailure applies the retry policy to a failed attempt.
func (r *RetryEngine) handleFailure(ctx context.Context, event *Event, cause error) DispatchOutcome {
	if IsTerminalError(cause) || !event.Retryable {
		r.deadLetter(ctx, event, cause)
		return DispatchDeadLettered
	}
	if event.Attempt >= r.maxRetries {
		r.deadLetter(ctx, event, fmt.Errorf("%w: %s", ErrRetriesExhausted, cause))
		return DispatchDeadLettered
	}
	return r.scheduleRetry(ctx, event, cause)
}

// scheduleRetry re-enqueues the event after the backoff delay,
// preserving priority and correlation ID and incrementing the attempt.
func (r *RetryEngine) scheduleRetry(ctx context.Context, event *Event, cause error) DispatchOutcome {
	next := *event
	next.Attempt++

	data, err := r.serializer.Marshal(&next)
	if err != nil {
		r.deadLetter(ctx, event, fmt.Errorf("serialize retry: %w", err))
		return DispatchDeadLettered
	}

	delay := r.policy.Delay(event.Attempt)
	r.collector.RecordRetry()

	if r.stopped.Load() {
		r.deadLetter(ctx, &next, cause)
		return DispatchDeadLettered
	}

	r.pending.Add(1)
	rt := &retryTimer{event: &next, data: data, cause: cause}

	// Registered under the lock so an immediately-firing timer cannot
	// observe the map without its own entry.
	r.timersMu.Lock()
	rt.timer = time.AfterFunc(delay, func() {
		defer r.pending.Done()
		r.removeTimer(next.EventID)
		r.requeue(rt)
	})
	r.timers[next.EventID] = rt
	r.timersMu.Unlock()

	logging.Debug().
		Str("event_id", next.EventID).
		Str("event_type", next.Type).
		Int("attempt", next.Attempt).
		Dur("delay", delay).
		Msg("retry scheduled")
	return DispatchRescheduled
}

// requeue admits a matured retry back into the queue. A full queue
// escalates straight to the DLQ so the failure is never dropped
// silently.
func (r *RetryEngine) requeue(rt *retryTimer) {
	if r.stopped.Load() || !r.queue.TryEnqueue(rt.event.Priority, rt.data) {
		r.deadLetter(context.Background(), rt.event, rt.cause)
	}
}

func (r *RetryEngine) removeTimer(eventID string) {
	r.timersMu.Lock()
	delete(r.timers, eventID)
	r.timersMu.Unlock()
}

// deadLetter records a terminal failure and escalates to the DLQ.
func (r *RetryEngine) deadLetter(ctx context.Context, event *Event, cause error) {
	r.collector.RecordFailed()
	r.collector.RecordDeadLetter()
	r.dlq.Add(ctx, event, cause)
}

// PendingRetries returns the number of retry timers not yet matured.
func (r *RetryEngine) PendingRetries() int {
	r.timersMu.Lock()
	defer r.timersMu.Unlock()
	return len(r.timers)
}

// Stop settles the retry engine for shutdown: pending timers are stopped
// and their events escalated to the DLQ so final accounting is
// deterministic. New retries scheduled after Stop escalate immediately.
func (r *RetryEngine) Stop() {
	r.stopped.Store(true)

	r.timersMu.Lock()
	settled := make([]*retryTimer, 0, len(r.timers))
	for id, rt := range r.timers {
		if rt.timer.Stop() {
			settled = append(settled, rt)
			delete(r.timers, id)
		}
	}
	r.timersMu.Unlock()

	for _, rt := range settled {
		r.deadLetter(context.Background(), rt.event, rt.cause)
		r.pending.Done()
	}
}

// AwaitPending blocks until all in-flight retry timers have settled or
// the timeout elapses. Returns true when fully settled.
func (r *RetryEngine) AwaitPending(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		r.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// invokeHandler runs the handler with panic isolation. A handler panic
// is surfaced as a retryable failure, not a worker fault.
func invokeHandler(ctx context.Context, handler Handler, event *Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = NewRetryableError(fmt.Sprintf("handler panic: %v", rec), nil)
		}
	}()
	return handler.Handle(ctx, event)
}
