// Eventcore - High-Throughput In-Process Event Processing Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventcore

package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/eventcore/internal/logging"
	"github.com/tomtom215/eventcore/internal/metrics"
)

// DeadLetterRecord holds an event that exhausted its retries or signaled
// a terminal failure.
type DeadLetterRecord struct {
	// Event is the original event that failed processing.
	Event *Event `json:"event"`

	// FirstSeenAt is when the event was dead-lettered.
	FirstSeenAt time.Time `json:"first_seen_at"`

	// LastError is the error message from the final attempt.
	LastError string `json:"last_error"`

	// Attempts is the event's attempt number plus one. For a failure
	// dead-lettered directly this is the number of handler invocations
	// made; for a scheduled retry escalated before it ran (queue full or
	// shutdown) it also counts that unrun retry.
	Attempts int `json:"attempts"`
}

// DLQSink receives dead-letter records for external persistence. The
// engine holds records in memory only; durability is the sink's concern.
type DLQSink interface {
	Store(ctx context.Context, record *DeadLetterRecord) error
}

// DLQSinkFunc adapts a function to the DLQSink interface.
type DLQSinkFunc func(ctx context.Context, record *DeadLetterRecord) error

// Store implements DLQSink.
func (f DLQSinkFunc) Store(ctx context.Context, record *DeadLetterRecord) error {
	return f(ctx, record)
}

// sinkTimeout bounds a single sink invocation so a stalled sink cannot
// hold a worker.
const sinkTimeout = 5 * time.Second

// DeadLetterQueue is a bounded in-memory holder for terminally failed
// events. When full, new entries are dropped so the oldest failures are
// preserved for operators.
type DeadLetterQueue struct {
	mu      sync.Mutex
	records []*DeadLetterRecord
	maxSize int

	totalAdded   atomic.Uint64
	totalDropped atomic.Uint64

	sink    DLQSink
	breaker *gobreaker.CircuitBreaker[any]
}

// NewDeadLetterQueue creates a DLQ with the given capacity. The sink is
// optional; when set, every accepted record is forwarded through a
// circuit breaker so a failing sink cannot stall workers.
func NewDeadLetterQueue(maxSize int, sink DLQSink) *DeadLetterQueue {
	q := &DeadLetterQueue{
		records: make([]*DeadLetterRecord, 0, maxSize),
		maxSize: maxSize,
		sink:    sink,
	}
	if sink != nil {
		q.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:        "dlq-sink",
			MaxRequests: 3,
			Interval:    30 * time.Second,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})
	}
	return q
}

// Add appends a dead-letter record for the event. Returns false when the
// DLQ is at capacity and the record was dropped.
func (q *DeadLetterQueue) Add(ctx context.Context, event *Event, lastErr error) bool {
	record := &DeadLetterRecord{
		Event:       event,
		FirstSeenAt: time.Now(),
		LastError:   lastErr.Error(),
		Attempts:    event.Attempt + 1,
	}

	q.mu.Lock()
	if len(q.records) >= q.maxSize {
		q.mu.Unlock()
		q.totalDropped.Add(1)
		logging.Warn().
			Str("event_id", event.EventID).
			Str("event_type", event.Type).
			Msg("dead-letter queue full, record dropped")
		return false
	}
	q.records = append(q.records, record)
	size := len(q.records)
	q.mu.Unlock()

	q.totalAdded.Add(1)
	metrics.UpdateDLQGauge(size)

	if q.sink != nil {
		q.forward(ctx, record)
	}
	return true
}

// forward sends the record through the breaker-guarded sink.
func (q *DeadLetterQueue) forward(ctx context.Context, record *DeadLetterRecord) {
	sinkCtx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()

	_, err := q.breaker.Execute(func() (any, error) {
		return nil, q.sink.Store(sinkCtx, record)
	})
	if err != nil {
		metrics.RecordDLQSinkError()
		logging.Error().
			Err(err).
			Str("event_id", record.Event.EventID).
			Msg("dead-letter sink store failed")
	}
}

// Entries returns a copy of the current records, oldest first.
func (q *DeadLetterQueue) Entries() []*DeadLetterRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*DeadLetterRecord, len(q.records))
	copy(out, q.records)
	return out
}

// Len returns the current number of held records.
func (q *DeadLetterQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

// TotalAdded returns how many records were accepted over the lifetime.
func (q *DeadLetterQueue) TotalAdded() uint64 {
	return q.totalAdded.Load()
}

// TotalDropped returns how many records were rejected at capacity.
func (q *DeadLetterQueue) TotalDropped() uint64 {
	return q.totalDropped.Load()
}
