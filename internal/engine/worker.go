// Eventcore - High-Throughput In-Process Event Processing Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventcore

package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/tomtom215/eventcore/internal/logging"
	"github.com/tomtom215/eventcore/internal/metrics"
)

// WorkerState describes a worker's lifecycle position.
type WorkerState string

const (
	// WorkerStarting is the initial state before the loop begins.
	WorkerStarting WorkerState = "starting"
	// WorkerRunning means the worker is processing an event.
	WorkerRunning WorkerState = "running"
	// WorkerIdle means the last dequeue found the queue empty.
	WorkerIdle WorkerState = "idle"
	// WorkerDraining means the worker exits once the queue is empty.
	WorkerDraining WorkerState = "draining"
	// WorkerErrored means the loop died on an unhandled fault.
	WorkerErrored WorkerState = "errored"
	// WorkerStopped is terminal.
	WorkerStopped WorkerState = "stopped"
)

const (
	stateStarting int32 = iota
	stateRunning
	stateIdle
	stateDraining
	stateErrored
	stateStopped
)

func stateLabel(s int32) WorkerState {
	switch s {
	case stateStarting:
		return WorkerStarting
	case stateRunning:
		return WorkerRunning
	case stateIdle:
		return WorkerIdle
	case stateDraining:
		return WorkerDraining
	case stateErrored:
		return WorkerErrored
	default:
		return WorkerStopped
	}
}

// pollInterval is the base sleep between dequeue attempts on an empty
// queue. Each sleep is jittered to avoid synchronized polling across
// workers.
const pollInterval = 10 * time.Millisecond

// WorkerStatus is a point-in-time view of one worker.
type WorkerStatus struct {
	ID             int         `json:"id"`
	State          WorkerState `json:"state"`
	StartedAt      time.Time   `json:"started_at"`
	LastActivityAt time.Time   `json:"last_activity_at"`
	ProcessedCount uint64      `json:"processed_count"`
	ErrorCount     uint64      `json:"error_count"`
	Restarts       int         `json:"restarts"`
}

// worker runs the dequeue -> dispatch -> retry loop.
type worker struct {
	id       int
	restarts int

	state        atomic.Int32
	lastActivity atomic.Int64 // unix nanos
	processed    atomic.Uint64
	errorCount   atomic.Uint64
	startedAt    time.Time

	draining atomic.Bool
	retiring atomic.Bool
	stop     chan struct{}
	done     chan struct{}

	queue      *PriorityQueue
	registry   *Registry
	retry      *RetryEngine
	serializer *Serializer
	collector  *Collector

	rng *rand.Rand

	// faultHook, when set, runs at the top of each event dispatch. Used
	// in tests to inject worker-loop faults.
	faultHook func()
}

func newWorker(id, restarts int, queue *PriorityQueue, registry *Registry, retry *RetryEngine, serializer *Serializer, collector *Collector) *worker {
	w := &worker{
		id:         id,
		restarts:   restarts,
		startedAt:  time.Now(),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		queue:      queue,
		registry:   registry,
		retry:      retry,
		serializer: serializer,
		collector:  collector,
		//nolint:gosec // G404: poll jitter only
		rng: rand.New(rand.NewSource(time.Now().UnixNano() + int64(id))),
	}
	w.touch()
	return w
}

// run executes the worker loop until stopped, drained, or faulted.
func (w *worker) run(ctx context.Context) {
	defer close(w.done)

	w.state.Store(stateRunning)
	logging.Debug().Int("worker_id", w.id).Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			w.state.Store(stateStopped)
			return
		case <-w.stop:
			w.state.Store(stateStopped)
			return
		default:
		}

		if w.retiring.Load() {
			w.state.Store(stateStopped)
			logging.Debug().Int("worker_id", w.id).Msg("worker retired")
			return
		}

		data, ok := w.queue.TryDequeue()
		if !ok {
			if w.draining.Load() {
				w.state.Store(stateStopped)
				logging.Debug().Int("worker_id", w.id).Msg("worker drained")
				return
			}
			w.state.Store(stateIdle)
			if !w.sleep(ctx) {
				w.state.Store(stateStopped)
				return
			}
			continue
		}

		w.state.Store(stateRunning)
		if fault := w.processOne(ctx, data); fault != nil {
			// A fault in the loop itself, not in a handler. The event
			// in flight is counted dropped and NOT re-queued; the
			// supervisor replaces this worker.
			w.state.Store(stateErrored)
			w.errorCount.Add(1)
			w.collector.RecordDropped(DropReasonWorkerFault)
			metrics.RecordWorkerFault()
			logging.Error().
				Int("worker_id", w.id).
				Err(fault).
				Msg("worker fault, loop terminated")
			return
		}
	}
}

// processOne dispatches a single dequeued event. A returned error is a
// worker fault; handler failures are absorbed by the retry engine.
func (w *worker) processOne(ctx context.Context, data []byte) (fault error) {
	defer func() {
		if rec := recover(); rec != nil {
			fault = fmt.Errorf("worker loop panic: %v", rec)
		}
	}()

	if w.faultHook != nil {
		w.faultHook()
	}

	event, err := w.serializer.Unmarshal(data)
	if err != nil {
		w.collector.RecordParseError()
		w.touch()
		return nil
	}

	handler, ok := w.registry.Lookup(event.Type)
	if !ok {
		w.collector.RecordDropped(DropReasonNoHandler)
		w.touch()
		return nil
	}

	w.collector.RecordQueueWait(event.QueueWait(time.Now()))

	// A rescheduled retry is neither a success nor a failure yet; only
	// terminal outcomes move the worker's counters.
	switch outcome, _ := w.retry.Dispatch(ctx, event, handler); outcome {
	case DispatchSucceeded:
		w.processed.Add(1)
	case DispatchDeadLettered:
		w.errorCount.Add(1)
	}
	w.touch()
	return nil
}

// sleep waits one jittered poll interval. Returns false when the worker
// was stopped while sleeping.
func (w *worker) sleep(ctx context.Context) bool {
	jitter := time.Duration(w.rng.Int63n(int64(pollInterval)))
	timer := time.NewTimer(pollInterval/2 + jitter)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-w.stop:
		return false
	case <-timer.C:
		return true
	}
}

// beginDrain tells the worker to exit once the queue is empty.
func (w *worker) beginDrain() {
	w.draining.Store(true)
	if w.state.Load() == stateIdle || w.state.Load() == stateRunning {
		w.state.Store(stateDraining)
	}
}

// retire tells the worker to exit after its current invocation, leaving
// queued work to the remaining pool. Used by scale-down.
func (w *worker) retire() {
	w.retiring.Store(true)
	if w.state.Load() == stateIdle || w.state.Load() == stateRunning {
		w.state.Store(stateDraining)
	}
}

// halt force-stops the worker. Idempotent.
func (w *worker) halt() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
}

func (w *worker) touch() {
	w.lastActivity.Store(time.Now().UnixNano())
}

// Status returns a point-in-time view of the worker.
func (w *worker) Status() WorkerStatus {
	return WorkerStatus{
		ID:             w.id,
		State:          stateLabel(w.state.Load()),
		StartedAt:      w.startedAt,
		LastActivityAt: time.Unix(0, w.lastActivity.Load()),
		ProcessedCount: w.processed.Load(),
		ErrorCount:     w.errorCount.Load(),
		Restarts:       w.restarts,
	}
}
