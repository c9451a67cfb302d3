// Eventcore - High-Throughput In-Process Event Processing Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventcore

package engine

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/eventcore/internal/metrics"
)

// sampleWindowSize bounds the sliding windows used for latency
// percentiles.
const sampleWindowSize = 1000

// sampleWindow is a bounded sliding window of float64 samples.
type sampleWindow struct {
	mu  sync.Mutex
	buf []float64
	idx int
	n   int
}

func newSampleWindow(size int) *sampleWindow {
	return &sampleWindow{buf: make([]float64, size)}
}

// Add records a sample, evicting the oldest when the window is full.
func (w *sampleWindow) Add(v float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf[w.idx] = v
	w.idx = (w.idx + 1) % len(w.buf)
	if w.n < len(w.buf) {
		w.n++
	}
}

// Mean returns the average of the window, or 0 when empty.
func (w *sampleWindow) Mean() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < w.n; i++ {
		sum += w.buf[i]
	}
	return sum / float64(w.n)
}

// P95 returns the 95th percentile of the window, or 0 when empty.
func (w *sampleWindow) P95() float64 {
	w.mu.Lock()
	if w.n == 0 {
		w.mu.Unlock()
		return 0
	}
	values := make([]float64, w.n)
	copy(values, w.buf[:w.n])
	w.mu.Unlock()

	sort.Float64s(values)
	idx := int(float64(len(values))*0.95) - 1
	if idx < 0 {
		idx = 0
	}
	return values[idx]
}

// droppedReasons indexes the fixed drop-reason set for atomic counting.
var droppedReasons = []string{
	DropReasonQueueFull,
	DropReasonNoHandler,
	DropReasonParseError,
	DropReasonValidation,
	DropReasonShutdown,
	DropReasonWorkerFault,
}

func dropReasonIndex(reason string) int {
	for i, r := range droppedReasons {
		if r == reason {
			return i
		}
	}
	return len(droppedReasons) - 1
}

// Collector accumulates engine counters and latency samples and derives
// rates. All counters are monotonic for the engine lifetime; snapshots
// are eventually consistent and taken without a global lock.
type Collector struct {
	started time.Time

	enqueued      [3]atomic.Uint64
	processed     atomic.Uint64
	failed        atomic.Uint64
	retried       atomic.Uint64
	deadLettered  atomic.Uint64
	dropped       [6]atomic.Uint64
	parseErrors   atomic.Uint64
	syncFallbacks atomic.Uint64

	procWindow *sampleWindow
	waitWindow *sampleWindow

	// Rate derivation state, updated on each metrics tick.
	rateMu            sync.Mutex
	lastTickAt        time.Time
	lastProcessed     uint64
	lastEnqueued      uint64
	lastSyncFallbacks uint64
	processingRate    float64
	inputRate         float64
	emitterImpact     float64
}

// NewCollector creates a collector with empty counters.
func NewCollector() *Collector {
	now := time.Now()
	return &Collector{
		started:    now,
		procWindow: newSampleWindow(sampleWindowSize),
		waitWindow: newSampleWindow(sampleWindowSize),
	}
}

// RecordEnqueued records an admission attempt for the priority class.
func (c *Collector) RecordEnqueued(p Priority) {
	c.enqueued[p.Rank()].Add(1)
	metrics.RecordEnqueued(string(p))
}

// RecordProcessed records a successful handler invocation and its
// processing time.
func (c *Collector) RecordProcessed(d time.Duration) {
	c.processed.Add(1)
	c.procWindow.Add(float64(d.Microseconds()) / 1000.0)
	metrics.RecordProcessed(d.Seconds())
}

// RecordQueueWait records admission-to-dequeue latency.
func (c *Collector) RecordQueueWait(d time.Duration) {
	if d < 0 {
		d = 0
	}
	c.waitWindow.Add(float64(d.Microseconds()) / 1000.0)
	metrics.RecordQueueWait(d.Seconds())
}

// RecordFailed records a terminal processing failure.
func (c *Collector) RecordFailed() {
	c.failed.Add(1)
	metrics.RecordFailed()
}

// RecordDropped records a dropped event with the drop reason.
func (c *Collector) RecordDropped(reason string) {
	c.dropped[dropReasonIndex(reason)].Add(1)
	metrics.RecordDropped(reason)
}

// RecordParseError records a serializer rejection on dequeue. Parse
// errors are also counted as drops.
func (c *Collector) RecordParseError() {
	c.parseErrors.Add(1)
	c.RecordDropped(DropReasonParseError)
}

// RecordRetry records a scheduled retry attempt.
func (c *Collector) RecordRetry() {
	c.retried.Add(1)
	metrics.RecordRetry()
}

// RecordDeadLetter records an event escalated to the DLQ.
func (c *Collector) RecordDeadLetter() {
	c.deadLettered.Add(1)
	metrics.RecordDeadLetter()
}

// RecordSyncFallback records a synchronous dispatch on the caller context.
func (c *Collector) RecordSyncFallback() {
	c.syncFallbacks.Add(1)
	metrics.RecordSyncFallback()
}

// EnqueuedTotal returns total admissions across priority classes.
func (c *Collector) EnqueuedTotal() uint64 {
	var total uint64
	for i := range c.enqueued {
		total += c.enqueued[i].Load()
	}
	return total
}

// Processed returns the processed counter.
func (c *Collector) Processed() uint64 {
	return c.processed.Load()
}

// DroppedTotal returns drops summed across reasons.
func (c *Collector) DroppedTotal() uint64 {
	var total uint64
	for i := range c.dropped {
		total += c.dropped[i].Load()
	}
	return total
}

// Tick refreshes derived rates over the interval since the previous
// tick. Called on the engine's metrics interval.
func (c *Collector) Tick(now time.Time) {
	c.rateMu.Lock()
	defer c.rateMu.Unlock()

	processed := c.processed.Load()
	enqueued := c.EnqueuedTotal()
	fallbacks := c.syncFallbacks.Load()

	if !c.lastTickAt.IsZero() {
		elapsed := now.Sub(c.lastTickAt).Seconds()
		if elapsed > 0 {
			c.processingRate = float64(processed-c.lastProcessed) / elapsed
			c.inputRate = float64(enqueued-c.lastEnqueued) / elapsed
		}
		if emitted := enqueued - c.lastEnqueued; emitted > 0 {
			c.emitterImpact = float64(fallbacks-c.lastSyncFallbacks) / float64(emitted) * 100
		} else {
			c.emitterImpact = 0
		}
	}

	c.lastTickAt = now
	c.lastProcessed = processed
	c.lastEnqueued = enqueued
	c.lastSyncFallbacks = fallbacks
}

// MetricsSnapshot is an immutable record of current counters and derived
// values plus per-worker status entries.
type MetricsSnapshot struct {
	Timestamp time.Time     `json:"timestamp"`
	Uptime    time.Duration `json:"uptime"`

	EventsEnqueued      map[Priority]uint64 `json:"events_enqueued"`
	EventsEnqueuedTotal uint64              `json:"events_enqueued_total"`
	EventsProcessed     uint64              `json:"events_processed"`
	EventsFailed        uint64              `json:"events_failed"`
	EventsRetried       uint64              `json:"events_retried"`
	EventsDropped       uint64              `json:"events_dropped"`
	DroppedByReason     map[string]uint64   `json:"dropped_by_reason"`
	DeadLetterCount     uint64              `json:"dead_letter_count"`
	ParseErrors         uint64              `json:"parse_errors"`
	InvalidSlots        uint64              `json:"invalid_slots"`
	SyncFallbacks       uint64              `json:"sync_fallbacks"`

	ProcessingTimeMeanMs float64 `json:"processing_time_mean_ms"`
	ProcessingTimeP95Ms  float64 `json:"processing_time_p95_ms"`
	QueueWaitMeanMs      float64 `json:"queue_wait_mean_ms"`
	QueueWaitP95Ms       float64 `json:"queue_wait_p95_ms"`

	ProcessingRate   float64 `json:"processing_rate"`
	InputRate        float64 `json:"input_rate"`
	EmitterImpact    float64 `json:"emitter_impact"`
	QueueSize        int     `json:"queue_size"`
	QueueCapacity    int     `json:"queue_capacity"`
	QueueUtilization float64 `json:"queue_utilization"`
	ErrorRate        float64 `json:"error_rate"`
	DLQSize          int     `json:"dlq_size"`

	Workers []WorkerStatus `json:"workers"`
}

// Snapshot assembles the current metrics view. Queue and worker state are
// passed in by the engine so the collector owns only counter state.
func (c *Collector) Snapshot(queueSize, queueCapacity int, invalidSlots uint64, dlqSize int, workers []WorkerStatus) MetricsSnapshot {
	now := time.Now()

	byPriority := make(map[Priority]uint64, 3)
	for i, p := range Priorities {
		byPriority[p] = c.enqueued[i].Load()
	}

	byReason := make(map[string]uint64, len(droppedReasons))
	var droppedTotal uint64
	for i, reason := range droppedReasons {
		v := c.dropped[i].Load()
		if v > 0 {
			byReason[reason] = v
		}
		droppedTotal += v
	}

	processed := c.processed.Load()
	failed := c.failed.Load()
	errorRate := 0.0
	if processed+failed > 0 {
		errorRate = float64(failed) / float64(processed+failed) * 100
	}

	utilization := 0.0
	if queueCapacity > 0 {
		utilization = float64(queueSize) / float64(queueCapacity) * 100
	}

	c.rateMu.Lock()
	processingRate := c.processingRate
	inputRate := c.inputRate
	emitterImpact := c.emitterImpact
	c.rateMu.Unlock()

	return MetricsSnapshot{
		Timestamp:            now,
		Uptime:               now.Sub(c.started),
		EventsEnqueued:       byPriority,
		EventsEnqueuedTotal:  c.EnqueuedTotal(),
		EventsProcessed:      processed,
		EventsFailed:         failed,
		EventsRetried:        c.retried.Load(),
		EventsDropped:        droppedTotal,
		DroppedByReason:      byReason,
		DeadLetterCount:      c.deadLettered.Load(),
		ParseErrors:          c.parseErrors.Load(),
		InvalidSlots:         invalidSlots,
		SyncFallbacks:        c.syncFallbacks.Load(),
		ProcessingTimeMeanMs: c.procWindow.Mean(),
		ProcessingTimeP95Ms:  c.procWindow.P95(),
		QueueWaitMeanMs:      c.waitWindow.Mean(),
		QueueWaitP95Ms:       c.waitWindow.P95(),
		ProcessingRate:       processingRate,
		InputRate:            inputRate,
		EmitterImpact:        emitterImpact,
		QueueSize:            queueSize,
		QueueCapacity:        queueCapacity,
		QueueUtilization:     utilization,
		ErrorRate:            errorRate,
		DLQSize:              dlqSize,
		Workers:              workers,
	}
}
