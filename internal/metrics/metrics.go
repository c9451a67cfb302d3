// Eventcore - High-Throughput In-Process Event Processing Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventcore

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus Metrics Integration for Production Observability
// This package provides instrumentation for:
// - Event admission, processing, and drops
// - Retry and dead-letter activity
// - Queue occupancy and worker pool state
// - Engine health scoring

var (
	// Event Flow Metrics
	EventsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventcore_events_enqueued_total",
			Help: "Total number of queue admission attempts by priority class",
		},
		[]string{"priority"},
	)

	EventsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventcore_events_processed_total",
			Help: "Total number of events processed successfully",
		},
	)

	EventsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventcore_events_failed_total",
			Help: "Total number of events that failed terminally",
		},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventcore_events_dropped_total",
			Help: "Total number of events dropped before processing",
		},
		[]string{"reason"}, // "queue_full", "no_handler", "parse_error", "validation", "shutdown", "worker_fault"
	)

	EventsRetried = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventcore_events_retried_total",
			Help: "Total number of retry attempts scheduled",
		},
	)

	SyncFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventcore_sync_fallbacks_total",
			Help: "Total number of events dispatched synchronously on the caller context",
		},
	)

	// Latency Metrics
	ProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eventcore_processing_duration_seconds",
			Help:    "Handler processing duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	QueueWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eventcore_queue_wait_seconds",
			Help:    "Time between event admission and dequeue in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)

	// Queue State Metrics
	QueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventcore_queue_size",
			Help: "Current number of events in the shared queue across all priority classes",
		},
	)

	QueueUtilization = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventcore_queue_utilization_percent",
			Help: "Queue occupancy over capacity as a percentage",
		},
	)

	InvalidSlots = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventcore_queue_invalid_slots_total",
			Help: "Total number of corrupted queue slots skipped by consumers",
		},
	)

	// Dead Letter Queue Metrics
	DLQEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventcore_dlq_entries_total",
			Help: "Total number of events escalated to the dead-letter queue",
		},
	)

	DLQSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventcore_dlq_size",
			Help: "Current number of entries held in the dead-letter queue",
		},
	)

	DLQSinkErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventcore_dlq_sink_errors_total",
			Help: "Total number of dead-letter sink failures (including breaker rejections)",
		},
	)

	// Worker Pool Metrics
	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventcore_workers_active",
			Help: "Current number of live workers in the pool",
		},
	)

	WorkersErrored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventcore_workers_errored",
			Help: "Current number of workers in the errored state",
		},
	)

	WorkerRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventcore_worker_restarts_total",
			Help: "Total number of worker restart attempts",
		},
		[]string{"outcome"}, // "ok", "failed"
	)

	WorkerFaults = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventcore_worker_faults_total",
			Help: "Total number of unhandled faults in worker loops",
		},
	)

	// Health Metrics
	HealthScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventcore_health_score",
			Help: "Weighted health score in [0, 100]",
		},
	)

	HealthStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eventcore_health_status",
			Help: "Overall health status (1 for the active status, 0 otherwise)",
		},
		[]string{"status"}, // "healthy", "warning", "critical"
	)
)

// RecordEnqueued records a queue admission attempt for a priority class.
func RecordEnqueued(priority string) {
	EventsEnqueued.WithLabelValues(priority).Inc()
}

// RecordProcessed records a successful handler invocation.
func RecordProcessed(durationSeconds float64) {
	EventsProcessed.Inc()
	ProcessingDuration.Observe(durationSeconds)
}

// RecordFailed records a terminal processing failure.
func RecordFailed() {
	EventsFailed.Inc()
}

// RecordDropped records a dropped event with the drop reason.
func RecordDropped(reason string) {
	EventsDropped.WithLabelValues(reason).Inc()
}

// RecordRetry records a scheduled retry attempt.
func RecordRetry() {
	EventsRetried.Inc()
}

// RecordSyncFallback records a synchronous dispatch on the caller context.
func RecordSyncFallback() {
	SyncFallbacks.Inc()
}

// RecordQueueWait records the admission-to-dequeue latency of an event.
func RecordQueueWait(seconds float64) {
	QueueWaitDuration.Observe(seconds)
}

// RecordInvalidSlot records a corrupted queue slot skipped by a consumer.
func RecordInvalidSlot() {
	InvalidSlots.Inc()
}

// RecordDeadLetter records an event escalated to the DLQ.
func RecordDeadLetter() {
	DLQEntries.Inc()
}

// RecordDLQSinkError records a dead-letter sink failure.
func RecordDLQSinkError() {
	DLQSinkErrors.Inc()
}

// RecordWorkerFault records an unhandled fault in a worker loop.
func RecordWorkerFault() {
	WorkerFaults.Inc()
}

// RecordWorkerRestart records a worker restart attempt outcome.
func RecordWorkerRestart(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	WorkerRestarts.WithLabelValues(outcome).Inc()
}

// UpdateQueueGauges updates queue occupancy gauges.
func UpdateQueueGauges(size int, utilizationPercent float64) {
	QueueSize.Set(float64(size))
	QueueUtilization.Set(utilizationPercent)
}

// UpdateWorkerGauges updates worker pool state gauges.
func UpdateWorkerGauges(active, errored int) {
	WorkersActive.Set(float64(active))
	WorkersErrored.Set(float64(errored))
}

// UpdateDLQGauge updates the current DLQ size gauge.
func UpdateDLQGauge(size int) {
	DLQSize.Set(float64(size))
}

// UpdateHealth updates the health score gauge and status indicator.
func UpdateHealth(score float64, status string) {
	HealthScore.Set(score)
	for _, s := range []string{"healthy", "warning", "critical"} {
		v := 0.0
		if s == status {
			v = 1.0
		}
		HealthStatus.WithLabelValues(s).Set(v)
	}
}
