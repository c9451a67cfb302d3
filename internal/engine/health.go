// Eventcore - High-Throughput In-Process Event Processing Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventcore

package engine

import (
	"time"

	"github.com/tomtom215/eventcore/internal/metrics"
)

// CheckStatus is the outcome of a single health check.
type CheckStatus string

const (
	// CheckPass means the measured value is within its threshold.
	CheckPass CheckStatus = "pass"
	// CheckWarn means the value crossed the warning threshold.
	CheckWarn CheckStatus = "warn"
	// CheckFail means the value crossed the failure threshold.
	CheckFail CheckStatus = "fail"
)

// HealthState is the aggregated engine status.
type HealthState string

const (
	// HealthHealthy indicates all checks pass and the score is high.
	HealthHealthy HealthState = "healthy"
	// HealthWarning indicates at least one warning or a reduced score.
	HealthWarning HealthState = "warning"
	// HealthCritical indicates at least one failing check or a low score.
	HealthCritical HealthState = "critical"
)

// HealthCheck is one evaluated signal with its measured value and the
// threshold it was judged against.
type HealthCheck struct {
	Name      string      `json:"name"`
	Status    CheckStatus `json:"status"`
	Value     float64     `json:"value"`
	Threshold float64     `json:"threshold"`
	Impact    string      `json:"impact"` // "high", "medium", "low"
}

// HealthReport is the structured result of one evaluation pass.
type HealthReport struct {
	Status          HealthState   `json:"status"`
	Score           float64       `json:"score"`
	Checks          []HealthCheck `json:"checks"`
	Recommendations []string      `json:"recommendations,omitempty"`
	Timestamp       time.Time     `json:"timestamp"`
}

// Health check names.
const (
	CheckQueueDepth     = "queue_depth"
	CheckProcessingRate = "processing_rate"
	CheckWorkerHealth   = "worker_health"
	CheckMemory         = "memory_utilization"
	CheckErrorRate      = "error_rate"
	CheckEmitterImpact  = "emitter_impact"
)

// recommendations maps check name and status to operator guidance.
var recommendations = map[string]map[CheckStatus]string{
	CheckQueueDepth: {
		CheckWarn: "queue depth above 70%: scale up workers or reduce input rate",
		CheckFail: "queue depth above 90%: admission rejections imminent, scale up workers now",
	},
	CheckProcessingRate: {
		CheckWarn: "processing rate below target: check handler latency and worker count",
		CheckFail: "processing rate critically low: handlers may be stalled, inspect worker activity",
	},
	CheckWorkerHealth: {
		CheckWarn: "errored worker present: inspect worker logs for fault causes",
		CheckFail: "majority of workers errored: the pool is degraded, check for poison events",
	},
	CheckMemory: {
		CheckWarn: "queue memory above 75% of the soft cap: consider raising max_memory_bytes",
		CheckFail: "queue memory above 90% of the soft cap: reduce max_event_size or queue size",
	},
	CheckErrorRate: {
		CheckWarn: "error rate above 5%: inspect the dead-letter queue for failure patterns",
		CheckFail: "error rate above 10%: handlers are failing persistently, check downstream dependencies",
	},
	CheckEmitterImpact: {
		CheckWarn: "fallback-sync share above target: callers are absorbing handler latency",
		CheckFail: "fallback-sync share far above target: queue admission is failing routinely",
	},
}

// checkWeight maps impact tags to score weights.
func checkWeight(impact string) float64 {
	switch impact {
	case "high":
		return 3
	case "medium":
		return 2
	default:
		return 1
	}
}

func checkScore(status CheckStatus) float64 {
	switch status {
	case CheckPass:
		return 100
	case CheckWarn:
		return 60
	default:
		return 0
	}
}

// HealthEvaluator derives a structured status from a metrics snapshot.
type HealthEvaluator struct {
	cfg Config
}

// NewHealthEvaluator creates an evaluator with the engine thresholds.
func NewHealthEvaluator(cfg Config) *HealthEvaluator {
	return &HealthEvaluator{cfg: cfg}
}

// Evaluate runs the full check set against the snapshot.
func (e *HealthEvaluator) Evaluate(snap MetricsSnapshot) HealthReport {
	checks := []HealthCheck{
		e.queueDepth(snap),
		e.processingRate(snap),
		e.workerHealth(snap),
		e.memory(snap),
		e.errorRate(snap),
		e.emitterImpact(snap),
	}

	var weightedSum, weightTotal float64
	anyWarn, anyFail := false, false
	var recs []string

	for _, c := range checks {
		w := checkWeight(c.Impact)
		weightedSum += checkScore(c.Status) * w
		weightTotal += w

		switch c.Status {
		case CheckWarn:
			anyWarn = true
		case CheckFail:
			anyFail = true
		}
		if c.Status != CheckPass {
			if rec, ok := recommendations[c.Name][c.Status]; ok {
				recs = append(recs, rec)
			}
		}
	}

	score := weightedSum / weightTotal

	status := HealthHealthy
	switch {
	case anyFail || score < 50:
		status = HealthCritical
	case anyWarn || score < 80:
		status = HealthWarning
	}

	metrics.UpdateHealth(score, string(status))

	return HealthReport{
		Status:          status,
		Score:           score,
		Checks:          checks,
		Recommendations: recs,
		Timestamp:       time.Now(),
	}
}

// judge grades a higher-is-worse value against warn/fail thresholds.
func judge(value, warnAt, failAt float64) CheckStatus {
	switch {
	case value >= failAt:
		return CheckFail
	case value >= warnAt:
		return CheckWarn
	}
	return CheckPass
}

func (e *HealthEvaluator) queueDepth(snap MetricsSnapshot) HealthCheck {
	return HealthCheck{
		Name:      CheckQueueDepth,
		Status:    judge(snap.QueueUtilization, 70, 90),
		Value:     snap.QueueUtilization,
		Threshold: 70,
		Impact:    "high",
	}
}

func (e *HealthEvaluator) processingRate(snap MetricsSnapshot) HealthCheck {
	check := HealthCheck{
		Name:      CheckProcessingRate,
		Status:    CheckPass,
		Value:     snap.ProcessingRate,
		Threshold: e.cfg.MinProcessingRate,
		Impact:    "high",
	}
	if e.cfg.MinProcessingRate <= 0 {
		return check
	}
	switch {
	case snap.ProcessingRate < e.cfg.MinProcessingRate/2:
		check.Status = CheckFail
	case snap.ProcessingRate < e.cfg.MinProcessingRate:
		check.Status = CheckWarn
	}
	return check
}

func (e *HealthEvaluator) workerHealth(snap MetricsSnapshot) HealthCheck {
	errored := 0
	for _, w := range snap.Workers {
		if w.State == WorkerErrored {
			errored++
		}
	}
	check := HealthCheck{
		Name:      CheckWorkerHealth,
		Status:    CheckPass,
		Value:     float64(errored),
		Threshold: 0,
		Impact:    "high",
	}
	total := len(snap.Workers)
	switch {
	case total > 0 && float64(errored) > float64(total)*0.5:
		check.Status = CheckFail
	case errored > 0:
		check.Status = CheckWarn
	}
	return check
}

func (e *HealthEvaluator) memory(snap MetricsSnapshot) HealthCheck {
	// Approximate: queue occupancy times slot size over the soft cap.
	used := float64(snap.QueueSize) * float64(e.cfg.MaxEventSize)
	percent := used / float64(e.cfg.MaxMemoryBytes) * 100
	return HealthCheck{
		Name:      CheckMemory,
		Status:    judge(percent, 75, 90),
		Value:     percent,
		Threshold: 75,
		Impact:    "medium",
	}
}

func (e *HealthEvaluator) errorRate(snap MetricsSnapshot) HealthCheck {
	return HealthCheck{
		Name:      CheckErrorRate,
		Status:    judge(snap.ErrorRate, 5, 10),
		Value:     snap.ErrorRate,
		Threshold: 5,
		Impact:    "medium",
	}
}

func (e *HealthEvaluator) emitterImpact(snap MetricsSnapshot) HealthCheck {
	check := HealthCheck{
		Name:      CheckEmitterImpact,
		Status:    CheckPass,
		Value:     snap.EmitterImpact,
		Threshold: e.cfg.EmitterImpactTarget,
		Impact:    "low",
	}
	if e.cfg.EmitterImpactTarget <= 0 {
		return check
	}
	check.Status = judge(snap.EmitterImpact, e.cfg.EmitterImpactTarget, e.cfg.EmitterImpactTarget*2)
	return check
}
