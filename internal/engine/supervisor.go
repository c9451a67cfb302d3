// Eventcore - High-Throughput In-Process Event Processing Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventcore

package engine

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/eventcore/internal/logging"
	"github.com/tomtom215/eventcore/internal/metrics"
)

// probeInterval is how often the supervisor inspects worker state.
const probeInterval = time.Second

// restartBackoffWindow resets a worker's restart backoff once it has run
// cleanly this long.
const restartBackoffWindow = time.Minute

// maxBackoffShift caps the exponential restart backoff at base << 6.
const maxBackoffShift = 6

// PoolSupervisor observes worker health on a timer, restarting workers
// that faulted, exceeded their error threshold, or stopped responding
// while work is pending. Restart rate is capped globally and backed off
// exponentially per worker lineage: the pool carries the restart count
// onto each replacement, so a crash-looping worker waits longer each
// time.
//
// Implements suture.Service so it slots into the application supervision
// tree.
type PoolSupervisor struct {
	cfg   Config
	pool  *Pool
	queue *PriorityQueue

	limiter *rate.Limiter
}

// NewPoolSupervisor creates a supervisor for the pool.
func NewPoolSupervisor(cfg Config, pool *Pool, queue *PriorityQueue) *PoolSupervisor {
	return &PoolSupervisor{
		cfg:   cfg,
		pool:  pool,
		queue: queue,
		// One restart per base delay on average, with burst headroom for
		// a full pool faulting at once.
		limiter: rate.NewLimiter(rate.Every(cfg.WorkerRestartDelay), cfg.WorkerCount),
	}
}

// Serve runs the probe loop until the context is canceled.
func (s *PoolSupervisor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Probe(time.Now())
		}
	}
}

// Probe inspects every worker once and restarts the unhealthy ones.
func (s *PoolSupervisor) Probe(now time.Time) {
	workPending := !s.queue.IsEmpty()

	for _, st := range s.pool.Statuses() {
		reason := s.restartReason(st, now, workPending)
		if reason == "" {
			continue
		}
		if !s.backoffElapsed(st, now) {
			continue
		}
		if !s.limiter.Allow() {
			metrics.RecordWorkerRestart(false)
			logging.Error().
				Int("worker_id", st.ID).
				Str("reason", reason).
				Msg("worker_restart_failed: restart budget exhausted")
			continue
		}
		if s.pool.Restart(st.ID) {
			metrics.RecordWorkerRestart(true)
			logging.Warn().
				Int("worker_id", st.ID).
				Str("reason", reason).
				Int("restarts", st.Restarts+1).
				Msg("worker restarted by supervisor")
		}
	}
}

// restartReason decides whether the worker needs replacement.
func (s *PoolSupervisor) restartReason(st WorkerStatus, now time.Time, workPending bool) string {
	switch {
	case st.State == WorkerErrored:
		return "fault"
	case st.ErrorCount > s.cfg.WorkerRestartThreshold:
		return "error_threshold"
	case workPending && st.State != WorkerDraining && now.Sub(st.LastActivityAt) > s.cfg.IdleTimeout:
		return "unresponsive"
	}
	return ""
}

// backoffElapsed applies the exponential per-lineage restart backoff:
// base delay doubled per prior restart, reset after a clean window.
func (s *PoolSupervisor) backoffElapsed(st WorkerStatus, now time.Time) bool {
	if st.Restarts == 0 {
		return true
	}
	if now.Sub(st.StartedAt) > restartBackoffWindow {
		return true
	}
	shift := st.Restarts
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	return now.Sub(st.StartedAt) >= s.cfg.WorkerRestartDelay<<shift
}
