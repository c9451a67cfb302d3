// Eventcore - High-Throughput In-Process Event Processing Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventcore

package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/eventcore/internal/logging"
	"github.com/tomtom215/eventcore/internal/metrics"
)

// maxWorkers bounds the pool size, matching the worker_count constraint.
const maxWorkers = 20

// Pool owns the set of worker executors. The supervisor restarts and
// scales workers through it; the engine drives drain and shutdown.
type Pool struct {
	cfg Config

	queue      *PriorityQueue
	registry   *Registry
	retry      *RetryEngine
	serializer *Serializer
	collector  *Collector

	mu      sync.Mutex
	workers map[int]*worker
	nextID  int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a pool bound to the queue and dispatch dependencies.
// Workers are not started until Start.
func NewPool(cfg Config, queue *PriorityQueue, registry *Registry, retry *RetryEngine, serializer *Serializer, collector *Collector) *Pool {
	return &Pool{
		cfg:        cfg,
		queue:      queue,
		registry:   registry,
		retry:      retry,
		serializer: serializer,
		collector:  collector,
		workers:    make(map[int]*worker),
	}
}

// Start spawns the initial worker set.
func (p *Pool) Start(ctx context.Context, count int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < count; i++ {
		p.spawnLocked(0)
	}
	p.updateGaugesLocked()
}

// spawnLocked creates and launches one worker. Must hold p.mu.
func (p *Pool) spawnLocked(restarts int) *worker {
	id := p.nextID
	p.nextID++

	w := newWorker(id, restarts, p.queue, p.registry, p.retry, p.serializer, p.collector)
	p.workers[id] = w

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		w.run(p.ctx)
	}()
	return w
}

// Restart replaces the worker with a fresh one carrying an incremented
// restart count. The old worker is force-stopped.
func (p *Pool) Restart(id int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	old, ok := p.workers[id]
	if !ok {
		return false
	}
	old.halt()
	delete(p.workers, id)

	w := p.spawnLocked(old.restarts + 1)
	p.updateGaugesLocked()
	logging.Info().
		Int("old_worker_id", id).
		Int("worker_id", w.id).
		Int("restarts", w.restarts).
		Msg("worker restarted")
	return true
}

// ScaleTo adjusts the pool to the target worker count. Scaling up spawns
// immediately; scaling down drains the highest-id workers and resolves
// when they stop or the graceful timeout elapses.
func (p *Pool) ScaleTo(ctx context.Context, target int) error {
	if target < 1 || target > maxWorkers {
		return fmt.Errorf("%w: worker_count %d outside [1, %d]", ErrInvalidConfig, target, maxWorkers)
	}

	p.mu.Lock()
	current := len(p.workers)

	if target >= current {
		for i := current; i < target; i++ {
			p.spawnLocked(0)
		}
		p.updateGaugesLocked()
		p.mu.Unlock()
		return nil
	}

	// Retire the highest-id workers first, keeping worker 0 as the
	// long-lived reference. Retired workers finish their current
	// invocation and leave queued work to the survivors.
	ids := p.idsLocked()
	excess := ids[target:]
	victims := make([]*worker, 0, len(excess))
	for _, id := range excess {
		w := p.workers[id]
		w.retire()
		victims = append(victims, w)
	}
	p.mu.Unlock()

	deadline := time.NewTimer(p.cfg.GracefulShutdownTimeout)
	defer deadline.Stop()

	for _, w := range victims {
		select {
		case <-w.done:
		case <-deadline.C:
			w.halt()
		case <-ctx.Done():
			w.halt()
		}
	}

	p.mu.Lock()
	for _, w := range victims {
		delete(p.workers, w.id)
	}
	p.updateGaugesLocked()
	p.mu.Unlock()
	return nil
}

// Drain tells every worker to exit once the queue is empty. Admission
// must already be stopped by the caller.
func (p *Pool) Drain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.workers {
		w.beginDrain()
	}
}

// AwaitStopped blocks until every worker goroutine has exited or the
// timeout elapses. Returns true when fully stopped in time.
func (p *Pool) AwaitStopped(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Stop force-stops all workers by canceling the pool context.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
	for _, w := range p.workers {
		w.halt()
	}
}

// Statuses returns per-worker status entries ordered by worker ID.
func (p *Pool) Statuses() []WorkerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]WorkerStatus, 0, len(p.workers))
	for _, id := range p.idsLocked() {
		statuses = append(statuses, p.workers[id].Status())
	}
	return statuses
}

// WorkerCount returns the current pool size.
func (p *Pool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// idsLocked returns worker IDs in ascending order. Must hold p.mu.
func (p *Pool) idsLocked() []int {
	ids := make([]int, 0, len(p.workers))
	for id := range p.workers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// updateGaugesLocked refreshes worker gauges. Must hold p.mu.
func (p *Pool) updateGaugesLocked() {
	errored := 0
	for _, w := range p.workers {
		if w.state.Load() == stateErrored {
			errored++
		}
	}
	metrics.UpdateWorkerGauges(len(p.workers), errored)
}
