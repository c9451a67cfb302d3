// Eventcore - High-Throughput In-Process Event Processing Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventcore

package engine

import (
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/tomtom215/eventcore/internal/metrics"
)

// dequeueSpinLimit bounds how long a consumer waits for a producer that
// has reserved a slot but not yet published its length header. Past the
// limit the slot is treated as corrupted.
const dequeueSpinLimit = 4096

// SharedQueue is a fixed-capacity multi-producer / multi-consumer ring of
// fixed-size event slots coordinated by atomic indices and a count.
//
// Slot protocol: producers reserve occupancy via a CAS on count, claim a
// slot from the monotonic write index, write the payload, then publish
// the slot by storing its length header. Consumers reserve via a CAS
// decrement on count, claim a slot from the read index, copy the payload
// out, then release the slot by clearing the header. The length header is
// the per-slot ready flag; 0 means empty.
//
// A consumer that observes a zero or oversize header after the bounded
// grace treats the slot as corrupted: the event is dropped, recorded as
// an invalid slot, and the consumer moves on to the next occupied slot.
type SharedQueue struct {
	capacity int
	slotSize int
	storage  []byte
	lens     []atomic.Uint32

	writeIdx atomic.Uint64
	readIdx  atomic.Uint64
	count    atomic.Int64

	invalidSlots atomic.Uint64
}

// NewSharedQueue creates a queue with the given slot count and slot size
// in bytes.
func NewSharedQueue(capacity, slotSize int) (*SharedQueue, error) {
	if capacity <= 0 {
		return nil, errors.New("queue capacity must be positive")
	}
	if slotSize <= 0 {
		return nil, errors.New("slot size must be positive")
	}
	return &SharedQueue{
		capacity: capacity,
		slotSize: slotSize,
		storage:  make([]byte, capacity*slotSize),
		lens:     make([]atomic.Uint32, capacity),
	}, nil
}

// TryEnqueue admits the serialized event into the queue. Returns false
// when the queue is at capacity or the payload does not fit a slot.
// Never blocks beyond bounded atomic operations.
func (q *SharedQueue) TryEnqueue(data []byte) bool {
	if len(data) == 0 || len(data) > q.slotSize {
		return false
	}

	for {
		c := q.count.Load()
		if c >= int64(q.capacity) {
			return false
		}
		if q.count.CompareAndSwap(c, c+1) {
			break
		}
	}

	slot := int((q.writeIdx.Add(1) - 1) % uint64(q.capacity))

	// A non-zero header here means the slot's previous consumer is still
	// copying out. Its count reservation guarantees it is active, so the
	// wait is bounded by one copy.
	for q.lens[slot].Load() != 0 {
		runtime.Gosched()
	}

	copy(q.storage[slot*q.slotSize:], data)
	q.lens[slot].Store(uint32(len(data)))
	return true
}

// TryDequeue returns the next serialized event, or false when the queue
// is empty. Corrupted slots are skipped and counted.
func (q *SharedQueue) TryDequeue() ([]byte, bool) {
	for {
		for {
			c := q.count.Load()
			if c <= 0 {
				return nil, false
			}
			if q.count.CompareAndSwap(c, c-1) {
				break
			}
		}

		slot := int((q.readIdx.Add(1) - 1) % uint64(q.capacity))

		// Bounded grace for a producer that reserved this slot but has
		// not yet published the header.
		n := q.lens[slot].Load()
		for spins := 0; n == 0 && spins < dequeueSpinLimit; spins++ {
			runtime.Gosched()
			n = q.lens[slot].Load()
		}

		if n == 0 || int(n) > q.slotSize {
			q.lens[slot].Store(0)
			q.invalidSlots.Add(1)
			metrics.RecordInvalidSlot()
			continue
		}

		out := make([]byte, n)
		start := slot * q.slotSize
		copy(out, q.storage[start:start+int(n)])
		q.lens[slot].Store(0)
		return out, true
	}
}

// Size returns the current occupancy. Eventually consistent under
// concurrent mutation.
func (q *SharedQueue) Size() int {
	c := q.count.Load()
	if c < 0 {
		return 0
	}
	return int(c)
}

// Capacity returns the slot count.
func (q *SharedQueue) Capacity() int {
	return q.capacity
}

// SlotSize returns the per-slot byte capacity.
func (q *SharedQueue) SlotSize() int {
	return q.slotSize
}

// IsFull reports whether the queue is at capacity.
func (q *SharedQueue) IsFull() bool {
	return q.Size() >= q.capacity
}

// IsEmpty reports whether the queue holds no events.
func (q *SharedQueue) IsEmpty() bool {
	return q.Size() == 0
}

// Utilization returns occupancy over capacity as a percentage.
func (q *SharedQueue) Utilization() float64 {
	return float64(q.Size()) / float64(q.capacity) * 100
}

// InvalidSlots returns the number of corrupted slots skipped so far.
func (q *SharedQueue) InvalidSlots() uint64 {
	return q.invalidSlots.Load()
}
