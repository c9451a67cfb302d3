// Eventcore - High-Throughput In-Process Event Processing Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventcore

package engine

import "fmt"

// PriorityQueue holds one shared ring per priority class and drains them
// in strict priority order: consumers observe critical events before
// normal events present at emission time, and normal before low.
//
// Each class owns a full ring of MaxQueueSize slots; admission is
// rejected per class, so a flood of low-priority events cannot starve
// critical admission.
type PriorityQueue struct {
	classes [3]*SharedQueue
}

// NewPriorityQueue creates the three class rings, each with the given
// capacity and slot size.
func NewPriorityQueue(capacityPerClass, slotSize int) (*PriorityQueue, error) {
	pq := &PriorityQueue{}
	for i := range pq.classes {
		q, err := NewSharedQueue(capacityPerClass, slotSize)
		if err != nil {
			return nil, fmt.Errorf("create %s queue: %w", Priorities[i], err)
		}
		pq.classes[i] = q
	}
	return pq, nil
}

// TryEnqueue admits the serialized event into its priority class ring.
func (pq *PriorityQueue) TryEnqueue(p Priority, data []byte) bool {
	return pq.classes[p.Rank()].TryEnqueue(data)
}

// TryDequeue returns the next event in strict priority order, falling
// back to lower classes only when higher classes are empty.
func (pq *PriorityQueue) TryDequeue() ([]byte, bool) {
	for _, q := range pq.classes {
		if data, ok := q.TryDequeue(); ok {
			return data, true
		}
	}
	return nil, false
}

// Class returns the ring for a priority class.
func (pq *PriorityQueue) Class(p Priority) *SharedQueue {
	return pq.classes[p.Rank()]
}

// Size returns total occupancy across all classes.
func (pq *PriorityQueue) Size() int {
	total := 0
	for _, q := range pq.classes {
		total += q.Size()
	}
	return total
}

// Capacity returns total slot count across all classes.
func (pq *PriorityQueue) Capacity() int {
	total := 0
	for _, q := range pq.classes {
		total += q.Capacity()
	}
	return total
}

// IsEmpty reports whether all classes are empty.
func (pq *PriorityQueue) IsEmpty() bool {
	return pq.Size() == 0
}

// Utilization returns total occupancy over total capacity as a percentage.
func (pq *PriorityQueue) Utilization() float64 {
	return float64(pq.Size()) / float64(pq.Capacity()) * 100
}

// InvalidSlots returns corrupted-slot drops summed across classes.
func (pq *PriorityQueue) InvalidSlots() uint64 {
	var total uint64
	for _, q := range pq.classes {
		total += q.InvalidSlots()
	}
	return total
}
