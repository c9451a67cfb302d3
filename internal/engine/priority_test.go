// Eventcore - High-Throughput In-Process Event Processing Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventcore

package engine

import (
	"fmt"
	"testing"
)

// TestPriorityQueue_StrictOrder tests that critical events present at
// emission time are observed before normal, and normal before low.
func TestPriorityQueue_StrictOrder(t *testing.T) {
	t.Parallel()

	pq, err := NewPriorityQueue(100, 64)
	if err != nil {
		t.Fatal(err)
	}

	// Emission order deliberately inverts priority order.
	pq.TryEnqueue(PriorityLow, []byte("L1"))
	pq.TryEnqueue(PriorityNormal, []byte("N1"))
	pq.TryEnqueue(PriorityNormal, []byte("N2"))
	pq.TryEnqueue(PriorityCritical, []byte("C1"))
	pq.TryEnqueue(PriorityLow, []byte("L2"))
	pq.TryEnqueue(PriorityCritical, []byte("C2"))

	want := []string{"C1", "C2", "N1", "N2", "L1", "L2"}
	for i, w := range want {
		data, ok := pq.TryDequeue()
		if !ok {
			t.Fatalf("TryDequeue() empty at %d", i)
		}
		if string(data) != w {
			t.Errorf("dequeue %d = %q, want %q", i, data, w)
		}
	}
	if !pq.IsEmpty() {
		t.Error("queue should be empty")
	}
}

// TestPriorityQueue_PerClassCapacity tests that admission is rejected
// per class, so one class cannot starve another.
func TestPriorityQueue_PerClassCapacity(t *testing.T) {
	t.Parallel()

	pq, err := NewPriorityQueue(100, 32)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 100; i++ {
		if !pq.TryEnqueue(PriorityLow, []byte(fmt.Sprintf("l%d", i))) {
			t.Fatalf("low enqueue %d rejected below capacity", i)
		}
	}
	if pq.TryEnqueue(PriorityLow, []byte("overflow")) {
		t.Error("low class accepted above capacity")
	}

	// The critical class still has room.
	if !pq.TryEnqueue(PriorityCritical, []byte("c0")) {
		t.Error("critical class rejected while empty")
	}

	if pq.Size() != 101 {
		t.Errorf("Size() = %d, want 101", pq.Size())
	}
	if pq.Capacity() != 300 {
		t.Errorf("Capacity() = %d, want 300", pq.Capacity())
	}
}

// TestPriorityQueue_FallbackDrain tests that lower classes drain only
// when higher classes are empty.
func TestPriorityQueue_FallbackDrain(t *testing.T) {
	t.Parallel()

	pq, err := NewPriorityQueue(100, 32)
	if err != nil {
		t.Fatal(err)
	}

	pq.TryEnqueue(PriorityLow, []byte("low"))

	data, ok := pq.TryDequeue()
	if !ok || string(data) != "low" {
		t.Fatalf("TryDequeue() = %q, %v; want low event", data, ok)
	}

	// New critical arrival preempts a waiting normal event.
	pq.TryEnqueue(PriorityNormal, []byte("normal"))
	pq.TryEnqueue(PriorityCritical, []byte("critical"))
	data, _ = pq.TryDequeue()
	if string(data) != "critical" {
		t.Errorf("TryDequeue() = %q, want critical", data)
	}
}
