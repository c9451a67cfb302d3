// Eventcore - High-Throughput In-Process Event Processing Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventcore

package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// TestDeadLetterQueue_Add tests record creation.
func TestDeadLetterQueue_Add(t *testing.T) {
	t.Parallel()

	dlq := NewDeadLetterQueue(10, nil)

	event := NewEvent("t.doomed", nil)
	event.Attempt = 2

	if !dlq.Add(context.Background(), event, errors.New("database connection failed")) {
		t.Fatal("Add() rejected below capacity")
	}

	entries := dlq.Entries()
	if len(entries) != 1 {
		t.Fatalf("Entries() len = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Event.EventID != event.EventID {
		t.Errorf("EventID = %s, want %s", entry.Event.EventID, event.EventID)
	}
	if entry.LastError != "database connection failed" {
		t.Errorf("LastError = %q", entry.LastError)
	}
	if entry.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", entry.Attempts)
	}
	if entry.FirstSeenAt.IsZero() {
		t.Error("FirstSeenAt should be set")
	}
}

// TestDeadLetterQueue_DropNewestWhenFull tests the bounded overflow
// policy: the oldest failures are preserved, new arrivals are dropped.
func TestDeadLetterQueue_DropNewestWhenFull(t *testing.T) {
	t.Parallel()

	dlq := NewDeadLetterQueue(2, nil)
	cause := errors.New("x")

	first := NewEvent("t.first", nil)
	second := NewEvent("t.second", nil)
	third := NewEvent("t.third", nil)

	if !dlq.Add(context.Background(), first, cause) {
		t.Fatal("first Add rejected")
	}
	if !dlq.Add(context.Background(), second, cause) {
		t.Fatal("second Add rejected")
	}
	if dlq.Add(context.Background(), third, cause) {
		t.Fatal("third Add accepted above capacity")
	}

	entries := dlq.Entries()
	if len(entries) != 2 {
		t.Fatalf("Entries() len = %d, want 2", len(entries))
	}
	if entries[0].Event.Type != "t.first" || entries[1].Event.Type != "t.second" {
		t.Error("oldest entries were not preserved")
	}
	if dlq.TotalDropped() != 1 {
		t.Errorf("TotalDropped() = %d, want 1", dlq.TotalDropped())
	}
	if dlq.TotalAdded() != 2 {
		t.Errorf("TotalAdded() = %d, want 2", dlq.TotalAdded())
	}
}

// TestDeadLetterQueue_SinkForwarding tests that accepted records reach
// the configured sink.
func TestDeadLetterQueue_SinkForwarding(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var stored []*DeadLetterRecord
	sink := DLQSinkFunc(func(_ context.Context, record *DeadLetterRecord) error {
		mu.Lock()
		stored = append(stored, record)
		mu.Unlock()
		return nil
	})

	dlq := NewDeadLetterQueue(10, sink)
	event := NewEvent("t.persisted", nil)
	dlq.Add(context.Background(), event, errors.New("x"))

	mu.Lock()
	defer mu.Unlock()
	if len(stored) != 1 {
		t.Fatalf("sink received %d records, want 1", len(stored))
	}
	if stored[0].Event.EventID != event.EventID {
		t.Error("sink received the wrong record")
	}
}

// TestDeadLetterQueue_SinkFailureIsolated tests that a failing sink does
// not reject the in-memory record or panic the caller.
func TestDeadLetterQueue_SinkFailureIsolated(t *testing.T) {
	t.Parallel()

	sink := DLQSinkFunc(func(context.Context, *DeadLetterRecord) error {
		return errors.New("sink down")
	})
	dlq := NewDeadLetterQueue(10, sink)

	// Repeated failures trip the breaker; Add keeps succeeding.
	for i := 0; i < 10; i++ {
		if !dlq.Add(context.Background(), NewEvent("t.x", nil), errors.New("cause")) {
			t.Fatalf("Add(%d) rejected", i)
		}
	}
	if dlq.Len() != 10 {
		t.Errorf("Len() = %d, want 10", dlq.Len())
	}
}

// TestDeadLetterQueue_EntriesIsCopy tests that the accessor returns a
// snapshot, not the internal slice.
func TestDeadLetterQueue_EntriesIsCopy(t *testing.T) {
	t.Parallel()

	dlq := NewDeadLetterQueue(10, nil)
	dlq.Add(context.Background(), NewEvent("t.a", nil), errors.New("x"))

	entries := dlq.Entries()
	entries[0] = nil

	if dlq.Entries()[0] == nil {
		t.Error("Entries() exposed internal storage")
	}
}
