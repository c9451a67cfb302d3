// Eventcore - High-Throughput In-Process Event Processing Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventcore

package dlqstore

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/eventcore/internal/engine"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return store
}

func record(eventType string) *engine.DeadLetterRecord {
	event := engine.NewEvent(eventType, nil)
	event.Attempt = 2
	return &engine.DeadLetterRecord{
		Event:       event,
		FirstSeenAt: time.Now().UTC(),
		LastError:   "downstream unavailable",
		Attempts:    3,
	}
}

// TestStore_RoundTrip tests persistence and retrieval of dead-letter
// records.
func TestStore_RoundTrip(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	rec := record("t.persisted")

	if err := store.Store(context.Background(), rec); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	records, err := store.List(10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("List() len = %d, want 1", len(records))
	}

	got := records[0]
	if got.Event.EventID != rec.Event.EventID {
		t.Errorf("EventID = %s, want %s", got.Event.EventID, rec.Event.EventID)
	}
	if got.LastError != "downstream unavailable" {
		t.Errorf("LastError = %q", got.LastError)
	}
	if got.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", got.Attempts)
	}
}

// TestStore_ListLimit tests the retrieval bound.
func TestStore_ListLimit(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	for i := 0; i < 5; i++ {
		if err := store.Store(context.Background(), record("t.many")); err != nil {
			t.Fatal(err)
		}
	}

	records, err := store.List(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Errorf("List(3) len = %d, want 3", len(records))
	}
}

// TestStore_RepeatedDeadLetterPreserved tests that re-dead-lettering one
// logical event keeps both records.
func TestStore_RepeatedDeadLetterPreserved(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	rec := record("t.repeat")

	if err := store.Store(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	rec2 := *rec
	rec2.FirstSeenAt = rec.FirstSeenAt.Add(time.Second)
	if err := store.Store(context.Background(), &rec2); err != nil {
		t.Fatal(err)
	}

	records, err := store.List(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Errorf("List() len = %d, want 2", len(records))
	}
}
