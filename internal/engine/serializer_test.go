// Eventcore - High-Throughput In-Process Event Processing Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventcore

package engine

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

// TestSerializer_RoundTrip tests that events survive encode/decode
// unchanged.
func TestSerializer_RoundTrip(t *testing.T) {
	t.Parallel()

	s := NewSerializer(4096)

	event := NewEvent("user.signup", json.RawMessage(`{"user_id":42,"plan":"pro"}`))
	event.Priority = PriorityCritical
	event.CorrelationID = "req-7731"
	event.Attempt = 2

	data, err := s.Marshal(event)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	got, err := s.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if got.EventID != event.EventID {
		t.Errorf("EventID = %s, want %s", got.EventID, event.EventID)
	}
	if got.Type != event.Type {
		t.Errorf("Type = %s, want %s", got.Type, event.Type)
	}
	if got.Priority != PriorityCritical {
		t.Errorf("Priority = %s, want critical", got.Priority)
	}
	if got.CorrelationID != "req-7731" {
		t.Errorf("CorrelationID = %s, want req-7731", got.CorrelationID)
	}
	if got.Attempt != 2 {
		t.Errorf("Attempt = %d, want 2", got.Attempt)
	}
	if !got.Retryable {
		t.Error("Retryable = false, want true")
	}
	if !bytes.Equal(got.Payload, event.Payload) {
		t.Errorf("Payload = %s, want %s", got.Payload, event.Payload)
	}

	// Re-encoding the decoded event reproduces the original bytes.
	again, err := s.Marshal(got)
	if err != nil {
		t.Fatalf("Marshal() second pass error = %v", err)
	}
	if !bytes.Equal(again, data) {
		t.Error("serialize(deserialize(b)) != b")
	}
}

// TestSerializer_SizeBoundary tests the MaxEventSize admission edge:
// exactly at the limit is accepted, one byte over is rejected.
func TestSerializer_SizeBoundary(t *testing.T) {
	t.Parallel()

	event := NewEvent("t.sized", nil)
	probe, err := NewSerializer(1 << 20).Marshal(event)
	if err != nil {
		t.Fatal(err)
	}

	// A serializer sized exactly to the event accepts it.
	if _, err := NewSerializer(len(probe)).Marshal(event); err != nil {
		t.Errorf("Marshal() at exact limit error = %v", err)
	}

	// One byte smaller rejects with ErrEventTooLarge.
	_, err = NewSerializer(len(probe) - 1).Marshal(event)
	if !errors.Is(err, ErrEventTooLarge) {
		t.Errorf("Marshal() error = %v, want ErrEventTooLarge", err)
	}
}

// TestSerializer_UnmarshalRejections tests decode failure modes.
func TestSerializer_UnmarshalRejections(t *testing.T) {
	t.Parallel()

	s := NewSerializer(128)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty buffer", data: nil},
		{name: "oversize buffer", data: bytes.Repeat([]byte{'x'}, 129)},
		{name: "truncated json", data: []byte(`{"event_id":"abc","type":"t.x"`)},
		{name: "not json", data: []byte("plainly not json")},
		{name: "missing type", data: []byte(`{"event_id":"abc"}`)},
		{name: "unknown priority", data: []byte(`{"event_id":"abc","type":"t.x","priority":"urgent"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Unmarshal(tt.data)
			if !errors.Is(err, ErrMalformedEvent) {
				t.Errorf("Unmarshal() error = %v, want ErrMalformedEvent", err)
			}
		})
	}
}

// TestEvent_Validate tests field validation.
func TestEvent_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mutate    func(*Event)
		wantField string
	}{
		{name: "valid", mutate: func(*Event) {}, wantField: ""},
		{name: "missing id", mutate: func(e *Event) { e.EventID = "" }, wantField: "event_id"},
		{name: "missing type", mutate: func(e *Event) { e.Type = "" }, wantField: "type"},
		{name: "bad priority", mutate: func(e *Event) { e.Priority = "urgent" }, wantField: "priority"},
		{name: "negative attempt", mutate: func(e *Event) { e.Attempt = -1 }, wantField: "attempt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := NewEvent("t.ok", nil)
			tt.mutate(event)
			err := event.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if vErr.Field != tt.wantField {
				t.Errorf("Field = %s, want %s", vErr.Field, tt.wantField)
			}
		})
	}
}

// TestPriority_Rank tests the drain order of the priority classes.
func TestPriority_Rank(t *testing.T) {
	t.Parallel()

	if PriorityCritical.Rank() >= PriorityNormal.Rank() {
		t.Error("critical must rank before normal")
	}
	if PriorityNormal.Rank() >= PriorityLow.Rank() {
		t.Error("normal must rank before low")
	}
	if !strings.EqualFold(string(PriorityNormal), "normal") {
		t.Error("unexpected normal label")
	}
	if Priority("urgent").Valid() {
		t.Error("unknown label reported valid")
	}
}
