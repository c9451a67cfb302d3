// Eventcore - High-Throughput In-Process Event Processing Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventcore

package engine

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Priority labels the urgency class of an event. Higher priority events
// are observed by workers before lower priority events present at
// emission time.
type Priority string

const (
	// PriorityCritical is observed before all other classes.
	PriorityCritical Priority = "critical"
	// PriorityNormal is the default class.
	PriorityNormal Priority = "normal"
	// PriorityLow is observed only when higher classes are empty.
	PriorityLow Priority = "low"
)

// Priorities lists all classes in strict drain order.
var Priorities = [3]Priority{PriorityCritical, PriorityNormal, PriorityLow}

// Rank returns the drain position of the class: critical 0, normal 1, low 2.
// Unknown labels rank as low.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityNormal:
		return 1
	default:
		return 2
	}
}

// Valid reports whether the label is a known priority class.
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// Event is the unit of work flowing through the engine. The payload is
// opaque to the core; handlers decode it themselves.
type Event struct {
	// EventID uniquely identifies the logical event across retries.
	EventID string `json:"event_id"`

	// Type selects the handler. Required.
	Type string `json:"type"`

	// Priority biases observation order. Defaults to normal.
	Priority Priority `json:"priority"`

	// Timestamp is the emission time, used to derive queue wait.
	Timestamp time.Time `json:"timestamp"`

	// Attempt starts at 0 and increases only by retry.
	Attempt int `json:"attempt,omitempty"`

	// CorrelationID is an opaque caller-supplied identifier preserved
	// across retries.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Retryable controls whether handler failures are retried. Events
	// emitted with Retryable false escalate to the DLQ on first failure.
	Retryable bool `json:"retryable"`

	// Payload is the opaque structured value delivered to the handler.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent creates an event with a unique ID, the given type, and the
// current UTC timestamp. The event defaults to normal priority and
// retryable failures.
func NewEvent(eventType string, payload json.RawMessage) *Event {
	return &Event{
		EventID:   uuid.New().String(),
		Type:      eventType,
		Priority:  PriorityNormal,
		Timestamp: time.Now().UTC(),
		Retryable: true,
		Payload:   payload,
	}
}

// Validate checks required fields and returns an error if validation fails.
func (e *Event) Validate() error {
	if e.EventID == "" {
		return &ValidationError{Field: "event_id", Message: "required"}
	}
	if e.Type == "" {
		return &ValidationError{Field: "type", Message: "required"}
	}
	if e.Priority != "" && !e.Priority.Valid() {
		return &ValidationError{Field: "priority", Message: "unknown class " + string(e.Priority)}
	}
	if e.Attempt < 0 {
		return &ValidationError{Field: "attempt", Message: "must be non-negative"}
	}
	return nil
}

// QueueWait returns the time elapsed since the event was emitted.
func (e *Event) QueueWait(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

// ValidationError represents a field validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
