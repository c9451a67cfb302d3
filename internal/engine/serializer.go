// Eventcore - High-Throughput In-Process Event Processing Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventcore

package engine

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Serializer handles event encoding/decoding for slotted queue storage.
// The serialized form must fit within maxEventSize bytes.
type Serializer struct {
	maxEventSize int
}

// NewSerializer creates a serializer enforcing the given size limit.
func NewSerializer(maxEventSize int) *Serializer {
	return &Serializer{maxEventSize: maxEventSize}
}

// MaxEventSize returns the per-event byte limit.
func (s *Serializer) MaxEventSize() int {
	return s.maxEventSize
}

// Marshal converts an event to JSON bytes. Returns ErrEventTooLarge when
// the serialized form exceeds the limit.
func (s *Serializer) Marshal(event *Event) ([]byte, error) {
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("validate event: %w", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	if len(data) > s.maxEventSize {
		return nil, fmt.Errorf("%w: %d bytes > %d", ErrEventTooLarge, len(data), s.maxEventSize)
	}

	return data, nil
}

// Unmarshal converts JSON bytes to an event. Truncated, empty, or
// oversize buffers are rejected with ErrMalformedEvent; callers count
// the rejection as a parse error.
func (s *Serializer) Unmarshal(data []byte) (*Event, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrMalformedEvent)
	}
	if len(data) > s.maxEventSize {
		return nil, fmt.Errorf("%w: %d bytes > %d", ErrMalformedEvent, len(data), s.maxEventSize)
	}

	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedEvent, err)
	}
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedEvent, err)
	}

	return &event, nil
}
