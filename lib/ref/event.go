// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// EventID is a Matrix event ID (e.g., "$abc123xyz"). Room version 4+
// event IDs have no server suffix, so the only structural check is the
// '$' sigil followed by at least one character.
type EventID struct {
	id string
}

// ParseEventID validates and wraps a raw Matrix event ID string.
func ParseEventID(raw string) (EventID, error) {
	if raw == "" {
		return EventID{}, fmt.Errorf("empty event ID")
	}
	if raw[0] != '$' || len(raw) < 2 {
		return EventID{}, fmt.Errorf("malformed event ID: %q", raw)
	}
	return EventID{id: raw}, nil
}

// String returns the event ID string.
func (e EventID) String() string { return e.id }

// IsZero reports whether the EventID is the zero value.
func (e EventID) IsZero() bool { return e.id == "" }

// MarshalText implements encoding.TextMarshaler.
func (e EventID) MarshalText() ([]byte, error) {
	return []byte(e.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *EventID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*e = EventID{}
		return nil
	}
	parsed, err := ParseEventID(string(data))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// EventType identifies a Matrix event type ("m.room.message",
// "m.room.member"). It is a named string: event types are opaque and
// need no validation, the type only keeps them apart from state keys
// and bodies at compile time.
type EventType string

// String returns the event type string.
func (t EventType) String() string { return string(t) }

// Event types the bot reads or writes.
const (
	EventTypeMessage EventType = "m.room.message"
	EventTypeMember  EventType = "m.room.member"
)
