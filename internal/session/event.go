// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

// EventType identifies the kind of a streaming event.
type EventType int

const (
	// EventContent carries the full response so far.
	EventContent EventType = iota
	// EventDone carries the final response text.
	EventDone
	// EventError carries a failure message.
	EventError
)

// String returns the wire name of the event type.
func (t EventType) String() string {
	switch t {
	case EventContent:
		return "content"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseEventType is the inverse of EventType.String.
func ParseEventType(s string) (EventType, bool) {
	switch s {
	case "content":
		return EventContent, true
	case "done":
		return EventDone, true
	case "error":
		return EventError, true
	}
	return 0, false
}

// Event is one step of an exchange.
type Event struct {
	Type EventType
	// Content is the snapshot for EventContent, the final text for
	// EventDone and the message for EventError.
	Content string
}

// Content builds a content event.
func Content(snapshot string) Event { return Event{Type: EventContent, Content: snapshot} }

// Done builds a done event.
func Done(finalText string) Event { return Event{Type: EventDone, Content: finalText} }

// Error builds an error event.
func Error(message string) Event { return Event{Type: EventError, Content: message} }

// IsTerminal reports whether the event ends the sequence.
func (e Event) IsTerminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
