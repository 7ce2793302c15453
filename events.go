package session

import (
	"context"
	"time"
)

// EventType enumerates supported session lifecycle events.
type EventType string

const (
	EventLogin              EventType = "session.login"
	EventLogout             EventType = "session.logout"
	EventForcedLogout       EventType = "session.forced_logout"
	EventExpired            EventType = "session.expired"
	EventUserUpdated        EventType = "session.user_updated"
	EventCredentialMigrated EventType = "session.credential_migrated"
)

// Event captures telemetry-friendly information about a lifecycle change.
// The Type distinguishes "user chose to log out" from "session was
// invalidated".
type Event struct {
	Type       EventType
	UserID     string
	Reason     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// EventSink consumes session events for telemetry purposes.
type EventSink interface {
	Record(ctx context.Context, event Event) error
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ctx context.Context, event Event) error

// Record implements EventSink.
func (f EventSinkFunc) Record(ctx context.Context, event Event) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopEventSink struct{}

func (noopEventSink) Record(context.Context, Event) error {
	return nil
}

func normalizeEventSink(s EventSink) EventSink {
	if s == nil {
		return noopEventSink{}
	}
	return s
}
