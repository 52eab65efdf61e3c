// Package history exports server lifecycle events to external stores for
// auditing. Sinks never influence lifecycle decisions.
package history

import (
	"context"
	"log/slog"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart          EventType = "start"
	EventDaemonize      EventType = "daemonize"
	EventAlreadyRunning EventType = "already_running"
	EventStalePID       EventType = "stale_pid"
	EventStop           EventType = "stop"
	EventKill           EventType = "kill"
	EventPrivilegeDrop  EventType = "privilege_drop"
)

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Instance   string    `json:"instance"`
	PID        int       `json:"pid,omitempty"`
	Signal     string    `json:"signal,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Send(context.Context, Event) error { return nil }

// Recorder stamps events and forwards them to a sink. Send failures are
// logged at warn level and otherwise ignored.
type Recorder struct {
	Sink Sink
	Log  *slog.Logger
	Now  func() time.Time
}

func NewRecorder(sink Sink, log *slog.Logger) *Recorder {
	if sink == nil {
		sink = Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{Sink: sink, Log: log, Now: time.Now}
}

// Record sends e, filling OccurredAt when unset. A nil Recorder is valid.
func (r *Recorder) Record(ctx context.Context, e Event) {
	if r == nil || r.Sink == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = r.Now().UTC()
	}
	if err := r.Sink.Send(ctx, e); err != nil {
		r.Log.Warn("history sink failed", "type", e.Type, "instance", e.Instance, "error", err)
	}
}

// Close releases the sink when it holds resources.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	if c, ok := r.Sink.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
