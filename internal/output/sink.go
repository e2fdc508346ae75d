// Package output fans finalized transcripts out to pluggable destinations:
// console, file, clipboard, desktop notification, and a PostgreSQL history
// store. Sinks are registered independently; one sink's failure never
// blocks the others.
package output

import (
	"context"
	"log/slog"
	"time"
)

// Entry is one finalized transcript handed to the sinks.
type Entry struct {
	SessionID string
	Text      string
	Final     bool
	At        time.Time
}

// Sink receives transcript entries. Write must be safe for concurrent use
// and should honour ctx — the dispatcher bounds every call with a deadline.
type Sink interface {
	Name() string
	Write(ctx context.Context, e Entry) error
}

// writeTimeout bounds one sink write so a stuck destination cannot hold up
// the rest of the fan-out.
const writeTimeout = 2 * time.Second

// Dispatcher delivers each entry to every registered sink. Errors are
// logged per sink and never propagate; the audio path only ever sees a
// fire-and-forget call.
type Dispatcher struct {
	sinks []Sink
}

// NewDispatcher creates a Dispatcher over the given sinks.
func NewDispatcher(sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks}
}

// Add registers another sink. Not safe concurrently with Dispatch; wire all
// sinks before the pipeline starts.
func (d *Dispatcher) Add(s Sink) {
	d.sinks = append(d.sinks, s)
}

// Len returns the number of registered sinks.
func (d *Dispatcher) Len() int { return len(d.sinks) }

// Dispatch delivers the entry to every sink in registration order. Each
// write gets its own deadline and its own error handling.
func (d *Dispatcher) Dispatch(ctx context.Context, e Entry) {
	for _, s := range d.sinks {
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		if err := s.Write(writeCtx, e); err != nil {
			slog.Warn("output sink write failed",
				"sink", s.Name(), "session", e.SessionID, "error", err)
		}
		cancel()
	}
}
