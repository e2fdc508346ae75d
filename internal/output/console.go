package output

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Compile-time assertion that ConsoleSink satisfies Sink.
var _ Sink = (*ConsoleSink)(nil)

// ConsoleSink prints transcripts to a writer, one line per entry with a
// timestamp prefix.
type ConsoleSink struct {
	w      io.Writer
	prefix string
}

// NewConsoleSink creates a ConsoleSink writing to stdout.
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{w: os.Stdout, prefix: "[transcript]"}
}

// NewConsoleSinkTo creates a ConsoleSink writing to w, for tests.
func NewConsoleSinkTo(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w, prefix: "[transcript]"}
}

// Name implements [Sink].
func (s *ConsoleSink) Name() string { return "console" }

// Write implements [Sink].
func (s *ConsoleSink) Write(_ context.Context, e Entry) error {
	_, err := fmt.Fprintf(s.w, "%s %s %s\n",
		s.prefix, e.At.Format("15:04:05"), e.Text)
	if err != nil {
		return fmt.Errorf("output: console write: %w", err)
	}
	return nil
}
