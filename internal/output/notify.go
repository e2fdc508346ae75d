package output

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/gen2brain/beeep"
)

// Compile-time assertion that NotifySink satisfies Sink.
var _ Sink = (*NotifySink)(nil)

// notifyMaxLen truncates long transcripts so the notification body stays
// readable.
const notifyMaxLen = 120

// NotifySink raises a desktop notification per finalized transcript.
type NotifySink struct {
	title string
}

// NewNotifySink creates a NotifySink using the given notification title.
func NewNotifySink(title string) *NotifySink {
	if title == "" {
		title = "hark"
	}
	return &NotifySink{title: title}
}

// Name implements [Sink].
func (s *NotifySink) Name() string { return "notify" }

// Write implements [Sink].
func (s *NotifySink) Write(_ context.Context, e Entry) error {
	if !e.Final || e.Text == "" {
		return nil
	}
	if err := beeep.Notify(s.title, truncate(e.Text, notifyMaxLen), ""); err != nil {
		return fmt.Errorf("output: desktop notification: %w", err)
	}
	return nil
}

// truncate shortens s to at most max runes, appending an ellipsis. Cutting on
// a rune boundary keeps multi-byte text intact.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "…"
}
