package output

import (
	"context"
	"fmt"

	"github.com/atotto/clipboard"
)

// Compile-time assertion that ClipboardSink satisfies Sink.
var _ Sink = (*ClipboardSink)(nil)

// ClipboardSink copies finalized transcripts to the system clipboard,
// replacing its previous contents. Non-final entries are skipped so partial
// text never clobbers the clipboard.
type ClipboardSink struct{}

// NewClipboardSink creates a ClipboardSink.
func NewClipboardSink() *ClipboardSink { return &ClipboardSink{} }

// Name implements [Sink].
func (s *ClipboardSink) Name() string { return "clipboard" }

// Write implements [Sink].
func (s *ClipboardSink) Write(_ context.Context, e Entry) error {
	if !e.Final || e.Text == "" {
		return nil
	}
	if err := clipboard.WriteAll(e.Text); err != nil {
		return fmt.Errorf("output: clipboard write: %w", err)
	}
	return nil
}
