// Package wake defines the Detector interface for wake-word engines.
//
// A detector consumes audio frames while the system is idle and reports when
// an activation phrase was heard. Implementations are pluggable behind one
// interface: a dedicated low-latency keyword spotter, or a general
// transcription engine run over a rolling window with fuzzy text matching.
package wake

import (
	"context"
	"time"

	"github.com/harkd/hark/pkg/audio"
)

// Activation is a detected wake-word event.
type Activation struct {
	// Keyword is the configured wake word that matched, as configured
	// (not as transcribed).
	Keyword string

	// Confidence is the match score in [0, 1]. Keyword spotters that do
	// not score report 1.
	Confidence float64

	// At is when the detection fired.
	At time.Time
}

// Detector consumes idle-state audio and emits activation events.
//
// Detect hands the detector one frame and reports whether an activation
// phrase completed with it. A detector must not double-fire for a single
// utterance; the session engine additionally guards against double
// activation. Detect is called from a single consumer goroutine and may
// block for the duration of one recognition pass. Failures inside the
// detector are non-fatal: the frame is skipped and detection continues.
//
// Reset discards any buffered audio so speech heard before the reset can
// never fire afterwards. The session engine resets the detector when a
// session ends.
type Detector interface {
	Detect(ctx context.Context, f audio.Frame) (Activation, bool)
	Reset()
}
