// Package asr defines the Gateway interface for speech-to-text backends.
//
// A gateway wraps a transcription engine (local whisper.cpp, a hosted API, or
// a test double) behind a single synchronous call: hand it a chunk of PCM
// audio, get text back. Streaming and buffering policy live in the caller;
// gateways only transcribe.
//
// Implementations must be safe for concurrent use — the session engine
// dispatches overlapping chunks from a worker pool.
package asr

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors gateways return so callers can distinguish a backend that
// is down from one that is merely slow.
var (
	// ErrUnavailable indicates the backend cannot be reached or is not
	// ready (model not loaded, connection refused, auth failure).
	ErrUnavailable = errors.New("asr: backend unavailable")

	// ErrTimeout indicates the backend did not answer within the
	// gateway's deadline. The audio chunk is lost; callers should log
	// and move on rather than retry with stale audio.
	ErrTimeout = errors.New("asr: transcription timed out")
)

// Result is the outcome of transcribing one audio chunk.
type Result struct {
	// Text is the recognised speech, whitespace-trimmed. Empty when the
	// chunk contained no discernible speech.
	Text string

	// Duration is how much audio the chunk covered.
	Duration time.Duration

	// Latency is how long the backend took to answer.
	Latency time.Duration
}

// Gateway is the abstraction over any speech-to-text backend.
//
// Transcribe converts a chunk of 16-bit signed little-endian mono PCM into
// text. It blocks until the backend answers, the context is cancelled, or
// the gateway's own deadline fires. An empty Result.Text with a nil error is
// a valid outcome (silence or noise).
type Gateway interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (Result, error)
}
