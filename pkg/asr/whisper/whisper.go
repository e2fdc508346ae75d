// Package whisper implements [asr.Gateway] on top of the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// The model is loaded once and shared across all Transcribe calls; each call
// creates its own whisper context because contexts are not thread-safe.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/harkd/hark/pkg/asr"
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
)

// Compile-time assertion that Gateway satisfies asr.Gateway.
var _ asr.Gateway = (*Gateway)(nil)

// Gateway transcribes PCM chunks with a locally loaded whisper.cpp model.
// Safe for concurrent use.
type Gateway struct {
	model    whisperlib.Model
	language string
	timeout  time.Duration
}

// Option is a functional option for configuring a Gateway.
type Option func(*Gateway)

// WithLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(g *Gateway) {
		if lang != "" {
			g.language = lang
		}
	}
}

// WithTimeout sets the per-call inference deadline. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// New creates a Gateway that loads the whisper.cpp model from the given file
// path. The caller must call Close when the gateway is no longer needed.
func New(modelPath string, opts ...Option) (*Gateway, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	g := &Gateway{
		model:    model,
		language: defaultLanguage,
		timeout:  defaultTimeout,
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// Close releases the whisper model.
func (g *Gateway) Close() error {
	if g.model != nil {
		return g.model.Close()
	}
	return nil
}

// Transcribe implements [asr.Gateway]. The inference itself cannot be
// interrupted mid-flight; cancellation and the deadline are honoured by
// abandoning the result, with the worker goroutine left to finish and exit.
func (g *Gateway) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (asr.Result, error) {
	if len(pcm) == 0 {
		return asr.Result{}, nil
	}

	started := time.Now()
	chunkDur := pcmDuration(pcm, sampleRate, 1)

	type outcome struct {
		text string
		err  error
	}
	resCh := make(chan outcome, 1)
	go func() {
		text, err := g.infer(pcm)
		resCh <- outcome{text: text, err: err}
	}()

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case out := <-resCh:
		if out.err != nil {
			return asr.Result{}, out.err
		}
		return asr.Result{
			Text:     out.text,
			Duration: chunkDur,
			Latency:  time.Since(started),
		}, nil
	case <-ctx.Done():
		return asr.Result{}, fmt.Errorf("whisper: %w", ctx.Err())
	case <-timer.C:
		slog.Warn("whisper inference exceeded deadline, abandoning chunk",
			"timeout", g.timeout, "chunk_duration", chunkDur)
		return asr.Result{}, asr.ErrTimeout
	}
}

// infer converts the PCM audio to float32, runs whisper.cpp inference using
// a fresh context, and returns the concatenated segment text.
func (g *Gateway) infer(pcm []byte) (string, error) {
	samples := pcmToFloat32Mono(pcm, 1)

	// Each context is NOT thread-safe, but the model can be shared
	// across goroutines.
	wctx, err := g.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(g.language); err != nil {
		slog.Warn("whisper: failed to set language, using default",
			"language", g.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}
