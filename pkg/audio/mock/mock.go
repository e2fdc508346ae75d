// Package mock provides a scripted [audio.Source] for tests.
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/harkd/hark/pkg/audio"
)

// Compile-time assertion that Source satisfies audio.Source.
var _ audio.Source = (*Source)(nil)

// Source is a test double for [audio.Source]. Tests call [Source.Emit] to
// push frames into whatever callback the system under test registered.
// All methods are safe for concurrent use.
type Source struct {
	// StartErr, when non-nil, is returned by Start.
	StartErr error

	mu         sync.Mutex
	fn         audio.FrameFunc
	started    bool
	startCalls int
	stopCalls  int
}

// New creates a stopped Source.
func New() *Source { return &Source{} }

// Start records the callback and marks the source as running.
func (s *Source) Start(_ context.Context, fn audio.FrameFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startCalls++
	if s.StartErr != nil {
		return s.StartErr
	}
	if s.started {
		return errors.New("mock source: already started")
	}
	s.fn = fn
	s.started = true
	return nil
}

// Stop clears the callback.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCalls++
	s.started = false
	s.fn = nil
	return nil
}

// Emit delivers a frame to the registered callback, mimicking the capture
// context. It is a no-op when the source is not running.
func (s *Source) Emit(f audio.Frame) {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn != nil {
		fn(f)
	}
}

// EmitPCM is a convenience wrapper that emits a mono 16 kHz frame with the
// given PCM payload.
func (s *Source) EmitPCM(pcm []byte) {
	s.Emit(audio.Frame{
		Samples:    pcm,
		SampleRate: 16000,
		Channels:   1,
		CapturedAt: time.Now(),
	})
}

// Started reports whether the source is currently running.
func (s *Source) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// StartCalls returns how many times Start was invoked.
func (s *Source) StartCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startCalls
}

// StopCalls returns how many times Stop was invoked.
func (s *Source) StopCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCalls
}
