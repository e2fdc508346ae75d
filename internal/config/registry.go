package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/harkd/hark/pkg/asr"
	"github.com/harkd/hark/pkg/wake"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory
// has been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions. Wake-word
// detector factories are registered under [WakeEngine] names and
// transcription gateway factories under [Provider] names. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	gateways  map[Provider]func(TranscriptionConfig) (asr.Gateway, error)
	detectors map[WakeEngine]func(WakeWordConfig) (wake.Detector, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		gateways:  make(map[Provider]func(TranscriptionConfig) (asr.Gateway, error)),
		detectors: make(map[WakeEngine]func(WakeWordConfig) (wake.Detector, error)),
	}
}

// RegisterGateway registers a transcription gateway factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterGateway(name Provider, factory func(TranscriptionConfig) (asr.Gateway, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[name] = factory
}

// RegisterDetector registers a wake-word detector factory under name.
func (r *Registry) RegisterDetector(name WakeEngine, factory func(WakeWordConfig) (wake.Detector, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detectors[name] = factory
}

// CreateGateway instantiates a transcription gateway using the factory
// registered under cfg.Provider. Returns [ErrProviderNotRegistered] if no
// factory has been registered for that name.
func (r *Registry) CreateGateway(cfg TranscriptionConfig) (asr.Gateway, error) {
	r.mu.RLock()
	factory, ok := r.gateways[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transcription/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}

// CreateDetector instantiates a wake-word detector using the factory
// registered under cfg.Engine.
func (r *Registry) CreateDetector(cfg WakeWordConfig) (wake.Detector, error) {
	r.mu.RLock()
	factory, ok := r.detectors[cfg.Engine]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: wake_word/%q", ErrProviderNotRegistered, cfg.Engine)
	}
	return factory(cfg)
}
