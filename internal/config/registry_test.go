package config_test

import (
	"errors"
	"testing"

	"github.com/harkd/hark/internal/config"
	"github.com/harkd/hark/pkg/asr"
	asrmock "github.com/harkd/hark/pkg/asr/mock"
	"github.com/harkd/hark/pkg/wake"
	wakemock "github.com/harkd/hark/pkg/wake/mock"
)

func TestRegistry_CreateGateway(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	var seen config.TranscriptionConfig
	reg.RegisterGateway(config.ProviderOpenAI, func(cfg config.TranscriptionConfig) (asr.Gateway, error) {
		seen = cfg
		return asrmock.New(), nil
	})

	gw, err := reg.CreateGateway(config.TranscriptionConfig{
		Provider: config.ProviderOpenAI,
		APIKey:   "sk-test",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gw == nil {
		t.Fatal("CreateGateway returned nil gateway")
	}
	if seen.APIKey != "sk-test" {
		t.Errorf("factory received APIKey %q, want sk-test", seen.APIKey)
	}
}

func TestRegistry_CreateDetector(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterDetector(config.WakeEngineText, func(cfg config.WakeWordConfig) (wake.Detector, error) {
		return wakemock.New(), nil
	})

	det, err := reg.CreateDetector(config.WakeWordConfig{Engine: config.WakeEngineText})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if det == nil {
		t.Fatal("CreateDetector returned nil detector")
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	if _, err := reg.CreateGateway(config.TranscriptionConfig{Provider: config.ProviderWhisper}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateGateway error = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateDetector(config.WakeWordConfig{Engine: config.WakeEngineVosk}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateDetector error = %v, want ErrProviderNotRegistered", err)
	}
}
