// Package openai implements [asr.Gateway] against the OpenAI audio
// transcription API. PCM chunks are wrapped in an in-memory WAV container
// and posted to the hosted Whisper model.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/harkd/hark/pkg/asr"
)

const defaultTimeout = 30 * time.Second

// Compile-time assertion that Gateway satisfies asr.Gateway.
var _ asr.Gateway = (*Gateway)(nil)

// Gateway transcribes PCM chunks via the OpenAI transcription endpoint.
// Safe for concurrent use.
type Gateway struct {
	client  oai.Client
	model   oai.AudioModel
	timeout time.Duration
}

// Option is a functional option for configuring a Gateway.
type Option func(*Gateway)

// WithModel selects the transcription model. Defaults to whisper-1.
func WithModel(model string) Option {
	return func(g *Gateway) {
		if model != "" {
			g.model = oai.AudioModel(model)
		}
	}
}

// WithTimeout sets the per-request deadline. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// New creates a Gateway using the given API key. An optional baseURL
// redirects requests to an OpenAI-compatible endpoint (empty string keeps
// the default).
func New(apiKey, baseURL string, opts ...Option) (*Gateway, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(baseURL))
	}

	g := &Gateway{
		client:  oai.NewClient(clientOpts...),
		model:   oai.AudioModelWhisper1,
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// Transcribe implements [asr.Gateway].
func (g *Gateway) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (asr.Result, error) {
	if len(pcm) == 0 {
		return asr.Result{}, nil
	}

	started := time.Now()
	chunkDur := pcmDuration(pcm, sampleRate)

	wav, err := encodeWAV(pcm, sampleRate, 1)
	if err != nil {
		return asr.Result{}, fmt.Errorf("openai: encode wav: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Audio.Transcriptions.New(reqCtx, oai.AudioTranscriptionNewParams{
		Model: g.model,
		File:  oai.File(bytes.NewReader(wav), "chunk.wav", "audio/wav"),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return asr.Result{}, asr.ErrTimeout
		}
		if errors.Is(err, context.Canceled) {
			return asr.Result{}, fmt.Errorf("openai: %w", context.Canceled)
		}
		return asr.Result{}, fmt.Errorf("openai: transcription request: %w",
			errors.Join(asr.ErrUnavailable, err))
	}

	return asr.Result{
		Text:     strings.TrimSpace(resp.Text),
		Duration: chunkDur,
		Latency:  time.Since(started),
	}, nil
}

// pcmDuration returns the play time of a 16-bit mono PCM buffer.
func pcmDuration(pcm []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(pcm)/2) * time.Second / time.Duration(sampleRate)
}
