// Package mock provides a scripted [asr.Gateway] for tests.
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/harkd/hark/pkg/asr"
)

// Compile-time assertion that Gateway satisfies asr.Gateway.
var _ asr.Gateway = (*Gateway)(nil)

// Call records one Transcribe invocation.
type Call struct {
	PCMLen     int
	SampleRate int
}

// Gateway is a test double for [asr.Gateway]. Responses are consumed in
// FIFO order; when the script runs out, Transcribe returns an empty result.
// All methods are safe for concurrent use.
type Gateway struct {
	// Err, when non-nil, is returned by every Transcribe call.
	Err error

	// Delay makes each Transcribe sleep before answering, for exercising
	// overlap and cancellation paths.
	Delay time.Duration

	mu      sync.Mutex
	scripts []string
	calls   []Call
}

// New creates a Gateway that answers with the given texts in order.
func New(texts ...string) *Gateway {
	return &Gateway{scripts: append([]string(nil), texts...)}
}

// Enqueue appends texts to the response script.
func (g *Gateway) Enqueue(texts ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripts = append(g.scripts, texts...)
}

// Transcribe pops the next scripted response.
func (g *Gateway) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (asr.Result, error) {
	if g.Delay > 0 {
		select {
		case <-time.After(g.Delay):
		case <-ctx.Done():
			return asr.Result{}, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, Call{PCMLen: len(pcm), SampleRate: sampleRate})

	if g.Err != nil {
		return asr.Result{}, g.Err
	}

	var text string
	if len(g.scripts) > 0 {
		text = g.scripts[0]
		g.scripts = g.scripts[1:]
	}
	return asr.Result{Text: strings.TrimSpace(text)}, nil
}

// Calls returns a copy of the recorded invocations.
func (g *Gateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Call(nil), g.calls...)
}

// CallCount returns how many times Transcribe was invoked.
func (g *Gateway) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}
