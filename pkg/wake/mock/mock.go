// Package mock provides a scripted [wake.Detector] for tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/harkd/hark/pkg/audio"
	"github.com/harkd/hark/pkg/wake"
)

// Compile-time assertion that Detector satisfies wake.Detector.
var _ wake.Detector = (*Detector)(nil)

// Detector is a test double for [wake.Detector]. Tests arm it with a
// keyword; the next Detect call fires exactly once. All methods are safe
// for concurrent use.
type Detector struct {
	mu         sync.Mutex
	armed      bool
	keyword    string
	frames     int
	resetCalls int
}

// New creates an unarmed Detector.
func New() *Detector { return &Detector{} }

// Arm makes the next Detect call fire an activation for keyword.
func (d *Detector) Arm(keyword string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.armed = true
	d.keyword = keyword
}

// Detect fires once if armed, then disarms.
func (d *Detector) Detect(_ context.Context, _ audio.Frame) (wake.Activation, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames++
	if !d.armed {
		return wake.Activation{}, false
	}
	d.armed = false
	return wake.Activation{Keyword: d.keyword, Confidence: 1, At: time.Now()}, true
}

// Reset implements [wake.Detector] and counts invocations.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetCalls++
}

// Frames returns how many frames Detect has seen.
func (d *Detector) Frames() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

// ResetCalls returns how many times Reset was invoked.
func (d *Detector) ResetCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resetCalls
}
