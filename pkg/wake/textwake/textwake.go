// Package textwake implements [wake.Detector] by running a transcription
// gateway over a rolling audio window and fuzzy-matching the text against the
// configured wake words.
//
// Matching is three-stage per keyword: exact substring containment, phonetic
// overlap (Double Metaphone) combined with Jaro-Winkler ranking, and a
// sliding word-window Jaro-Winkler pass for multi-word keywords. No external
// credentials are required and keywords are arbitrary text; the cost is one
// gateway call per window, so this detector trades latency and CPU for
// flexibility.
package textwake

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/harkd/hark/pkg/asr"
	"github.com/harkd/hark/pkg/audio"
	"github.com/harkd/hark/pkg/wake"
)

const (
	defaultWindow    = 1500 * time.Millisecond
	defaultOverlap   = 500 * time.Millisecond
	defaultThreshold = 0.7
)

// Compile-time assertion that Detector satisfies wake.Detector.
var _ wake.Detector = (*Detector)(nil)

// Option is a functional option for configuring a [Detector].
type Option func(*Detector)

// WithWindow sets the audio window transcribed per recognition pass.
// Default: 1.5 s.
func WithWindow(d time.Duration) Option {
	return func(det *Detector) {
		if d > 0 {
			det.window = d
		}
	}
}

// WithOverlap sets how much trailing audio carries over between windows so a
// wake word straddling a window boundary is still caught. Default: 0.5 s.
func WithOverlap(d time.Duration) Option {
	return func(det *Detector) {
		if d >= 0 {
			det.overlap = d
		}
	}
}

// WithThreshold sets the minimum Jaro-Winkler score for a fuzzy match.
// Default: 0.7.
func WithThreshold(threshold float64) Option {
	return func(det *Detector) {
		if threshold > 0 && threshold <= 1 {
			det.threshold = threshold
		}
	}
}

// Detector accumulates idle-state audio and transcribes it window by window,
// checking each transcript for the configured wake words. Not safe for
// concurrent use; the session engine calls it from one goroutine.
type Detector struct {
	gateway   asr.Gateway
	keywords  []string // as configured
	normal    []string // normalised counterparts
	window    time.Duration
	overlap   time.Duration
	threshold float64

	buf        []byte
	sampleRate int
}

// New creates a Detector matching the given wake words through gateway.
func New(gateway asr.Gateway, keywords []string, opts ...Option) *Detector {
	det := &Detector{
		gateway:   gateway,
		window:    defaultWindow,
		overlap:   defaultOverlap,
		threshold: defaultThreshold,
	}
	for _, kw := range keywords {
		n := normalize(kw)
		if n == "" {
			continue
		}
		det.keywords = append(det.keywords, kw)
		det.normal = append(det.normal, n)
	}
	for _, o := range opts {
		o(det)
	}
	return det
}

// Detect implements [wake.Detector]. Frames accumulate until one window's
// worth of audio is buffered, then a single recognition pass runs. On a
// match the buffer is cleared so the same utterance cannot fire twice.
func (det *Detector) Detect(ctx context.Context, f audio.Frame) (wake.Activation, bool) {
	if len(det.normal) == 0 || f.SampleRate <= 0 {
		return wake.Activation{}, false
	}

	det.sampleRate = f.SampleRate
	det.buf = append(det.buf, f.Samples...)

	windowBytes := bytesFor(det.window, det.sampleRate)
	if len(det.buf) < windowBytes {
		return wake.Activation{}, false
	}

	chunk := det.buf[:windowBytes]
	overlapBytes := bytesFor(det.overlap, det.sampleRate)
	if overlapBytes > windowBytes {
		overlapBytes = windowBytes
	}
	det.buf = append([]byte(nil), det.buf[windowBytes-overlapBytes:]...)

	res, err := det.gateway.Transcribe(ctx, chunk, det.sampleRate)
	if err != nil {
		slog.Debug("wake word recognition pass failed", "error", err)
		return wake.Activation{}, false
	}
	if res.Text == "" {
		return wake.Activation{}, false
	}

	keyword, score, ok := det.matchKeyword(res.Text)
	if !ok {
		return wake.Activation{}, false
	}

	slog.Info("wake word detected",
		"keyword", keyword, "transcript", res.Text, "score", score)
	det.buf = nil
	return wake.Activation{Keyword: keyword, Confidence: score, At: time.Now()}, true
}

// Reset implements [wake.Detector].
func (det *Detector) Reset() {
	det.buf = nil
}

// matchKeyword checks transcribed text against every configured wake word
// and returns the first match in declaration order.
func (det *Detector) matchKeyword(text string) (keyword string, score float64, ok bool) {
	normalText := normalize(text)
	textWords := strings.Fields(normalText)

	for i, kw := range det.normal {
		if strings.Contains(normalText, kw) {
			return det.keywords[i], 1, true
		}

		if s := matchr.JaroWinkler(kw, normalText, false); s >= det.threshold && phoneticOverlap(kw, normalText) {
			return det.keywords[i], s, true
		}

		// Sliding word window for multi-word keywords.
		kwWords := strings.Fields(kw)
		if len(kwWords) > len(textWords) {
			continue
		}
		for j := 0; j+len(kwWords) <= len(textWords); j++ {
			window := strings.Join(textWords[j:j+len(kwWords)], " ")
			if s := matchr.JaroWinkler(kw, window, false); s >= det.threshold {
				return det.keywords[i], s, true
			}
		}
	}
	return "", 0, false
}

// phoneticOverlap reports whether any word of a and b share a Double
// Metaphone code, filtering out high string similarity between phrases that
// sound nothing alike.
func phoneticOverlap(a, b string) bool {
	codes := make(map[string]struct{})
	for _, w := range strings.Fields(a) {
		p, s := matchr.DoubleMetaphone(w)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	for _, w := range strings.Fields(b) {
		p, s := matchr.DoubleMetaphone(w)
		if p != "" {
			if _, hit := codes[p]; hit {
				return true
			}
		}
		if s != "" {
			if _, hit := codes[s]; hit {
				return true
			}
		}
	}
	return false
}

// normalize lowercases, trims, and folds separators so "hey-hark" and
// "hey hark" compare equal.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, "_", " ")
	return strings.Join(strings.Fields(s), " ")
}

// bytesFor converts a duration to a 16-bit mono PCM byte count.
func bytesFor(d time.Duration, sampleRate int) int {
	samples := int(d.Seconds() * float64(sampleRate))
	return samples * 2
}
