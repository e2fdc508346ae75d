// Package voskwake implements [wake.Detector] as a dedicated keyword spotter
// over the Vosk CGO bindings. The recognizer is constrained to a grammar of
// the configured wake words plus the unknown-word token, which keeps CPU low
// and latency well under a window-based transcription pass. A local Vosk
// model directory is required; no network credentials are involved.
package voskwake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	vosk "github.com/alphacep/vosk-api/go"

	"github.com/harkd/hark/pkg/audio"
	"github.com/harkd/hark/pkg/wake"
)

// Compile-time assertion that Detector satisfies wake.Detector.
var _ wake.Detector = (*Detector)(nil)

// Detector spots wake words with a grammar-restricted Vosk recognizer.
// Not safe for concurrent use; the session engine calls it from one
// goroutine.
type Detector struct {
	model      *vosk.VoskModel
	recognizer *vosk.VoskRecognizer
	keywords   []string // as configured
	normal     []string // normalised counterparts
}

type voskResult struct {
	Text    string `json:"text"`
	Partial string `json:"partial"`
}

// New creates a Detector loading the Vosk model from modelPath and spotting
// the given wake words. The caller must call Close when done.
func New(modelPath string, keywords []string, sampleRate int) (*Detector, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("voskwake: model %q: %w", modelPath, err)
	}
	if len(keywords) == 0 {
		return nil, errors.New("voskwake: at least one keyword is required")
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	det := &Detector{}
	for _, kw := range keywords {
		n := strings.ToLower(strings.TrimSpace(kw))
		if n == "" {
			continue
		}
		det.keywords = append(det.keywords, kw)
		det.normal = append(det.normal, n)
	}
	if len(det.normal) == 0 {
		return nil, errors.New("voskwake: all keywords are empty")
	}

	model, err := vosk.NewModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("voskwake: load model %q: %w", modelPath, err)
	}

	// Restrict the grammar to the wake words; everything else decodes to
	// [unk] and is ignored.
	grammar, err := json.Marshal(append(append([]string(nil), det.normal...), "[unk]"))
	if err != nil {
		model.Free()
		return nil, fmt.Errorf("voskwake: encode grammar: %w", err)
	}
	rec, err := vosk.NewRecognizerGrm(model, float64(sampleRate), string(grammar))
	if err != nil {
		model.Free()
		return nil, fmt.Errorf("voskwake: create recognizer: %w", err)
	}

	det.model = model
	det.recognizer = rec
	slog.Info("vosk keyword spotter initialized",
		"model", modelPath, "keywords", det.keywords, "sample_rate", sampleRate)
	return det, nil
}

// Detect implements [wake.Detector]. Partial results fire as soon as the
// spotter commits to a keyword; the recognizer is reset on fire so the same
// utterance cannot trigger twice.
func (det *Detector) Detect(_ context.Context, f audio.Frame) (wake.Activation, bool) {
	if det.recognizer == nil || len(f.Samples) == 0 {
		return wake.Activation{}, false
	}

	var raw string
	if det.recognizer.AcceptWaveform(f.Samples) != 0 {
		raw = det.recognizer.FinalResult()
	} else {
		raw = det.recognizer.PartialResult()
	}

	var res voskResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		slog.Debug("vosk result parse failed", "error", err)
		return wake.Activation{}, false
	}
	text := res.Text
	if text == "" {
		text = res.Partial
	}
	if text == "" {
		return wake.Activation{}, false
	}

	for i, kw := range det.normal {
		if strings.Contains(text, kw) {
			slog.Info("wake word detected", "keyword", det.keywords[i], "transcript", text)
			det.recognizer.Reset()
			return wake.Activation{Keyword: det.keywords[i], Confidence: 1, At: time.Now()}, true
		}
	}
	return wake.Activation{}, false
}

// Reset implements [wake.Detector].
func (det *Detector) Reset() {
	if det.recognizer != nil {
		det.recognizer.Reset()
	}
}

// Close frees the recognizer and model.
func (det *Detector) Close() error {
	if det.recognizer != nil {
		det.recognizer.Free()
		det.recognizer = nil
	}
	if det.model != nil {
		det.model.Free()
		det.model = nil
	}
	return nil
}
