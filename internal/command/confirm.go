package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harkd/hark/pkg/asr"
	"github.com/harkd/hark/pkg/audio"
)

// Confirmer asks the user whether a pending command may execute.
//
// Implementations must be fully self-contained: a confirmer never pauses,
// stops, or cancels the main session's capture or tasks. Coupling the
// confirmation lifecycle to the session is the failure mode this interface
// exists to rule out.
type Confirmer interface {
	Confirm(ctx context.Context, p Pending) (bool, error)
}

// Affirmative and negative utterances recognised during voice confirmation.
var (
	affirmativeWords = []string{
		"yes", "yeah", "yep", "confirm", "approve", "ok", "okay", "sure", "proceed",
	}
	negativeWords = []string{
		"no", "nope", "cancel", "deny", "stop", "abort", "negative",
	}
)

const (
	defaultConfirmTimeout = 10 * time.Second
	defaultConfirmRetries = 2
	defaultConfirmWindow  = 1600 * time.Millisecond
	retryPause            = time.Second
)

// Compile-time assertion that VoiceConfirmer satisfies Confirmer.
var _ Confirmer = (*VoiceConfirmer)(nil)

// VoiceConfirmer listens for a spoken yes/no on its own capture source and
// its own queue, transcribed through its own gateway call budget. Each
// attempt opens the source, accumulates audio window by window, and checks
// every transcript for an affirmative or negative utterance. Unclear
// responses retry up to the configured limit; exhaustion or timeout denies.
type VoiceConfirmer struct {
	source  audio.Source
	gateway asr.Gateway
	timeout time.Duration
	retries int
	window  time.Duration
}

// VoiceOption is a functional option for configuring a [VoiceConfirmer].
type VoiceOption func(*VoiceConfirmer)

// WithConfirmTimeout sets how long one listening attempt lasts.
// Default: 10 s.
func WithConfirmTimeout(d time.Duration) VoiceOption {
	return func(c *VoiceConfirmer) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithConfirmRetries sets how many additional attempts follow an unclear
// response. Default: 2.
func WithConfirmRetries(n int) VoiceOption {
	return func(c *VoiceConfirmer) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithConfirmWindow sets how much audio accumulates before each
// transcription pass. Default: 1.6 s.
func WithConfirmWindow(d time.Duration) VoiceOption {
	return func(c *VoiceConfirmer) {
		if d > 0 {
			c.window = d
		}
	}
}

// NewVoiceConfirmer creates a VoiceConfirmer around a dedicated capture
// source. The source must not be shared with the main session.
func NewVoiceConfirmer(source audio.Source, gateway asr.Gateway, opts ...VoiceOption) *VoiceConfirmer {
	c := &VoiceConfirmer{
		source:  source,
		gateway: gateway,
		timeout: defaultConfirmTimeout,
		retries: defaultConfirmRetries,
		window:  defaultConfirmWindow,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Confirm implements [Confirmer].
func (c *VoiceConfirmer) Confirm(ctx context.Context, p Pending) (bool, error) {
	slog.Info("requesting voice confirmation",
		"phrase", p.MatchedPhrase, "command", p.Resolved,
		"timeout", c.timeout, "retries", c.retries)

	for attempt := 0; attempt <= c.retries; attempt++ {
		verdict, decided, err := c.listenOnce(ctx)
		if err != nil {
			return false, err
		}
		if decided {
			return verdict, nil
		}
		if attempt < c.retries {
			slog.Info("no clear confirmation, retrying",
				"attempt", attempt+1, "retries", c.retries)
			select {
			case <-time.After(retryPause):
			case <-ctx.Done():
				return false, ctx.Err()
			}
		}
	}

	slog.Warn("confirmation retries exhausted, denying", "command", p.Resolved)
	return false, nil
}

// listenOnce runs one listening attempt. decided is false when the attempt
// timed out without a recognisable yes or no.
func (c *VoiceConfirmer) listenOnce(ctx context.Context) (verdict, decided bool, err error) {
	queue := audio.NewFrameQueue(audio.DefaultQueueCapacity)
	if err := c.source.Start(ctx, func(f audio.Frame) {
		queue.Enqueue(f)
	}); err != nil {
		return false, false, fmt.Errorf("command: start confirmation capture: %w", err)
	}
	defer func() {
		if stopErr := c.source.Stop(); stopErr != nil {
			slog.Warn("confirmation capture stop failed", "error", stopErr)
		}
	}()

	var (
		buf        []byte
		sampleRate int
		deadline   = time.Now().Add(c.timeout)
	)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return false, false, err
		}

		f, ok := queue.Dequeue(200 * time.Millisecond)
		if !ok {
			continue
		}
		buf = append(buf, f.Samples...)
		sampleRate = f.SampleRate

		if dur := pcm16Duration(len(buf), sampleRate); dur < c.window {
			continue
		}

		verdict, decided := c.transcribeAndParse(ctx, buf, sampleRate)
		buf = buf[:0]
		if decided {
			return verdict, true, nil
		}
	}

	// Leftover audio from a response spoken right at the deadline.
	if len(buf) > 0 && sampleRate > 0 {
		if verdict, decided := c.transcribeAndParse(ctx, buf, sampleRate); decided {
			return verdict, true, nil
		}
	}
	return false, false, nil
}

// transcribeAndParse runs one gateway pass and interprets the transcript.
func (c *VoiceConfirmer) transcribeAndParse(ctx context.Context, pcm []byte, sampleRate int) (verdict, decided bool) {
	res, err := c.gateway.Transcribe(ctx, pcm, sampleRate)
	if err != nil {
		slog.Warn("confirmation transcription failed", "error", err)
		return false, false
	}
	return ParseConfirmation(res.Text)
}

// ParseConfirmation interprets a transcript as a confirmation response.
// decided is false when the text contains neither a clear affirmative nor a
// clear negative. Affirmatives are checked first.
func ParseConfirmation(text string) (verdict, decided bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return false, false
	}
	for _, w := range affirmativeWords {
		if strings.Contains(text, w) {
			slog.Info("affirmative confirmation detected", "transcript", text)
			return true, true
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(text, w) {
			slog.Info("negative confirmation detected", "transcript", text)
			return false, true
		}
	}
	return false, false
}

// pcm16Duration converts a 16-bit mono PCM byte count to play time.
func pcm16Duration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n/2) * time.Second / time.Duration(sampleRate)
}

// Compile-time assertion that LogOnlyConfirmer satisfies Confirmer.
var _ Confirmer = (*LogOnlyConfirmer)(nil)

// LogOnlyConfirmer records what would have been executed and returns a
// fixed verdict. Used as the "log_only" confirmation method.
type LogOnlyConfirmer struct {
	// Approve is the verdict returned for every command.
	Approve bool
}

// Confirm implements [Confirmer].
func (c *LogOnlyConfirmer) Confirm(_ context.Context, p Pending) (bool, error) {
	slog.Info("log-only confirmation",
		"phrase", p.MatchedPhrase, "command", p.Resolved, "approve", c.Approve)
	return c.Approve, nil
}
