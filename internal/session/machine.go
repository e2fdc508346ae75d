// Package session implements the state machine that turns the continuous
// microphone stream into discrete transcription sessions.
//
// A single goroutine (the engine loop) alternates between two states. While
// Idle it routes frames to the wake-word detector; on activation it creates
// a session with exactly one frame-processor goroutine and one silence-timer
// goroutine, both cancelled and awaited before the engine returns to Idle.
// The frame processor drains the queue into an accumulator and, every chunk
// duration, hands the accumulated audio to the transcription worker pool and
// clears the accumulator. Finalized chunks are checked for the stop phrase,
// matched against the command mappings, and fanned out to the transcript
// callback.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/harkd/hark/internal/command"
	"github.com/harkd/hark/internal/observe"
	"github.com/harkd/hark/pkg/asr"
	"github.com/harkd/hark/pkg/audio"
	"github.com/harkd/hark/pkg/wake"
)

// State is the engine's lifecycle state.
type State string

const (
	// StateIdle means no session is active; frames feed the wake-word
	// detector.
	StateIdle State = "idle"

	// StateListening means a session is active; frames feed the
	// transcription pipeline.
	StateListening State = "listening"
)

// Session end causes, carried through context cancellation.
var (
	errStopPhrase   = errors.New("stop phrase detected")
	errSilence      = errors.New("silence timeout")
	errExternalStop = errors.New("external stop request")
)

const (
	defaultChunkDuration  = 2 * time.Second
	defaultSilenceTimeout = 15 * time.Second
	defaultWorkers        = 4

	// dequeueTimeout bounds every queue wait so control requests and
	// shutdown are noticed even with no audio arriving.
	dequeueTimeout = 200 * time.Millisecond
)

// Transcript is a finalized piece of session text handed to the transcript
// callback.
type Transcript struct {
	SessionID string
	Text      string
	Final     bool
	At        time.Time
}

// TranscriptFunc receives finalized transcripts. It is called from
// transcription workers and must not block for long.
type TranscriptFunc func(Transcript)

// Config is the frozen engine configuration.
type Config struct {
	// ChunkDuration is how much audio accumulates before a transcription
	// call. Default: 2 s.
	ChunkDuration time.Duration

	// SilenceTimeout ends the session after this much continuous
	// silence. Default: 15 s.
	SilenceTimeout time.Duration

	// StopPhrase ends the session when a finalized chunk contains it.
	// The chunk carrying the phrase is consumed, not emitted. Empty
	// disables stop-phrase detection.
	StopPhrase string

	// VoiceThreshold is the RMS level above which a frame counts as
	// voice activity and resets the silence timer. Non-positive falls
	// back to the package default.
	VoiceThreshold float64

	// QueueCapacity bounds the frame queue. Non-positive falls back to
	// the package default.
	QueueCapacity int

	// Workers bounds concurrent transcription calls. Default: 4.
	Workers int

	// GatewayName labels transcription metrics. Default: "asr".
	GatewayName string
}

// Deps are the engine's collaborators. Source, Detector, and Gateway are
// required. Matcher, Authorizer, and Executor are optional as a group: with
// a nil Matcher no command processing happens. Metrics defaults to
// [observe.DefaultMetrics]; OnTranscript may be nil.
type Deps struct {
	Source       audio.Source
	Detector     wake.Detector
	Gateway      asr.Gateway
	Matcher      *command.Matcher
	Authorizer   *command.Authorizer
	Executor     *command.Executor
	Metrics      *observe.Metrics
	OnTranscript TranscriptFunc
}

// sessionInfo is the bookkeeping for one active session.
type sessionInfo struct {
	id          string
	keyword     string
	activatedAt time.Time

	// lastVoice is the UnixNano of the most recent voice activity.
	lastVoice atomic.Int64
}

// Machine orchestrates Idle ⇄ Listening transitions. Exactly one session is
// active at a time; a second activation while listening resets the silence
// timer instead of spawning another session. All exported methods are safe
// for concurrent use.
type Machine struct {
	cfg     Config
	source  audio.Source
	detect  wake.Detector
	gateway asr.Gateway
	matcher *command.Matcher
	auth    *command.Authorizer
	exec    *command.Executor
	metrics *observe.Metrics
	emit    TranscriptFunc

	queue *audio.FrameQueue
	pool  *errgroup.Group

	// runCtx outlives any single session so in-flight transcriptions
	// finish on session end and only shutdown cancels them.
	runCtx context.Context

	startCh chan string
	stopCh  chan struct{}

	// gen increments when a session starts; results from a previous
	// generation are discarded so stale audio never leaks forward.
	gen atomic.Int64
	seq atomic.Int64

	mu      sync.Mutex
	state   State
	current *sessionInfo
}

// New validates deps and creates a Machine. Run must be called before the
// engine processes audio.
func New(cfg Config, deps Deps) (*Machine, error) {
	var errs []error
	if deps.Source == nil {
		errs = append(errs, errors.New("audio source is required"))
	}
	if deps.Detector == nil {
		errs = append(errs, errors.New("wake-word detector is required"))
	}
	if deps.Gateway == nil {
		errs = append(errs, errors.New("transcription gateway is required"))
	}
	if deps.Matcher != nil && (deps.Authorizer == nil || deps.Executor == nil) {
		errs = append(errs, errors.New("matcher requires authorizer and executor"))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("session: %w", errors.Join(errs...))
	}

	if cfg.ChunkDuration <= 0 {
		cfg.ChunkDuration = defaultChunkDuration
	}
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = defaultSilenceTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.GatewayName == "" {
		cfg.GatewayName = "asr"
	}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	m := &Machine{
		cfg:     cfg,
		source:  deps.Source,
		detect:  deps.Detector,
		gateway: deps.Gateway,
		matcher: deps.Matcher,
		auth:    deps.Authorizer,
		exec:    deps.Executor,
		metrics: metrics,
		emit:    deps.OnTranscript,
		startCh: make(chan string, 1),
		stopCh:  make(chan struct{}, 1),
		state:   StateIdle,
	}
	m.queue = audio.NewFrameQueue(cfg.QueueCapacity, audio.WithDropHandler(func(audio.Frame) {
		metrics.FramesDropped.Add(context.Background(), 1)
	}))
	return m, nil
}

// Run starts audio capture and drives the engine loop until ctx is
// cancelled. The capture callback only enqueues; all processing happens on
// the engine's own goroutines.
func (m *Machine) Run(ctx context.Context) error {
	m.runCtx = ctx
	m.pool = &errgroup.Group{}
	m.pool.SetLimit(m.cfg.Workers)

	if err := m.source.Start(ctx, func(f audio.Frame) {
		m.queue.Enqueue(f)
	}); err != nil {
		return fmt.Errorf("session: start audio source: %w", err)
	}
	defer func() {
		if err := m.source.Stop(); err != nil {
			slog.Warn("audio source stop failed", "error", err)
		}
	}()

	slog.Info("session engine running",
		"chunk_duration", m.cfg.ChunkDuration,
		"silence_timeout", m.cfg.SilenceTimeout,
		"stop_phrase", m.cfg.StopPhrase,
		"workers", m.cfg.Workers,
	)

	for {
		act, ok := m.runIdle(ctx)
		if !ok {
			break
		}
		m.runSession(ctx, act)
	}

	// Let already-dispatched transcriptions finish; their results are
	// discarded by the generation check.
	_ = m.pool.Wait()
	slog.Info("session engine stopped")
	return nil
}

// runIdle feeds frames to the wake-word detector until an activation or an
// external start request arrives. ok is false when ctx ended.
func (m *Machine) runIdle(ctx context.Context) (wake.Activation, bool) {
	for {
		select {
		case <-ctx.Done():
			return wake.Activation{}, false
		case kw := <-m.startCh:
			return wake.Activation{Keyword: kw, Confidence: 1, At: time.Now()}, true
		default:
		}

		// A stop request with no session active is a no-op.
		select {
		case <-m.stopCh:
		default:
		}

		f, ok := m.queue.Dequeue(dequeueTimeout)
		if !ok {
			continue
		}
		if act, fired := m.detect.Detect(ctx, f); fired {
			return act, true
		}
	}
}

// runSession owns one session from activation to teardown. It starts the
// frame processor and the silence timer, waits for both to exit, and leaves
// the engine Idle with the queue drained and the detector reset.
func (m *Machine) runSession(ctx context.Context, act wake.Activation) {
	sess := &sessionInfo{
		id:          fmt.Sprintf("session-%d", m.seq.Add(1)),
		keyword:     act.Keyword,
		activatedAt: time.Now(),
	}
	sess.lastVoice.Store(sess.activatedAt.UnixNano())
	gen := m.gen.Add(1)

	sessCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	m.mu.Lock()
	m.state = StateListening
	m.current = sess
	m.mu.Unlock()

	m.metrics.ActiveSessions.Add(ctx, 1)
	m.metrics.RecordActivation(ctx, act.Keyword)
	slog.Info("session started", "session", sess.id, "keyword", act.Keyword)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.processFrames(sessCtx, cancel, sess, gen)
	}()
	go func() {
		defer wg.Done()
		m.watchSilence(sessCtx, cancel, sess)
	}()
	wg.Wait()

	drained := m.queue.Drain()
	m.detect.Reset()

	m.mu.Lock()
	m.state = StateIdle
	m.current = nil
	m.mu.Unlock()

	cause := endCause(sessCtx)
	m.metrics.ActiveSessions.Add(ctx, -1)
	m.metrics.RecordSessionEnd(ctx, cause)
	slog.Info("session ended",
		"session", sess.id, "cause", cause,
		"duration", time.Since(sess.activatedAt), "drained_frames", drained)
}

// processFrames is the single per-session frame-processor goroutine. It
// accumulates audio and dispatches one transcription per chunk boundary,
// clearing the accumulator each time so no chunk ever reprocesses earlier
// audio.
func (m *Machine) processFrames(sessCtx context.Context, cancel context.CancelCauseFunc, sess *sessionInfo, gen int64) {
	var (
		accumulator []byte
		sampleRate  int
	)

	flush := func() {
		if len(accumulator) == 0 || sampleRate <= 0 {
			return
		}
		pcm := make([]byte, len(accumulator))
		copy(pcm, accumulator)
		accumulator = accumulator[:0]
		m.dispatchChunk(sess, gen, pcm, sampleRate, cancel)
	}

	for {
		select {
		case <-sessCtx.Done():
			flush()
			return
		case <-m.startCh:
			// Second activation while listening: no new session,
			// just a silence-timer reset.
			sess.lastVoice.Store(time.Now().UnixNano())
			slog.Debug("activation while listening, silence timer reset", "session", sess.id)
			continue
		case <-m.stopCh:
			cancel(errExternalStop)
			continue
		default:
		}

		f, ok := m.queue.Dequeue(dequeueTimeout)
		if !ok {
			continue
		}
		if sampleRate == 0 {
			sampleRate = f.SampleRate
		}
		accumulator = append(accumulator, f.Samples...)
		if audio.HasVoice(f, m.cfg.VoiceThreshold) {
			sess.lastVoice.Store(time.Now().UnixNano())
		}

		if pcm16Duration(len(accumulator), sampleRate) >= m.cfg.ChunkDuration {
			flush()
		}
	}
}

// watchSilence is the single per-session silence-timer goroutine.
func (m *Machine) watchSilence(sessCtx context.Context, cancel context.CancelCauseFunc, sess *sessionInfo) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sessCtx.Done():
			return
		case <-ticker.C:
			last := time.Unix(0, sess.lastVoice.Load())
			if time.Since(last) >= m.cfg.SilenceTimeout {
				slog.Info("silence timeout reached",
					"session", sess.id, "timeout", m.cfg.SilenceTimeout)
				cancel(errSilence)
				return
			}
		}
	}
}

// dispatchChunk hands one chunk to the bounded worker pool. The call runs
// under the engine context, not the session context: an in-flight
// transcription is allowed to finish on session end, and the generation
// check discards its result if a newer session has started.
func (m *Machine) dispatchChunk(sess *sessionInfo, gen int64, pcm []byte, sampleRate int, cancel context.CancelCauseFunc) {
	m.pool.Go(func() error {
		started := time.Now()
		res, err := m.gateway.Transcribe(m.runCtx, pcm, sampleRate)
		latency := time.Since(started)
		if err != nil {
			// Chunk skipped, session continues; stale audio is
			// never retried.
			m.metrics.RecordTranscription(m.runCtx, m.cfg.GatewayName, "error", latency)
			slog.Warn("transcription failed, chunk skipped",
				"session", sess.id, "error", err)
			return nil
		}
		m.metrics.RecordTranscription(m.runCtx, m.cfg.GatewayName, "ok", latency)

		text := strings.TrimSpace(res.Text)
		if text == "" {
			return nil
		}
		if m.gen.Load() != gen {
			slog.Debug("discarding transcript from superseded session",
				"session", sess.id, "text", text)
			return nil
		}

		// Stop phrase first: the chunk carrying it is consumed.
		if m.cfg.StopPhrase != "" &&
			strings.Contains(strings.ToLower(text), strings.ToLower(m.cfg.StopPhrase)) {
			slog.Info("stop phrase detected", "session", sess.id, "phrase", m.cfg.StopPhrase)
			cancel(errStopPhrase)
			return nil
		}

		emitText := text
		if m.matcher != nil {
			pendings, remainder := m.matcher.Match(text)
			emitText = remainder
			for _, p := range pendings {
				m.metrics.CommandMatches.Add(m.runCtx, 1)
				// Authorization can wait on voice confirmation for
				// many seconds; it must not hold a pool slot.
				go m.authorizeAndExecute(p)
			}
		}

		if emitText != "" && m.emit != nil {
			m.emit(Transcript{
				SessionID: sess.id,
				Text:      emitText,
				Final:     true,
				At:        time.Now(),
			})
			m.metrics.TranscriptChunks.Add(m.runCtx, 1)
		}
		return nil
	})
}

// authorizeAndExecute runs one pending command through the authorizer and,
// on approval, dispatches execution. Failures never touch session state.
func (m *Machine) authorizeAndExecute(p command.Pending) {
	d := m.auth.Authorize(m.runCtx, p)
	m.metrics.RecordDecision(m.runCtx, d.Approved, string(d.Safety))
	if !d.Approved {
		return
	}
	m.exec.Dispatch(m.runCtx, p.Resolved, func(r command.Result) {
		status := "ok"
		switch {
		case r.TimedOut:
			status = "timeout"
		case r.Err != nil || r.ExitCode != 0:
			status = "error"
		}
		m.metrics.RecordExecution(m.runCtx, status, r.Duration)
	})
}

// StartSession forces Idle → Listening as if a wake word had fired. While
// already listening it resets the silence timer; a session is never
// duplicated.
func (m *Machine) StartSession() {
	select {
	case m.startCh <- "external":
	default:
	}
}

// StopSession forces Listening → Idle. A no-op while idle.
func (m *Machine) StopSession() {
	select {
	case m.stopCh <- struct{}{}:
	default:
	}
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status is a point-in-time snapshot of the engine for the control surface.
type Status struct {
	State         State     `json:"state"`
	SessionID     string    `json:"session_id,omitempty"`
	Keyword       string    `json:"keyword,omitempty"`
	ActivatedAt   time.Time `json:"activated_at,omitzero"`
	QueueLen      int       `json:"queue_len"`
	QueueCap      int       `json:"queue_cap"`
	FramesDropped int64     `json:"frames_dropped"`
}

// Status returns a snapshot of the engine.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Status{
		State:         m.state,
		QueueLen:      m.queue.Len(),
		QueueCap:      m.queue.Cap(),
		FramesDropped: m.queue.Dropped(),
	}
	if m.current != nil {
		s.SessionID = m.current.id
		s.Keyword = m.current.keyword
		s.ActivatedAt = m.current.activatedAt
	}
	return s
}

// ReloadMappings atomically replaces the command mapping set.
func (m *Machine) ReloadMappings(mappings []command.Mapping) error {
	if m.matcher == nil {
		return errors.New("session: command matching is not configured")
	}
	return m.matcher.Reload(mappings)
}

// endCause maps a session context's cancellation cause to a metric label.
func endCause(sessCtx context.Context) string {
	switch cause := context.Cause(sessCtx); {
	case errors.Is(cause, errStopPhrase):
		return "stop_phrase"
	case errors.Is(cause, errSilence):
		return "silence"
	case errors.Is(cause, errExternalStop):
		return "external"
	default:
		return "shutdown"
	}
}

// pcm16Duration converts a 16-bit mono PCM byte count to play time.
func pcm16Duration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n/2) * time.Second / time.Duration(sampleRate)
}
