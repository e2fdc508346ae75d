// Package app wires all hark subsystems into a running daemon.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the capture pipeline and the control server,
// and Shutdown tears everything down in reverse order.
//
// For testing, inject mock implementations via the Providers struct and
// functional options. When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/harkd/hark/internal/batch"
	"github.com/harkd/hark/internal/command"
	"github.com/harkd/hark/internal/config"
	"github.com/harkd/hark/internal/health"
	"github.com/harkd/hark/internal/observe"
	"github.com/harkd/hark/internal/output"
	"github.com/harkd/hark/internal/output/postgres"
	"github.com/harkd/hark/internal/server"
	"github.com/harkd/hark/internal/session"
	"github.com/harkd/hark/pkg/asr"
	"github.com/harkd/hark/pkg/audio"
	"github.com/harkd/hark/pkg/wake"
)

// Providers holds the capture and recognition implementations. Populated by
// main.go via the config registry; tests inject mocks.
type Providers struct {
	// Source is the main microphone stream.
	Source audio.Source

	// ConfirmSource is the independent microphone used for voice
	// confirmations. Nil disables voice confirmation even when configured.
	ConfirmSource audio.Source

	// Detector is the wake-word detector.
	Detector wake.Detector

	// Gateway is the transcription backend.
	Gateway asr.Gateway
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	logLevel  *slog.LevelVar

	machine    *session.Machine
	dispatcher *output.Dispatcher
	hub        *server.Hub
	store      *postgres.Store
	srv        *server.Server
	batch      *batch.Processor

	// closers are called in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics injects a metrics set instead of using the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel hands the App the root logger's level so config hot-reloads
// can adjust verbosity at runtime.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithSink registers an extra transcript sink ahead of the configured ones.
func WithSink(s output.Sink) Option {
	return func(a *App) {
		if a.dispatcher == nil {
			a.dispatcher = output.NewDispatcher()
		}
		a.dispatcher.Add(s)
	}
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.dispatcher == nil {
		a.dispatcher = output.NewDispatcher()
	}

	if err := a.initSinks(ctx); err != nil {
		return nil, fmt.Errorf("app: init sinks: %w", err)
	}

	machine, err := a.buildMachine()
	if err != nil {
		return nil, fmt.Errorf("app: init session machine: %w", err)
	}
	a.machine = machine

	if cfg.Server.ListenAddr != "" {
		if err := a.initServer(); err != nil {
			return nil, fmt.Errorf("app: init server: %w", err)
		}
	}

	if cfg.Batch.WatchDir != "" {
		proc, err := batch.New(batch.Config{
			WatchDir:        cfg.Batch.WatchDir,
			PollInterval:    cfg.Batch.PollInterval.Std(),
			ChunkDuration:   cfg.Batch.ChunkDuration.Std(),
			ProcessExisting: cfg.Batch.ProcessExisting,
		}, providers.Gateway, func(e output.Entry) {
			a.dispatcher.Dispatch(context.Background(), e)
		})
		if err != nil {
			return nil, fmt.Errorf("app: init batch processor: %w", err)
		}
		a.batch = proc
	}

	return a, nil
}

// initSinks builds the transcript fan-out from the outputs config.
func (a *App) initSinks(ctx context.Context) error {
	out := a.cfg.Outputs

	if out.Console {
		a.dispatcher.Add(output.NewConsoleSink())
	}
	if out.File != "" {
		fs, err := output.NewFileSink(out.File)
		if err != nil {
			return err
		}
		a.dispatcher.Add(fs)
		a.closers = append(a.closers, fs.Close)
	}
	if out.Clipboard {
		a.dispatcher.Add(output.NewClipboardSink())
	}
	if out.Notify {
		a.dispatcher.Add(output.NewNotifySink("hark"))
	}
	if out.PostgresDSN != "" {
		store, err := postgres.NewStore(ctx, out.PostgresDSN)
		if err != nil {
			return err
		}
		a.store = store
		a.dispatcher.Add(store)
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
	}

	slog.Info("transcript sinks configured", "count", a.dispatcher.Len())
	return nil
}

// buildMachine assembles the command layer and the session state machine.
func (a *App) buildMachine() (*session.Machine, error) {
	deps := session.Deps{
		Source:   a.providers.Source,
		Detector: a.providers.Detector,
		Gateway:  a.providers.Gateway,
		Metrics:  a.metrics,
		OnTranscript: func(t session.Transcript) {
			a.dispatcher.Dispatch(context.Background(), output.Entry{
				SessionID: t.SessionID,
				Text:      t.Text,
				Final:     t.Final,
				At:        t.At,
			})
		},
	}

	pw := a.cfg.PowerWords
	if pw.Enabled || len(pw.Mappings) > 0 {
		matcher, err := command.NewMatcher(configMappings(pw.Mappings))
		if err != nil {
			return nil, err
		}
		deps.Matcher = matcher
		deps.Authorizer = command.NewAuthorizer(configPolicy(pw), a.buildConfirmer())
		deps.Executor = command.NewExecutor(execOptions(pw)...)
	}

	sess := a.cfg.Session
	cfg := session.Config{
		ChunkDuration:  sess.ChunkDuration.Std(),
		SilenceTimeout: sess.SilenceTimeout.Std(),
		StopPhrase:     sess.StopPhrase,
		VoiceThreshold: sess.VoiceThreshold,
		QueueCapacity:  sess.QueueCapacity,
		Workers:        sess.Workers,
		GatewayName:    string(a.cfg.Transcription.Provider),
	}
	return session.New(cfg, deps)
}

// buildConfirmer creates the confirmer selected by the config. A voice
// confirmer needs its own microphone; without one the log-only fallback is
// used so commands are never silently approved.
func (a *App) buildConfirmer() command.Confirmer {
	pw := a.cfg.PowerWords
	if !pw.RequireConfirmation {
		return nil
	}

	if pw.ConfirmationMethod == config.ConfirmVoice && a.providers.ConfirmSource != nil {
		var opts []command.VoiceOption
		if d := pw.ConfirmationTimeout.Std(); d > 0 {
			opts = append(opts, command.WithConfirmTimeout(d))
		}
		if pw.ConfirmationRetries > 0 {
			opts = append(opts, command.WithConfirmRetries(pw.ConfirmationRetries))
		}
		return command.NewVoiceConfirmer(a.providers.ConfirmSource, a.providers.Gateway, opts...)
	}

	if pw.ConfirmationMethod == config.ConfirmLogOnly {
		return &command.LogOnlyConfirmer{Approve: true}
	}
	slog.Warn("voice confirmation configured but no confirmation microphone available; denying unconfirmed commands")
	return &command.LogOnlyConfirmer{Approve: false}
}

// initServer assembles the health handler, websocket hub, and control server.
func (a *App) initServer() error {
	checkers := []health.Checker{
		{Name: "session", Check: func(_ context.Context) error {
			// The machine always reports a state once running.
			if s := a.machine.State(); s != session.StateIdle && s != session.StateListening {
				return fmt.Errorf("unexpected state %q", s)
			}
			return nil
		}},
	}
	if a.store != nil {
		checkers = append(checkers, health.Checker{Name: "postgres", Check: a.store.Ping})
	}

	a.hub = server.NewHub()
	a.dispatcher.Add(a.hub)

	// A typed nil store must not become a non-nil History interface.
	var history server.History
	if a.store != nil {
		history = a.store
	}

	srv, err := server.New(
		server.Config{ListenAddr: a.cfg.Server.ListenAddr},
		a.machine,
		a.reloadCommands,
		a.hub,
		health.New(checkers...),
		history,
		a.metrics,
	)
	if err != nil {
		return err
	}
	a.srv = srv
	return nil
}

// reloadCommands swaps the active command mappings for the current config's.
// Used by the POST /commands/reload endpoint; the config watcher calls
// ApplyConfig instead.
func (a *App) reloadCommands(_ context.Context) error {
	return a.machine.ReloadMappings(configMappings(a.cfg.PowerWords.Mappings))
}

// ApplyConfig applies a hot-reloaded config. Only command mappings and the
// log level are picked up at runtime; other changes require a restart.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Any() {
		return
	}

	if d.LogLevelChanged {
		if a.logLevel != nil {
			a.logLevel.Set(d.NewLogLevel.Slog())
			slog.Info("log level updated", "level", d.NewLogLevel)
		} else {
			slog.Warn("log level changed on disk but the logger is not adjustable; restart to apply")
		}
	}

	if d.MappingsChanged {
		if err := a.machine.ReloadMappings(configMappings(new.PowerWords.Mappings)); err != nil {
			slog.Warn("mapping reload failed, keeping previous mappings", "error", err)
		} else {
			slog.Info("command mappings reloaded", "count", len(new.PowerWords.Mappings))
		}
	}
	if d.PolicyChanged {
		slog.Warn("authorization policy changed on disk; restart to apply")
	}

	a.cfg = new
}

// Machine exposes the session machine, for tests and the CLI.
func (a *App) Machine() *session.Machine { return a.machine }

// Run starts the capture pipeline and the control server, blocking until
// ctx is cancelled or a subsystem fails.
func (a *App) Run(ctx context.Context) error {
	g, runCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.machine.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("session machine: %w", err)
		}
		return nil
	})

	if a.srv != nil {
		g.Go(func() error {
			return a.srv.Run(runCtx)
		})
	}

	if a.batch != nil {
		g.Go(func() error {
			if err := a.batch.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("batch processor: %w", err)
			}
			return nil
		})
	}

	slog.Info("hark running",
		"wake_engine", a.cfg.WakeWord.Engine,
		"transcription", a.cfg.Transcription.Provider,
		"power_words", a.cfg.PowerWords.Enabled,
	)
	return g.Wait()
}

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// configMappings converts config mapping entries to the command layer's type.
func configMappings(in []config.MappingConfig) []command.Mapping {
	out := make([]command.Mapping, len(in))
	for i, m := range in {
		out[i] = command.Mapping{Phrase: m.Phrase, Command: m.Command}
	}
	return out
}

// configPolicy converts the power-words config to an authorization policy.
func configPolicy(pw config.PowerWordsConfig) command.Policy {
	return command.Policy{
		Enabled:             pw.Enabled,
		MaxCommandLength:    pw.MaxCommandLength,
		Blocked:             pw.Blocked,
		Allowed:             pw.Allowed,
		DangerousKeywords:   pw.DangerousKeywords,
		RequireConfirmation: pw.RequireConfirmation,
		AutoApproveSafe:     pw.AutoApproveSafe,
	}
}

// execOptions derives executor options from the power-words config.
func execOptions(pw config.PowerWordsConfig) []command.ExecOption {
	var opts []command.ExecOption
	if pw.WorkDir != "" {
		opts = append(opts, command.WithWorkDir(pw.WorkDir))
	}
	return opts
}

// ShutdownTimeout is the default grace period main.go gives Shutdown.
const ShutdownTimeout = 15 * time.Second
