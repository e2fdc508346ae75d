// Command harkd is the hark voice command daemon: it listens on the
// microphone for a wake word, transcribes what follows, matches spoken
// power-word phrases against configured shell commands, and fans the
// transcripts out to the configured sinks.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/harkd/hark/internal/app"
	"github.com/harkd/hark/internal/config"
	"github.com/harkd/hark/internal/observe"
	"github.com/harkd/hark/pkg/asr"
	asropenai "github.com/harkd/hark/pkg/asr/openai"
	asrwhisper "github.com/harkd/hark/pkg/asr/whisper"
	"github.com/harkd/hark/pkg/audio/portaudio"
	"github.com/harkd/hark/pkg/wake"
	"github.com/harkd/hark/pkg/wake/textwake"
	"github.com/harkd/hark/pkg/wake/voskwake"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "harkd: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "harkd: %v\n", err)
		}
		return 1
	}

	// The level lives in a LevelVar so a config hot-reload can adjust it
	// without replacing the handler.
	logLevel := new(slog.LevelVar)
	logLevel.Set(cfg.Server.LogLevel.Slog())
	slog.SetDefault(newLogger(logLevel))

	slog.Info("harkd starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics provider ──────────────────────────────────────────────────────
	metricsShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise metrics provider", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsShutdown(shutdownCtx); err != nil {
			slog.Warn("metrics provider shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	providers, err := buildProviders(cfg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithLogLevel(logLevel))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, application.ApplyConfig)
	if err != nil {
		slog.Warn("config watcher unavailable; edit-and-reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("daemon ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
	defer cancel()

	slog.Info("shutdown signal received, stopping")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildProviders instantiates the capture sources, the transcription
// gateway, and the wake-word detector from the config, using the registry
// so alternative implementations can be selected by name.
func buildProviders(cfg *config.Config) (*app.Providers, error) {
	reg := config.NewRegistry()
	registerGateways(reg)

	gateway, err := reg.CreateGateway(cfg.Transcription)
	if err != nil {
		return nil, fmt.Errorf("create transcription gateway %q: %w", cfg.Transcription.Provider, err)
	}
	slog.Info("transcription gateway created", "provider", cfg.Transcription.Provider)

	registerDetectors(reg, gateway, sampleRate(cfg))

	detector, err := reg.CreateDetector(cfg.WakeWord)
	if err != nil {
		return nil, fmt.Errorf("create wake detector %q: %w", cfg.WakeWord.Engine, err)
	}
	slog.Info("wake-word detector created",
		"engine", cfg.WakeWord.Engine,
		"keywords", len(cfg.WakeWord.Keywords),
	)

	providers := &app.Providers{
		Source:   newSource(cfg, cfg.Audio.Device),
		Detector: detector,
		Gateway:  gateway,
	}

	// Voice confirmation needs its own microphone so a spoken "yes" is not
	// swallowed by the session stream.
	pw := cfg.PowerWords
	if pw.RequireConfirmation && pw.ConfirmationMethod != config.ConfirmLogOnly {
		device := cfg.Audio.ConfirmationDevice
		if device == "" {
			device = cfg.Audio.Device
		}
		providers.ConfirmSource = newSource(cfg, device)
	}

	return providers, nil
}

// registerGateways wires the built-in transcription backends into reg.
func registerGateways(reg *config.Registry) {
	reg.RegisterGateway(config.ProviderWhisper, func(tc config.TranscriptionConfig) (asr.Gateway, error) {
		var opts []asrwhisper.Option
		if tc.Language != "" {
			opts = append(opts, asrwhisper.WithLanguage(tc.Language))
		}
		if d := tc.Timeout.Std(); d > 0 {
			opts = append(opts, asrwhisper.WithTimeout(d))
		}
		return asrwhisper.New(tc.ModelPath, opts...)
	})

	reg.RegisterGateway(config.ProviderOpenAI, func(tc config.TranscriptionConfig) (asr.Gateway, error) {
		var opts []asropenai.Option
		if d := tc.Timeout.Std(); d > 0 {
			opts = append(opts, asropenai.WithTimeout(d))
		}
		return asropenai.New(tc.APIKey, tc.BaseURL, opts...)
	})
}

// registerDetectors wires the built-in wake-word engines into reg. The text
// engine reuses the transcription gateway; the vosk engine runs offline.
func registerDetectors(reg *config.Registry, gateway asr.Gateway, rate int) {
	reg.RegisterDetector(config.WakeEngineText, func(wc config.WakeWordConfig) (wake.Detector, error) {
		var opts []textwake.Option
		if d := wc.Window.Std(); d > 0 {
			opts = append(opts, textwake.WithWindow(d))
		}
		if d := wc.Overlap.Std(); d > 0 {
			opts = append(opts, textwake.WithOverlap(d))
		}
		if wc.Threshold > 0 {
			opts = append(opts, textwake.WithThreshold(wc.Threshold))
		}
		return textwake.New(gateway, wc.Keywords, opts...), nil
	})

	reg.RegisterDetector(config.WakeEngineVosk, func(wc config.WakeWordConfig) (wake.Detector, error) {
		return voskwake.New(wc.ModelPath, wc.Keywords, rate)
	})
}

// newSource creates a portaudio capture source from the audio config.
func newSource(cfg *config.Config, device string) *portaudio.Source {
	var opts []portaudio.Option
	if cfg.Audio.SampleRate > 0 {
		opts = append(opts, portaudio.WithSampleRate(cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels > 0 {
		opts = append(opts, portaudio.WithChannels(cfg.Audio.Channels))
	}
	if cfg.Audio.FramesPerBuffer > 0 {
		opts = append(opts, portaudio.WithFramesPerBuffer(cfg.Audio.FramesPerBuffer))
	}
	if device != "" {
		opts = append(opts, portaudio.WithDevice(device))
	}
	return portaudio.New(opts...)
}

// sampleRate returns the configured capture rate, defaulting to 16 kHz.
func sampleRate(cfg *config.Config) int {
	if cfg.Audio.SampleRate > 0 {
		return cfg.Audio.SampleRate
	}
	return 16000
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔════════════════════════════════════════╗")
	fmt.Println("║          hark — startup summary        ║")
	fmt.Println("╠════════════════════════════════════════╣")
	printEntry("Wake engine", string(cfg.WakeWord.Engine))
	printEntry("Keywords", fmt.Sprintf("%d configured", len(cfg.WakeWord.Keywords)))
	printEntry("Transcription", string(cfg.Transcription.Provider))
	if cfg.PowerWords.Enabled {
		printEntry("Power words", fmt.Sprintf("%d mappings", len(cfg.PowerWords.Mappings)))
	} else {
		printEntry("Power words", "(disabled)")
	}
	printEntry("Stop phrase", cfg.Session.StopPhrase)
	if cfg.Server.ListenAddr != "" {
		printEntry("Control API", cfg.Server.ListenAddr)
	} else {
		printEntry("Control API", "(disabled)")
	}
	fmt.Println("╚════════════════════════════════════════╝")
}

func printEntry(kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if utf8.RuneCountInString(value) > 20 {
		value = string([]rune(value)[:17]) + "…"
	}
	fmt.Printf("║  %-14s : %-20s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
