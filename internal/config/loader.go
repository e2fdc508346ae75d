package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels < 0 || cfg.Audio.Channels > 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is out of range [0, 2]", cfg.Audio.Channels))
	}

	// Wake word
	if cfg.WakeWord.Engine != "" && !cfg.WakeWord.Engine.IsValid() {
		errs = append(errs, fmt.Errorf("wake_word.engine %q is invalid; valid values: text, vosk", cfg.WakeWord.Engine))
	}
	if len(cfg.WakeWord.Keywords) == 0 {
		errs = append(errs, errors.New("wake_word.keywords requires at least one keyword"))
	}
	for i, kw := range cfg.WakeWord.Keywords {
		if kw == "" {
			errs = append(errs, fmt.Errorf("wake_word.keywords[%d] must not be empty", i))
		}
	}
	if cfg.WakeWord.Engine == WakeEngineVosk && cfg.WakeWord.ModelPath == "" {
		errs = append(errs, errors.New("wake_word.model_path is required when engine is vosk"))
	}
	if cfg.WakeWord.Threshold < 0 || cfg.WakeWord.Threshold > 1 {
		errs = append(errs, fmt.Errorf("wake_word.threshold %.2f is out of range [0, 1]", cfg.WakeWord.Threshold))
	}
	if cfg.WakeWord.Overlap > 0 && cfg.WakeWord.Window > 0 && cfg.WakeWord.Overlap >= cfg.WakeWord.Window {
		errs = append(errs, fmt.Errorf("wake_word.overlap %s must be shorter than wake_word.window %s",
			cfg.WakeWord.Overlap.Std(), cfg.WakeWord.Window.Std()))
	}

	// Transcription
	if cfg.Transcription.Provider != "" && !cfg.Transcription.Provider.IsValid() {
		errs = append(errs, fmt.Errorf("transcription.provider %q is invalid; valid values: whisper, openai", cfg.Transcription.Provider))
	}
	if cfg.Transcription.Provider == ProviderWhisper && cfg.Transcription.ModelPath == "" {
		errs = append(errs, errors.New("transcription.model_path is required when provider is whisper"))
	}
	if cfg.Transcription.Provider == ProviderOpenAI && cfg.Transcription.APIKey == "" {
		errs = append(errs, errors.New("transcription.api_key is required when provider is openai"))
	}

	// Power words
	for i, m := range cfg.PowerWords.Mappings {
		prefix := fmt.Sprintf("power_words.mappings[%d]", i)
		if m.Phrase == "" {
			errs = append(errs, fmt.Errorf("%s.phrase is required", prefix))
		}
		if m.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required", prefix))
		}
	}
	if cfg.PowerWords.ConfirmationMethod != "" && !cfg.PowerWords.ConfirmationMethod.IsValid() {
		errs = append(errs, fmt.Errorf("power_words.confirmation_method %q is invalid; valid values: voice, log_only", cfg.PowerWords.ConfirmationMethod))
	}
	if cfg.PowerWords.ConfirmationRetries < 0 {
		errs = append(errs, fmt.Errorf("power_words.confirmation_retries %d must not be negative", cfg.PowerWords.ConfirmationRetries))
	}
	if cfg.PowerWords.MaxCommandLength < 0 {
		errs = append(errs, fmt.Errorf("power_words.max_command_length %d must not be negative", cfg.PowerWords.MaxCommandLength))
	}
	if cfg.PowerWords.Enabled && len(cfg.PowerWords.Mappings) == 0 {
		slog.Warn("power_words.enabled is set but no mappings are configured; no commands will ever match")
	}
	if cfg.PowerWords.Enabled && !cfg.PowerWords.RequireConfirmation && !cfg.PowerWords.AutoApproveSafe {
		slog.Warn("power_words confirmation is disabled; matched commands of unknown safety will run unconfirmed")
	}

	// Outputs
	if !cfg.Outputs.Console && cfg.Outputs.File == "" && !cfg.Outputs.Clipboard &&
		!cfg.Outputs.Notify && cfg.Outputs.PostgresDSN == "" {
		slog.Warn("no output sinks configured; transcripts will only be visible in logs")
	}

	return errors.Join(errs...)
}
