// Package batch transcribes audio files dropped into a watched directory.
//
// Alongside the live microphone pipeline the daemon can act on recordings:
// any WAV file appearing under the watch directory is decoded, chunked, run
// through the transcription gateway, and emitted to the same output sinks as
// live sessions, with the file name as the session ID. The directory is
// polled rather than watched through inotify, matching how the config
// watcher detects changes; a file is only picked up once its size has been
// stable for a full poll interval, so half-written drops are never read.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harkd/hark/internal/output"
	"github.com/harkd/hark/pkg/asr"
)

const (
	defaultPollInterval  = 2 * time.Second
	defaultChunkDuration = 30 * time.Second
)

// Config holds the batch processor settings.
type Config struct {
	// WatchDir is the directory scanned for new WAV files.
	WatchDir string

	// PollInterval is how often the directory is scanned. Default: 2s.
	PollInterval time.Duration

	// ChunkDuration bounds the audio handed to one transcription call.
	// Default: 30s.
	ChunkDuration time.Duration

	// ProcessExisting controls whether files already present at startup
	// are transcribed too. Default false: only new drops are picked up.
	ProcessExisting bool
}

// Processor scans a directory for recordings and transcribes them through
// the gateway. Construct with [New], run with [Processor.Run].
type Processor struct {
	cfg     Config
	gateway asr.Gateway
	emit    func(output.Entry)

	pending   map[string]int64 // path -> last observed size
	processed map[string]struct{}
}

// New creates a Processor emitting one entry per transcribed chunk.
func New(cfg Config, gateway asr.Gateway, emit func(output.Entry)) (*Processor, error) {
	if cfg.WatchDir == "" {
		return nil, fmt.Errorf("batch: watch directory is required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("batch: gateway is required")
	}
	if emit == nil {
		return nil, fmt.Errorf("batch: emit func is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ChunkDuration <= 0 {
		cfg.ChunkDuration = defaultChunkDuration
	}

	if err := os.MkdirAll(cfg.WatchDir, 0o755); err != nil {
		return nil, fmt.Errorf("batch: create watch directory: %w", err)
	}

	p := &Processor{
		cfg:       cfg,
		gateway:   gateway,
		emit:      emit,
		pending:   make(map[string]int64),
		processed: make(map[string]struct{}),
	}

	if !cfg.ProcessExisting {
		// Mark what is already there so only new drops are transcribed.
		for _, path := range p.listRecordings() {
			p.processed[path] = struct{}{}
		}
	}
	return p, nil
}

// Run polls the watch directory until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	slog.Info("batch processor watching for recordings",
		"dir", p.cfg.WatchDir, "poll_interval", p.cfg.PollInterval)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.scan(ctx)
		}
	}
}

// scan picks up new recordings whose size has settled since the last tick.
func (p *Processor) scan(ctx context.Context) {
	for _, path := range p.listRecordings() {
		if _, done := p.processed[path]; done {
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			continue // disappeared between listing and stat
		}

		last, seen := p.pending[path]
		if !seen || info.Size() != last {
			p.pending[path] = info.Size()
			continue
		}

		delete(p.pending, path)
		p.processed[path] = struct{}{}
		p.processFile(ctx, path)
	}
}

// listRecordings returns the WAV files currently in the watch directory.
func (p *Processor) listRecordings() []string {
	dirents, err := os.ReadDir(p.cfg.WatchDir)
	if err != nil {
		slog.Warn("batch scan failed", "dir", p.cfg.WatchDir, "error", err)
		return nil
	}

	var paths []string
	for _, de := range dirents {
		if de.IsDir() || !strings.EqualFold(filepath.Ext(de.Name()), ".wav") {
			continue
		}
		paths = append(paths, filepath.Join(p.cfg.WatchDir, de.Name()))
	}
	return paths
}

// processFile decodes one recording and transcribes it chunk by chunk. A
// file that cannot be decoded is logged and skipped; it is never retried.
func (p *Processor) processFile(ctx context.Context, path string) {
	name := filepath.Base(path)
	slog.Info("transcribing recording", "file", name)

	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("recording unreadable, skipping", "file", name, "error", err)
		return
	}
	audio, err := decodeWAV(data)
	if err != nil {
		slog.Warn("recording not decodable, skipping", "file", name, "error", err)
		return
	}

	chunkBytes := int(p.cfg.ChunkDuration.Seconds()) * audio.sampleRate * 2
	if chunkBytes <= 0 {
		chunkBytes = len(audio.pcm)
	}

	sessionID := "file:" + name
	chunks := 0
	for off := 0; off < len(audio.pcm); off += chunkBytes {
		end := off + chunkBytes
		if end > len(audio.pcm) {
			end = len(audio.pcm)
		}

		res, err := p.gateway.Transcribe(ctx, audio.pcm[off:end], audio.sampleRate)
		if err != nil {
			slog.Warn("recording chunk failed, skipping",
				"file", name, "offset", off, "error", err)
			continue
		}
		text := strings.TrimSpace(res.Text)
		if text == "" {
			continue
		}

		p.emit(output.Entry{
			SessionID: sessionID,
			Text:      text,
			Final:     true,
			At:        time.Now(),
		})
		chunks++
	}

	slog.Info("recording transcribed", "file", name, "chunks", chunks)
}
