package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Compile-time assertion that FileSink satisfies Sink.
var _ Sink = (*FileSink)(nil)

// FileSink appends transcripts to a text file, one timestamped line per
// entry. The parent directory is created on first use.
type FileSink struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// NewFileSink creates a FileSink appending to path.
func NewFileSink(path string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("output: file path must not be empty")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("output: create transcript directory %q: %w", dir, err)
		}
	}
	return &FileSink{path: path}, nil
}

// Name implements [Sink].
func (s *FileSink) Name() string { return "file" }

// Write implements [Sink]. The file is opened lazily and kept open across
// writes.
func (s *FileSink) Write(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("output: open transcript file %q: %w", s.path, err)
		}
		s.f = f
	}

	_, err := fmt.Fprintf(s.f, "[%s] %s\n", e.At.Format("2006-01-02 15:04:05"), e.Text)
	if err != nil {
		return fmt.Errorf("output: append transcript: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
