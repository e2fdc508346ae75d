package batch_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/harkd/hark/internal/batch"
	"github.com/harkd/hark/internal/output"
	asrmock "github.com/harkd/hark/pkg/asr/mock"
)

// collector records emitted entries.
type collector struct {
	mu      sync.Mutex
	entries []output.Entry
}

func (c *collector) emit(e output.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

func (c *collector) snapshot() []output.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]output.Entry(nil), c.entries...)
}

// testWAV builds a one-second 16 kHz mono recording.
func testWAV() []byte {
	pcm := make([]byte, 32000)
	for i := 0; i < len(pcm); i += 2 {
		binary.LittleEndian.PutUint16(pcm[i:], 0x2000)
	}

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint32(16000))
	binary.Write(buf, binary.LittleEndian, uint32(32000))
	binary.Write(buf, binary.LittleEndian, uint16(2))
	binary.Write(buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

func newTestProcessor(t *testing.T, dir string, gw *asrmock.Gateway, existing bool) (*batch.Processor, *collector) {
	t.Helper()
	col := &collector{}
	p, err := batch.New(batch.Config{
		WatchDir:        dir,
		PollInterval:    20 * time.Millisecond,
		ProcessExisting: existing,
	}, gw, col.emit)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return p, col
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestProcessor_TranscribesDroppedRecording(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	gw := asrmock.New("meeting notes from tuesday")
	p, col := newTestProcessor(t, dir, gw, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	if err := os.WriteFile(filepath.Join(dir, "meeting.wav"), testWAV(), 0o644); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, 5*time.Second, func() bool { return len(col.snapshot()) > 0 }) {
		t.Fatal("no transcript emitted for dropped recording")
	}

	got := col.snapshot()[0]
	if got.SessionID != "file:meeting.wav" {
		t.Errorf("session = %q, want file:meeting.wav", got.SessionID)
	}
	if got.Text != "meeting notes from tuesday" {
		t.Errorf("text = %q", got.Text)
	}
	if !got.Final {
		t.Error("entry not marked final")
	}
}

func TestProcessor_ProcessesEachFileOnce(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	gw := asrmock.New("once")
	p, col := newTestProcessor(t, dir, gw, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	if err := os.WriteFile(filepath.Join(dir, "take.wav"), testWAV(), 0o644); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, 5*time.Second, func() bool { return gw.CallCount() > 0 }) {
		t.Fatal("recording was never transcribed")
	}

	// Several more polls pass; the file is not picked up again.
	time.Sleep(200 * time.Millisecond)
	if n := gw.CallCount(); n != 1 {
		t.Errorf("transcribe calls = %d, want 1", n)
	}
	if n := len(col.snapshot()); n != 1 {
		t.Errorf("entries = %d, want 1", n)
	}
}

func TestProcessor_SkipsExistingUnlessConfigured(t *testing.T) {
	t.Parallel()

	t.Run("existing files ignored by default", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "old.wav"), testWAV(), 0o644); err != nil {
			t.Fatal(err)
		}

		gw := asrmock.New("old recording")
		p, col := newTestProcessor(t, dir, gw, false)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go p.Run(ctx)

		time.Sleep(200 * time.Millisecond)
		if n := len(col.snapshot()); n != 0 {
			t.Errorf("entries = %d, want 0 for a pre-existing file", n)
		}
	})

	t.Run("existing files processed when enabled", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "old.wav"), testWAV(), 0o644); err != nil {
			t.Fatal(err)
		}

		gw := asrmock.New("old recording")
		p, col := newTestProcessor(t, dir, gw, true)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go p.Run(ctx)

		if !waitFor(t, 5*time.Second, func() bool { return len(col.snapshot()) > 0 }) {
			t.Fatal("pre-existing recording was not transcribed")
		}
	})
}

func TestProcessor_IgnoresOtherFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	gw := asrmock.New()
	p, col := newTestProcessor(t, dir, gw, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.wav"), []byte("not a wave file"), 0o644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(200 * time.Millisecond)
	if n := len(col.snapshot()); n != 0 {
		t.Errorf("entries = %d, want 0", n)
	}
	if n := gw.CallCount(); n != 0 {
		t.Errorf("transcribe calls = %d, want 0", n)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	gw := asrmock.New()
	emit := func(output.Entry) {}

	if _, err := batch.New(batch.Config{}, gw, emit); err == nil {
		t.Error("expected error for missing watch dir")
	}
	if _, err := batch.New(batch.Config{WatchDir: t.TempDir()}, nil, emit); err == nil {
		t.Error("expected error for nil gateway")
	}
	if _, err := batch.New(batch.Config{WatchDir: t.TempDir()}, gw, nil); err == nil {
		t.Error("expected error for nil emit func")
	}
}
