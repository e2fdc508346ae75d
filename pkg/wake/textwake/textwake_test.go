package textwake_test

import (
	"context"
	"testing"
	"time"

	"github.com/harkd/hark/pkg/asr/mock"
	"github.com/harkd/hark/pkg/audio"
	"github.com/harkd/hark/pkg/wake/textwake"
)

func pcmFrame(ms int) audio.Frame {
	return audio.Frame{
		Samples:    make([]byte, 16000*2*ms/1000),
		SampleRate: 16000,
		Channels:   1,
		CapturedAt: time.Now(),
	}
}

func TestDetector_ExactMatch(t *testing.T) {
	t.Parallel()

	gw := mock.New("okay hey hark turn on the lights")
	det := textwake.New(gw, []string{"hey hark"}, textwake.WithWindow(100*time.Millisecond))

	act, ok := det.Detect(context.Background(), pcmFrame(100))
	if !ok {
		t.Fatal("expected activation")
	}
	if act.Keyword != "hey hark" {
		t.Errorf("Keyword = %q, want %q", act.Keyword, "hey hark")
	}
	if act.Confidence != 1 {
		t.Errorf("Confidence = %v, want 1 for exact match", act.Confidence)
	}
}

func TestDetector_FuzzyMatch(t *testing.T) {
	t.Parallel()

	// A mis-transcription that is phonetically and textually close.
	gw := mock.New("hey harc")
	det := textwake.New(gw, []string{"hey hark"}, textwake.WithWindow(100*time.Millisecond))

	act, ok := det.Detect(context.Background(), pcmFrame(100))
	if !ok {
		t.Fatal("expected fuzzy activation")
	}
	if act.Keyword != "hey hark" {
		t.Errorf("Keyword = %q, want configured form", act.Keyword)
	}
	if act.Confidence >= 1 || act.Confidence < 0.7 {
		t.Errorf("Confidence = %v, want fuzzy score in [0.7, 1)", act.Confidence)
	}
}

func TestDetector_NoMatch(t *testing.T) {
	t.Parallel()

	gw := mock.New("completely unrelated speech about the weather")
	det := textwake.New(gw, []string{"hey hark"}, textwake.WithWindow(100*time.Millisecond))

	if _, ok := det.Detect(context.Background(), pcmFrame(100)); ok {
		t.Fatal("unexpected activation")
	}
}

func TestDetector_AccumulatesUntilWindowFull(t *testing.T) {
	t.Parallel()

	gw := mock.New("hey hark")
	det := textwake.New(gw, []string{"hey hark"}, textwake.WithWindow(100*time.Millisecond))

	// Half a window: no gateway call yet.
	if _, ok := det.Detect(context.Background(), pcmFrame(50)); ok {
		t.Fatal("activation before window filled")
	}
	if gw.CallCount() != 0 {
		t.Fatalf("gateway called %d times before window filled", gw.CallCount())
	}

	// Second half completes the window.
	if _, ok := det.Detect(context.Background(), pcmFrame(50)); !ok {
		t.Fatal("expected activation once window filled")
	}
	if gw.CallCount() != 1 {
		t.Errorf("gateway calls = %d, want 1", gw.CallCount())
	}
}

func TestDetector_NoDoubleFirePerUtterance(t *testing.T) {
	t.Parallel()

	// The same utterance would match again if buffered audio survived a
	// detection. The buffer is cleared on fire, so the next window needs
	// fresh audio and a fresh transcript.
	gw := mock.New("hey hark", "hey hark leftover")
	det := textwake.New(gw, []string{"hey hark"},
		textwake.WithWindow(100*time.Millisecond),
		textwake.WithOverlap(50*time.Millisecond))

	if _, ok := det.Detect(context.Background(), pcmFrame(100)); !ok {
		t.Fatal("expected first activation")
	}

	// Immediately after firing, a frame smaller than the window must not
	// trigger another recognition pass off stale audio.
	if _, ok := det.Detect(context.Background(), pcmFrame(50)); ok {
		t.Fatal("fired again without a full fresh window")
	}
	if gw.CallCount() != 1 {
		t.Errorf("gateway calls = %d, want 1", gw.CallCount())
	}
}

func TestDetector_ResetDiscardsBufferedAudio(t *testing.T) {
	t.Parallel()

	gw := mock.New("hey hark")
	det := textwake.New(gw, []string{"hey hark"}, textwake.WithWindow(100*time.Millisecond))

	det.Detect(context.Background(), pcmFrame(90))
	det.Reset()

	// Post-reset frame alone is below the window, so nothing fires.
	if _, ok := det.Detect(context.Background(), pcmFrame(50)); ok {
		t.Fatal("buffered audio survived Reset")
	}
	if gw.CallCount() != 0 {
		t.Errorf("gateway calls = %d, want 0", gw.CallCount())
	}
}

func TestDetector_GatewayErrorSkipsFrame(t *testing.T) {
	t.Parallel()

	gw := mock.New()
	gw.Err = context.DeadlineExceeded
	det := textwake.New(gw, []string{"hey hark"}, textwake.WithWindow(100*time.Millisecond))

	if _, ok := det.Detect(context.Background(), pcmFrame(100)); ok {
		t.Fatal("activation despite gateway failure")
	}
}
