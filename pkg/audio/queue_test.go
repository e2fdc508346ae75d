package audio_test

import (
	"sync"
	"testing"
	"time"

	"github.com/harkd/hark/pkg/audio"
)

func frame(b byte) audio.Frame {
	return audio.Frame{
		Samples:    []byte{b, 0},
		SampleRate: 16000,
		Channels:   1,
		CapturedAt: time.Now(),
	}
}

func TestFrameQueue_FIFO(t *testing.T) {
	t.Parallel()

	q := audio.NewFrameQueue(4)
	for i := range 3 {
		if !q.Enqueue(frame(byte(i))) {
			t.Fatalf("Enqueue(%d) dropped unexpectedly", i)
		}
	}

	for i := range 3 {
		f, ok := q.Dequeue(time.Second)
		if !ok {
			t.Fatalf("Dequeue(%d) timed out", i)
		}
		if f.Samples[0] != byte(i) {
			t.Errorf("Dequeue order: got %d, want %d", f.Samples[0], i)
		}
	}
}

func TestFrameQueue_DropNewestOnFull(t *testing.T) {
	t.Parallel()

	var dropped []byte
	q := audio.NewFrameQueue(2, audio.WithDropHandler(func(f audio.Frame) {
		dropped = append(dropped, f.Samples[0])
	}))

	if !q.Enqueue(frame(1)) || !q.Enqueue(frame(2)) {
		t.Fatal("first two frames should fit")
	}
	if q.Enqueue(frame(3)) {
		t.Fatal("third frame should be dropped")
	}

	if q.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", q.Dropped())
	}
	if len(dropped) != 1 || dropped[0] != 3 {
		t.Errorf("drop handler saw %v, want [3]", dropped)
	}

	// The oldest frames survive — the newest was discarded.
	f, ok := q.Dequeue(time.Second)
	if !ok || f.Samples[0] != 1 {
		t.Errorf("expected oldest frame 1, got %v ok=%v", f.Samples, ok)
	}
}

func TestFrameQueue_DequeueTimeout(t *testing.T) {
	t.Parallel()

	q := audio.NewFrameQueue(1)
	start := time.Now()
	_, ok := q.Dequeue(20 * time.Millisecond)
	if ok {
		t.Fatal("Dequeue on empty queue should time out")
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("Dequeue returned after %v, want ≥ 20ms", elapsed)
	}
}

func TestFrameQueue_EnqueueNeverBlocks(t *testing.T) {
	t.Parallel()

	q := audio.NewFrameQueue(1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 10_000 {
			q.Enqueue(frame(0))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked with a full queue")
	}
	if q.Len() > q.Cap() {
		t.Errorf("Len %d exceeds Cap %d", q.Len(), q.Cap())
	}
}

func TestFrameQueue_Drain(t *testing.T) {
	t.Parallel()

	q := audio.NewFrameQueue(8)
	for range 5 {
		q.Enqueue(frame(0))
	}
	if n := q.Drain(); n != 5 {
		t.Errorf("Drain() = %d, want 5", n)
	}
	if q.Len() != 0 {
		t.Errorf("Len after drain = %d, want 0", q.Len())
	}
}

func TestFrameQueue_ConcurrentProducerConsumer(t *testing.T) {
	t.Parallel()

	q := audio.NewFrameQueue(16)
	const total = 500

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range total {
			q.Enqueue(frame(0))
			time.Sleep(time.Microsecond)
		}
	}()

	received := 0
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := q.Dequeue(10 * time.Millisecond); ok {
			received++
			continue
		}
		// Producer finished and queue drained.
		if received+int(q.Dropped()) >= total {
			break
		}
	}
	wg.Wait()

	if got := received + int(q.Dropped()); got != total {
		t.Errorf("received %d + dropped %d = %d, want %d", received, q.Dropped(), got, total)
	}
}

func TestRMS(t *testing.T) {
	t.Parallel()

	if got := audio.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}

	silence := make([]byte, 640)
	if got := audio.RMS(silence); got != 0 {
		t.Errorf("RMS(silence) = %v, want 0", got)
	}

	// Full-scale square wave has RMS ≈ 1.
	loud := make([]byte, 640)
	for i := 0; i < len(loud); i += 2 {
		loud[i] = 0xFF
		loud[i+1] = 0x7F
	}
	if got := audio.RMS(loud); got < 0.99 {
		t.Errorf("RMS(full-scale) = %v, want ≈ 1", got)
	}
}

func TestHasVoice(t *testing.T) {
	t.Parallel()

	silent := audio.Frame{Samples: make([]byte, 640), SampleRate: 16000, Channels: 1}
	if audio.HasVoice(silent, 0) {
		t.Error("silent frame should not report voice")
	}

	loud := audio.Frame{Samples: make([]byte, 640), SampleRate: 16000, Channels: 1}
	for i := 0; i < len(loud.Samples); i += 2 {
		loud.Samples[i+1] = 0x40
	}
	if !audio.HasVoice(loud, 0) {
		t.Error("loud frame should report voice")
	}
}

func TestFrame_Duration(t *testing.T) {
	t.Parallel()

	f := audio.Frame{Samples: make([]byte, 32000), SampleRate: 16000, Channels: 1}
	if got := f.Duration(); got != time.Second {
		t.Errorf("Duration() = %v, want 1s", got)
	}

	stereo := audio.Frame{Samples: make([]byte, 64000), SampleRate: 16000, Channels: 2}
	if got := stereo.Duration(); got != time.Second {
		t.Errorf("stereo Duration() = %v, want 1s", got)
	}

	if got := (audio.Frame{}).Duration(); got != 0 {
		t.Errorf("zero frame Duration() = %v, want 0", got)
	}
}
