// Package portaudio implements [audio.Source] on top of the PortAudio CGO
// bindings, reading 16-bit PCM from the default capture device.
//
// The portaudio runtime is initialised on first Start and released on Stop.
// The read loop runs on its own goroutine; the frame callback is invoked
// from that goroutine with a private copy of the device buffer, so the
// callback contract of [audio.FrameFunc] (bounded time, no blocking) is the
// caller's only obligation.
package portaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/harkd/hark/pkg/audio"
)

const (
	defaultSampleRate      = 16000
	defaultChannels        = 1
	defaultFramesPerBuffer = 1024
)

// Compile-time assertion that Source satisfies audio.Source.
var _ audio.Source = (*Source)(nil)

// Option is a functional option for a [Source].
type Option func(*Source)

// WithSampleRate sets the capture sample rate in Hz. Default: 16000.
func WithSampleRate(rate int) Option {
	return func(s *Source) {
		if rate > 0 {
			s.sampleRate = rate
		}
	}
}

// WithChannels sets the number of capture channels. Default: 1 (mono).
func WithChannels(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.channels = n
		}
	}
}

// WithFramesPerBuffer sets the device buffer size in samples per channel.
// Default: 1024 (64 ms at 16 kHz).
func WithFramesPerBuffer(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.framesPerBuffer = n
		}
	}
}

// WithDevice selects an input device whose name contains the given
// substring (case-insensitive). Default: the system default input device.
func WithDevice(name string) Option {
	return func(s *Source) {
		s.device = name
	}
}

// Source captures audio from a PortAudio input device.
// All exported methods are safe for concurrent use.
type Source struct {
	sampleRate      int
	channels        int
	framesPerBuffer int
	device          string

	mu      sync.Mutex
	stream  *portaudio.Stream
	buffer  []int16
	running bool
	done    chan struct{}
	cancel  context.CancelFunc
}

// New creates a Source for the default input device. The device is not
// opened until Start is called.
func New(opts ...Option) *Source {
	s := &Source{
		sampleRate:      defaultSampleRate,
		channels:        defaultChannels,
		framesPerBuffer: defaultFramesPerBuffer,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start implements [audio.Source]. It initialises PortAudio, opens the
// default input stream, and launches the read loop.
func (s *Source) Start(ctx context.Context, fn audio.FrameFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("portaudio: capture already running")
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio: initialize: %w", err)
	}

	s.buffer = make([]int16, s.framesPerBuffer*s.channels)
	stream, err := s.openStream()
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("portaudio: open stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("portaudio: start stream: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.stream = stream
	s.running = true
	s.done = make(chan struct{})
	s.cancel = cancel

	go s.readLoop(runCtx, fn)

	slog.Info("portaudio capture started",
		"sample_rate", s.sampleRate,
		"channels", s.channels,
		"frames_per_buffer", s.framesPerBuffer,
	)
	return nil
}

// openStream opens either the default input device or, when a device name
// was configured, the first input device whose name matches it. Caller holds
// s.mu.
func (s *Source) openStream() (*portaudio.Stream, error) {
	if s.device == "" {
		return portaudio.OpenDefaultStream(
			s.channels, 0, float64(s.sampleRate), s.framesPerBuffer, s.buffer,
		)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	want := strings.ToLower(s.device)
	for _, dev := range devices {
		if dev.MaxInputChannels < s.channels {
			continue
		}
		if !strings.Contains(strings.ToLower(dev.Name), want) {
			continue
		}
		params := portaudio.HighLatencyParameters(dev, nil)
		params.Input.Channels = s.channels
		params.SampleRate = float64(s.sampleRate)
		params.FramesPerBuffer = s.framesPerBuffer
		slog.Debug("portaudio input device selected", "name", dev.Name)
		return portaudio.OpenStream(params, s.buffer)
	}
	return nil, fmt.Errorf("no input device matching %q", s.device)
}

// readLoop polls the stream and hands each buffer to fn as a Frame.
func (s *Source) readLoop(ctx context.Context, fn audio.FrameFunc) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.mu.Lock()
		stream := s.stream
		running := s.running
		s.mu.Unlock()
		if !running || stream == nil {
			return
		}

		available, err := stream.AvailableToRead()
		if err != nil || available < s.framesPerBuffer {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if err := stream.Read(); err != nil {
			slog.Warn("portaudio read error", "err", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		// Copy out of the device buffer before the next Read overwrites it.
		pcm := make([]byte, len(s.buffer)*2)
		for i, sample := range s.buffer {
			binary.LittleEndian.PutUint16(pcm[i*2:], uint16(sample))
		}

		fn(audio.Frame{
			Samples:    pcm,
			SampleRate: s.sampleRate,
			Channels:   s.channels,
			CapturedAt: time.Now(),
		})
	}
}

// Stop implements [audio.Source]. It halts the read loop, waits for it to
// exit, and releases the device and the PortAudio runtime.
func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stream := s.stream
	s.stream = nil
	done := s.done
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(200 * time.Millisecond):
		}
	}

	if stream != nil {
		_ = stream.Stop()
		_ = stream.Close()
	}
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("portaudio: terminate: %w", err)
	}

	slog.Info("portaudio capture stopped")
	return nil
}
