package audio

import "time"

// Frame represents a single fixed-duration frame of captured audio.
// Frames are the atomic unit of audio transport — produced by a [Source]
// capture callback and consumed through a [FrameQueue]. A Frame is owned by
// the producer until enqueued and must not be mutated afterwards.
type Frame struct {
	// Samples is raw 16-bit signed little-endian PCM data.
	Samples []byte

	// SampleRate in Hz (e.g., 16000 for STT-optimised capture).
	SampleRate int

	// Channels: 1 for mono (the common case), 2 for stereo.
	Channels int

	// CapturedAt marks when this frame was read from the capture device.
	CapturedAt time.Time
}

// Duration returns the playback duration of the frame, derived from the
// sample count and format. Returns 0 for malformed frames.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Samples) / (2 * f.Channels)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}
