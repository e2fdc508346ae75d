package whisper

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func pcm16(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestPCMToFloat32(t *testing.T) {
	t.Parallel()

	got := pcmToFloat32(pcm16(0, 32767, -32768, 16384))
	want := []float32{0, 32767.0 / 32768.0, -1, 0.5}

	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d = %f, want %f", i, got[i], want[i])
		}
	}
}

func TestPCMToFloat32_IgnoresTrailingByte(t *testing.T) {
	t.Parallel()

	in := append(pcm16(100, 200), 0x7f)
	if got := pcmToFloat32(in); len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestPCMToFloat32Mono_AveragesChannels(t *testing.T) {
	t.Parallel()

	// Two frames of stereo: (16384, -16384) averages to 0,
	// (16384, 16384) averages to 0.5.
	in := pcm16(16384, -16384, 16384, 16384)
	got := pcmToFloat32Mono(in, 2)

	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if math.Abs(float64(got[0])) > 1e-6 {
		t.Errorf("frame 0 = %f, want 0", got[0])
	}
	if math.Abs(float64(got[1]-0.5)) > 1e-6 {
		t.Errorf("frame 1 = %f, want 0.5", got[1])
	}
}

func TestPCMDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		bytes      int
		sampleRate int
		channels   int
		want       time.Duration
	}{
		{"one second mono 16k", 32000, 16000, 1, time.Second},
		{"half second stereo", 32000, 16000, 2, 500 * time.Millisecond},
		{"zero rate", 32000, 0, 1, 0},
		{"empty", 0, 16000, 1, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := pcmDuration(make([]byte, tc.bytes), tc.sampleRate, tc.channels); got != tc.want {
				t.Errorf("pcmDuration = %s, want %s", got, tc.want)
			}
		})
	}
}
