package batch

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildWAV assembles a minimal RIFF/WAVE container around pcm.
func buildWAV(sampleRate, channels int, pcm []byte) []byte {
	const bits = 16
	byteRate := sampleRate * channels * bits / 8
	blockAlign := channels * bits / 8

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bits))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

func samples(vals ...int16) []byte {
	out := make([]byte, len(vals)*2)
	for i, v := range vals {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func TestDecodeWAV_Mono(t *testing.T) {
	t.Parallel()

	pcm := samples(100, -100, 32767)
	got, err := decodeWAV(buildWAV(16000, 1, pcm))
	if err != nil {
		t.Fatalf("decodeWAV() error: %v", err)
	}
	if got.sampleRate != 16000 {
		t.Errorf("sampleRate = %d, want 16000", got.sampleRate)
	}
	if !bytes.Equal(got.pcm, pcm) {
		t.Errorf("pcm = %v, want %v", got.pcm, pcm)
	}
}

func TestDecodeWAV_StereoDownmix(t *testing.T) {
	t.Parallel()

	// Two frames: (16384, -16384) averages to 0, (16384, 16384) to 16384.
	in := samples(16384, -16384, 16384, 16384)
	got, err := decodeWAV(buildWAV(44100, 2, in))
	if err != nil {
		t.Fatalf("decodeWAV() error: %v", err)
	}
	want := samples(0, 16384)
	if !bytes.Equal(got.pcm, want) {
		t.Errorf("pcm = %v, want %v", got.pcm, want)
	}
	if got.sampleRate != 44100 {
		t.Errorf("sampleRate = %d, want 44100", got.sampleRate)
	}
}

func TestDecodeWAV_Rejections(t *testing.T) {
	t.Parallel()

	valid := buildWAV(16000, 1, samples(1, 2, 3))

	compressed := buildWAV(16000, 1, samples(1))
	compressed[20] = 3 // format tag: IEEE float

	truncated := append([]byte(nil), valid...)
	truncated = truncated[:len(truncated)-2]

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not riff", []byte("ID3\x03 this is an mp3, honest")},
		{"compressed format", compressed},
		{"truncated data chunk", truncated},
		{"no data chunk", valid[:36]},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := decodeWAV(tc.data); err == nil {
				t.Error("expected decode error, got nil")
			}
		})
	}
}
