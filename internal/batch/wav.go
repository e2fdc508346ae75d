package batch

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// wavAudio is the decoded payload of one WAV file, downmixed to mono.
type wavAudio struct {
	pcm        []byte // 16-bit signed little-endian mono
	sampleRate int
}

// decodeWAV parses a RIFF/WAVE container holding 16-bit PCM and returns the
// audio downmixed to mono. Compressed formats and other bit depths are
// rejected; dropped files are expected to be plain dictation recordings.
func decodeWAV(data []byte) (wavAudio, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return wavAudio{}, errors.New("not a RIFF/WAVE file")
	}

	var (
		sampleRate int
		channels   int
		haveFmt    bool
	)

	// Walk the chunk list; "fmt " must precede "data".
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			return wavAudio{}, fmt.Errorf("truncated %q chunk", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return wavAudio{}, errors.New("fmt chunk too short")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 { // PCM
				return wavAudio{}, fmt.Errorf("unsupported audio format %d (want PCM)", format)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if bits != 16 {
				return wavAudio{}, fmt.Errorf("unsupported bit depth %d (want 16)", bits)
			}
			if channels < 1 || channels > 2 || sampleRate <= 0 {
				return wavAudio{}, fmt.Errorf("unsupported layout: %d channels at %d Hz", channels, sampleRate)
			}
			haveFmt = true

		case "data":
			if !haveFmt {
				return wavAudio{}, errors.New("data chunk before fmt chunk")
			}
			return wavAudio{
				pcm:        downmix(data[body:body+size], channels),
				sampleRate: sampleRate,
			}, nil
		}

		// Chunks are word-aligned.
		off = body + size + size%2
	}

	return wavAudio{}, errors.New("no data chunk found")
}

// downmix averages interleaved 16-bit channels into mono. Mono input is
// returned as a copy.
func downmix(pcm []byte, channels int) []byte {
	if channels == 1 {
		out := make([]byte, len(pcm)-len(pcm)%2)
		copy(out, pcm)
		return out
	}

	frameBytes := channels * 2
	frames := len(pcm) / frameBytes
	out := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		var sum int
		for c := 0; c < channels; c++ {
			sum += int(int16(binary.LittleEndian.Uint16(pcm[i*frameBytes+c*2:])))
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(sum/channels)))
	}
	return out
}
