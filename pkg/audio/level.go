package audio

import (
	"encoding/binary"
	"math"
)

// DefaultVoiceRMSThreshold is the RMS level (on normalised [-1, 1] samples)
// above which a frame is considered to carry voice activity. Tuned for
// 16-bit PCM from consumer microphones; quiet rooms idle around 0.001–0.005.
const DefaultVoiceRMSThreshold = 0.01

// RMS computes the root-mean-square level of 16-bit signed little-endian
// PCM data, normalised to [0, 1]. Returns 0 for empty input; any trailing
// odd byte is ignored.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// HasVoice reports whether the frame's RMS level exceeds threshold.
// A non-positive threshold falls back to [DefaultVoiceRMSThreshold].
func HasVoice(f Frame, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultVoiceRMSThreshold
	}
	return RMS(f.Samples) >= threshold
}
