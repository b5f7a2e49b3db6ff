package audio

import (
	"encoding/binary"
	"math"
)

// BytesToInt16 converts 16-bit signed little-endian PCM bytes to samples.
// Any trailing odd byte is ignored; callers that need strict validation
// should use [Framer.PushBytes].
func BytesToInt16(pcm []byte) []int16 {
	n := len(pcm) / 2
	samples := make([]int16, n)
	for i := range n {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
	}
	return samples
}

// Int16ToBytes converts samples to 16-bit signed little-endian PCM bytes.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Int16ToFloat32 converts samples to float32 normalised to [-1.0, 1.0],
// the representation expected by whisper.cpp and Silero VAD.
func Int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// StereoToMono down-mixes interleaved multi-channel samples by averaging all
// channels per frame. Samples whose trailing frame is incomplete are dropped.
func StereoToMono(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	mono := make([]int16, frames)
	for i := range frames {
		var sum int
		for ch := range channels {
			sum += int(samples[i*channels+ch])
		}
		mono[i] = int16(sum / channels)
	}
	return mono
}

// ResampleMono16 converts mono samples from one sample rate to another using
// linear interpolation. Adequate for speech recognition input; callers needing
// higher fidelity should resample upstream.
func ResampleMono16(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(samples) == 0 {
		return samples
	}
	ratio := float64(fromRate) / float64(toRate)
	n := int(float64(len(samples)) / ratio)
	out := make([]int16, n)
	for i := range n {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(idx)
		a := float64(samples[idx])
		b := float64(samples[idx+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return out
}

// RMS computes the root-mean-square energy of the samples in 16-bit PCM
// units. The maximum possible value is 32767; near-silence is below ~300.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
