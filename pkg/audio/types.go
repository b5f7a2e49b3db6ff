// Package audio provides the PCM primitives shared by the Breeze ASR
// pipeline: fixed-size frame assembly, WAV encoding/decoding, sample-rate
// conversion, and energy measurement.
//
// All pipeline audio is 16-bit signed little-endian PCM, mono. Multi-channel
// input is down-mixed at the edges (file loader, network ingest) before it
// reaches the segmentation core.
package audio

import (
	"errors"
	"time"
)

// ErrInputFormat is returned when audio input does not match the expected
// shape: odd byte counts for 16-bit PCM, unsupported bit depths or channel
// counts, or a corrupt container. It is fatal to the call that raised it,
// never to the session.
var ErrInputFormat = errors.New("audio: malformed input format")

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Duration returns the wall-clock duration of n mono samples at rate Hz.
func Duration(n int64, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}

// Samples returns the number of mono samples covering d at rate Hz.
func Samples(d time.Duration, rate int) int64 {
	if d <= 0 || rate <= 0 {
		return 0
	}
	return int64(d) * int64(rate) / int64(time.Second)
}
