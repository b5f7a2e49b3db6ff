// Package asr defines the Backend interface for speech recognition engines.
//
// A recognition backend is a batch transcriber: it receives one finalized
// audio segment and returns its text. Streaming behaviour (segmentation,
// ordering, backpressure) lives in internal/stream; backends stay narrow so
// that local (whisper.cpp bindings) and remote (whisper-server HTTP)
// implementations are interchangeable.
//
// Implementations must be safe for concurrent use: the dispatcher may run
// more than one Transcribe call at a time when configured with multiple
// workers.
package asr

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrModelUnavailable indicates that model artifacts could never be resolved
// or loaded. It is fatal at backend construction; a constructed backend never
// returns it.
var ErrModelUnavailable = errors.New("asr: model unavailable")

// RecognitionError wraps a per-segment transcription failure. It is
// recoverable: the stream surfaces it as an error-tagged element and
// continues with subsequent segments.
type RecognitionError struct {
	// Cause is the underlying backend failure.
	Cause error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("asr: recognition failed: %v", e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *RecognitionError) Unwrap() error { return e.Cause }

// Chunk is the transcription result for exactly one audio segment, tagged
// with the segment's time bounds relative to stream start. Immutable once
// produced.
type Chunk struct {
	// Text is the transcribed speech content.
	Text string

	// Start is the segment's start offset relative to stream start.
	Start time.Duration

	// End is the segment's end offset relative to stream start.
	End time.Duration
}

// Duration is the length of the chunk's audio segment.
func (c Chunk) Duration() time.Duration { return c.End - c.Start }

// Backend is the abstraction over any speech recognition engine.
type Backend interface {
	// Transcribe converts one finalized segment of mono 16-bit PCM samples
	// into text. Returns the transcription (possibly empty for silence the
	// VAD let through) or an error wrapped in *RecognitionError. Respects
	// ctx cancellation.
	Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error)
}
