// Package mock provides a test double for the asr.Backend interface.
//
// Results are scripted per call: set Texts and Errs in parallel, or use
// TranscribeFn for full control (e.g., simulating per-segment latency to test
// output reordering).
package mock

import (
	"context"
	"sync"

	"github.com/mtkresearch/breeze-asr-go/pkg/provider/asr"
)

// TranscribeCall records a single invocation of Backend.Transcribe.
type TranscribeCall struct {
	// Samples is a copy of the segment passed in.
	Samples []int16

	// SampleRate is the rate passed in.
	SampleRate int
}

// Backend is a mock implementation of asr.Backend. The zero value returns ""
// for every call.
type Backend struct {
	mu sync.Mutex

	// TranscribeFn, if non-nil, is invoked for every call instead of the
	// scripted Texts/Errs. The call is still recorded.
	TranscribeFn func(ctx context.Context, samples []int16, sampleRate int) (string, error)

	// Texts holds per-call results: call n returns Texts[n]. Once exhausted,
	// "" is returned.
	Texts []string

	// Errs holds per-call errors aligned with Texts; a nil entry means
	// success. Once exhausted, nil is returned.
	Errs []error

	// Calls records every invocation in order.
	Calls []TranscribeCall
}

// Transcribe records the call and returns the next scripted result.
func (b *Backend) Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	b.mu.Lock()
	cp := make([]int16, len(samples))
	copy(cp, samples)
	b.Calls = append(b.Calls, TranscribeCall{Samples: cp, SampleRate: sampleRate})
	n := len(b.Calls) - 1
	fn := b.TranscribeFn
	var text string
	var err error
	if n < len(b.Texts) {
		text = b.Texts[n]
	}
	if n < len(b.Errs) {
		err = b.Errs[n]
	}
	b.mu.Unlock()

	if fn != nil {
		return fn(ctx, samples, sampleRate)
	}
	return text, err
}

// CallCount returns the number of recorded calls. Thread-safe.
func (b *Backend) CallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Calls)
}

// Ensure Backend implements asr.Backend at compile time.
var _ asr.Backend = (*Backend)(nil)
