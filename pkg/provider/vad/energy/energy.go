// Package energy provides a model-free VAD engine based on root-mean-square
// frame energy. It needs no model file and no CGO, which makes it the default
// for tests and for environments without an ONNX runtime. Accuracy is well
// below Silero's; prefer the silero engine in production.
package energy

import (
	"errors"
	"fmt"

	"github.com/mtkresearch/breeze-asr-go/pkg/audio"
	"github.com/mtkresearch/breeze-asr-go/pkg/provider/vad"
)

// maxRMS is the largest possible RMS for 16-bit PCM, used to normalise raw
// energy into the [0,1] pseudo-probability range.
const maxRMS = 32767.0

// scale stretches low-energy speech into a usable probability band: an RMS of
// ~3300 (quiet speech) maps to probability 1.0. Chosen so the conventional
// 0.5 threshold lands near RMS 1650, comfortably above room noise.
const scale = 10.0

// Compile-time assertion that Engine implements vad.Engine.
var _ vad.Engine = (*Engine)(nil)

// Engine creates energy-threshold VAD sessions. The zero value is ready to use.
type Engine struct{}

// New returns a new energy VAD engine.
func New() *Engine { return &Engine{} }

// NewSession validates cfg and returns a session. ModelPath is ignored.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("energy: frame size must be positive, got %d", cfg.FrameSize)
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("energy: threshold must be in [0,1], got %f", cfg.Threshold)
	}
	return &session{frameSize: cfg.FrameSize, threshold: cfg.Threshold}, nil
}

// session is a stateless energy classifier; it keeps only its configuration,
// so Reset is a no-op.
type session struct {
	frameSize int
	threshold float64
	closed    bool
}

// ProcessFrame classifies the frame by normalised RMS energy.
func (s *session) ProcessFrame(frame []int16) (vad.Decision, error) {
	if s.closed {
		return vad.Decision{}, errors.New("energy: session is closed")
	}
	if len(frame) != s.frameSize {
		return vad.Decision{}, fmt.Errorf("energy: expected %d samples, got %d", s.frameSize, len(frame))
	}
	p := audio.RMS(frame) / maxRMS * scale
	if p > 1 {
		p = 1
	}
	return vad.Decision{Speech: p >= s.threshold, Probability: p}, nil
}

// Reset is a no-op; the session holds no cross-frame state.
func (s *session) Reset() {}

// Close marks the session closed. Safe to call more than once.
func (s *session) Close() error {
	s.closed = true
	return nil
}
