// Package silero provides a VAD engine backed by the Silero VAD ONNX model
// via the silero-vad-go bindings. It gives far better speech/noise separation
// than the energy engine at the cost of an ONNX Runtime dependency.
//
// The detector operates in streaming mode: it reports speech-start and
// speech-end transitions, and this adapter latches them into a per-frame
// speech/silence decision. Silero requires 512-sample frames at 16 kHz
// (256 at 8 kHz).
package silero

import (
	"errors"
	"fmt"
	"sync"

	"github.com/streamer45/silero-vad-go/speech"

	"github.com/mtkresearch/breeze-asr-go/pkg/audio"
	"github.com/mtkresearch/breeze-asr-go/pkg/provider/vad"
)

// Compile-time assertion that Engine implements vad.Engine.
var _ vad.Engine = (*Engine)(nil)

// Engine creates Silero VAD sessions. Each session owns its own detector
// instance, so sessions are independent and need no shared locking.
type Engine struct{}

// New returns a new Silero VAD engine.
func New() *Engine { return &Engine{} }

// NewSession loads the Silero model at cfg.ModelPath and returns a session.
// cfg.FrameSize must be 512 for 16 kHz audio or 256 for 8 kHz; these are the
// only window sizes the model accepts.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("silero: ModelPath must not be empty")
	}
	switch {
	case cfg.SampleRate == 16000 && cfg.FrameSize == 512:
	case cfg.SampleRate == 8000 && cfg.FrameSize == 256:
	default:
		return nil, fmt.Errorf("silero: unsupported rate/frame combination %d Hz / %d samples (want 16000/512 or 8000/256)",
			cfg.SampleRate, cfg.FrameSize)
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 0.5
	}

	det, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:  cfg.ModelPath,
		SampleRate: cfg.SampleRate,
		Threshold:  float32(threshold),
	})
	if err != nil {
		return nil, fmt.Errorf("silero: create detector: %w", err)
	}
	return &session{det: det, frameSize: cfg.FrameSize, threshold: threshold}, nil
}

// session adapts the detector's start/end transition events into per-frame
// decisions by latching the speaking state.
type session struct {
	mu        sync.Mutex
	det       *speech.Detector
	frameSize int
	threshold float64
	speaking  bool
	closed    bool
}

// ProcessFrame classifies one frame. The detector keeps its own smoothing
// state, so frames must be delivered in stream order.
func (s *session) ProcessFrame(frame []int16) (vad.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.Decision{}, errors.New("silero: session is closed")
	}
	if len(frame) != s.frameSize {
		return vad.Decision{}, fmt.Errorf("silero: expected %d samples, got %d", s.frameSize, len(frame))
	}

	event, err := s.det.DetectStreamFrame(audio.Int16ToFloat32(frame))
	if err != nil {
		return vad.Decision{}, fmt.Errorf("silero: detect frame: %w", err)
	}
	if event != nil {
		if event.IsStart {
			s.speaking = true
		}
		if event.IsEnd {
			s.speaking = false
		}
	}

	// The bindings expose transitions, not per-frame probabilities; report a
	// saturated pseudo-probability matching the latched decision.
	p := 0.0
	if s.speaking {
		p = 1.0
	}
	return vad.Decision{Speech: s.speaking, Probability: p}, nil
}

// Reset clears the detector's smoothing state and the latched speaking flag.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.speaking = false
	_ = s.det.Reset()
}

// Close destroys the underlying detector. Safe to call more than once.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.det.Destroy()
}
