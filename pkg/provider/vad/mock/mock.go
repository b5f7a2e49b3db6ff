// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that sessions are created with the expected Config.
// Use Session to script per-frame decisions and inspect the frames that were
// submitted for classification.
//
// Example:
//
//	sess := &mock.Session{Script: []vad.Decision{{Speech: true, Probability: 0.9}}}
//	eng := &mock.Engine{Session: sess}
//	handle, _ := eng.NewSession(cfg)
package mock

import (
	"sync"

	"github.com/mtkresearch/breeze-asr-go/pkg/provider/vad"
)

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by NewSession. If nil, NewSession
	// returns a new default Session.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records the Config of every NewSession call in order.
	NewSessionCalls []vad.Config
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// Session is a mock implementation of vad.SessionHandle. Decisions are taken
// from Script in order; once the script is exhausted, Default is returned for
// every further frame.
type Session struct {
	mu sync.Mutex

	// Script holds the decisions to return, one per ProcessFrame call.
	Script []vad.Decision

	// Default is returned once Script is exhausted (or when Script is nil).
	Default vad.Decision

	// ProcessFrameErr, if non-nil, is returned by every ProcessFrame call.
	ProcessFrameErr error

	// --- Call records ---

	// Frames records a copy of every frame passed to ProcessFrame, in order.
	Frames [][]int16

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// ProcessFrame records the frame and returns the next scripted decision.
func (s *Session) ProcessFrame(frame []int16) (vad.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]int16, len(frame))
	copy(cp, frame)
	s.Frames = append(s.Frames, cp)
	if s.ProcessFrameErr != nil {
		return vad.Decision{}, s.ProcessFrameErr
	}
	idx := len(s.Frames) - 1
	if idx < len(s.Script) {
		return s.Script[idx], nil
	}
	return s.Default, nil
}

// Reset records the call by incrementing ResetCallCount.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
}

// Close records the call and returns nil.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return nil
}

// Ensure Session implements vad.SessionHandle at compile time.
var _ vad.SessionHandle = (*Session)(nil)
