// Package vad defines the Engine interface for Voice Activity Detection
// backends.
//
// A VAD engine wraps a frame-level speech detector (Silero VAD, or a plain
// energy threshold) and surfaces it as a stateful, per-stream session. Each
// session maintains its own internal state so that multiple concurrent audio
// streams can be processed independently.
//
// VAD is synchronous by design: ProcessFrame returns immediately with a
// decision, making it suitable for the low-latency loop that gates
// segmentation.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle must not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// PCM frames passed to ProcessFrame. Common values: 8000, 16000.
	SampleRate int

	// FrameSize is the number of mono samples per frame. Most VAD models
	// operate on fixed frame sizes; Silero requires 512 samples at 16 kHz.
	// ProcessFrame returns an error if the supplied frame does not match.
	FrameSize int

	// Threshold is the speech probability at or above which a frame is
	// classified as speech. Range: [0.0, 1.0]. Typical: 0.5. Engines that
	// produce raw energy instead of probabilities map it onto their native
	// scale; see each engine's documentation.
	Threshold float64

	// ModelPath points at the detector model file for engines that need one
	// (Silero ONNX). Ignored by model-free engines.
	ModelPath string
}

// Decision is the classification of a single audio frame.
type Decision struct {
	// Speech reports whether the frame is classified as speech.
	Speech bool

	// Probability is the speech probability score (0.0–1.0). Energy-based
	// engines report a normalised pseudo-probability.
	Probability float64
}

// SessionHandle represents an active VAD session for a single audio stream.
// It is an interface so that test code can supply mock implementations
// without a live detector.
type SessionHandle interface {
	// ProcessFrame classifies a single frame of mono 16-bit PCM samples. The
	// frame length must equal the FrameSize configured at session creation.
	// Must not block; called synchronously in the ingestion loop.
	ProcessFrame(frame []int16) (Decision, error)

	// Reset clears accumulated detection state without closing the session.
	// Use when the audio stream is interrupted or restarted.
	Reset()

	// Close releases all resources associated with the session. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions, implemented by each backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration.
	// Returns an error if the configuration is invalid or the engine cannot
	// allocate resources for the session.
	NewSession(cfg Config) (SessionHandle, error)
}
