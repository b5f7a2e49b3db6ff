package stream

import (
	"errors"
	"time"
)

// Sentinel errors returned by [Session.Feed].
var (
	// ErrSessionClosed is returned by Feed after Close has been called.
	ErrSessionClosed = errors.New("stream: session closed")

	// ErrBackpressure is returned by Feed when the ingestion queue is full
	// and the session was configured to reject rather than block.
	ErrBackpressure = errors.New("stream: ingestion queue full")

	// ErrCanceled is returned by Feed and Close after CloseNow aborted the
	// session.
	ErrCanceled = errors.New("stream: session canceled")
)

// Kind discriminates the variants of [Element].
type Kind int

const (
	// KindTranscript carries recognized text for one finalized segment.
	KindTranscript Kind = iota

	// KindError reports a failed recognition for one finalized segment. The
	// element still occupies the segment's position in the output order so
	// later transcripts are not misattributed.
	KindError

	// KindSilence is a prolonged-silence notice. It carries no audio span.
	KindSilence

	// KindCanceled is the final element after CloseNow aborted the session.
	KindCanceled
)

// String returns the kind's wire name.
func (k Kind) String() string {
	switch k {
	case KindTranscript:
		return "transcript"
	case KindError:
		return "error"
	case KindSilence:
		return "silence"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Element is one entry in a session's ordered output. Elements are delivered
// strictly by Seq regardless of how long each segment's recognition took.
type Element struct {
	Kind Kind

	// Seq is the element's position in the session-global order, starting
	// at 0.
	Seq uint64

	// Start and End locate the segment's audio span within the stream.
	// Zero for silence and cancellation elements.
	Start time.Duration
	End   time.Duration

	// Reason is why the segment was finalized: "silence-timeout",
	// "max-length", or "stream-end". Empty for non-transcript elements.
	Reason string

	// Text is the recognized transcript. Empty for non-transcript elements
	// and for segments the backend recognized as pure silence.
	Text string

	// Err is the recognition failure for KindError elements.
	Err error
}
