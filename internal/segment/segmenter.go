// Package segment implements the utterance segmentation state machine at the
// heart of the streaming pipeline.
//
// The Segmenter consumes fixed-size audio frames together with their VAD
// classification and decides where one utterance ends and the next begins. It
// enforces three competing policies: don't cut speech mid-word (silence must
// persist for a configured duration before a boundary is declared), don't
// wait forever (a hard maximum utterance length force-finalizes), and bound
// memory (idle audio is discarded except for a small rollback window that is
// prepended at speech onset so word onsets are not clipped).
//
// The machine is deliberately single-threaded: it has no locks and must only
// be driven from one goroutine (the stream session's ingestion loop). Every
// transition is a pure function of (state, classified frame), which makes the
// whole policy unit-testable without a live audio source.
package segment

import (
	"time"

	"github.com/mtkresearch/breeze-asr-go/pkg/audio"
)

// Reason records why a segment was finalized.
type Reason int

const (
	// ReasonSilence: a continuous silence run reached the configured
	// threshold; the trailing silence is trimmed from the payload.
	ReasonSilence Reason = iota

	// ReasonMaxLength: accumulated audio reached the maximum utterance
	// duration; the payload is kept whole and overflow opens the next segment.
	ReasonMaxLength

	// ReasonStreamEnd: the stream was closed while a segment was in progress.
	ReasonStreamEnd
)

// String returns the reason's wire/log name.
func (r Reason) String() string {
	switch r {
	case ReasonSilence:
		return "silence-timeout"
	case ReasonMaxLength:
		return "max-length"
	case ReasonStreamEnd:
		return "stream-end"
	default:
		return "unknown"
	}
}

// State is the segmenter's current mode.
type State int

const (
	// StateIdle: no active segment; silent frames are discarded (modulo the
	// rollback window).
	StateIdle State = iota

	// StateAccumulating: inside a candidate segment, tracking the trailing
	// silence run.
	StateAccumulating
)

// Segment is a contiguous run of samples bounded by detected speech onset and
// offset (or by policy limits). Offsets are absolute mono sample positions
// from the start of the stream. Ownership of Samples transfers to the caller
// when a Segment is returned; the Segmenter never reuses the backing array.
type Segment struct {
	Start   int64
	End     int64
	Samples []int16
	Reason  Reason
}

// Policy holds the segmentation thresholds. Set once at session creation and
// read-only thereafter. Ties at exact boundaries count as met (≥, not >).
type Policy struct {
	// SampleRate converts the duration fields into sample counts.
	SampleRate int

	// MaxUtterance force-finalizes a segment regardless of silence state.
	// Zero disables the limit.
	MaxUtterance time.Duration

	// SilenceThreshold is the continuous silence run that ends an utterance.
	SilenceThreshold time.Duration

	// MinUtterance discards finalized segments shorter than this (spurious
	// noise blips). Zero disables the check.
	MinUtterance time.Duration

	// Rollback is how much pre-onset audio is retained while idle and
	// prepended when a segment opens. Zero disables the window.
	Rollback time.Duration

	// NotifySilenceAfter, when positive, emits a one-shot silence notice
	// after the machine has been idle for at least this long. Re-armed by the
	// next segment.
	NotifySilenceAfter time.Duration
}

// Output is what one Process or Flush call produced: zero or more finalized
// segments (two are possible when a frame straddles the max-length boundary
// into a silence finalization) and an optional silence notice.
type Output struct {
	Segments      []Segment
	SilenceNotice bool
}

// Segmenter is the segmentation state machine. Create with New; drive with
// Process for every classified frame and Flush exactly once at end of stream.
// Not safe for concurrent use.
type Segmenter struct {
	maxSamples     int64
	silenceSamples int64
	minSamples     int64
	rollbackMax    int64
	notifySamples  int64

	state      State
	offset     int64 // absolute samples consumed so far
	cur        []int16
	curStart   int64
	silenceRun int64 // contiguous trailing silence inside the current segment
	history    []int16
	idleRun    int64
	notified   bool
	finished   bool
}

// New creates a Segmenter applying the given policy. SampleRate must be
// positive; duration fields are converted to sample counts once, here.
func New(p Policy) *Segmenter {
	return &Segmenter{
		maxSamples:     audio.Samples(p.MaxUtterance, p.SampleRate),
		silenceSamples: audio.Samples(p.SilenceThreshold, p.SampleRate),
		minSamples:     audio.Samples(p.MinUtterance, p.SampleRate),
		rollbackMax:    audio.Samples(p.Rollback, p.SampleRate),
		notifySamples:  audio.Samples(p.NotifySilenceAfter, p.SampleRate),
	}
}

// State returns the machine's current mode. Exposed for tests and stats.
func (s *Segmenter) State() State { return s.state }

// Offset returns the total number of samples consumed so far.
func (s *Segmenter) Offset() int64 { return s.offset }

// Process advances the machine by one classified frame. Samples in frame are
// copied as needed; the caller may reuse the slice. Calling Process after
// Flush is a no-op returning an empty Output.
func (s *Segmenter) Process(frame []int16, speech bool) Output {
	var out Output
	n := int64(len(frame))
	if n == 0 || s.finished {
		return out
	}

	if s.state == StateIdle {
		if !speech {
			s.idleRun += n
			s.pushHistory(frame)
			if s.notifySamples > 0 && !s.notified && s.idleRun >= s.notifySamples {
				s.notified = true
				out.SilenceNotice = true
			}
			s.offset += n
			return out
		}
		s.openSegment()
	}

	if speech {
		s.silenceRun = 0
	} else {
		s.silenceRun += n
	}
	s.appendBounded(frame, &out)

	if s.state == StateAccumulating && s.silenceSamples > 0 && s.silenceRun >= s.silenceSamples {
		s.finalizeSilence(&out)
	}

	s.offset += n
	return out
}

// Flush finalizes any in-progress segment with ReasonStreamEnd, without
// trimming trailing silence. After Flush the machine is terminal: further
// Process calls produce no output. Returns nil when the machine was idle or
// the remnant is below the minimum utterance duration.
func (s *Segmenter) Flush() *Segment {
	if s.finished {
		return nil
	}
	s.finished = true
	if s.state != StateAccumulating || len(s.cur) == 0 {
		return nil
	}
	payload := s.cur
	seg := &Segment{
		Start:   s.curStart,
		End:     s.curStart + int64(len(payload)),
		Samples: payload,
		Reason:  ReasonStreamEnd,
	}
	s.reset()
	if s.minSamples > 0 && int64(len(payload)) < s.minSamples {
		return nil
	}
	return seg
}

// openSegment transitions Idle → Accumulating, seeding the payload with the
// rollback window so the speech onset is not clipped.
func (s *Segmenter) openSegment() {
	s.state = StateAccumulating
	s.cur = make([]int16, len(s.history), len(s.history)+4096)
	copy(s.cur, s.history)
	s.curStart = s.offset - int64(len(s.history))
	s.history = nil
	s.silenceRun = 0
	s.idleRun = 0
	s.notified = false
}

// pushHistory keeps the most recent rollback-window samples while idle.
func (s *Segmenter) pushHistory(frame []int16) {
	if s.rollbackMax <= 0 {
		return
	}
	s.history = append(s.history, frame...)
	if over := int64(len(s.history)) - s.rollbackMax; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
}

// appendBounded appends the frame to the current payload, splitting at the
// exact max-length boundary so no segment ever exceeds the limit and no
// sample is lost or duplicated.
func (s *Segmenter) appendBounded(frame []int16, out *Output) {
	if s.maxSamples <= 0 {
		s.cur = append(s.cur, frame...)
		return
	}
	for len(frame) > 0 {
		room := s.maxSamples - int64(len(s.cur))
		if room > int64(len(frame)) {
			s.cur = append(s.cur, frame...)
			return
		}
		if room > 0 {
			s.cur = append(s.cur, frame[:room]...)
			frame = frame[room:]
		}
		s.finalizeMax(out, len(frame) > 0)
		if s.state == StateIdle {
			return
		}
	}
}

// finalizeMax emits the full current payload with ReasonMaxLength. When the
// triggering frame has overflow samples the machine stays Accumulating and
// the successor segment starts at the predecessor's end; otherwise it returns
// to Idle.
func (s *Segmenter) finalizeMax(out *Output, hasOverflow bool) {
	payload := s.cur
	end := s.curStart + int64(len(payload))
	if len(payload) > 0 && (s.minSamples <= 0 || int64(len(payload)) >= s.minSamples) {
		out.Segments = append(out.Segments, Segment{
			Start:   s.curStart,
			End:     end,
			Samples: payload,
			Reason:  ReasonMaxLength,
		})
	}
	s.cur = nil
	s.curStart = end
	if !hasOverflow {
		s.reset()
	}
}

// finalizeSilence emits the current payload with the trailing silence run
// trimmed off, then returns to Idle. Segments below the minimum utterance
// duration (or empty after trimming) are discarded.
func (s *Segmenter) finalizeSilence(out *Output) {
	trim := s.silenceRun
	if trim > int64(len(s.cur)) {
		trim = int64(len(s.cur))
	}
	keep := int64(len(s.cur)) - trim
	if keep > 0 && (s.minSamples <= 0 || keep >= s.minSamples) {
		payload := make([]int16, keep)
		copy(payload, s.cur[:keep])
		out.Segments = append(out.Segments, Segment{
			Start:   s.curStart,
			End:     s.curStart + keep,
			Samples: payload,
			Reason:  ReasonSilence,
		})
	}
	s.reset()
}

// reset returns the machine to Idle with all per-segment state cleared.
func (s *Segmenter) reset() {
	s.state = StateIdle
	s.cur = nil
	s.silenceRun = 0
	s.history = nil
	s.idleRun = 0
	s.notified = false
}
