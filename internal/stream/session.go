// Package stream implements live transcription sessions: audio fed in
// arbitrary chunk sizes comes out as an ordered series of utterance
// transcripts.
//
// Internally a session is a small pipeline:
//
//  1. An ingestion loop reframes incoming chunks to the VAD window size,
//     classifies each frame, and drives the segmentation state machine.
//  2. A pool of recognition workers transcribes finalized segments
//     concurrently, so one slow utterance does not stall the ones behind it.
//  3. A collector restores session order via a seq-keyed reorder buffer
//     before delivering elements to the consumer.
//
// Failed recognitions surface as error elements in their segment's position
// rather than aborting the session, and silence notices are sequenced through
// the same counter so the consumer sees one totally ordered feed.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mtkresearch/breeze-asr-go/internal/observe"
	"github.com/mtkresearch/breeze-asr-go/internal/segment"
	"github.com/mtkresearch/breeze-asr-go/pkg/audio"
	"github.com/mtkresearch/breeze-asr-go/pkg/provider/asr"
	"github.com/mtkresearch/breeze-asr-go/pkg/provider/vad"
)

// Config assembles one session's pipeline. VAD and Backend are required;
// everything else has a usable zero value.
type Config struct {
	// Policy holds the segmentation thresholds. Policy.SampleRate must match
	// the audio fed to the session.
	Policy segment.Policy

	// FrameSize is the VAD analysis window in samples. Defaults to 512, the
	// Silero window at 16 kHz.
	FrameSize int

	// VAD classifies frames as speech or silence. The session owns the
	// handle and closes it on shutdown.
	VAD vad.SessionHandle

	// Backend transcribes finalized segments.
	Backend asr.Backend

	// BackendName labels recognition metrics. Defaults to "asr".
	BackendName string

	// Workers is the recognition pool size. Defaults to 2.
	Workers int

	// QueueDepth bounds the ingestion queue, in chunks. Defaults to 32.
	QueueDepth int

	// FailFast makes Feed return [ErrBackpressure] when the ingestion queue
	// is full instead of blocking until space frees up.
	FailFast bool

	// Logger defaults to [slog.Default].
	Logger *slog.Logger

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// job pairs a finalized segment with its position in the session order.
type job struct {
	seq uint64
	seg segment.Segment
}

// Session is one live transcription stream. Create with [Open], feed audio
// with [Session.Feed], consume [Session.Transcripts] until it closes, and
// finish with [Session.Close] (or [Session.CloseNow] to abandon in-flight
// work).
//
// Feed and Close may be called from different goroutines than the consumer,
// but the consumer must keep draining Transcripts or the pipeline eventually
// stalls.
type Session struct {
	cfg Config
	log *slog.Logger
	met *observe.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	in      chan []int16
	jobs    chan job
	results chan Element
	out     chan Element
	done    chan struct{}

	mu     sync.RWMutex
	closed bool

	// aborted distinguishes CloseNow (or parent cancellation) from a
	// graceful Close; the session context alone cannot, since collect
	// cancels it on every teardown.
	aborted atomic.Bool
}

// Open validates cfg, applies defaults, and starts the session pipeline. The
// parent ctx bounds the session's lifetime: cancelling it has the same effect
// as CloseNow.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.VAD == nil {
		return nil, errors.New("stream: config: VAD session handle is required")
	}
	if cfg.Backend == nil {
		return nil, errors.New("stream: config: recognition backend is required")
	}
	if cfg.Policy.SampleRate <= 0 {
		return nil, errors.New("stream: config: positive sample rate is required")
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = 512
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 32
	}
	if cfg.BackendName == "" {
		cfg.BackendName = "asr"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		cfg:     cfg,
		log:     cfg.Logger,
		met:     cfg.Metrics,
		ctx:     sctx,
		cancel:  cancel,
		in:      make(chan []int16, cfg.QueueDepth),
		jobs:    make(chan job, cfg.Workers),
		results: make(chan Element, cfg.Workers+cfg.QueueDepth),
		out:     make(chan Element),
		done:    make(chan struct{}),
	}
	s.met.ActiveSessions.Add(sctx, 1)

	go s.ingest()

	g := new(errgroup.Group)
	for range cfg.Workers {
		g.Go(s.worker)
	}
	go func() {
		_ = g.Wait() // worker errors are delivered as elements
		close(s.results)
	}()

	go s.collect()

	return s, nil
}

// Feed submits a chunk of mono PCM samples. The chunk is copied; the caller
// may reuse the slice. Chunk size is arbitrary; the session reframes
// internally.
//
// Returns [ErrSessionClosed] after Close, [ErrCanceled] after CloseNow, and
// [ErrBackpressure] when the queue is full and the session was opened with
// FailFast.
func (s *Session) Feed(ctx context.Context, samples []int16) error {
	if len(samples) == 0 {
		return nil
	}
	chunk := make([]int16, len(samples))
	copy(chunk, samples)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		if s.aborted.Load() {
			return ErrCanceled
		}
		return ErrSessionClosed
	}

	if s.cfg.FailFast {
		select {
		case s.in <- chunk:
			return nil
		case <-s.ctx.Done():
			return ErrCanceled
		case <-ctx.Done():
			return ctx.Err()
		default:
			s.met.BackpressureRejections.Add(ctx, 1)
			return ErrBackpressure
		}
	}

	select {
	case s.in <- chunk:
		return nil
	case <-s.ctx.Done():
		return ErrCanceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FeedBytes submits little-endian 16-bit PCM bytes. Returns
// [audio.ErrInputFormat] on an odd-length payload.
func (s *Session) FeedBytes(ctx context.Context, b []byte) error {
	if len(b)%2 != 0 {
		return fmt.Errorf("%w: odd byte count %d for 16-bit PCM", audio.ErrInputFormat, len(b))
	}
	return s.Feed(ctx, audio.BytesToInt16(b))
}

// Transcripts returns the session's ordered output. The channel closes after
// Close once every in-flight segment has been delivered, or shortly after
// CloseNow.
func (s *Session) Transcripts() <-chan Element {
	return s.out
}

// Close stops intake and drains the pipeline: buffered audio is segmented,
// any in-progress utterance is finalized with reason "stream-end", and all
// pending recognitions complete before Transcripts closes. Close blocks
// until then or until ctx expires. Safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.stopIntake()
	select {
	case <-s.done:
		if s.aborted.Load() {
			return ErrCanceled
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseNow aborts the session: in-flight recognitions are cancelled and
// dropped. The consumer receives a best-effort [KindCanceled] element before
// Transcripts closes. Safe to call more than once and after Close.
func (s *Session) CloseNow() {
	s.aborted.Store(true)
	s.stopIntake()
	s.cancel()
}

// stopIntake marks the session closed and closes the ingestion queue exactly
// once.
func (s *Session) stopIntake() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.in)
	}
}

// ingest is the single-goroutine owner of the framer, the VAD handle, and
// the segmentation state machine.
func (s *Session) ingest() {
	defer close(s.jobs)
	defer s.cfg.VAD.Close()

	framer, _ := audio.NewFramer(s.cfg.FrameSize) // FrameSize validated in Open
	machine := segment.New(s.cfg.Policy)
	var seq uint64

	// emit forwards one Process output downstream. Silence notices bypass
	// the workers but share the seq counter so ordering is preserved.
	emit := func(out segment.Output) bool {
		if out.SilenceNotice {
			s.met.SilenceNotices.Add(s.ctx, 1)
			e := Element{Kind: KindSilence, Seq: seq}
			seq++
			select {
			case s.results <- e:
			case <-s.ctx.Done():
				return false
			}
		}
		for _, sg := range out.Segments {
			span := audio.Duration(int64(len(sg.Samples)), s.cfg.Policy.SampleRate)
			s.met.RecordSegment(s.ctx, sg.Reason.String(), span)
			j := job{seq: seq, seg: sg}
			seq++
			select {
			case s.jobs <- j:
			case <-s.ctx.Done():
				return false
			}
		}
		return true
	}

	for {
		select {
		case chunk, ok := <-s.in:
			if !ok {
				// Intake closed: fold the sub-frame remainder into an open
				// utterance, then flush.
				if rest := framer.Pending(); len(rest) > 0 && machine.State() == segment.StateAccumulating {
					if !emit(machine.Process(rest, true)) {
						return
					}
				}
				if last := machine.Flush(); last != nil {
					emit(segment.Output{Segments: []segment.Segment{*last}})
				}
				return
			}
			for _, frame := range framer.Push(chunk) {
				start := time.Now()
				d, err := s.cfg.VAD.ProcessFrame(frame)
				s.met.VADDuration.Record(s.ctx, time.Since(start).Seconds())
				speech := d.Speech
				if err != nil {
					// Fail open: losing an utterance is worse than
					// transcribing noise.
					s.log.LogAttrs(s.ctx, slog.LevelWarn, "vad frame failed",
						slog.String("error", err.Error()))
					speech = true
				}
				if !emit(machine.Process(frame, speech)) {
					return
				}
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// worker transcribes jobs until the jobs channel closes. Recognition
// failures become error elements in the segment's output position.
func (s *Session) worker() error {
	for j := range s.jobs {
		start := time.Now()
		text, err := s.cfg.Backend.Transcribe(s.ctx, j.seg.Samples, s.cfg.Policy.SampleRate)
		s.met.RecordRecognition(s.ctx, s.cfg.BackendName, time.Since(start), err)

		e := Element{
			Seq:    j.seq,
			Start:  audio.Duration(j.seg.Start, s.cfg.Policy.SampleRate),
			End:    audio.Duration(j.seg.End, s.cfg.Policy.SampleRate),
			Reason: j.seg.Reason.String(),
		}
		if err != nil {
			s.log.LogAttrs(s.ctx, slog.LevelError, "recognition failed",
				slog.Uint64("seq", j.seq),
				slog.String("error", err.Error()))
			e.Kind = KindError
			e.Err = err
		} else {
			e.Kind = KindTranscript
			e.Text = text
		}

		select {
		case s.results <- e:
		case <-s.ctx.Done():
			return s.ctx.Err()
		}
	}
	return nil
}

// collect restores session order and delivers elements to the consumer.
func (s *Session) collect() {
	canceled := false
	defer func() {
		// Release the parent context registration before signalling done so
		// a returned Close always observes a finished session context.
		s.cancel()
		if canceled {
			// Best effort: a consumer that stopped reading must not wedge
			// shutdown.
			select {
			case s.out <- Element{Kind: KindCanceled}:
			default:
			}
		}
		close(s.out)
		close(s.done)
		s.met.ActiveSessions.Add(context.Background(), -1)
	}()

	buf := newReorderBuffer()
	for {
		select {
		case e, ok := <-s.results:
			if !ok {
				canceled = s.ctx.Err() != nil
				if canceled {
					s.aborted.Store(true)
				}
				return
			}
			for _, r := range buf.Add(e) {
				select {
				case s.out <- r:
				case <-s.ctx.Done():
					canceled = true
					s.aborted.Store(true)
					return
				}
			}
		case <-s.ctx.Done():
			canceled = true
			s.aborted.Store(true)
			return
		}
	}
}
