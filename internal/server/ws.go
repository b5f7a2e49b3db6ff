package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/mtkresearch/breeze-asr-go/internal/observe"
	"github.com/mtkresearch/breeze-asr-go/internal/stream"
	"github.com/mtkresearch/breeze-asr-go/internal/transcript"
	"github.com/mtkresearch/breeze-asr-go/pkg/audio"
	"github.com/mtkresearch/breeze-asr-go/pkg/provider/vad"
)

// flushTimeout bounds how long a closing session may spend finishing
// recognition of already-buffered audio.
const flushTimeout = 30 * time.Second

// event is the JSON wire form of a [stream.Element].
type event struct {
	// Type is "transcript", "error", "silence", or "canceled".
	Type string `json:"type"`

	// Seq is the element's position in the session order.
	Seq uint64 `json:"seq"`

	// StartMS and EndMS locate the segment within the stream, in
	// milliseconds. Absent for silence and cancellation events.
	StartMS int64 `json:"start_ms,omitempty"`
	EndMS   int64 `json:"end_ms,omitempty"`

	// Reason is the segment finalization trigger.
	Reason string `json:"reason,omitempty"`

	// Text is the recognized transcript.
	Text string `json:"text,omitempty"`

	// Error is the recognition failure message for error events.
	Error string `json:"error,omitempty"`
}

// control is a JSON text frame sent by the client.
type control struct {
	// Op is the requested operation. Supported: "close" (stop intake, flush
	// pending segments, then close the connection).
	Op string `json:"op"`
}

func elementEvent(e stream.Element) event {
	ev := event{
		Type:    e.Kind.String(),
		Seq:     e.Seq,
		StartMS: e.Start.Milliseconds(),
		EndMS:   e.End.Milliseconds(),
		Reason:  e.Reason,
		Text:    e.Text,
	}
	if e.Err != nil {
		ev.Error = e.Err.Error()
	}
	return ev
}

// handleStream upgrades the request to a WebSocket and runs one streaming
// transcription session over it.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.sessions != nil && !s.sessions.TryAcquire(1) {
		http.Error(w, "session limit reached", http.StatusServiceUnavailable)
		return
	}
	if s.sessions != nil {
		defer s.sessions.Release(1)
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "err", err)
		return
	}

	sessionID := uuid.NewString()
	logger := observe.Logger(r.Context(), s.logger).With("session_id", sessionID)

	vsess, err := s.vads.NewSession(vad.Config{
		SampleRate: s.cfg.Segmentation.SampleRate,
		FrameSize:  s.cfg.VAD.FrameSize,
		Threshold:  s.cfg.VAD.Threshold,
		ModelPath:  s.cfg.VAD.ModelPath,
	})
	if err != nil {
		logger.Error("vad session failed", "err", err)
		conn.Close(websocket.StatusInternalError, "vad unavailable")
		return
	}

	sess, err := stream.Open(r.Context(), stream.Config{
		Policy:      s.cfg.Segmentation.Policy(),
		FrameSize:   s.cfg.VAD.FrameSize,
		VAD:         vsess,
		Backend:     s.backend,
		BackendName: string(s.cfg.Recognition.Backend),
		Workers:     s.cfg.Recognition.Workers,
		QueueDepth:  s.cfg.Stream.QueueDepth,
		FailFast:    s.cfg.Stream.FailFast,
		Logger:      logger,
		Metrics:     s.metrics,
	})
	if err != nil {
		logger.Error("stream session failed", "err", err)
		conn.Close(websocket.StatusInternalError, "session unavailable")
		return
	}

	logger.Info("stream session opened", "remote", r.RemoteAddr)
	s.runStream(r.Context(), conn, sess, sessionID, logger)
}

// runStream pumps audio from conn into sess and events from sess back to
// conn until the client disconnects or requests a close.
func (s *Server) runStream(ctx context.Context, conn *websocket.Conn, sess *stream.Session, sessionID string, logger *slog.Logger) {
	// Writer: the only goroutine allowed to write to conn after the
	// handshake. Ends when the session's output channel closes.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for e := range sess.Transcripts() {
			s.persist(ctx, sessionID, e, logger)
			payload, err := json.Marshal(elementEvent(e))
			if err != nil {
				logger.Error("event marshal failed", "err", err)
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				logger.Debug("event write failed, aborting session", "err", err)
				sess.CloseNow()
				for range sess.Transcripts() {
					// Drain so the session can finish tearing down.
				}
				return
			}
		}
	}()

	// Reader loop. conn.Read fails when the client disconnects or the
	// request context ends.
readLoop:
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			logger.Debug("client read ended", "err", err)
			break
		}

		switch typ {
		case websocket.MessageBinary:
			if err := s.feed(ctx, sess, data, logger); err != nil {
				logger.Debug("intake ended", "err", err)
				break readLoop
			}
		case websocket.MessageText:
			var c control
			if err := json.Unmarshal(data, &c); err != nil {
				logger.Warn("malformed control frame", "err", err)
				continue
			}
			if c.Op == "close" {
				break readLoop
			}
			logger.Warn("unknown control op", "op", c.Op)
		}
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := sess.Close(flushCtx); err != nil && !errors.Is(err, stream.ErrCanceled) {
		logger.Warn("session close", "err", err)
		sess.CloseNow()
	}
	<-writerDone

	conn.Close(websocket.StatusNormalClosure, "")
	logger.Info("stream session closed")
}

// feed pushes one binary chunk into the session. Backpressure rejections and
// malformed chunks drop the chunk but keep the connection alive; any other
// error is terminal for intake.
func (s *Server) feed(ctx context.Context, sess *stream.Session, data []byte, logger *slog.Logger) error {
	err := sess.FeedBytes(ctx, data)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stream.ErrBackpressure):
		logger.Warn("chunk dropped, ingestion queue full", "bytes", len(data))
		return nil
	case errors.Is(err, audio.ErrInputFormat):
		logger.Warn("chunk dropped, malformed audio payload", "bytes", len(data), "err", err)
		return nil
	default:
		return err
	}
}

// persist appends transcript elements to the configured store. Store
// failures are logged, not surfaced: delivery to the client has priority
// over the audit log.
func (s *Server) persist(ctx context.Context, sessionID string, e stream.Element, logger *slog.Logger) {
	if s.store == nil || e.Kind != stream.KindTranscript {
		return
	}
	entry := transcript.Entry{
		SessionID: sessionID,
		Seq:       e.Seq,
		Start:     e.Start,
		End:       e.End,
		Reason:    e.Reason,
		Text:      e.Text,
	}
	if err := s.store.Append(ctx, entry); err != nil {
		logger.Error("transcript persist failed", "seq", e.Seq, "err", err)
	}
}
