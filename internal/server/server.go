// Package server exposes the Breeze streaming API over HTTP.
//
// Endpoints:
//
//   - GET /v1/stream: WebSocket streaming transcription. Binary messages
//     carry little-endian 16-bit mono PCM at the configured sample rate;
//     text messages carry JSON control frames. The server replies with JSON
//     events, one per finalized segment, in segment order.
//   - GET /v1/transcripts: persisted transcript queries (when a store is
//     configured).
//   - GET /healthz, /readyz: liveness and readiness probes.
//   - GET /metrics: Prometheus scrape endpoint.
//
// The server enforces the configured session cap: connections beyond
// server.max_sessions are rejected with 503 before the WebSocket handshake.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"

	"github.com/mtkresearch/breeze-asr-go/internal/config"
	"github.com/mtkresearch/breeze-asr-go/internal/health"
	"github.com/mtkresearch/breeze-asr-go/internal/observe"
	"github.com/mtkresearch/breeze-asr-go/internal/transcript"
	"github.com/mtkresearch/breeze-asr-go/pkg/provider/asr"
	"github.com/mtkresearch/breeze-asr-go/pkg/provider/vad"
)

// shutdownGrace is how long Shutdown waits for in-flight sessions to flush.
const shutdownGrace = 15 * time.Second

// Server serves the streaming transcription API.
type Server struct {
	cfg     *config.Config
	backend asr.Backend
	vads    vad.Engine

	store    transcript.Store
	metrics  *observe.Metrics
	logger   *slog.Logger
	checkers []health.Checker

	// sessions caps concurrent streaming sessions. Nil when unlimited.
	sessions *semaphore.Weighted

	httpSrv *http.Server
}

// Option configures optional [Server] collaborators.
type Option func(*Server)

// WithStore enables transcript persistence. Finalized transcript elements
// are appended to the store as they are delivered to the client, and the
// /v1/transcripts query endpoints are registered.
func WithStore(st transcript.Store) Option {
	return func(s *Server) { s.store = st }
}

// WithMetrics overrides the default metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithCheckers adds readiness checks evaluated by /readyz.
func WithCheckers(checkers ...health.Checker) Option {
	return func(s *Server) { s.checkers = append(s.checkers, checkers...) }
}

// New creates a Server. backend and vads are required; cfg supplies the
// listen address, session cap, and the per-session segmentation and stream
// settings.
func New(cfg *config.Config, backend asr.Backend, vads vad.Engine, opts ...Option) (*Server, error) {
	if backend == nil {
		return nil, errors.New("server: recognition backend is required")
	}
	if vads == nil {
		return nil, errors.New("server: vad engine is required")
	}

	s := &Server{
		cfg:     cfg,
		backend: backend,
		vads:    vads,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if n := cfg.Server.MaxSessions; n > 0 {
		s.sessions = semaphore.NewWeighted(int64(n))
	}

	s.httpSrv = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the fully routed HTTP handler, wrapped in the tracing and
// metrics middleware. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/stream", s.handleStream)
	if s.store != nil {
		mux.HandleFunc("GET /v1/transcripts", s.handleTranscriptList)
		mux.HandleFunc("GET /v1/transcripts/search", s.handleTranscriptSearch)
	}

	health.New(s.checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(s.metrics)(mux)
}

// Start runs the HTTP server until it fails or [Server.Shutdown] is called.
// It blocks; run it from a goroutine or as the last call in main. The
// returned error is nil on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("server listening",
		"addr", s.cfg.Server.ListenAddr,
		"max_sessions", s.cfg.Server.MaxSessions,
		"tls", s.cfg.Server.TLS != nil,
	)

	var err error
	if tls := s.cfg.Server.TLS; tls != nil {
		err = s.httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
	} else {
		err = s.httpSrv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("server: listen on %s: %w", s.cfg.Server.ListenAddr, err)
}

// Shutdown stops accepting new connections and waits for in-flight sessions
// to flush, bounded by ctx and [shutdownGrace].
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}
