package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mtkresearch/breeze-asr-go/pkg/provider/asr"
)

// ErrAllFailed is returned when every backend in a [FailoverBackend] fails or
// has an open circuit breaker.
var ErrAllFailed = errors.New("all recognition backends failed")

// entry pairs a backend with its dedicated circuit breaker.
type entry struct {
	name    string
	backend asr.Backend
	breaker *CircuitBreaker
}

// FailoverBackend implements [asr.Backend] with automatic failover across
// multiple recognition backends. Each backend has its own circuit breaker so
// a tripped primary is skipped without paying its timeout on every segment.
//
// Register all fallbacks before first use; Transcribe is then safe for
// concurrent use.
type FailoverBackend struct {
	entries []entry
	cfg     BreakerConfig
	log     *slog.Logger
}

// Compile-time interface assertion.
var _ asr.Backend = (*FailoverBackend)(nil)

// NewFailoverBackend creates a [FailoverBackend] with primary as the
// preferred backend. cfg configures the per-backend circuit breakers.
func NewFailoverBackend(primary asr.Backend, primaryName string, cfg BreakerConfig) *FailoverBackend {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	f := &FailoverBackend{cfg: cfg, log: log}
	f.add(primaryName, primary)
	return f
}

// AddFallback registers an additional backend. Fallbacks are tried in the
// order they are added, after the primary.
func (f *FailoverBackend) AddFallback(name string, backend asr.Backend) {
	f.add(name, backend)
}

func (f *FailoverBackend) add(name string, backend asr.Backend) {
	cbCfg := f.cfg
	cbCfg.Name = name
	f.entries = append(f.entries, entry{
		name:    name,
		backend: backend,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Transcribe tries each backend in order until one succeeds. Backends with
// an open breaker are skipped. Returns [ErrAllFailed] wrapped with the last
// error when every backend fails.
func (f *FailoverBackend) Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	var lastErr error
	for i := range f.entries {
		e := &f.entries[i]
		var text string
		err := e.breaker.Execute(func() error {
			var inner error
			text, inner = e.backend.Transcribe(ctx, samples, sampleRate)
			return inner
		})
		if err == nil {
			return text, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			f.log.Debug("skipping backend (circuit open)", "backend", e.name)
		} else {
			f.log.Warn("backend failed, trying next", "backend", e.name, "error", err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
