// Package recognizer is the public entry point for Breeze speech
// recognition. It wires model resolution, the recognition backend, the VAD
// engine, and resilience into one object with two operations: [Recognizer.InferFile]
// for batch transcription of WAV files and [Recognizer.OpenStream] for live
// streaming sessions.
//
// Component construction goes through a [config.Registry]; [Builtin] returns
// one with every engine that ships in this module. Tests inject doubles via
// [WithBackend] and [WithVADEngine] instead.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mtkresearch/breeze-asr-go/internal/config"
	"github.com/mtkresearch/breeze-asr-go/internal/modelhub"
	"github.com/mtkresearch/breeze-asr-go/internal/observe"
	"github.com/mtkresearch/breeze-asr-go/internal/resilience"
	"github.com/mtkresearch/breeze-asr-go/internal/stream"
	"github.com/mtkresearch/breeze-asr-go/pkg/audio"
	"github.com/mtkresearch/breeze-asr-go/pkg/provider/asr"
	"github.com/mtkresearch/breeze-asr-go/pkg/provider/asr/whispercpp"
	"github.com/mtkresearch/breeze-asr-go/pkg/provider/asr/whisperserver"
	"github.com/mtkresearch/breeze-asr-go/pkg/provider/vad"
	"github.com/mtkresearch/breeze-asr-go/pkg/provider/vad/energy"
	"github.com/mtkresearch/breeze-asr-go/pkg/provider/vad/silero"
)

// feedChunk is the batch driver's Feed granularity, in samples.
const feedChunk = 4096

// Builtin returns a [config.Registry] with every recognition backend and VAD
// engine that ships in this module.
func Builtin() *config.Registry {
	reg := config.NewRegistry()

	reg.RegisterBackend(config.BackendWhisperCPP, func(cfg config.RecognitionConfig, modelPath string) (asr.Backend, error) {
		return whispercpp.New(modelPath,
			whispercpp.WithLanguage(cfg.Language),
			whispercpp.WithTranslate(cfg.Translate),
		)
	})
	reg.RegisterBackend(config.BackendWhisperServer, func(cfg config.RecognitionConfig, _ string) (asr.Backend, error) {
		return whisperserver.New(cfg.ServerURL,
			whisperserver.WithLanguage(cfg.Language),
		)
	})

	reg.RegisterVAD(config.VADSilero, func(_ config.VADConfig) (vad.Engine, error) {
		return silero.New(), nil
	})
	reg.RegisterVAD(config.VADEnergy, func(_ config.VADConfig) (vad.Engine, error) {
		return energy.New(), nil
	})

	return reg
}

// Recognizer owns a configured recognition pipeline.
type Recognizer struct {
	cfg       *config.Config
	backend   asr.Backend
	vads      vad.Engine
	modelPath string
	logger    *slog.Logger
	metrics   *observe.Metrics

	closers []io.Closer
}

type options struct {
	registry *config.Registry
	resolver *modelhub.Resolver
	logger   *slog.Logger
	metrics  *observe.Metrics
	backend  asr.Backend
	vads     vad.Engine
}

// Option customises [New].
type Option func(*options)

// WithRegistry replaces the [Builtin] component registry.
func WithRegistry(reg *config.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithResolver replaces the default model resolver.
func WithResolver(r *modelhub.Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics overrides the default metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithBackend injects a ready recognition backend, bypassing the registry,
// model resolution, and failover wrapping. Intended for tests.
func WithBackend(b asr.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithVADEngine injects a ready VAD engine, bypassing the registry. Intended
// for tests.
func WithVADEngine(e vad.Engine) Option {
	return func(o *options) { o.vads = e }
}

// New builds a Recognizer from cfg. Model weights are resolved (and
// downloaded on first use) for in-process backends; failures surface as
// [asr.ErrModelUnavailable]. The recognition path is wrapped in a circuit
// breaker, with an optional fallback backend from cfg.Recognition.Fallback.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Recognizer, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	if o.registry == nil {
		o.registry = Builtin()
	}
	if o.resolver == nil {
		var hubOpts []modelhub.Option
		if cfg.Model.CacheDir != "" {
			hubOpts = append(hubOpts, modelhub.WithCacheDir(cfg.Model.CacheDir))
		}
		if cfg.Model.HubURL != "" {
			hubOpts = append(hubOpts, modelhub.WithBaseURL(cfg.Model.HubURL))
		}
		o.resolver = modelhub.New(hubOpts...)
	}

	r := &Recognizer{
		cfg:     cfg,
		logger:  o.logger,
		metrics: o.metrics,
		backend: o.backend,
		vads:    o.vads,
	}

	if r.backend == nil {
		if err := r.buildBackend(ctx, o); err != nil {
			r.Close()
			return nil, err
		}
	}
	if r.vads == nil {
		engine, err := o.registry.CreateVAD(cfg.VAD)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("recognizer: vad engine: %w", err)
		}
		r.vads = engine
	}
	return r, nil
}

// buildBackend resolves models, constructs the primary (and optional
// fallback) backend, and wraps them in the failover circuit breaker.
func (r *Recognizer) buildBackend(ctx context.Context, o options) error {
	cfg := r.cfg

	modelPath, err := r.resolveModel(ctx, o.resolver, cfg.Recognition.Backend, cfg.Model.Ref)
	if err != nil {
		return err
	}
	r.modelPath = modelPath

	primary, err := o.registry.CreateBackend(cfg.Recognition.Backend, cfg.Recognition, modelPath)
	if err != nil {
		return fmt.Errorf("recognizer: backend %q: %w", cfg.Recognition.Backend, err)
	}
	r.trackCloser(primary)

	failover := resilience.NewFailoverBackend(primary, string(cfg.Recognition.Backend), resilience.BreakerConfig{
		Name:         string(cfg.Recognition.Backend),
		MaxFailures:  cfg.Recognition.Breaker.MaxFailures,
		ResetTimeout: cfg.Recognition.Breaker.ResetTimeout.Std(),
		HalfOpenMax:  cfg.Recognition.Breaker.HalfOpenMax,
		Logger:       r.logger,
	})

	if fb := cfg.Recognition.Fallback; fb != nil {
		fbRef := fb.ModelRef
		if fbRef == "" {
			fbRef = cfg.Model.Ref
		}
		fbModel, err := r.resolveModel(ctx, o.resolver, fb.Backend, fbRef)
		if err != nil {
			return err
		}
		fbCfg := cfg.Recognition
		fbCfg.Backend = fb.Backend
		fbCfg.ServerURL = fb.ServerURL
		fallback, err := o.registry.CreateBackend(fb.Backend, fbCfg, fbModel)
		if err != nil {
			return fmt.Errorf("recognizer: fallback backend %q: %w", fb.Backend, err)
		}
		r.trackCloser(fallback)
		failover.AddFallback(string(fb.Backend), fallback)
		r.logger.Info("fallback backend configured", "backend", fb.Backend)
	}

	r.backend = failover
	return nil
}

// resolveModel fetches model weights for backends that load them in-process.
// Remote backends carry their own models, so no resolution happens for them.
func (r *Recognizer) resolveModel(ctx context.Context, resolver *modelhub.Resolver, kind config.BackendKind, ref string) (string, error) {
	if kind != config.BackendWhisperCPP {
		return "", nil
	}
	path, err := resolver.Resolve(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("recognizer: resolve model %q: %w", ref, err)
	}
	r.logger.Info("model resolved", "ref", ref, "path", path)
	return path, nil
}

func (r *Recognizer) trackCloser(v any) {
	if c, ok := v.(io.Closer); ok {
		r.closers = append(r.closers, c)
	}
}

// Backend returns the wrapped recognition backend.
func (r *Recognizer) Backend() asr.Backend { return r.backend }

// VADEngine returns the configured VAD engine.
func (r *Recognizer) VADEngine() vad.Engine { return r.vads }

// ModelPath returns the resolved local model path, or "" when the backend
// does not load models in-process.
func (r *Recognizer) ModelPath() string { return r.modelPath }

// Close releases backend resources. Safe to call on a partially constructed
// Recognizer.
func (r *Recognizer) Close() {
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			r.logger.Warn("backend close", "err", err)
		}
	}
	r.closers = nil
}

// OpenStream starts a live streaming session using the recognizer's backend
// and VAD. The caller owns the session and must close it.
func (r *Recognizer) OpenStream(ctx context.Context) (*stream.Session, error) {
	return r.openStream(ctx, r.cfg.Stream.FailFast)
}

func (r *Recognizer) openStream(ctx context.Context, failFast bool) (*stream.Session, error) {
	vsess, err := r.vads.NewSession(vad.Config{
		SampleRate: r.cfg.Segmentation.SampleRate,
		FrameSize:  r.cfg.VAD.FrameSize,
		Threshold:  r.cfg.VAD.Threshold,
		ModelPath:  r.cfg.VAD.ModelPath,
	})
	if err != nil {
		return nil, fmt.Errorf("recognizer: vad session: %w", err)
	}

	sess, err := stream.Open(ctx, stream.Config{
		Policy:      r.cfg.Segmentation.Policy(),
		FrameSize:   r.cfg.VAD.FrameSize,
		VAD:         vsess,
		Backend:     r.backend,
		BackendName: string(r.cfg.Recognition.Backend),
		Workers:     r.cfg.Recognition.Workers,
		QueueDepth:  r.cfg.Stream.QueueDepth,
		FailFast:    failFast,
		Logger:      r.logger,
		Metrics:     r.metrics,
	})
	if err != nil {
		vsess.Close()
		return nil, err
	}
	return sess, nil
}

// InferFile transcribes a 16-bit PCM WAV file. The audio is down-mixed to
// mono and resampled to the configured rate when needed, then either run
// through VAD segmentation (default) or submitted to the backend as a single
// segment when batch.whole_file is set.
//
// Chunks for successfully recognized segments are always returned; failed
// segments contribute to the returned error instead, joined in segment
// order.
func (r *Recognizer) InferFile(ctx context.Context, path string) ([]asr.Chunk, error) {
	samples, rate, err := audio.ReadWAVFile(path)
	if err != nil {
		return nil, err
	}
	if target := r.cfg.Segmentation.SampleRate; rate != target {
		r.logger.Debug("resampling input", "from_hz", rate, "to_hz", target)
		samples = audio.ResampleMono16(samples, rate, target)
		rate = target
	}

	if r.cfg.Batch.WholeFile {
		return r.inferWhole(ctx, samples, rate)
	}
	return r.inferSegmented(ctx, samples)
}

// inferWhole submits the entire file as one segment.
func (r *Recognizer) inferWhole(ctx context.Context, samples []int16, rate int) ([]asr.Chunk, error) {
	text, err := r.backend.Transcribe(ctx, samples, rate)
	if err != nil {
		return nil, err
	}
	return []asr.Chunk{{
		Text:  text,
		Start: 0,
		End:   audio.Duration(int64(len(samples)), rate),
	}}, nil
}

// inferSegmented streams the file through VAD segmentation with an
// immediate close, collecting the ordered output. Feeds always block: a file
// is not a live source, so dropping audio under backpressure would lose
// content for no latency benefit.
func (r *Recognizer) inferSegmented(ctx context.Context, samples []int16) ([]asr.Chunk, error) {
	sess, err := r.openStream(ctx, false)
	if err != nil {
		return nil, err
	}

	var (
		chunks  []asr.Chunk
		segErrs []error
	)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for e := range sess.Transcripts() {
			switch e.Kind {
			case stream.KindTranscript:
				chunks = append(chunks, asr.Chunk{Text: e.Text, Start: e.Start, End: e.End})
			case stream.KindError:
				segErrs = append(segErrs, fmt.Errorf("segment %d [%v–%v]: %w", e.Seq, e.Start, e.End, e.Err))
			}
		}
	}()

	var feedErr error
	for off := 0; off < len(samples); off += feedChunk {
		end := min(off+feedChunk, len(samples))
		if feedErr = sess.Feed(ctx, samples[off:end]); feedErr != nil {
			break
		}
	}

	if err := sess.Close(ctx); err != nil {
		sess.CloseNow()
	}
	<-collected

	if feedErr != nil && !errors.Is(feedErr, stream.ErrSessionClosed) {
		segErrs = append([]error{feedErr}, segErrs...)
	}
	return chunks, errors.Join(segErrs...)
}
