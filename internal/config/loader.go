package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mtkresearch/breeze-asr-go/internal/modelhub"
)

// Default returns a Config populated with the built-in defaults. [Load] and
// [LoadFromReader] decode over these, so a file only needs to state what it
// changes.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:  ":8080",
			LogLevel:    LogInfo,
			MaxSessions: 32,
		},
		Model: ModelConfig{
			Ref: modelhub.DefaultModelRef,
		},
		Recognition: RecognitionConfig{
			Backend:  BackendWhisperCPP,
			Language: "auto",
			Workers:  2,
		},
		VAD: VADConfig{
			Engine:    VADSilero,
			Threshold: 0.5,
			FrameSize: 512,
		},
		Segmentation: SegmentationConfig{
			SampleRate:       16000,
			MaxUtterance:     Duration(30 * time.Second),
			SilenceThreshold: Duration(800 * time.Millisecond),
			MinUtterance:     Duration(500 * time.Millisecond),
			Rollback:         Duration(200 * time.Millisecond),
		},
		Stream: StreamConfig{
			QueueDepth: 32,
		},
	}
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over the defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("server.max_sessions %d must not be negative", cfg.Server.MaxSessions))
	}

	// Model
	if cfg.Model.Ref == "" {
		errs = append(errs, errors.New("model.ref is required"))
	}

	// Recognition
	if !cfg.Recognition.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("recognition.backend %q is invalid; valid values: whispercpp, whisper-server", cfg.Recognition.Backend))
	}
	if cfg.Recognition.Backend == BackendWhisperServer && cfg.Recognition.ServerURL == "" {
		errs = append(errs, errors.New("recognition.server_url is required when recognition.backend is whisper-server"))
	}
	if cfg.Recognition.Workers < 0 {
		errs = append(errs, fmt.Errorf("recognition.workers %d must not be negative", cfg.Recognition.Workers))
	}
	if fb := cfg.Recognition.Fallback; fb != nil {
		if !fb.Backend.IsValid() {
			errs = append(errs, fmt.Errorf("recognition.fallback.backend %q is invalid", fb.Backend))
		}
		if fb.Backend == BackendWhisperServer && fb.ServerURL == "" {
			errs = append(errs, errors.New("recognition.fallback.server_url is required when the fallback backend is whisper-server"))
		}
	}

	// VAD
	if !cfg.VAD.Engine.IsValid() {
		errs = append(errs, fmt.Errorf("vad.engine %q is invalid; valid values: silero, energy", cfg.VAD.Engine))
	}
	if cfg.VAD.Engine == VADSilero && cfg.VAD.ModelPath == "" {
		errs = append(errs, errors.New("vad.model_path is required when vad.engine is silero"))
	}
	if cfg.VAD.Threshold < 0 || cfg.VAD.Threshold > 1 {
		errs = append(errs, fmt.Errorf("vad.threshold %.2f is out of range [0, 1]", cfg.VAD.Threshold))
	}
	if cfg.VAD.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("vad.frame_size %d must be positive", cfg.VAD.FrameSize))
	}

	// Segmentation
	seg := cfg.Segmentation
	if seg.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("segmentation.sample_rate %d must be positive", seg.SampleRate))
	}
	if cfg.VAD.Engine == VADSilero {
		switch {
		case seg.SampleRate == 16000 && cfg.VAD.FrameSize != 512:
			errs = append(errs, fmt.Errorf("vad.frame_size must be 512 at 16000 Hz for silero, got %d", cfg.VAD.FrameSize))
		case seg.SampleRate == 8000 && cfg.VAD.FrameSize != 256:
			errs = append(errs, fmt.Errorf("vad.frame_size must be 256 at 8000 Hz for silero, got %d", cfg.VAD.FrameSize))
		case seg.SampleRate != 16000 && seg.SampleRate != 8000:
			errs = append(errs, fmt.Errorf("segmentation.sample_rate %d is unsupported by silero; use 16000 or 8000", seg.SampleRate))
		}
	}
	if seg.SilenceThreshold <= 0 {
		errs = append(errs, errors.New("segmentation.silence_threshold must be positive"))
	}
	for name, d := range map[string]Duration{
		"segmentation.max_utterance":        seg.MaxUtterance,
		"segmentation.min_utterance":        seg.MinUtterance,
		"segmentation.rollback":             seg.Rollback,
		"segmentation.notify_silence_after": seg.NotifySilenceAfter,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if seg.MaxUtterance > 0 && seg.MinUtterance > seg.MaxUtterance {
		errs = append(errs, fmt.Errorf("segmentation.min_utterance %v exceeds max_utterance %v", seg.MinUtterance.Std(), seg.MaxUtterance.Std()))
	}
	if seg.MaxUtterance > 0 && seg.Rollback >= seg.MaxUtterance {
		errs = append(errs, fmt.Errorf("segmentation.rollback %v must be shorter than max_utterance %v", seg.Rollback.Std(), seg.MaxUtterance.Std()))
	}

	// Stream
	if cfg.Stream.QueueDepth < 0 {
		errs = append(errs, fmt.Errorf("stream.queue_depth %d must not be negative", cfg.Stream.QueueDepth))
	}

	// Advisory warnings.
	if cfg.Store.PostgresDSN == "" {
		slog.Warn("store.postgres_dsn is empty; transcripts will not be persisted")
	}
	if cfg.VAD.Engine == VADEnergy {
		slog.Warn("vad.engine is energy; expect degraded segmentation accuracy in noisy audio")
	}

	return errors.Join(errs...)
}
