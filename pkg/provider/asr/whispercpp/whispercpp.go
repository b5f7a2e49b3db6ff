// Package whispercpp provides a recognition backend using the whisper.cpp
// CGO bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// The GGML model is loaded once at construction and shared across all
// transcriptions; each Transcribe call creates its own whisper context, so
// concurrent calls are safe.
package whispercpp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/mtkresearch/breeze-asr-go/pkg/audio"
	"github.com/mtkresearch/breeze-asr-go/pkg/provider/asr"
)

// modelSampleRate is the only input rate whisper.cpp accepts.
const modelSampleRate = 16000

// Compile-time assertion that Backend satisfies asr.Backend.
var _ asr.Backend = (*Backend)(nil)

// Option is a functional option for configuring a Backend.
type Option func(*Backend)

// WithLanguage sets the BCP-47 language code for transcription (e.g., "en",
// "zh", "de"). Defaults to "auto" (model-side language detection).
func WithLanguage(lang string) Option {
	return func(b *Backend) { b.language = lang }
}

// WithTranslate enables translation of the recognised speech into English.
func WithTranslate(enabled bool) Option {
	return func(b *Backend) { b.translate = enabled }
}

// Backend implements asr.Backend on top of a locally loaded whisper.cpp model.
type Backend struct {
	model     whisperlib.Model
	language  string
	translate bool
}

// New loads the GGML model at modelPath. A load failure is reported as
// asr.ErrModelUnavailable. The caller must call Close when the backend is no
// longer needed.
func New(modelPath string, opts ...Option) (*Backend, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("%w: model path is empty", asr.ErrModelUnavailable)
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: load %q: %v", asr.ErrModelUnavailable, modelPath, err)
	}
	b := &Backend{model: model, language: "auto"}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

// Close releases the whisper model.
func (b *Backend) Close() error {
	if b.model != nil {
		return b.model.Close()
	}
	return nil
}

// Transcribe runs whisper.cpp inference over the segment. Input at rates
// other than 16 kHz is resampled first. Returns the concatenated text of all
// whisper segments.
func (b *Backend) Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &asr.RecognitionError{Cause: err}
	}
	if sampleRate != modelSampleRate {
		samples = audio.ResampleMono16(samples, sampleRate, modelSampleRate)
	}

	// Each context is NOT thread-safe, but the model can be shared across
	// goroutines, so a fresh context per call keeps Transcribe concurrent.
	wctx, err := b.model.NewContext()
	if err != nil {
		return "", &asr.RecognitionError{Cause: fmt.Errorf("create context: %w", err)}
	}
	if err := wctx.SetLanguage(b.language); err != nil {
		slog.Warn("whispercpp: failed to set language, using default",
			"language", b.language, "error", err)
	}
	wctx.SetTranslate(b.translate)

	if err := wctx.Process(audio.Int16ToFloat32(samples), nil, nil, nil); err != nil {
		return "", &asr.RecognitionError{Cause: fmt.Errorf("process audio: %w", err)}
	}

	var parts []string
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", &asr.RecognitionError{Cause: fmt.Errorf("read segment: %w", err)}
		}
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
