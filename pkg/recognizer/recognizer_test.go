package recognizer_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mtkresearch/breeze-asr-go/internal/config"
	"github.com/mtkresearch/breeze-asr-go/internal/stream"
	"github.com/mtkresearch/breeze-asr-go/pkg/audio"
	"github.com/mtkresearch/breeze-asr-go/pkg/provider/asr"
	asrmock "github.com/mtkresearch/breeze-asr-go/pkg/provider/asr/mock"
	"github.com/mtkresearch/breeze-asr-go/pkg/provider/vad"
	"github.com/mtkresearch/breeze-asr-go/pkg/recognizer"
)

// levelEngine classifies a frame as speech when its first sample is nonzero.
type levelEngine struct{}

func (levelEngine) NewSession(_ vad.Config) (vad.SessionHandle, error) {
	return levelSession{}, nil
}

type levelSession struct{}

func (levelSession) ProcessFrame(frame []int16) (vad.Decision, error) {
	if len(frame) > 0 && frame[0] != 0 {
		return vad.Decision{Speech: true, Probability: 1}, nil
	}
	return vad.Decision{}, nil
}

func (levelSession) Reset()       {}
func (levelSession) Close() error { return nil }

func testCfg() *config.Config {
	return &config.Config{
		Model: config.ModelConfig{Ref: "unused"},
		Recognition: config.RecognitionConfig{
			Backend: config.BackendWhisperCPP,
			Workers: 1,
		},
		VAD: config.VADConfig{
			Engine:    config.VADEnergy,
			Threshold: 0.5,
			FrameSize: 512,
		},
		Segmentation: config.SegmentationConfig{
			SampleRate:       16000,
			SilenceThreshold: config.Duration(200 * time.Millisecond),
		},
		Stream: config.StreamConfig{QueueDepth: 64},
	}
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRecognizer(t *testing.T, cfg *config.Config, backend asr.Backend) *recognizer.Recognizer {
	t.Helper()
	r, err := recognizer.New(context.Background(), cfg,
		recognizer.WithBackend(backend),
		recognizer.WithVADEngine(levelEngine{}),
		recognizer.WithLogger(quiet()),
	)
	if err != nil {
		t.Fatalf("recognizer.New: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

// writeWAV writes n samples of constant amplitude to a temp WAV file.
func writeWAV(t *testing.T, n int, amplitude int16, rate int) string {
	t.Helper()
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = amplitude
	}
	path := filepath.Join(t.TempDir(), "input.wav")
	if err := os.WriteFile(path, audio.EncodeWAV(samples, rate), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestInferFile_Segmented(t *testing.T) {
	backend := &asrmock.Backend{Texts: []string{"hello from the file"}}
	r := newTestRecognizer(t, testCfg(), backend)

	path := writeWAV(t, 16000, 1000, 16000)
	chunks, err := r.InferFile(context.Background(), path)
	if err != nil {
		t.Fatalf("InferFile: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	c := chunks[0]
	if c.Text != "hello from the file" {
		t.Errorf("Text = %q", c.Text)
	}
	if c.Start != 0 || c.End != time.Second {
		t.Errorf("span = [%v, %v], want [0s, 1s]", c.Start, c.End)
	}
	if backend.CallCount() != 1 {
		t.Errorf("backend called %d times, want 1", backend.CallCount())
	}
}

func TestInferFile_WholeFile(t *testing.T) {
	cfg := testCfg()
	cfg.Batch.WholeFile = true
	backend := &asrmock.Backend{Texts: []string{"entire file"}}
	r := newTestRecognizer(t, cfg, backend)

	path := writeWAV(t, 16000, 1000, 16000)
	chunks, err := r.InferFile(context.Background(), path)
	if err != nil {
		t.Fatalf("InferFile: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Text != "entire file" {
		t.Fatalf("chunks = %+v", chunks)
	}
	if chunks[0].End != time.Second {
		t.Errorf("End = %v, want 1s", chunks[0].End)
	}
	if backend.CallCount() != 1 {
		t.Fatalf("backend called %d times, want 1", backend.CallCount())
	}
	if got := len(backend.Calls[0].Samples); got != 16000 {
		t.Errorf("backend received %d samples, want the whole file (16000)", got)
	}
}

func TestInferFile_ResamplesToConfiguredRate(t *testing.T) {
	backend := &asrmock.Backend{Texts: []string{"resampled"}}
	r := newTestRecognizer(t, testCfg(), backend)

	// Half a second at 8 kHz becomes half a second at 16 kHz.
	path := writeWAV(t, 4000, 1000, 8000)
	chunks, err := r.InferFile(context.Background(), path)
	if err != nil {
		t.Fatalf("InferFile: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if backend.Calls[0].SampleRate != 16000 {
		t.Errorf("backend rate = %d, want 16000", backend.Calls[0].SampleRate)
	}
	if got := len(backend.Calls[0].Samples); got != 8000 {
		t.Errorf("backend received %d samples, want 8000 after resampling", got)
	}
}

func TestInferFile_SegmentErrorsJoined(t *testing.T) {
	boom := errors.New("backend exploded")
	backend := &asrmock.Backend{Errs: []error{boom}}
	r := newTestRecognizer(t, testCfg(), backend)

	path := writeWAV(t, 16000, 1000, 16000)
	chunks, err := r.InferFile(context.Background(), path)
	if err == nil {
		t.Fatal("expected error for failed segment, got nil")
	}
	if !errors.Is(err, boom) {
		t.Errorf("error chain should contain the backend failure, got: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("got %d chunks, want 0", len(chunks))
	}
}

func TestInferFile_PartialFailureKeepsGoodChunks(t *testing.T) {
	boom := errors.New("segment two failed")
	backend := &asrmock.Backend{
		Texts: []string{"first", "", "third"},
		Errs:  []error{nil, boom, nil},
	}
	cfg := testCfg()
	// 30s cap never hit; split instead on 200ms silence gaps.
	r := newTestRecognizer(t, cfg, backend)

	// Three speech bursts separated by 400ms of silence.
	samples := make([]int16, 0, 3*8000+2*6400)
	burst := make([]int16, 8000)
	for i := range burst {
		burst[i] = 1000
	}
	gap := make([]int16, 6400)
	for i := 0; i < 3; i++ {
		samples = append(samples, burst...)
		if i < 2 {
			samples = append(samples, gap...)
		}
	}
	path := filepath.Join(t.TempDir(), "bursts.wav")
	if err := os.WriteFile(path, audio.EncodeWAV(samples, 16000), 0o644); err != nil {
		t.Fatal(err)
	}

	chunks, err := r.InferFile(context.Background(), path)
	if err == nil {
		t.Fatal("expected error for the failed segment")
	}
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want chain containing the segment failure", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2: %+v", len(chunks), chunks)
	}
	if chunks[0].Text != "first" || chunks[1].Text != "third" {
		t.Errorf("chunks = %+v", chunks)
	}
	if chunks[0].End > chunks[1].Start {
		t.Errorf("chunks overlap: %+v", chunks)
	}
}

func TestInferFile_MissingFile(t *testing.T) {
	r := newTestRecognizer(t, testCfg(), &asrmock.Backend{})
	if _, err := r.InferFile(context.Background(), filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestOpenStream_EndToEnd(t *testing.T) {
	backend := &asrmock.Backend{Texts: []string{"streamed"}}
	r := newTestRecognizer(t, testCfg(), backend)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := r.OpenStream(ctx)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}

	var elems []stream.Element
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for e := range sess.Transcripts() {
			elems = append(elems, e)
		}
	}()

	speech := make([]int16, 16000)
	for i := range speech {
		speech[i] = 1000
	}
	if err := sess.Feed(ctx, speech); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if err := sess.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	<-collected

	if len(elems) != 1 || elems[0].Text != "streamed" {
		t.Fatalf("elements = %+v", elems)
	}
}

func TestNew_UnregisteredBackend(t *testing.T) {
	cfg := testCfg()
	// Point the model ref at a real file so resolution cannot interfere.
	cfg.Model.Ref = writeWAV(t, 16, 0, 16000)

	_, err := recognizer.New(context.Background(), cfg,
		recognizer.WithRegistry(config.NewRegistry()),
		recognizer.WithVADEngine(levelEngine{}),
		recognizer.WithLogger(quiet()),
	)
	if !errors.Is(err, config.ErrNotRegistered) {
		t.Errorf("got %v, want ErrNotRegistered", err)
	}
}

func TestBuiltin_RegistersEngines(t *testing.T) {
	reg := recognizer.Builtin()

	if _, err := reg.CreateVAD(config.VADConfig{Engine: config.VADEnergy}); err != nil {
		t.Errorf("energy engine: %v", err)
	}
	if _, err := reg.CreateVAD(config.VADConfig{Engine: config.VADSilero}); err != nil {
		t.Errorf("silero engine: %v", err)
	}
	if _, err := reg.CreateBackend(config.BackendWhisperServer, config.RecognitionConfig{
		ServerURL: "http://localhost:9999",
	}, ""); err != nil {
		t.Errorf("whisper-server backend: %v", err)
	}
}
