// Package whisperserver provides a recognition backend that talks to a
// running whisper-server binary over HTTP. Each finalized segment is encoded
// as a WAV file and submitted as a multipart POST to /inference.
//
// Usage:
//
//	b, err := whisperserver.New("http://localhost:8080",
//	    whisperserver.WithLanguage("en"),
//	)
//	text, err := b.Transcribe(ctx, samples, 16000)
package whisperserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/mtkresearch/breeze-asr-go/pkg/audio"
	"github.com/mtkresearch/breeze-asr-go/pkg/provider/asr"
)

// defaultTimeout bounds a single inference request.
const defaultTimeout = 30 * time.Second

// Compile-time assertion that Backend satisfies asr.Backend.
var _ asr.Backend = (*Backend)(nil)

// Option is a functional option for configuring a Backend.
type Option func(*Backend)

// WithLanguage sets the language hint forwarded to the server (e.g., "en").
// When empty the server applies its own default.
func WithLanguage(lang string) Option {
	return func(b *Backend) { b.language = lang }
}

// WithModel sets the model identifier forwarded to the server (e.g.,
// "base.en"). When empty the server uses whichever model it was started with.
func WithModel(model string) Option {
	return func(b *Backend) { b.model = model }
}

// WithHTTPClient replaces the default HTTP client. Useful in tests.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Backend) { b.httpClient = c }
}

// Backend implements asr.Backend against a whisper-server HTTP endpoint.
// Safe for concurrent use; the underlying http.Client handles its own
// connection pooling.
type Backend struct {
	serverURL  string
	language   string
	model      string
	httpClient *http.Client
}

// New creates a Backend that connects to the whisper-server at serverURL
// (e.g., "http://localhost:8080"). serverURL must be non-empty. No network
// connection is established until the first Transcribe.
func New(serverURL string, opts ...Option) (*Backend, error) {
	if serverURL == "" {
		return nil, errors.New("whisperserver: serverURL must not be empty")
	}
	b := &Backend{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

// inferenceResponse is the JSON body returned by whisper-server's /inference.
type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// Transcribe encodes the segment as WAV and POSTs it to /inference as
// multipart/form-data. Failures are wrapped in *asr.RecognitionError.
func (b *Backend) Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	wavData := audio.EncodeWAV(samples, sampleRate)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "segment.wav")
	if err != nil {
		return "", &asr.RecognitionError{Cause: fmt.Errorf("create form file: %w", err)}
	}
	if _, err := fw.Write(wavData); err != nil {
		return "", &asr.RecognitionError{Cause: fmt.Errorf("write wav data: %w", err)}
	}
	if b.language != "" {
		if err := mw.WriteField("language", b.language); err != nil {
			return "", &asr.RecognitionError{Cause: fmt.Errorf("write language field: %w", err)}
		}
	}
	if b.model != "" {
		if err := mw.WriteField("model", b.model); err != nil {
			return "", &asr.RecognitionError{Cause: fmt.Errorf("write model field: %w", err)}
		}
	}
	if err := mw.Close(); err != nil {
		return "", &asr.RecognitionError{Cause: fmt.Errorf("close multipart writer: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.serverURL+"/inference", &body)
	if err != nil {
		return "", &asr.RecognitionError{Cause: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", &asr.RecognitionError{Cause: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &asr.RecognitionError{
			Cause: fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(snippet))),
		}
	}

	var parsed inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &asr.RecognitionError{Cause: fmt.Errorf("decode response: %w", err)}
	}
	if parsed.Error != "" {
		return "", &asr.RecognitionError{Cause: fmt.Errorf("server error: %s", parsed.Error)}
	}
	return strings.TrimSpace(parsed.Text), nil
}
