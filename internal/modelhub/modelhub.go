// Package modelhub resolves model references to local file paths.
//
// A reference is either a path to an existing file, which is returned as-is,
// or a hub coordinate of the form "owner/repo/file" that is downloaded once
// into a local cache directory and served from there on subsequent calls.
package modelhub

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mtkresearch/breeze-asr-go/pkg/provider/asr"
)

// DefaultBaseURL is the Hugging Face hub endpoint models are fetched from.
const DefaultBaseURL = "https://huggingface.co"

// DefaultModelRef is the published Breeze ASR whisper.cpp weights.
const DefaultModelRef = "MediaTek-Research/Breeze-ASR-25/ggml-model.bin"

// Resolver turns model references into local file paths, downloading and
// caching hub models on first use. Safe for concurrent use by distinct
// references; concurrent resolution of the same uncached reference may
// download twice, with the last rename winning.
type Resolver struct {
	baseURL  string
	cacheDir string
	client   *http.Client
	log      *slog.Logger
}

// Option is a functional option for [New].
type Option func(*Resolver)

// WithBaseURL overrides the hub endpoint. Used by tests to point at a local
// server and by deployments with a hub mirror.
func WithBaseURL(u string) Option {
	return func(r *Resolver) { r.baseURL = strings.TrimRight(u, "/") }
}

// WithCacheDir overrides the download cache location. Defaults to
// "breeze-asr" under [os.UserCacheDir].
func WithCacheDir(dir string) Option {
	return func(r *Resolver) { r.cacheDir = dir }
}

// WithHTTPClient overrides the HTTP client used for downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// New creates a Resolver with sensible defaults. Apply [Option] values to
// override them.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: 10 * time.Minute},
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.cacheDir == "" {
		if base, err := os.UserCacheDir(); err == nil {
			r.cacheDir = filepath.Join(base, "breeze-asr")
		} else {
			r.cacheDir = filepath.Join(os.TempDir(), "breeze-asr")
		}
	}
	return r
}

// Resolve returns a local path for ref. Existing files are returned
// untouched; hub coordinates are fetched into the cache on first use. All
// failures wrap [asr.ErrModelUnavailable].
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("modelhub: empty model reference: %w", asr.ErrModelUnavailable)
	}
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		return ref, nil
	}

	repo, file, ok := splitRef(ref)
	if !ok {
		return "", fmt.Errorf("modelhub: %q is neither a file nor an owner/repo/file coordinate: %w",
			ref, asr.ErrModelUnavailable)
	}

	cached := filepath.Join(r.cacheDir, filepath.FromSlash(repo), file)
	if info, err := os.Stat(cached); err == nil && !info.IsDir() {
		return cached, nil
	}
	if err := r.download(ctx, repo, file, cached); err != nil {
		return "", err
	}
	return cached, nil
}

// splitRef parses "owner/repo/file" into its repo and file parts.
func splitRef(ref string) (repo, file string, ok bool) {
	i := strings.LastIndex(ref, "/")
	if i <= 0 || i == len(ref)-1 {
		return "", "", false
	}
	repo, file = ref[:i], ref[i+1:]
	if !strings.Contains(repo, "/") {
		return "", "", false
	}
	return repo, file, true
}

// download fetches one hub file into dest, writing through a temp file so a
// partial download never masquerades as a cached model.
func (r *Resolver) download(ctx context.Context, repo, file, dest string) error {
	url := fmt.Sprintf("%s/%s/resolve/main/%s", r.baseURL, repo, file)
	r.log.LogAttrs(ctx, slog.LevelInfo, "downloading model",
		slog.String("url", url),
		slog.String("dest", dest))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("modelhub: build request: %v: %w", err, asr.ErrModelUnavailable)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("modelhub: fetch %s: %v: %w", url, err, asr.ErrModelUnavailable)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("modelhub: fetch %s: status %d: %w", url, resp.StatusCode, asr.ErrModelUnavailable)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("modelhub: create cache dir: %v: %w", err, asr.ErrModelUnavailable)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+file+".partial-*")
	if err != nil {
		return fmt.Errorf("modelhub: create temp file: %v: %w", err, asr.ErrModelUnavailable)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("modelhub: write %s: %v: %w", dest, err, asr.ErrModelUnavailable)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("modelhub: finalize %s: %v: %w", dest, err, asr.ErrModelUnavailable)
	}

	r.log.LogAttrs(ctx, slog.LevelInfo, "model cached",
		slog.String("dest", dest),
		slog.Int64("bytes", n))
	return nil
}
