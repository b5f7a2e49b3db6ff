package modelhub_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/mtkresearch/breeze-asr-go/internal/modelhub"
	"github.com/mtkresearch/breeze-asr-go/pkg/provider/asr"
)

func TestResolve_ExistingFile_ReturnedAsIs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.bin")
	if err := os.WriteFile(path, []byte("weights"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := modelhub.New(modelhub.WithCacheDir(t.TempDir()))
	got, err := r.Resolve(context.Background(), path)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != path {
		t.Errorf("expected %q untouched, got %q", path, got)
	}
}

func TestResolve_HubCoordinate_DownloadsOnceAndCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/acme/tiny-asr/resolve/main/ggml-tiny.bin" {
			t.Errorf("unexpected path %q", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("tiny weights"))
	}))
	defer srv.Close()

	cache := t.TempDir()
	r := modelhub.New(modelhub.WithBaseURL(srv.URL), modelhub.WithCacheDir(cache))

	path, err := r.Resolve(context.Background(), "acme/tiny-asr/ggml-tiny.bin")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("cached file unreadable: %v", err)
	}
	if string(data) != "tiny weights" {
		t.Errorf("unexpected cached content %q", data)
	}

	again, err := r.Resolve(context.Background(), "acme/tiny-asr/ggml-tiny.bin")
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if again != path {
		t.Errorf("cache path changed: %q vs %q", again, path)
	}
	if hits.Load() != 1 {
		t.Errorf("expected 1 download, server saw %d", hits.Load())
	}
}

func TestResolve_NotFound_ReportsModelUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer srv.Close()

	r := modelhub.New(modelhub.WithBaseURL(srv.URL), modelhub.WithCacheDir(t.TempDir()))
	_, err := r.Resolve(context.Background(), "acme/missing/model.bin")
	if !errors.Is(err, asr.ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestResolve_MalformedReference_Fails(t *testing.T) {
	r := modelhub.New(modelhub.WithCacheDir(t.TempDir()))
	for _, ref := range []string{"", "no-slashes", "only/one-slash", "trailing/slash/"} {
		if _, err := r.Resolve(context.Background(), ref); !errors.Is(err, asr.ErrModelUnavailable) {
			t.Errorf("ref %q: expected ErrModelUnavailable, got %v", ref, err)
		}
	}
}

func TestResolve_ContextCanceled_Fails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("weights"))
	}))
	defer srv.Close()

	r := modelhub.New(modelhub.WithBaseURL(srv.URL), modelhub.WithCacheDir(t.TempDir()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Resolve(ctx, "acme/tiny-asr/model.bin"); !errors.Is(err, asr.ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable, got %v", err)
	}
}
