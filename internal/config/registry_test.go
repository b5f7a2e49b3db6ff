package config_test

import (
	"errors"
	"testing"

	"github.com/mtkresearch/breeze-asr-go/internal/config"
	"github.com/mtkresearch/breeze-asr-go/pkg/provider/asr"
	asrmock "github.com/mtkresearch/breeze-asr-go/pkg/provider/asr/mock"
	"github.com/mtkresearch/breeze-asr-go/pkg/provider/vad"
	vadmock "github.com/mtkresearch/breeze-asr-go/pkg/provider/vad/mock"
)

func TestRegistry_CreateBackend(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	want := &asrmock.Backend{}
	var gotPath string
	reg.RegisterBackend(config.BackendWhisperCPP, func(cfg config.RecognitionConfig, modelPath string) (asr.Backend, error) {
		gotPath = modelPath
		return want, nil
	})

	b, err := reg.CreateBackend(config.BackendWhisperCPP, config.RecognitionConfig{}, "/models/ggml.bin")
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	if b != want {
		t.Error("CreateBackend returned a different backend than the factory produced")
	}
	if gotPath != "/models/ggml.bin" {
		t.Errorf("factory received modelPath %q", gotPath)
	}
}

func TestRegistry_CreateBackend_NotRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	_, err := reg.CreateBackend(config.BackendWhisperServer, config.RecognitionConfig{}, "")
	if !errors.Is(err, config.ErrNotRegistered) {
		t.Errorf("got %v, want ErrNotRegistered", err)
	}
}

func TestRegistry_CreateVAD(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	want := &vadmock.Engine{}
	reg.RegisterVAD(config.VADEnergy, func(cfg config.VADConfig) (vad.Engine, error) {
		return want, nil
	})

	e, err := reg.CreateVAD(config.VADConfig{Engine: config.VADEnergy})
	if err != nil {
		t.Fatalf("CreateVAD: %v", err)
	}
	if e != want {
		t.Error("CreateVAD returned a different engine than the factory produced")
	}

	if _, err := reg.CreateVAD(config.VADConfig{Engine: config.VADSilero}); !errors.Is(err, config.ErrNotRegistered) {
		t.Errorf("got %v, want ErrNotRegistered", err)
	}
}

func TestRegistry_RegisterOverwrites(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterBackend(config.BackendWhisperCPP, func(config.RecognitionConfig, string) (asr.Backend, error) {
		return nil, errors.New("old factory")
	})
	reg.RegisterBackend(config.BackendWhisperCPP, func(config.RecognitionConfig, string) (asr.Backend, error) {
		return &asrmock.Backend{}, nil
	})

	if _, err := reg.CreateBackend(config.BackendWhisperCPP, config.RecognitionConfig{}, ""); err != nil {
		t.Fatalf("second registration should win, got error: %v", err)
	}
}
