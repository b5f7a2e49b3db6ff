package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mtkresearch/breeze-asr-go/pkg/provider/asr"
	"github.com/mtkresearch/breeze-asr-go/pkg/provider/vad"
)

// ErrNotRegistered is returned by Create* methods when no factory has been
// registered under the requested name.
var ErrNotRegistered = errors.New("config: component not registered")

// BackendFactory builds a recognition backend from its config and the
// resolved local model path.
type BackendFactory func(cfg RecognitionConfig, modelPath string) (asr.Backend, error)

// VADFactory builds a VAD engine from its config.
type VADFactory func(cfg VADConfig) (vad.Engine, error)

// Registry maps component names to their constructor functions. It decouples
// the config layer from concrete backend packages so binaries choose what
// they link in. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	backends map[BackendKind]BackendFactory
	vads     map[VADKind]VADFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[BackendKind]BackendFactory),
		vads:     make(map[VADKind]VADFactory),
	}
}

// RegisterBackend registers a recognition backend factory under kind.
// Subsequent calls with the same kind overwrite the previous registration.
func (r *Registry) RegisterBackend(kind BackendKind, factory BackendFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[kind] = factory
}

// RegisterVAD registers a VAD engine factory under kind.
func (r *Registry) RegisterVAD(kind VADKind, factory VADFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vads[kind] = factory
}

// CreateBackend builds the backend selected by kind.
func (r *Registry) CreateBackend(kind BackendKind, cfg RecognitionConfig, modelPath string) (asr.Backend, error) {
	r.mu.RLock()
	factory, ok := r.backends[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: recognition backend %q", ErrNotRegistered, kind)
	}
	return factory(cfg, modelPath)
}

// CreateVAD builds the VAD engine selected by cfg.Engine.
func (r *Registry) CreateVAD(cfg VADConfig) (vad.Engine, error) {
	r.mu.RLock()
	factory, ok := r.vads[cfg.Engine]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad engine %q", ErrNotRegistered, cfg.Engine)
	}
	return factory(cfg)
}
