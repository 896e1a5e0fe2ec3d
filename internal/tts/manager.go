package tts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bradsjm/mlx-openai-tts/internal/observability"
	"github.com/bradsjm/mlx-openai-tts/internal/registry"
)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Strict is forwarded verbatim to the load capability.
	Strict bool

	// VoiceCloneDir is the directory holding reference audio for
	// voice-cloning-capable models. May be empty.
	VoiceCloneDir string

	// WarmupText is synthesized once after the default model loads, unless
	// the spec carries its own warmup text.
	WarmupText string

	Logger zerolog.Logger
}

// Manager owns the set of loaded adapters, their load lifecycle, and the
// single process-wide inference lock. At most one generation call, of any
// model, executes at any instant.
type Manager struct {
	registry *registry.Registry
	loader   Loader
	opts     ManagerOptions
	logger   zerolog.Logger

	// mu guards adapters and failed. It is independent of and strictly
	// shorter-lived than the inference lock.
	mu       sync.RWMutex
	adapters map[string]Adapter
	failed   map[string]error

	inferMu sync.Mutex
}

// NewManager creates a manager over a validated registry.
func NewManager(reg *registry.Registry, loader Loader, opts ManagerOptions) *Manager {
	return &Manager{
		registry: reg,
		loader:   loader,
		opts:     opts,
		logger:   opts.Logger,
		adapters: make(map[string]Adapter),
		failed:   make(map[string]error),
	}
}

// DefaultModelID returns the id used when a request omits a model.
func (m *Manager) DefaultModelID() string { return m.registry.DefaultModel }

// Specs returns the registry entries in registry order.
func (m *Manager) Specs() []registry.ModelSpec { return m.registry.Specs }

// Spec returns the registry entry for a model id.
func (m *Manager) Spec(id string) (registry.ModelSpec, bool) { return m.registry.Spec(id) }

// Adapter resolves a model id to its adapter, loading it on demand when not
// preloaded. An unknown id fails without constructing anything and without
// touching the inference lock. A model whose load failed once is
// permanently unavailable for the process lifetime.
func (m *Manager) Adapter(ctx context.Context, id string) (Adapter, error) {
	spec, ok := m.registry.Spec(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}

	// Fast path: read-after-preload steady state.
	m.mu.RLock()
	adapter, loaded := m.adapters[id]
	loadErr := m.failed[id]
	m.mu.RUnlock()
	if loaded {
		return adapter, nil
	}
	if loadErr != nil {
		return nil, loadErr
	}

	// Double-checked construction: exactly one adapter instance is ever
	// created per model id, even under concurrent first access.
	m.mu.Lock()
	defer m.mu.Unlock()
	if adapter, loaded := m.adapters[id]; loaded {
		return adapter, nil
	}
	if loadErr := m.failed[id]; loadErr != nil {
		return nil, loadErr
	}

	adapter, err := NewAdapter(spec, m.loader, m.opts.VoiceCloneDir)
	if err != nil {
		return nil, err
	}
	m.logger.Info().Str("model", id).Str("repo_id", spec.RepoID).Msg("Loading model")
	start := time.Now()
	if err := adapter.Load(ctx, m.opts.Strict); err != nil {
		observability.RecordModelLoad(id, "error")
		m.failed[id] = fmt.Errorf("%w: %s: %v", ErrModelUnavailable, id, err)
		m.logger.Error().Err(err).Str("model", id).Msg("Model load failed; marking unavailable")
		return nil, m.failed[id]
	}
	observability.RecordModelLoad(id, "success")
	m.logger.Info().
		Str("model", id).
		Int("sample_rate", adapter.SampleRate()).
		Dur("elapsed", time.Since(start)).
		Msg("Model loaded")
	m.adapters[id] = adapter
	return adapter, nil
}

// PreloadAll loads every registry model in registry order. The first
// failure aborts startup.
func (m *Manager) PreloadAll(ctx context.Context) error {
	for _, spec := range m.registry.Specs {
		if _, err := m.Adapter(ctx, spec.ID); err != nil {
			return fmt.Errorf("failed to preload model %q: %w", spec.ID, err)
		}
	}
	return nil
}

// LoadDefaultAndWarm loads the default model and performs one throwaway
// synthesis to force lazy initialization before real traffic. A load
// failure is fatal; a warmup failure is logged and swallowed.
func (m *Manager) LoadDefaultAndWarm(ctx context.Context) error {
	id := m.registry.DefaultModel
	adapter, err := m.Adapter(ctx, id)
	if err != nil {
		return err
	}

	spec := adapter.Spec()
	text := spec.WarmupText
	if text == "" {
		text = m.opts.WarmupText
	}
	if text == "" {
		return nil
	}

	var voice ResolvedVoice
	if spec.DefaultVoice != "" {
		requested := spec.DefaultVoice
		voice, err = adapter.ResolveVoice(&requested)
		if err != nil {
			m.logger.Warn().Err(err).Str("model", id).Msg("Warmup skipped: default voice did not resolve")
			return nil
		}
	} else if adapter.RequiresVoice() {
		m.logger.Warn().Str("model", id).Msg("Warmup skipped: model requires a voice and none is configured")
		return nil
	} else {
		voice = ResolvedVoice{Builtin: true}
	}

	release := m.AcquireInference()
	defer release()
	if _, err := adapter.SynthesizeFull(ctx, text, voice, nil); err != nil {
		m.logger.Warn().Err(err).Str("model", id).Msg("Warmup synthesis failed")
	}
	return nil
}

// ResolveVoice delegates to the model's voice resolver, loading the adapter
// if needed.
func (m *Manager) ResolveVoice(ctx context.Context, id string, requested *string) (ResolvedVoice, error) {
	adapter, err := m.Adapter(ctx, id)
	if err != nil {
		return ResolvedVoice{}, err
	}
	return adapter.ResolveVoice(requested)
}

// AcquireInference blocks until this caller holds the process-wide
// inference lock and returns the release function. Callers queue in arrival
// order; the returned release is idempotent so it can sit on every exit
// path.
func (m *Manager) AcquireInference() (release func()) {
	start := time.Now()
	m.inferMu.Lock()
	observability.ObserveInferenceQueueWait(time.Since(start))
	observability.SetInferenceActive(true)

	var once sync.Once
	return func() {
		once.Do(func() {
			observability.SetInferenceActive(false)
			m.inferMu.Unlock()
		})
	}
}

// Snapshot is a read-only view of the default model for health reporting.
type Snapshot struct {
	DefaultModel string
	RepoID       string
	DefaultVoice string
	SampleRate   int
	Loaded       bool
}

// Snapshot reports the default model's state without side effects: it never
// triggers a load and never touches the inference lock.
func (m *Manager) Snapshot() Snapshot {
	spec, _ := m.registry.Spec(m.registry.DefaultModel)
	snap := Snapshot{
		DefaultModel: spec.ID,
		RepoID:       spec.RepoID,
		DefaultVoice: spec.DefaultVoice,
	}
	m.mu.RLock()
	adapter, loaded := m.adapters[spec.ID]
	m.mu.RUnlock()
	if loaded {
		snap.Loaded = true
		snap.SampleRate = adapter.SampleRate()
	}
	return snap
}
