// Package tts implements the model lifecycle and inference-serialization
// core: per-model adapters, voice resolution, the model manager with its
// single process-wide inference lock, and the synthesis orchestrator.
package tts

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/bradsjm/mlx-openai-tts/internal/registry"
)

// Adapter wraps one loaded model instance behind a uniform synthesize and
// stream contract. Exactly one adapter is ever constructed per model id for
// the process lifetime.
type Adapter interface {
	Spec() registry.ModelSpec

	// Load loads the underlying model. It is idempotent; the strict flag
	// is forwarded verbatim to the load capability.
	Load(ctx context.Context, strict bool) error

	SampleRate() int

	// RequiresVoice reports whether the model family needs a voice to
	// synthesize at all.
	RequiresVoice() bool

	// ResolveVoice maps a client-supplied voice identifier (nil when the
	// request omitted one) to a model-ready value.
	ResolveVoice(requested *string) (ResolvedVoice, error)

	// SynthesizeFull drives one generation call to completion and returns
	// the concatenated samples in production order.
	SynthesizeFull(ctx context.Context, text string, voice ResolvedVoice, speed *float64) ([]float32, error)

	// StreamChunks exposes the generation call's own chunk sequence
	// directly, one chunk in flight at a time.
	StreamChunks(ctx context.Context, text string, voice ResolvedVoice, speed *float64) (ChunkStream, error)
}

// NewAdapter constructs the adapter variant selected by the spec's model
// type. The registry guarantees the type tag is known, but an explicit
// error is kept for safety.
func NewAdapter(spec registry.ModelSpec, loader Loader, voiceCloneDir string) (Adapter, error) {
	switch spec.ModelType {
	case registry.ModelTypeKokoro:
		return &kokoroAdapter{baseAdapter: baseAdapter{spec: spec, loader: loader}}, nil
	case registry.ModelTypeChatterbox:
		return &chatterboxAdapter{
			baseAdapter:   baseAdapter{spec: spec, loader: loader},
			voiceCloneDir: voiceCloneDir,
		}, nil
	default:
		return nil, fmt.Errorf("unknown model_type %q for model %q", spec.ModelType, spec.ID)
	}
}

// baseAdapter holds the state shared by every adapter family: the spec, the
// loaded handle, the introspected parameter set and the sample rate.
type baseAdapter struct {
	spec   registry.ModelSpec
	loader Loader

	mu         sync.Mutex
	handle     Handle
	sampleRate int
	params     map[string]struct{}
}

func (a *baseAdapter) Spec() registry.ModelSpec { return a.spec }

func (a *baseAdapter) SampleRate() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sampleRate == 0 {
		return DefaultSampleRate
	}
	return a.sampleRate
}

// Load loads the model through the load capability and introspects the
// generation call. Calling Load on an already-loaded adapter is a no-op.
func (a *baseAdapter) Load(ctx context.Context, strict bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.handle != nil {
		return nil
	}

	handle, err := a.loader.Load(ctx, a.spec.RepoID, strict)
	if err != nil {
		return fmt.Errorf("failed to load model %q from %q: %w", a.spec.ID, a.spec.RepoID, err)
	}

	params := make(map[string]struct{})
	for _, name := range handle.GenerateParams() {
		params[name] = struct{}{}
	}

	a.handle = handle
	a.params = params
	a.sampleRate = handle.SampleRate()
	if a.sampleRate <= 0 {
		a.sampleRate = DefaultSampleRate
	}
	return nil
}

func (a *baseAdapter) supportsParam(name string) bool {
	_, ok := a.params[name]
	return ok
}

func (a *baseAdapter) generate(ctx context.Context, params map[string]any) (ChunkStream, error) {
	a.mu.Lock()
	handle := a.handle
	a.mu.Unlock()
	if handle == nil {
		return nil, ErrNotLoaded
	}
	return handle.Generate(ctx, params)
}

// synthesizeFull consumes an entire generation call, concatenating every
// chunk in production order.
func (a *baseAdapter) synthesizeFull(ctx context.Context, params map[string]any) ([]float32, error) {
	stream, err := a.generate(ctx, params)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var samples []float32
	for {
		chunk, err := stream.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		samples = append(samples, chunk...)
	}
	if len(samples) == 0 {
		return nil, ErrNoAudio
	}
	return samples, nil
}

// baseParams starts the parameter set every family shares: the text, plus
// speed when the model's generation call accepts it and one was requested.
func (a *baseAdapter) baseParams(text string, speed *float64) map[string]any {
	params := map[string]any{"text": text}
	if speed != nil && a.supportsParam("speed") {
		params["speed"] = *speed
	}
	return params
}
