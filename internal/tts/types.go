package tts

import (
	"context"
	"path/filepath"
)

// DefaultSampleRate is assumed when a loaded model does not expose one.
const DefaultSampleRate = 24000

// ResolvedVoice is the outcome of voice resolution: a model preset name, a
// reference-audio file path, or the model's built-in voice. The built-in
// sentinel is distinct from an empty preset.
type ResolvedVoice struct {
	Preset  string
	Path    string
	Builtin bool
}

// Label returns the identifier reported back to the client.
func (v ResolvedVoice) Label() string {
	switch {
	case v.Preset != "":
		return v.Preset
	case v.Path != "":
		return filepath.Base(v.Path)
	default:
		return "default"
	}
}

// ChunkStream is a lazy, forward-only, single-pass sequence of float32 mono
// audio chunks in production order. Next returns io.EOF after the final
// chunk. Close must be called on every exit path; it is safe to call more
// than once.
type ChunkStream interface {
	Next(ctx context.Context) ([]float32, error)
	Close() error
}

// Handle is a loaded model produced by a Loader. Generation calls are
// externally serialized by the manager's inference lock; a Handle is never
// asked to run two generations at once.
type Handle interface {
	// Generate starts one generation call with the given parameters.
	Generate(ctx context.Context, params map[string]any) (ChunkStream, error)

	// SampleRate returns the model's output rate in Hz, or 0 when the
	// runtime does not expose one.
	SampleRate() int

	// GenerateParams returns the parameter names the generation call
	// accepts, introspected once at load time.
	GenerateParams() []string

	Close() error
}

// Loader is the model load capability. The strict flag is passed through
// verbatim; the core applies no leniency logic of its own.
type Loader interface {
	Load(ctx context.Context, repoID string, strict bool) (Handle, error)
}
