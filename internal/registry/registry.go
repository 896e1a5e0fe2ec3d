// Package registry loads and validates the model registry from models.json,
// producing immutable model specifications indexed by id.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ModelType selects which adapter family is constructed for a model.
type ModelType string

const (
	ModelTypeKokoro     ModelType = "kokoro"
	ModelTypeChatterbox ModelType = "chatterbox"
)

// ModelSpec describes one model entry from models.json.
// Specs are immutable after Load and may be shared freely.
type ModelSpec struct {
	ID           string    `json:"id"`
	RepoID       string    `json:"repo_id"`
	ModelType    ModelType `json:"model_type"`
	Voices       []string  `json:"voices"`
	DefaultVoice string    `json:"default_voice"`
	WarmupText   string    `json:"warmup_text"`
}

// HasVoice reports whether id is a member of the spec's voices list.
func (s ModelSpec) HasVoice(id string) bool {
	for _, v := range s.Voices {
		if v == id {
			return true
		}
	}
	return false
}

// Registry is the resolved model registry: validated specs in file order
// plus the process default model id.
type Registry struct {
	Specs        []ModelSpec
	DefaultModel string

	byID map[string]ModelSpec
}

type registryFile struct {
	DefaultModel string      `json:"default_model"`
	Models       []ModelSpec `json:"models"`
}

// Load reads and validates a models.json file.
// Any violation is a configuration error and must abort startup.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read models JSON at %q: %w", path, err)
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid models JSON at %q: %w", path, err)
	}
	return reg, nil
}

// Parse validates a raw models.json payload.
func Parse(data []byte) (*Registry, error) {
	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid models JSON schema: %w", err)
	}
	if len(file.Models) == 0 {
		return nil, fmt.Errorf("models JSON must contain at least one model")
	}

	byID := make(map[string]ModelSpec, len(file.Models))
	specs := make([]ModelSpec, 0, len(file.Models))
	for _, spec := range file.Models {
		spec.ID = strings.TrimSpace(spec.ID)
		if spec.ID == "" {
			return nil, fmt.Errorf("model id must be non-empty")
		}
		if _, dup := byID[spec.ID]; dup {
			return nil, fmt.Errorf("duplicate model id %q", spec.ID)
		}
		if strings.TrimSpace(spec.RepoID) == "" {
			return nil, fmt.Errorf("model %q repo_id must be non-empty", spec.ID)
		}
		if spec.ModelType == "" {
			spec.ModelType = ModelTypeKokoro
		}
		switch spec.ModelType {
		case ModelTypeKokoro, ModelTypeChatterbox:
		default:
			return nil, fmt.Errorf("model %q has unknown model_type %q", spec.ID, spec.ModelType)
		}

		voices := make([]string, 0, len(spec.Voices))
		for _, voice := range spec.Voices {
			voice = strings.TrimSpace(voice)
			if voice != "" {
				voices = append(voices, voice)
			}
		}
		spec.Voices = voices
		if len(voices) > 0 && spec.DefaultVoice == "" {
			spec.DefaultVoice = voices[0]
		}
		if spec.DefaultVoice != "" && len(voices) > 0 && !spec.HasVoice(spec.DefaultVoice) {
			return nil, fmt.Errorf("model %q default_voice %q not in voices list", spec.ID, spec.DefaultVoice)
		}

		byID[spec.ID] = spec
		specs = append(specs, spec)
	}

	defaultModel := file.DefaultModel
	if defaultModel == "" {
		defaultModel = specs[0].ID
	}
	if _, ok := byID[defaultModel]; !ok {
		return nil, fmt.Errorf("default_model %q not found in models list", defaultModel)
	}

	return &Registry{Specs: specs, DefaultModel: defaultModel, byID: byID}, nil
}

// Spec returns the spec for a model id.
func (r *Registry) Spec(id string) (ModelSpec, bool) {
	spec, ok := r.byID[id]
	return spec, ok
}
