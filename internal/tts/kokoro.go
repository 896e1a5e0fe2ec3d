package tts

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// kokoroAdapter serves multi-speaker preset models. A voice is always
// required; it must be a member of the spec's voices list when that list is
// non-empty.
type kokoroAdapter struct {
	baseAdapter
}

func (a *kokoroAdapter) RequiresVoice() bool { return true }

func (a *kokoroAdapter) ResolveVoice(requested *string) (ResolvedVoice, error) {
	if requested == nil {
		if a.spec.DefaultVoice == "" {
			return ResolvedVoice{}, ErrVoiceRequired
		}
		return ResolvedVoice{Preset: a.spec.DefaultVoice}, nil
	}
	voice := strings.TrimSpace(*requested)
	if voice == "" {
		return ResolvedVoice{}, ErrVoiceEmpty
	}
	if len(a.spec.Voices) > 0 && !a.spec.HasVoice(voice) {
		allowed := append([]string(nil), a.spec.Voices...)
		sort.Strings(allowed)
		return ResolvedVoice{}, fmt.Errorf("%w %q; available: %s", ErrUnknownVoice, voice, strings.Join(allowed, ", "))
	}
	return ResolvedVoice{Preset: voice}, nil
}

func (a *kokoroAdapter) buildParams(text string, voice ResolvedVoice, speed *float64) (map[string]any, error) {
	if voice.Preset == "" {
		return nil, ErrVoiceRequired
	}
	if !a.supportsParam("voice") {
		return nil, ErrVoiceNotSupported
	}
	params := a.baseParams(text, speed)
	params["voice"] = voice.Preset
	return params, nil
}

func (a *kokoroAdapter) SynthesizeFull(ctx context.Context, text string, voice ResolvedVoice, speed *float64) ([]float32, error) {
	params, err := a.buildParams(text, voice, speed)
	if err != nil {
		return nil, err
	}
	return a.synthesizeFull(ctx, params)
}

func (a *kokoroAdapter) StreamChunks(ctx context.Context, text string, voice ResolvedVoice, speed *float64) (ChunkStream, error) {
	params, err := a.buildParams(text, voice, speed)
	if err != nil {
		return nil, err
	}
	return a.generate(ctx, params)
}
