package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Reference-audio extensions accepted for voice cloning, in resolution
// priority order for extensionless requests.
var voiceExtensions = []string{".wav", ".flac"}

// chatterboxAdapter serves voice-cloning-capable models. The voice is
// optional: absent or the literal "default" selects the model's built-in
// voice; anything else is a bare reference-audio filename resolved against
// the configured clone directory.
type chatterboxAdapter struct {
	baseAdapter
	voiceCloneDir string
}

func (a *chatterboxAdapter) RequiresVoice() bool { return false }

func (a *chatterboxAdapter) ResolveVoice(requested *string) (ResolvedVoice, error) {
	if requested == nil {
		return ResolvedVoice{Builtin: true}, nil
	}
	voice := strings.TrimSpace(*requested)
	if voice == "" {
		return ResolvedVoice{}, ErrVoiceEmpty
	}
	if strings.EqualFold(voice, "default") {
		return ResolvedVoice{Builtin: true}, nil
	}
	path, err := a.resolveRefAudio(voice)
	if err != nil {
		return ResolvedVoice{}, err
	}
	return ResolvedVoice{Path: path}, nil
}

// resolveRefAudio maps a bare filename to an absolute path inside the voice
// clone directory. The value must not be a path; traversal is rejected
// before any filesystem access.
func (a *chatterboxAdapter) resolveRefAudio(voice string) (string, error) {
	if voice == "." || voice == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidVoiceName, voice)
	}
	if strings.ContainsAny(voice, `/\`) || filepath.Base(voice) != voice {
		return "", fmt.Errorf("%w: %q", ErrInvalidVoiceName, voice)
	}

	dir := a.voiceCloneDir
	if dir == "" {
		return "", ErrVoiceDirMissing
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %q", ErrVoiceDirMissing, dir)
	}

	ext := filepath.Ext(voice)
	if ext != "" {
		if !allowedVoiceExtension(ext) {
			return "", fmt.Errorf("%w %q; allowed: %s", ErrUnsupportedVoiceExtension, ext, strings.Join(voiceExtensions, ", "))
		}
		path, ok := findVoiceFile(dir, voice)
		if !ok {
			return "", fmt.Errorf("%w: %q in %q", ErrVoiceFileNotFound, voice, dir)
		}
		return path, nil
	}

	for _, suffix := range voiceExtensions {
		if path, ok := findVoiceFile(dir, voice+suffix); ok {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %q in %q", ErrVoiceFileNotFound, voice, dir)
}

func allowedVoiceExtension(ext string) bool {
	for _, allowed := range voiceExtensions {
		if strings.EqualFold(ext, allowed) {
			return true
		}
	}
	return false
}

// findVoiceFile looks a filename up in dir, falling back to a
// case-insensitive scan of the directory entries. Matching uses
// strings.EqualFold for deterministic, locale-independent folding; the
// first matching entry wins.
func findVoiceFile(dir, filename string) (string, bool) {
	candidate := filepath.Join(dir, filename)
	if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
		return absPath(candidate), true
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if !strings.EqualFold(entry.Name(), filename) {
			continue
		}
		resolved := filepath.Join(dir, entry.Name())
		if info, err := os.Stat(resolved); err == nil && info.Mode().IsRegular() {
			return absPath(resolved), true
		}
	}
	return "", false
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func (a *chatterboxAdapter) buildParams(text string, voice ResolvedVoice, speed *float64) (map[string]any, error) {
	params := a.baseParams(text, speed)
	if voice.Builtin {
		return params, nil
	}
	// Reference-audio parameter name varies across model revisions.
	for _, name := range []string{"ref_audio", "audio_prompt_path", "audio_prompt"} {
		if a.supportsParam(name) {
			params[name] = voice.Path
			return params, nil
		}
	}
	return nil, ErrVoiceNotSupported
}

func (a *chatterboxAdapter) SynthesizeFull(ctx context.Context, text string, voice ResolvedVoice, speed *float64) ([]float32, error) {
	params, err := a.buildParams(text, voice, speed)
	if err != nil {
		return nil, err
	}
	return a.synthesizeFull(ctx, params)
}

func (a *chatterboxAdapter) StreamChunks(ctx context.Context, text string, voice ResolvedVoice, speed *float64) (ChunkStream, error) {
	params, err := a.buildParams(text, voice, speed)
	if err != nil {
		return nil, err
	}
	return a.generate(ctx, params)
}
