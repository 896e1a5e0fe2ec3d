package tts

import "errors"

// Request validation errors. These are client-caused and map to request
// rejections in the HTTP layer; the core only reports the failure kind.
var (
	ErrUnknownModel              = errors.New("unknown model")
	ErrVoiceRequired             = errors.New("voice is required for this model")
	ErrVoiceEmpty                = errors.New("voice must be non-empty")
	ErrUnknownVoice              = errors.New("unknown voice")
	ErrInvalidVoiceName          = errors.New("voice must be a filename, not a path")
	ErrUnsupportedVoiceExtension = errors.New("unsupported voice extension")
	ErrVoiceFileNotFound         = errors.New("voice file not found")
	ErrVoiceNotSupported         = errors.New("model does not accept voice inputs")
)

// Configuration and lifecycle errors.
var (
	// ErrVoiceDirMissing indicates the voice clone directory is unset or is
	// not a directory. This is an operator configuration problem, not a
	// client one.
	ErrVoiceDirMissing = errors.New("voice clone directory is not configured or does not exist")

	// ErrModelUnavailable marks a model whose load failed. The failure is
	// permanent for the process lifetime; the model is never retried.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrNotLoaded is returned when generation is attempted before Load.
	ErrNotLoaded = errors.New("model not loaded")

	// ErrNoAudio is returned when a generation call completes without
	// producing a single chunk.
	ErrNoAudio = errors.New("synthesis produced no audio; check voice configuration")
)

// IsValidationError reports whether err is a client-caused request
// validation failure.
func IsValidationError(err error) bool {
	for _, kind := range []error{
		ErrUnknownModel,
		ErrVoiceRequired,
		ErrVoiceEmpty,
		ErrUnknownVoice,
		ErrInvalidVoiceName,
		ErrUnsupportedVoiceExtension,
		ErrVoiceFileNotFound,
		ErrVoiceNotSupported,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
