package server

import (
	"encoding/json"
	"fmt"
)

// VoiceRef accepts the OpenAI wire forms for a voice: a plain string or an
// object carrying an id. A nil *VoiceRef means the request omitted the
// voice entirely (or sent null), which is distinct from an empty string.
type VoiceRef struct {
	ID string
}

func (v *VoiceRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v.ID = s
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		v.ID = obj.ID
		return nil
	}
	return fmt.Errorf("invalid voice format; expected string or {id: string}")
}

// SpeechRequest is the /v1/audio/speech request body, compatible with
// OpenAI's audio/speech API.
type SpeechRequest struct {
	Model          string    `json:"model"`
	Input          string    `json:"input"`
	Voice          *VoiceRef `json:"voice"`
	Instructions   string    `json:"instructions"`
	ResponseFormat string    `json:"response_format"`
	StreamFormat   string    `json:"stream_format"`
	Speed          *float64  `json:"speed"`
}

// ModelListItem is one entry in the /v1/models response.
type ModelListItem struct {
	ID         string `json:"id"`
	Object     string `json:"object"`
	OwnedBy    string `json:"owned_by"`
	Permission []any  `json:"permission"`
}

// ModelListResponse is the /v1/models response body.
type ModelListResponse struct {
	Object       string          `json:"object"`
	Data         []ModelListItem `json:"data"`
	DefaultModel string          `json:"default_model"`
	DefaultVoice string          `json:"default_voice,omitempty"`
}

// HealthResponse is the /health response body.
type HealthResponse struct {
	Status       string `json:"status"`
	Name         string `json:"name"`
	Version      string `json:"version"`
	ActiveModel  string `json:"active_model,omitempty"`
	RepoID       string `json:"repo_id,omitempty"`
	DefaultVoice string `json:"default_voice,omitempty"`
	SampleRate   int    `json:"sample_rate,omitempty"`
}

type sseDelta struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type sseUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type sseDone struct {
	Type  string   `json:"type"`
	Usage sseUsage `json:"usage"`
}
