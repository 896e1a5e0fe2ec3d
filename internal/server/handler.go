// Package server exposes the OpenAI-compatible HTTP surface: the speech
// endpoint, model listing, health, and Bearer authentication. It owns all
// HTTP status decisions; the core only reports error kinds.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/bradsjm/mlx-openai-tts/internal/audio"
	"github.com/bradsjm/mlx-openai-tts/internal/config"
	"github.com/bradsjm/mlx-openai-tts/internal/tts"
)

// Version is the service version reported by health and model listings.
const Version = "1.0.0"

// Handler serves the gateway's HTTP API.
type Handler struct {
	cfg     *config.Config
	manager *tts.Manager
	engine  *tts.Engine
	encoder *audio.Encoder
	logger  zerolog.Logger
}

// New creates the HTTP handler set.
func New(cfg *config.Config, manager *tts.Manager, engine *tts.Engine, encoder *audio.Encoder, logger zerolog.Logger) *Handler {
	return &Handler{
		cfg:     cfg,
		manager: manager,
		engine:  engine,
		encoder: encoder,
		logger:  logger,
	}
}

// Register attaches the API routes to mux. Every route is behind Bearer
// auth when an API key is configured.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("/v1/audio/speech", requireAuth(h.cfg.APIKey, http.HandlerFunc(h.handleSpeech)))
	mux.Handle("/v1/models", requireAuth(h.cfg.APIKey, http.HandlerFunc(h.handleModels)))
	mux.Handle("/v1/models/{id}", requireAuth(h.cfg.APIKey, http.HandlerFunc(h.handleModelRetrieve)))
	mux.Handle("/health", requireAuth(h.cfg.APIKey, http.HandlerFunc(h.handleHealth)))
	mux.Handle("/v1", requireAuth(h.cfg.APIKey, http.HandlerFunc(h.handleHealth)))
	mux.Handle("/", requireAuth(h.cfg.APIKey, http.HandlerFunc(h.handleHealth)))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// statusForError maps core error kinds to HTTP statuses.
func statusForError(err error) int {
	switch {
	case tts.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, tts.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, audio.ErrTranscoderUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, audio.ErrTranscodeTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// handleModels lists the registry models in OpenAI list form.
func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	specs := h.manager.Specs()
	data := make([]ModelListItem, 0, len(specs))
	for _, spec := range specs {
		data = append(data, ModelListItem{
			ID:         spec.ID,
			Object:     "model",
			OwnedBy:    "local",
			Permission: []any{},
		})
	}

	defaultSpec, _ := h.manager.Spec(h.manager.DefaultModelID())
	writeJSON(w, http.StatusOK, ModelListResponse{
		Object:       "list",
		Data:         data,
		DefaultModel: h.manager.DefaultModelID(),
		DefaultVoice: defaultSpec.DefaultVoice,
	})
}

// handleModelRetrieve returns a single registry model in OpenAI form.
func (h *Handler) handleModelRetrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := r.PathValue("id")
	spec, ok := h.manager.Spec(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("model %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, ModelListItem{
		ID:         spec.ID,
		Object:     "model",
		OwnedBy:    "local",
		Permission: []any{},
	})
}

// handleHealth reports liveness plus a read-only snapshot of the default
// model. It never triggers a model load.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap := h.manager.Snapshot()
	resp := HealthResponse{
		Status:  "ok",
		Name:    "mlx-openai-tts",
		Version: Version,
	}
	if snap.Loaded {
		resp.ActiveModel = snap.DefaultModel
		resp.RepoID = snap.RepoID
		resp.DefaultVoice = snap.DefaultVoice
		resp.SampleRate = snap.SampleRate
	}
	writeJSON(w, http.StatusOK, resp)
}
