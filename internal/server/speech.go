package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/bradsjm/mlx-openai-tts/internal/audio"
	"github.com/bradsjm/mlx-openai-tts/internal/observability"
	"github.com/bradsjm/mlx-openai-tts/internal/tts"
)

const (
	minSpeed = 0.25
	maxSpeed = 4.0
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// normalizeText collapses whitespace runs and trims the input.
func normalizeText(text string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}

// handleSpeech serves POST /v1/audio/speech in all four delivery modes:
// buffered bytes, chunked PCM, SSE-per-chunk PCM, and SSE single-event for
// compressed formats.
func (h *Handler) handleSpeech(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body SpeechRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	text := normalizeText(body.Input)
	if text == "" {
		writeError(w, http.StatusBadRequest, "input must be non-empty")
		return
	}
	if len(text) > h.cfg.MaxChars {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("input too long (>%d chars)", h.cfg.MaxChars))
		return
	}

	formatValue := body.ResponseFormat
	if formatValue == "" {
		formatValue = string(audio.FormatMP3)
	}
	format, err := audio.ParseFormat(strings.ToLower(formatValue))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	streamFormat := body.StreamFormat
	if streamFormat == "" {
		streamFormat = "audio"
	}
	if streamFormat != "audio" && streamFormat != "sse" {
		writeError(w, http.StatusBadRequest, "unsupported stream_format (use audio|sse)")
		return
	}

	speed := 1.0
	if body.Speed != nil {
		speed = *body.Speed
	}
	if speed < minSpeed || speed > maxSpeed {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("speed must be between %g and %g", minSpeed, maxSpeed))
		return
	}

	var voice *string
	if body.Voice != nil {
		v := strings.TrimSpace(body.Voice.ID)
		if v == "" {
			writeError(w, http.StatusBadRequest, "voice must be non-empty")
			return
		}
		voice = &v
	}

	req := tts.Request{Model: body.Model, Voice: voice, Text: text, Speed: &speed}

	logger := observability.WithRequestID(r.Header.Get("X-Request-Id"))
	logger.Debug().
		Str("model", body.Model).
		Str("response_format", string(format)).
		Str("stream_format", streamFormat).
		Int("input_chars", len(text)).
		Msg("Speech request accepted")

	switch {
	case streamFormat == "sse":
		h.respondSSE(w, r, req, format)
	case format == audio.FormatPCM:
		h.respondPCMStream(w, r, req)
	default:
		h.respondBuffered(w, r, req, format)
	}
}

func setSynthesisHeaders(w http.ResponseWriter, model, voice string, sampleRate int, latencyMs int64) {
	w.Header().Set("X-Model", model)
	w.Header().Set("X-Voice", voice)
	w.Header().Set("X-Sample-Rate", strconv.Itoa(sampleRate))
	w.Header().Set("X-Latency-Ms", strconv.FormatInt(latencyMs, 10))
}

// respondBuffered synthesizes the full buffer under the inference lock,
// encodes it, and writes one complete response.
func (h *Handler) respondBuffered(w http.ResponseWriter, r *http.Request, req tts.Request, format audio.Format) {
	syn, err := h.engine.Synthesize(r.Context(), req)
	if err != nil {
		observability.RecordRequest("error", string(format))
		writeError(w, statusForError(err), err.Error())
		return
	}

	body, mediaType, err := h.encoder.Encode(r.Context(), syn.Samples, syn.SampleRate, format)
	if err != nil {
		observability.RecordRequest("error", string(format))
		writeError(w, statusForError(err), err.Error())
		return
	}

	setSynthesisHeaders(w, syn.Model, syn.Voice, syn.SampleRate, syn.Latency.Milliseconds())
	w.Header().Set("Content-Type", mediaType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.logger.Debug().Err(err).Msg("Client disconnected during buffered write")
		return
	}
	observability.AddAudioBytes(string(format), len(body))
	observability.RecordRequest("success", string(format))
}

// respondPCMStream streams raw s16le chunks as they are generated, holding
// the inference lock until the stream is drained or the client goes away.
func (h *Handler) respondPCMStream(w http.ResponseWriter, r *http.Request, req tts.Request) {
	ctx := r.Context()
	stream, err := h.engine.OpenStream(ctx, req)
	if err != nil {
		observability.RecordRequest("error", string(audio.FormatPCM))
		writeError(w, statusForError(err), err.Error())
		return
	}
	defer stream.Close()

	// The first chunk is forced before headers so the reported latency is
	// the real time to first audio.
	first, err := stream.Next(ctx)
	if err != nil {
		observability.RecordRequest("error", string(audio.FormatPCM))
		writeError(w, statusForError(err), err.Error())
		return
	}

	setSynthesisHeaders(w, stream.Model(), stream.Voice(), stream.SampleRate(), stream.TimeToFirstAudio().Milliseconds())
	w.Header().Set("Content-Type", audio.FormatPCM.MediaType())
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	total := 0
	chunk := first
	for {
		data := audio.PCM16Bytes(chunk)
		if _, err := w.Write(data); err != nil {
			h.logger.Debug().Err(err).Msg("Client disconnected mid-stream")
			observability.RecordRequest("aborted", string(audio.FormatPCM))
			return
		}
		total += len(data)
		if flusher != nil {
			flusher.Flush()
		}

		chunk, err = stream.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			h.logger.Error().Err(err).Msg("Generation failed mid-stream")
			observability.RecordRequest("error", string(audio.FormatPCM))
			return
		}
	}

	observability.AddAudioBytes(string(audio.FormatPCM), total)
	observability.RecordRequest("success", string(audio.FormatPCM))
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	if flusher != nil {
		flusher.Flush()
	}
	return nil
}

// respondSSE wraps audio in server-sent events: per-chunk deltas for PCM,
// one delta carrying the whole encoded body for compressed formats.
func (h *Handler) respondSSE(w http.ResponseWriter, r *http.Request, req tts.Request, format audio.Format) {
	ctx := r.Context()

	if format == audio.FormatPCM {
		stream, err := h.engine.OpenStream(ctx, req)
		if err != nil {
			observability.RecordRequest("error", string(format))
			writeError(w, statusForError(err), err.Error())
			return
		}
		defer stream.Close()

		first, err := stream.Next(ctx)
		if err != nil {
			observability.RecordRequest("error", string(format))
			writeError(w, statusForError(err), err.Error())
			return
		}

		setSynthesisHeaders(w, stream.Model(), stream.Voice(), stream.SampleRate(), stream.TimeToFirstAudio().Milliseconds())
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)

		chunk := first
		for {
			data := audio.PCM16Bytes(chunk)
			event := sseDelta{Type: "speech.audio.delta", Audio: base64.StdEncoding.EncodeToString(data)}
			if err := writeSSE(w, flusher, event); err != nil {
				h.logger.Debug().Err(err).Msg("Client disconnected mid-SSE")
				observability.RecordRequest("aborted", string(format))
				return
			}
			observability.AddAudioBytes(string(format), len(data))

			chunk, err = stream.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				h.logger.Error().Err(err).Msg("Generation failed mid-SSE")
				observability.RecordRequest("error", string(format))
				return
			}
		}

		_ = writeSSE(w, flusher, sseDone{Type: "speech.audio.done"})
		observability.RecordRequest("success", string(format))
		return
	}

	// Compressed formats synthesize fully first, then emit one event.
	syn, err := h.engine.Synthesize(ctx, req)
	if err != nil {
		observability.RecordRequest("error", string(format))
		writeError(w, statusForError(err), err.Error())
		return
	}
	body, _, err := h.encoder.Encode(ctx, syn.Samples, syn.SampleRate, format)
	if err != nil {
		observability.RecordRequest("error", string(format))
		writeError(w, statusForError(err), err.Error())
		return
	}

	setSynthesisHeaders(w, syn.Model, syn.Voice, syn.SampleRate, syn.Latency.Milliseconds())
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	event := sseDelta{Type: "speech.audio.delta", Audio: base64.StdEncoding.EncodeToString(body)}
	if err := writeSSE(w, flusher, event); err != nil {
		observability.RecordRequest("aborted", string(format))
		return
	}
	_ = writeSSE(w, flusher, sseDone{Type: "speech.audio.done"})
	observability.AddAudioBytes(string(format), len(body))
	observability.RecordRequest("success", string(format))
}
