package tts

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bradsjm/mlx-openai-tts/internal/observability"
)

// Request carries the already-validated synthesis parameters handed to the
// orchestrator by the request layer. Voice is nil when the request omitted
// one; nil is distinct from the empty string.
type Request struct {
	Model string
	Voice *string
	Text  string
	Speed *float64
}

// Synthesis is the buffered-mode result: the complete sample buffer plus
// the metadata the request layer emits as headers. Latency is measured
// around the locked region only, so queue wait is excluded.
type Synthesis struct {
	Samples    []float32
	SampleRate int
	Model      string
	Voice      string
	Latency    time.Duration
}

// Engine orchestrates synthesis requests: it resolves the adapter and
// voice, drives generation under the inference lock, and measures latency.
type Engine struct {
	manager *Manager
	logger  zerolog.Logger
}

// NewEngine creates an orchestrator over a manager.
func NewEngine(manager *Manager, logger zerolog.Logger) *Engine {
	return &Engine{manager: manager, logger: logger}
}

// prepare resolves the adapter and voice for a request without touching the
// inference lock. Validation failures surface here, before any queueing.
func (e *Engine) prepare(ctx context.Context, req Request) (Adapter, ResolvedVoice, string, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = e.manager.DefaultModelID()
	}
	adapter, err := e.manager.Adapter(ctx, modelID)
	if err != nil {
		return nil, ResolvedVoice{}, modelID, err
	}
	voice, err := adapter.ResolveVoice(req.Voice)
	if err != nil {
		return nil, ResolvedVoice{}, modelID, err
	}
	return adapter, voice, modelID, nil
}

// voiceLabel is the identifier reported in the X-Voice header: the
// requested value when present, else the resolved voice's own label.
func voiceLabel(req Request, voice ResolvedVoice) string {
	if req.Voice != nil {
		if v := strings.TrimSpace(*req.Voice); v != "" {
			return v
		}
	}
	return voice.Label()
}

// Synthesize runs one buffered synthesis under the inference lock.
func (e *Engine) Synthesize(ctx context.Context, req Request) (*Synthesis, error) {
	adapter, voice, modelID, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	release := e.manager.AcquireInference()
	defer release()

	start := time.Now()
	samples, err := adapter.SynthesizeFull(ctx, req.Text, voice, req.Speed)
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}
	observability.ObserveSynthesisLatency(elapsed)

	return &Synthesis{
		Samples:    samples,
		SampleRate: adapter.SampleRate(),
		Model:      modelID,
		Voice:      voiceLabel(req, voice),
		Latency:    elapsed,
	}, nil
}

// Stream is the streaming-mode result: a single-pass chunk sequence that
// holds the inference lock from acquisition until Close. Close is
// idempotent and must be called on every exit path, including consumer
// aborts; it is what releases the lock.
type Stream struct {
	model      string
	voice      string
	sampleRate int

	chunks   ChunkStream
	release  func()
	acquired time.Time

	firstSeen    bool
	firstLatency time.Duration
	closeOnce    sync.Once
}

// OpenStream resolves the request, acquires the inference lock and starts
// chunked generation. On any error the lock is released before returning.
func (e *Engine) OpenStream(ctx context.Context, req Request) (*Stream, error) {
	adapter, voice, modelID, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	release := e.manager.AcquireInference()
	acquired := time.Now()

	chunks, err := adapter.StreamChunks(ctx, req.Text, voice, req.Speed)
	if err != nil {
		release()
		return nil, err
	}

	return &Stream{
		model:      modelID,
		voice:      voiceLabel(req, voice),
		sampleRate: adapter.SampleRate(),
		chunks:     chunks,
		release:    release,
		acquired:   acquired,
	}, nil
}

// Next returns the next chunk in production order. The first successful
// call records time-to-first-audio since lock acquisition. io.EOF marks
// normal exhaustion; an empty sequence is reported as ErrNoAudio.
func (s *Stream) Next(ctx context.Context) ([]float32, error) {
	chunk, err := s.chunks.Next(ctx)
	if err == io.EOF && !s.firstSeen {
		return nil, ErrNoAudio
	}
	if err != nil {
		return nil, err
	}
	if !s.firstSeen {
		s.firstSeen = true
		s.firstLatency = time.Since(s.acquired)
		observability.ObserveFirstAudioLatency(s.firstLatency)
	}
	return chunk, nil
}

// Close terminates the underlying generation and releases the inference
// lock. Safe to call more than once.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		if s.chunks != nil {
			_ = s.chunks.Close()
		}
		s.release()
	})
}

// TimeToFirstAudio reports the latency recorded on the first chunk. Valid
// once Next has returned successfully at least once.
func (s *Stream) TimeToFirstAudio() time.Duration { return s.firstLatency }

func (s *Stream) Model() string    { return s.model }
func (s *Stream) Voice() string    { return s.voice }
func (s *Stream) SampleRate() int  { return s.sampleRate }
