package tts

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// fakeStream replays a fixed chunk list.
type fakeStream struct {
	handle *fakeHandle
	chunks [][]float32
	index  int

	mu     sync.Mutex
	closed bool
}

func (s *fakeStream) Next(ctx context.Context) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.handle.stepDelay > 0 {
		time.Sleep(s.handle.stepDelay)
	}
	if s.index >= len(s.chunks) {
		return nil, io.EOF
	}
	chunk := s.chunks[s.index]
	s.index++
	return chunk, nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.handle.finishGeneration()
	}
	return nil
}

// fakeHandle is an instrumented model handle. It counts in-flight
// generations so tests can assert the inference lock never admits two.
type fakeHandle struct {
	sampleRate int
	params     []string
	chunks     [][]float32
	genErr     error
	stepDelay  time.Duration

	mu         sync.Mutex
	gotParams  []map[string]any
	inFlight   int32
	overlapped atomic.Bool
	generates  int32
}

func (h *fakeHandle) Generate(ctx context.Context, params map[string]any) (ChunkStream, error) {
	h.mu.Lock()
	h.gotParams = append(h.gotParams, params)
	h.mu.Unlock()
	if h.genErr != nil {
		return nil, h.genErr
	}
	atomic.AddInt32(&h.generates, 1)
	if atomic.AddInt32(&h.inFlight, 1) > 1 {
		h.overlapped.Store(true)
	}
	return &fakeStream{handle: h, chunks: h.chunks}, nil
}

func (h *fakeHandle) finishGeneration() { atomic.AddInt32(&h.inFlight, -1) }

func (h *fakeHandle) SampleRate() int          { return h.sampleRate }
func (h *fakeHandle) GenerateParams() []string { return h.params }
func (h *fakeHandle) Close() error             { return nil }

func (h *fakeHandle) lastParams() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.gotParams) == 0 {
		return nil
	}
	return h.gotParams[len(h.gotParams)-1]
}

// fakeLoader hands out fakeHandles keyed by repo id and records load
// traffic.
type fakeLoader struct {
	mu        sync.Mutex
	handles   map[string]*fakeHandle
	loadErrs  map[string]error
	loadDelay time.Duration
	loads     map[string]int
	strict    []bool
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		handles:  make(map[string]*fakeHandle),
		loadErrs: make(map[string]error),
		loads:    make(map[string]int),
	}
}

func (l *fakeLoader) Load(ctx context.Context, repoID string, strict bool) (Handle, error) {
	if l.loadDelay > 0 {
		time.Sleep(l.loadDelay)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads[repoID]++
	l.strict = append(l.strict, strict)
	if err := l.loadErrs[repoID]; err != nil {
		return nil, err
	}
	handle, ok := l.handles[repoID]
	if !ok {
		return nil, fmt.Errorf("no fake handle registered for %q", repoID)
	}
	return handle, nil
}

func (l *fakeLoader) loadCount(repoID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads[repoID]
}
