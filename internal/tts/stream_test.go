package tts

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngine(t *testing.T, loader *fakeLoader) (*Engine, *Manager) {
	t.Helper()
	manager := testManager(t, loader)
	return NewEngine(manager, manager.logger), manager
}

// lockHeld reports whether the inference lock is currently held by probing it
// with a short deadline.
func lockHeld(m *Manager) bool {
	acquired := make(chan func(), 1)
	go func() { acquired <- m.AcquireInference() }()
	select {
	case release := <-acquired:
		release()
		return false
	case <-time.After(200 * time.Millisecond):
		return true
	}
}

func TestEngineSynthesize_ReturnsMetadata(t *testing.T) {
	loader := newFakeLoader()
	kokoro, _ := registerDefaultHandles(loader)
	kokoro.stepDelay = time.Millisecond
	engine, _ := testEngine(t, loader)

	voice := "alloy"
	result, err := engine.Synthesize(context.Background(), Request{
		Model: "kokoro-82m",
		Voice: &voice,
		Text:  "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, result.Samples)
	assert.Equal(t, 24000, result.SampleRate)
	assert.Equal(t, "kokoro-82m", result.Model)
	assert.Equal(t, "alloy", result.Voice)
	assert.Greater(t, result.Latency, time.Duration(0))
}

func TestEngineSynthesize_DefaultsModelAndVoice(t *testing.T) {
	loader := newFakeLoader()
	kokoro, _ := registerDefaultHandles(loader)
	engine, _ := testEngine(t, loader)

	result, err := engine.Synthesize(context.Background(), Request{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "kokoro-82m", result.Model)
	assert.Equal(t, "bella", result.Voice)
	assert.Equal(t, "bella", kokoro.lastParams()["voice"])
}

func TestEngineSynthesize_ValidationFailsBeforeLocking(t *testing.T) {
	loader := newFakeLoader()
	kokoro, _ := registerDefaultHandles(loader)
	engine, manager := testEngine(t, loader)

	voice := "ghost"
	_, err := engine.Synthesize(context.Background(), Request{Model: "kokoro-82m", Voice: &voice, Text: "hi"})
	require.ErrorIs(t, err, ErrUnknownVoice)
	assert.Nil(t, kokoro.lastParams())
	assert.False(t, lockHeld(manager))
}

func TestEngineSynthesize_ConcurrentCallsNeverOverlap(t *testing.T) {
	loader := newFakeLoader()
	kokoro, _ := registerDefaultHandles(loader)
	kokoro.stepDelay = 5 * time.Millisecond
	engine, _ := testEngine(t, loader)

	const calls = 8
	errs := make([]error, calls)
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Synthesize(context.Background(), Request{Text: "hello"})
		}(i)
	}
	wg.Wait()

	for i := 0; i < calls; i++ {
		require.NoError(t, errs[i])
	}
	assert.False(t, kokoro.overlapped.Load(), "two generations were in flight at once")
	assert.Equal(t, int32(calls), kokoro.generates)
}

func TestEngineStream_ChunksInProductionOrder(t *testing.T) {
	loader := newFakeLoader()
	kokoro, _ := registerDefaultHandles(loader)
	kokoro.chunks = [][]float32{{1}, {2, 3}, {4}}
	engine, _ := testEngine(t, loader)

	stream, err := engine.OpenStream(context.Background(), Request{Text: "hello"})
	require.NoError(t, err)
	defer stream.Close()

	var got [][]float32
	for {
		chunk, err := stream.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, chunk)
	}
	assert.Equal(t, [][]float32{{1}, {2, 3}, {4}}, got)
	assert.Equal(t, "kokoro-82m", stream.Model())
	assert.Equal(t, "bella", stream.Voice())
	assert.Equal(t, 24000, stream.SampleRate())
}

func TestEngineStream_EmptyStreamIsNoAudio(t *testing.T) {
	loader := newFakeLoader()
	kokoro, _ := registerDefaultHandles(loader)
	kokoro.chunks = nil
	engine, manager := testEngine(t, loader)

	stream, err := engine.OpenStream(context.Background(), Request{Text: "hello"})
	require.NoError(t, err)

	_, err = stream.Next(context.Background())
	assert.ErrorIs(t, err, ErrNoAudio)

	stream.Close()
	assert.False(t, lockHeld(manager))
}

func TestEngineStream_RecordsTimeToFirstAudio(t *testing.T) {
	loader := newFakeLoader()
	kokoro, _ := registerDefaultHandles(loader)
	kokoro.stepDelay = 2 * time.Millisecond
	engine, _ := testEngine(t, loader)

	stream, err := engine.OpenStream(context.Background(), Request{Text: "hello"})
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Next(context.Background())
	require.NoError(t, err)
	assert.Greater(t, stream.TimeToFirstAudio(), time.Duration(0))
}

func TestEngineStream_HoldsLockUntilClose(t *testing.T) {
	loader := newFakeLoader()
	kokoro, _ := registerDefaultHandles(loader)
	kokoro.chunks = [][]float32{{1}, {2}, {3}}
	engine, manager := testEngine(t, loader)

	stream, err := engine.OpenStream(context.Background(), Request{Text: "hello"})
	require.NoError(t, err)

	_, err = stream.Next(context.Background())
	require.NoError(t, err)
	assert.True(t, lockHeld(manager))

	// Abandon the stream mid-way; Close must release the lock promptly.
	stream.Close()
	assert.False(t, lockHeld(manager))

	// The next request must not be starved by the abandoned stream.
	_, err = engine.Synthesize(context.Background(), Request{Text: "again"})
	require.NoError(t, err)
}

func TestEngineStream_CloseIsIdempotent(t *testing.T) {
	loader := newFakeLoader()
	registerDefaultHandles(loader)
	engine, manager := testEngine(t, loader)

	stream, err := engine.OpenStream(context.Background(), Request{Text: "hello"})
	require.NoError(t, err)

	stream.Close()
	stream.Close()
	assert.False(t, lockHeld(manager))
}

func TestEngineStream_GenerateErrorReleasesLock(t *testing.T) {
	loader := newFakeLoader()
	kokoro, _ := registerDefaultHandles(loader)
	kokoro.genErr = errors.New("backend crashed")
	engine, manager := testEngine(t, loader)

	_, err := engine.OpenStream(context.Background(), Request{Text: "hello"})
	require.Error(t, err)
	assert.False(t, lockHeld(manager))
}

func TestEngineStream_ContextCancelSurfaces(t *testing.T) {
	loader := newFakeLoader()
	registerDefaultHandles(loader)
	engine, _ := testEngine(t, loader)

	stream, err := engine.OpenStream(context.Background(), Request{Text: "hello"})
	require.NoError(t, err)
	defer stream.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = stream.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVoiceLabel_FallsBackToDefaultLiteral(t *testing.T) {
	loader := newFakeLoader()
	registerDefaultHandles(loader)
	engine, _ := testEngine(t, loader)

	// Chatterbox carries no preset list and no default voice.
	result, err := engine.Synthesize(context.Background(), Request{Model: "chatterbox", Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "default", result.Voice)
}
