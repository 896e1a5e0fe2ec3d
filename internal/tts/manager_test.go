package tts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bradsjm/mlx-openai-tts/internal/registry"
)

const testRegistryJSON = `{
	"models": [
		{"id": "kokoro-82m", "repo_id": "repo/kokoro", "model_type": "kokoro", "voices": ["bella", "alloy"], "warmup_text": "warm"},
		{"id": "chatterbox", "repo_id": "repo/chatterbox", "model_type": "chatterbox"}
	]
}`

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Parse([]byte(testRegistryJSON))
	require.NoError(t, err)
	return reg
}

func testManager(t *testing.T, loader *fakeLoader) *Manager {
	t.Helper()
	return NewManager(testRegistry(t), loader, ManagerOptions{
		WarmupText: "hello",
		Logger:     zerolog.Nop(),
	})
}

func registerDefaultHandles(loader *fakeLoader) (*fakeHandle, *fakeHandle) {
	kokoro := kokoroHandle()
	chatterbox := chatterboxHandle()
	loader.handles["repo/kokoro"] = kokoro
	loader.handles["repo/chatterbox"] = chatterbox
	return kokoro, chatterbox
}

func TestManagerAdapter_UnknownModel(t *testing.T) {
	loader := newFakeLoader()
	registerDefaultHandles(loader)
	manager := testManager(t, loader)

	_, err := manager.Adapter(context.Background(), "nonexistent")
	require.ErrorIs(t, err, ErrUnknownModel)
	assert.Equal(t, 0, loader.loadCount("repo/kokoro"))
	assert.Equal(t, 0, loader.loadCount("repo/chatterbox"))
}

func TestManagerAdapter_ConcurrentFirstAccessLoadsOnce(t *testing.T) {
	loader := newFakeLoader()
	loader.loadDelay = 10 * time.Millisecond
	registerDefaultHandles(loader)
	manager := testManager(t, loader)

	const workers = 16
	adapters := make([]Adapter, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			adapters[i], errs[i] = manager.Adapter(context.Background(), "kokoro-82m")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, loader.loadCount("repo/kokoro"))
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, adapters[0], adapters[i])
	}
}

func TestManagerAdapter_LoadFailureIsPermanent(t *testing.T) {
	loader := newFakeLoader()
	registerDefaultHandles(loader)
	loader.loadErrs["repo/kokoro"] = errors.New("weights mismatch")
	manager := testManager(t, loader)

	_, err := manager.Adapter(context.Background(), "kokoro-82m")
	require.ErrorIs(t, err, ErrModelUnavailable)

	// No retry on subsequent access.
	_, err = manager.Adapter(context.Background(), "kokoro-82m")
	require.ErrorIs(t, err, ErrModelUnavailable)
	assert.Equal(t, 1, loader.loadCount("repo/kokoro"))
}

func TestManagerPreloadAll_LoadsEveryModel(t *testing.T) {
	loader := newFakeLoader()
	registerDefaultHandles(loader)
	manager := testManager(t, loader)

	require.NoError(t, manager.PreloadAll(context.Background()))
	assert.Equal(t, 1, loader.loadCount("repo/kokoro"))
	assert.Equal(t, 1, loader.loadCount("repo/chatterbox"))
}

func TestManagerPreloadAll_FailureIsFatal(t *testing.T) {
	loader := newFakeLoader()
	registerDefaultHandles(loader)
	loader.loadErrs["repo/chatterbox"] = errors.New("weights mismatch")
	manager := testManager(t, loader)

	err := manager.PreloadAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chatterbox")
}

func TestManagerLoadDefaultAndWarm_RunsWarmupSynthesis(t *testing.T) {
	loader := newFakeLoader()
	kokoro, _ := registerDefaultHandles(loader)
	manager := testManager(t, loader)

	require.NoError(t, manager.LoadDefaultAndWarm(context.Background()))

	params := kokoro.lastParams()
	require.NotNil(t, params)
	assert.Equal(t, "warm", params["text"])
	assert.Equal(t, "bella", params["voice"])
}

func TestManagerLoadDefaultAndWarm_WarmupFailureIsNotFatal(t *testing.T) {
	loader := newFakeLoader()
	kokoro, _ := registerDefaultHandles(loader)
	kokoro.chunks = nil // synthesis yields ErrNoAudio
	manager := testManager(t, loader)

	require.NoError(t, manager.LoadDefaultAndWarm(context.Background()))
}

func TestManagerLoadDefaultAndWarm_LoadFailureIsFatal(t *testing.T) {
	loader := newFakeLoader()
	registerDefaultHandles(loader)
	loader.loadErrs["repo/kokoro"] = errors.New("weights mismatch")
	manager := testManager(t, loader)

	err := manager.LoadDefaultAndWarm(context.Background())
	require.ErrorIs(t, err, ErrModelUnavailable)
}

func TestManagerResolveVoice_Delegates(t *testing.T) {
	loader := newFakeLoader()
	registerDefaultHandles(loader)
	manager := testManager(t, loader)

	requested := "alloy"
	voice, err := manager.ResolveVoice(context.Background(), "kokoro-82m", &requested)
	require.NoError(t, err)
	assert.Equal(t, "alloy", voice.Preset)
}

func TestManagerSnapshot_NoSideEffects(t *testing.T) {
	loader := newFakeLoader()
	registerDefaultHandles(loader)
	manager := testManager(t, loader)

	snap := manager.Snapshot()
	assert.False(t, snap.Loaded)
	assert.Equal(t, "kokoro-82m", snap.DefaultModel)
	assert.Equal(t, 0, loader.loadCount("repo/kokoro"))

	require.NoError(t, manager.LoadDefaultAndWarm(context.Background()))
	snap = manager.Snapshot()
	assert.True(t, snap.Loaded)
	assert.Equal(t, 24000, snap.SampleRate)
}

func TestManagerStrictFlagForwardedVerbatim(t *testing.T) {
	loader := newFakeLoader()
	registerDefaultHandles(loader)
	manager := NewManager(testRegistry(t), loader, ManagerOptions{Strict: true, Logger: zerolog.Nop()})

	_, err := manager.Adapter(context.Background(), "kokoro-82m")
	require.NoError(t, err)
	require.Len(t, loader.strict, 1)
	assert.True(t, loader.strict[0])
}
