package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runReadiness(t *testing.T, checks map[string]HealthCheckFunc) (*httptest.ResponseRecorder, ReadinessStatus) {
	t.Helper()
	handler := ReadinessHandler("tts-gateway", "1.0.0", checks)
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	var status ReadinessStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	return rec, status
}

func TestReadinessHandler_AllHealthy(t *testing.T) {
	rec, status := runReadiness(t, map[string]HealthCheckFunc{
		"model":  func(ctx context.Context) (bool, error) { return true, nil },
		"ffmpeg": func(ctx context.Context) (bool, error) { return true, nil },
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", status.Status)
	assert.Equal(t, "tts-gateway", status.Service)
	assert.Equal(t, "healthy", status.Dependencies["model"].Status)
	assert.Equal(t, "healthy", status.Dependencies["ffmpeg"].Status)
}

func TestReadinessHandler_FailingCheckIs503(t *testing.T) {
	rec, status := runReadiness(t, map[string]HealthCheckFunc{
		"model": func(ctx context.Context) (bool, error) {
			return false, errors.New("default model not loaded")
		},
	})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not_ready", status.Status)
	assert.Equal(t, "unhealthy", status.Dependencies["model"].Status)
	assert.Contains(t, status.Dependencies["model"].Message, "not loaded")
}
