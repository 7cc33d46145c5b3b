package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationai/npc-engine/internal/history"
)

type stubCounter struct{ n int }

func (s stubCounter) Count() int { return s.n }

func TestHealthHandler_Healthy(t *testing.T) {
	handler := NewHealthHandler(history.NewMockStore(), stubCounter{n: 42}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "npc-engine", resp.Service)
	assert.Equal(t, "healthy", resp.Components["history"])
	assert.Equal(t, float64(42), resp.Components["knowledge_documents"])
}

func TestHealthHandler_DegradedWhenHistoryDown(t *testing.T) {
	store := history.NewMockStore()
	store.PingFunc = func(_ context.Context) error {
		return errors.New("connection refused")
	}
	handler := NewHealthHandler(store, stubCounter{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "unhealthy", resp.Components["history"])
}
