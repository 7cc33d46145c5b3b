package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/stationai/npc-engine/internal/history"
)

type HealthResponse struct {
	Status     string                 `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Service    string                 `json:"service"`
	Components map[string]interface{} `json:"components"`
}

// DocumentCounter exposes the size of the knowledge index for health
// reporting.
type DocumentCounter interface {
	Count() int
}

type HealthHandler struct {
	history   history.Store
	knowledge DocumentCounter
	logger    *slog.Logger
}

func NewHealthHandler(historyStore history.Store, knowledge DocumentCounter, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		history:   historyStore,
		knowledge: knowledge,
		logger:    logger,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	h.logger.Debug("Health check requested",
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := make(map[string]interface{})
	overallStatus := "healthy"

	if h.history != nil {
		if err := h.history.Ping(ctx); err != nil {
			h.logger.Warn("History store health check failed", "error", err)
			components["history"] = "unhealthy"
			overallStatus = "degraded"
		} else {
			components["history"] = "healthy"
		}
	}

	if h.knowledge != nil {
		components["knowledge_documents"] = h.knowledge.Count()
	}

	response := HealthResponse{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Service:    "npc-engine",
		Components: components,
	}

	statusCode := http.StatusOK
	if overallStatus != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, h.logger, statusCode, response)
}
