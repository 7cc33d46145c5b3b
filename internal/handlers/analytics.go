package handlers

import (
	"log/slog"
	"net/http"

	"github.com/stationai/npc-engine/internal/knowledge"
)

// AnalyticsSource reports knowledge store usage.
type AnalyticsSource interface {
	Analytics() knowledge.Analytics
}

// AnalyticsHandler serves retrieval analytics for the knowledge store.
type AnalyticsHandler struct {
	source AnalyticsSource
	logger *slog.Logger
}

func NewAnalyticsHandler(source AnalyticsSource, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		source: source,
		logger: logger,
	}
}

func (h *AnalyticsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		writeJSON(w, h.logger, http.StatusMethodNotAllowed, ErrorResponse{
			Error: "Method not allowed. Only GET is supported.",
		})
		return
	}

	writeJSON(w, h.logger, http.StatusOK, h.source.Analytics())
}
