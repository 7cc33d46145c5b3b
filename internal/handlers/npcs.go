package handlers

import (
	"log/slog"
	"net/http"

	"github.com/stationai/npc-engine/internal/persona"
)

// PersonaLister exposes the loaded NPC profiles.
type PersonaLister interface {
	List() []*persona.Profile
}

// NPCSummary is the public view of a profile, without prompt
// internals.
type NPCSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// NPCsHandler lists the NPCs available for conversation.
type NPCsHandler struct {
	personas PersonaLister
	logger   *slog.Logger
}

func NewNPCsHandler(personas PersonaLister, logger *slog.Logger) *NPCsHandler {
	return &NPCsHandler{
		personas: personas,
		logger:   logger,
	}
}

func (h *NPCsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		writeJSON(w, h.logger, http.StatusMethodNotAllowed, ErrorResponse{
			Error: "Method not allowed. Only GET is supported.",
		})
		return
	}

	profiles := h.personas.List()
	summaries := make([]NPCSummary, 0, len(profiles))
	for _, p := range profiles {
		summaries = append(summaries, NPCSummary{
			ID:   p.ID,
			Name: p.Name,
			Role: p.Role,
		})
	}

	writeJSON(w, h.logger, http.StatusOK, summaries)
}
