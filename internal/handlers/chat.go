package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/stationai/npc-engine/internal/processor"
	"github.com/stationai/npc-engine/internal/prompt"
	"github.com/stationai/npc-engine/pkg/npc"
)

// ChatProcessor is the slice of the processor the chat handler needs.
type ChatProcessor interface {
	Process(ctx context.Context, req *npc.Request) (*npc.Response, error)
}

// ErrorResponse is the JSON body for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ChatHandler handles NPC chat requests.
type ChatHandler struct {
	processor ChatProcessor
	logger    *slog.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(p ChatProcessor, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		processor: p,
		logger:    logger,
	}
}

// ServeHTTP handles HTTP requests for chat.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		h.logger.Warn("Method not allowed for chat endpoint",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr)
		writeJSON(w, h.logger, http.StatusMethodNotAllowed, ErrorResponse{
			Error: "Method not allowed. Only POST is supported.",
		})
		return
	}

	var request npc.Request
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		writeJSON(w, h.logger, http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body. Expected JSON with 'player_input' and 'game_context'.",
		})
		return
	}

	if request.RequestID == "" {
		request.RequestID = uuid.NewString()
	}

	h.logger.Info("Chat endpoint accessed",
		"request_id", request.RequestID,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr)

	response, err := h.processor.Process(r.Context(), &request)
	if err != nil {
		var vErr *prompt.ValidationError
		if errors.As(err, &vErr) {
			writeJSON(w, h.logger, http.StatusBadRequest, ErrorResponse{Error: vErr.Message})
			return
		}
		var cfgErr *processor.ConfigurationError
		if errors.As(err, &cfgErr) {
			h.logger.Error("Processor misconfigured", "error", err)
			writeJSON(w, h.logger, http.StatusServiceUnavailable, ErrorResponse{Error: cfgErr.Message})
			return
		}
		h.logger.Error("Chat processing failed", "request_id", request.RequestID, "error", err)
		writeJSON(w, h.logger, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		return
	}

	writeJSON(w, h.logger, http.StatusOK, response)
}

// writeJSON writes a JSON response body with a status code.
func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Error encoding response", "error", err)
	}
}
