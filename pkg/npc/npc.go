package npc

import (
	"fmt"
	"strings"
)

// ProcessingTier identifies which backend path generated a response.
// Exactly one tier is active per request, chosen by the processor from
// configuration; callers never pick a tier directly.
type ProcessingTier string

const (
	TierLocal  ProcessingTier = "local"
	TierHosted ProcessingTier = "hosted"
)

// GameContext carries the situational state the game client attaches
// to each request.
type GameContext struct {
	PlayerID            string             `json:"player_id"`
	PlayerLocation      string             `json:"player_location"`
	CurrentObjective    string             `json:"current_objective,omitempty"`
	NPCID               string             `json:"npc_id,omitempty"`
	LanguageProficiency map[string]float64 `json:"language_proficiency,omitempty"`
}

// Request is a player message plus the context needed to answer it.
type Request struct {
	RequestID         string            `json:"request_id"`
	PlayerInput       string            `json:"player_input"`
	GameContext       *GameContext      `json:"game_context"`
	Intent            string            `json:"intent,omitempty"`
	ConversationID    string            `json:"conversation_id,omitempty"`
	AdditionalContext map[string]string `json:"additional_context,omitempty"`
}

// Validate checks the fields the prompt assembler depends on.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.PlayerInput) == "" {
		return fmt.Errorf("player input cannot be empty")
	}
	if r.GameContext == nil {
		return fmt.Errorf("game context is required")
	}
	return nil
}

// Response is the NPC reply returned to the API layer.
type Response struct {
	RequestID      string         `json:"request_id,omitempty"`
	ResponseText   string         `json:"response_text"`
	ProcessingTier ProcessingTier `json:"processing_tier"`
	IsFallback     bool           `json:"is_fallback,omitempty"`
	DebugInfo      map[string]any `json:"debug_info,omitempty"`
}

// Turn is one completed user/assistant exchange in a conversation.
// Turns are append-only; Timestamp is an ISO-8601 string so entries
// sort chronologically as plain strings.
type Turn struct {
	User           string            `json:"user"`
	Assistant      string            `json:"assistant"`
	Timestamp      string            `json:"timestamp"`
	NPCID          string            `json:"npc_id,omitempty"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}
