package prompt

import (
	"fmt"
	"strings"

	"github.com/stationai/npc-engine/internal/knowledge"
	"github.com/stationai/npc-engine/internal/persona"
	"github.com/stationai/npc-engine/pkg/npc"
)

// ValidationError marks a caller error in prompt assembly (missing or
// blank input, malformed context). It must be handled before backend
// dispatch; it is never converted into a fallback response.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Builder assembles one token-budgeted prompt string from prioritized
// segments using a fluent interface. Segment priority, highest first:
// system/persona, retrieved knowledge, conversation history, current
// turn.
type Builder struct {
	request          *npc.Request
	persona          *persona.Profile
	knowledge        []knowledge.Result
	history          []npc.Turn
	budget           Budget
	includeKnowledge bool
	includeHistory   bool
}

// New creates a prompt builder with default settings.
func New() *Builder {
	return &Builder{
		budget:           Budget{MaxTokens: 800},
		includeKnowledge: true,
		includeHistory:   true,
	}
}

// WithRequest sets the request carrying the current player turn.
func (b *Builder) WithRequest(req *npc.Request) *Builder {
	b.request = req
	return b
}

// WithPersona sets the NPC persona. A nil persona falls back to the
// default system prompt.
func (b *Builder) WithPersona(p *persona.Profile) *Builder {
	b.persona = p
	return b
}

// WithKnowledge sets the retrieved knowledge documents.
func (b *Builder) WithKnowledge(results []knowledge.Result) *Builder {
	b.knowledge = results
	return b
}

// WithHistory sets the (already size-limited) conversation history,
// oldest first.
func (b *Builder) WithHistory(history []npc.Turn) *Builder {
	b.history = history
	return b
}

// WithBudget sets the hard token ceiling.
func (b *Builder) WithBudget(budget Budget) *Builder {
	b.budget = budget
	return b
}

// WithOptions toggles the knowledge and history segments.
func (b *Builder) WithOptions(includeKnowledge, includeHistory bool) *Builder {
	b.includeKnowledge = includeKnowledge
	b.includeHistory = includeHistory
	return b
}

// Build assembles the final prompt, degrading lower-priority segments
// when the estimate exceeds the budget.
func (b *Builder) Build() (string, error) {
	if b.budget.MaxTokens <= 0 {
		return "", fmt.Errorf("prompt budget must be positive, got %d", b.budget.MaxTokens)
	}
	if b.request == nil || strings.TrimSpace(b.request.PlayerInput) == "" {
		return "", &ValidationError{Message: "player input cannot be empty"}
	}
	if b.request.GameContext == nil {
		return "", &ValidationError{Message: "game context is required"}
	}

	currentTurn := humanPrefix + b.request.PlayerInput + "\nAssistant:"

	// Very small budgets skip assembly entirely: terse rules plus the
	// current turn, regardless of persona/knowledge/history.
	if b.budget.MaxTokens <= LowBudgetThreshold {
		return minimalRules + segmentSeparator + currentTurn, nil
	}

	system := b.systemSegment()
	knowledgeSeg := b.knowledgeSegment()
	historyLines := b.historyLines()

	segments := []string{system}
	if knowledgeSeg != "" {
		segments = append(segments, knowledgeSeg)
	}
	if len(historyLines) > 0 {
		segments = append(segments, historyHeader+"\n"+strings.Join(historyLines, "\n"))
	}
	segments = append(segments, currentTurn)

	full := strings.Join(segments, segmentSeparator)
	if EstimateTokens(full) <= b.budget.MaxTokens {
		return full, nil
	}

	return b.degrade(system, knowledgeSeg, historyLines, currentTurn), nil
}

// degrade shrinks an over-budget prompt deterministically: system and
// current turn are kept verbatim, a knowledge segment is kept whole,
// and history lines are dropped oldest-first until the assembled
// prompt fits the budget. The knowledge segment is never trimmed even
// when it alone blows the budget; with no history left to drop, the
// prompt cannot shrink further.
func (b *Builder) degrade(system, knowledgeSeg string, historyLines []string, currentTurn string) string {
	assemble := func(kept []string) string {
		segments := []string{system}
		if knowledgeSeg != "" {
			segments = append(segments, knowledgeSeg)
		}
		if len(kept) > 0 {
			segments = append(segments, historyHeader+"\n"+strings.Join(kept, "\n"))
		}
		segments = append(segments, currentTurn)
		return strings.Join(segments, segmentSeparator)
	}

	// Character count of the prompt when historyLines[cut:] survive.
	baseChars := len(assemble(nil))
	headerChars := len(segmentSeparator) + len(historyHeader) + 1

	// Walk newest to oldest, extending the surviving suffix while the
	// assembled prompt stays within budget.
	cut := len(historyLines)
	historyChars := 0
	for i := len(historyLines) - 1; i >= 0; i-- {
		lineChars := len(historyLines[i])
		if i < len(historyLines)-1 {
			lineChars++ // joining newline
		}
		total := baseChars + headerChars + historyChars + lineChars
		if total/avgCharsPerToken > b.budget.MaxTokens {
			break
		}
		historyChars += lineChars
		cut = i
	}

	return assemble(historyLines[cut:])
}

// systemSegment renders the persona system prompt, substituting the
// default persona text when none is available.
func (b *Builder) systemSegment() string {
	if b.persona != nil {
		if s := strings.TrimSpace(b.persona.SystemPrompt()); s != "" {
			return s
		}
	}
	return DefaultSystemPrompt
}

// knowledgeSegment renders retrieved documents as annotated bullets,
// or empty when disabled or nothing was retrieved.
func (b *Builder) knowledgeSegment() string {
	if !b.includeKnowledge || len(b.knowledge) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(knowledgeHeader)
	for _, r := range b.knowledge {
		docType, _ := r.Metadata["type"].(string)
		if docType == "" {
			docType = "general"
		}
		sb.WriteString("\n- [" + strings.ToUpper(docType) + "] " + r.Document)

		var notes []string
		if importance, _ := r.Metadata["importance"].(string); importance != "" {
			notes = append(notes, "importance: "+importance)
		}
		if source, _ := r.Metadata["source"].(string); source != "" {
			notes = append(notes, "source: "+source)
		}
		if len(notes) > 0 {
			sb.WriteString(" (" + strings.Join(notes, ", ") + ")")
		}
	}
	return sb.String()
}

// historyLines renders history turns as alternating Human/Assistant
// lines, skipping turns with a blank side entirely.
func (b *Builder) historyLines() []string {
	if !b.includeHistory || len(b.history) == 0 {
		return nil
	}

	var lines []string
	for _, turn := range b.history {
		user := strings.TrimSpace(turn.User)
		assistant := strings.TrimSpace(turn.Assistant)
		if user == "" || assistant == "" {
			continue
		}
		lines = append(lines, humanPrefix+user, assistantPrefix+assistant)
	}
	return lines
}
