package prompt

// DefaultSystemPrompt is used when no NPC persona is resolvable for a
// request, or when the persona renders an empty system prompt.
const DefaultSystemPrompt = `You are a helpful NPC companion in a Japanese train station.
Your role is to assist the player with language help, directions, and cultural information.

RESPONSE CONSTRAINTS:
1. Length: Keep responses under 3 sentences
2. Format: Include both Japanese and English where it helps
3. Style: Simple, friendly, and encouraging`

// minimalRules is the terse instruction block used by the low-budget
// shortcut template.
const minimalRules = `You are a helpful NPC. Reply in 1-2 short, friendly sentences.`

const (
	knowledgeHeader = "Relevant information:"
	historyHeader   = "Previous conversation:"
	humanPrefix     = "Human: "
	assistantPrefix = "Assistant: "
)

// segmentSeparator joins prompt segments.
const segmentSeparator = "\n\n"

// LowBudgetThreshold is the budget at or below which full assembly is
// skipped in favor of the minimal template.
const LowBudgetThreshold = 100
