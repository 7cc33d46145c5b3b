package processor

import "strings"

// Fallback texts. Tests and the game client match on substrings
// ("trouble", "reached my limit"), so keep them stable.
const (
	fallbackGeneric = "I'm having trouble processing your request right now. Please try again in a moment."
	fallbackQuota   = "I've reached my limit for now. Let's talk again in a little while."
	fallbackInvalid = "I couldn't generate a proper response. Could you say that another way?"
)

// minResponseLength is the shortest cleaned response accepted as a
// real answer.
const minResponseLength = 10

// systemTokens are marker strings some models echo back around their
// output. Order matters: closing tags before bare prefixes.
var systemTokens = []string{
	"<assistant>",
	"</assistant>",
	"Assistant:",
	"AI:",
}

// CleanResponse strips system-token markers and normalizes whitespace
// within each line while preserving explicit newlines.
func CleanResponse(raw string) string {
	cleaned := raw
	for _, token := range systemTokens {
		cleaned = strings.ReplaceAll(cleaned, token, "")
	}

	lines := strings.Split(cleaned, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// ParseResponse cleans a raw completion and validates it. Responses
// that come back empty or implausibly short are replaced with a fixed
// fallback; ok reports whether the cleaned text was accepted.
func ParseResponse(raw string) (text string, ok bool) {
	cleaned := CleanResponse(raw)
	if len(cleaned) < minResponseLength {
		return fallbackInvalid, false
	}
	return cleaned, true
}
