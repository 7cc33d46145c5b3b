package prompt

import "fmt"

// avgCharsPerToken is the approximation used in place of a real
// tokenizer. Tests assert byte-for-byte prompt construction against
// this heuristic, so it must not change.
const avgCharsPerToken = 4

// EstimateTokens estimates the token count of a text. Deterministic
// and stable: identical input always yields an identical estimate.
func EstimateTokens(text string) int {
	n := len(text) / avgCharsPerToken
	if n < 1 {
		return 1
	}
	return n
}

// Budget is a hard ceiling on prompt size in estimated tokens.
type Budget struct {
	MaxTokens int
}

// NewBudget validates and constructs a Budget.
func NewBudget(maxTokens int) (Budget, error) {
	if maxTokens <= 0 {
		return Budget{}, fmt.Errorf("max tokens must be positive, got %d", maxTokens)
	}
	return Budget{MaxTokens: maxTokens}, nil
}
