package prompt

import (
	"errors"
	"strings"
	"testing"

	"github.com/stationai/npc-engine/internal/knowledge"
	"github.com/stationai/npc-engine/pkg/npc"
)

func testRequest(input string) *npc.Request {
	return &npc.Request{
		RequestID:   "req-1",
		PlayerInput: input,
		GameContext: &npc.GameContext{
			PlayerID:       "player-1",
			PlayerLocation: "main_hall",
		},
	}
}

func testHistory(n int) []npc.Turn {
	turns := make([]npc.Turn, 0, n)
	for i := 0; i < n; i++ {
		turns = append(turns, npc.Turn{
			User:      "question number " + strings.Repeat("x", i+1),
			Assistant: "answer number " + strings.Repeat("y", i+1),
		})
	}
	return turns
}

func TestBuilder_SegmentOrder(t *testing.T) {
	results := []knowledge.Result{
		{ID: "doc_1", Document: "Platform 2 is to the north.", Metadata: map[string]any{"type": "location"}},
	}
	history := []npc.Turn{
		{User: "hello", Assistant: "konnichiwa"},
	}

	built, err := New().
		WithRequest(testRequest("where is platform two?")).
		WithKnowledge(results).
		WithHistory(history).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	systemIdx := strings.Index(built, DefaultSystemPrompt)
	knowledgeIdx := strings.Index(built, knowledgeHeader)
	historyIdx := strings.Index(built, historyHeader)
	currentIdx := strings.Index(built, "Human: where is platform two?\nAssistant:")

	for name, idx := range map[string]int{
		"system": systemIdx, "knowledge": knowledgeIdx, "history": historyIdx, "current": currentIdx,
	} {
		if idx < 0 {
			t.Fatalf("Expected %s segment in prompt:\n%s", name, built)
		}
	}
	if !(systemIdx < knowledgeIdx && knowledgeIdx < historyIdx && historyIdx < currentIdx) {
		t.Errorf("Expected system < knowledge < history < current, got %d %d %d %d",
			systemIdx, knowledgeIdx, historyIdx, currentIdx)
	}
	if !strings.HasSuffix(built, "\nAssistant:") {
		t.Error("Expected prompt to end with the assistant cue")
	}
}

func TestBuilder_KnowledgeBulletFormat(t *testing.T) {
	results := []knowledge.Result{
		{ID: "doc_1", Document: "Buy tickets at the machine.", Metadata: map[string]any{
			"type": "location", "importance": "high", "source": "Station Guide",
		}},
		{ID: "doc_2", Document: "Konnichiwa means hello."},
	}

	built, err := New().WithRequest(testRequest("hi")).WithKnowledge(results).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if !strings.Contains(built, "- [LOCATION] Buy tickets at the machine. (importance: high, source: Station Guide)") {
		t.Errorf("Expected annotated bullet, got:\n%s", built)
	}
	// No metadata: generic type, no suffix
	if !strings.Contains(built, "- [GENERAL] Konnichiwa means hello.\n") &&
		!strings.HasSuffix(built, "- [GENERAL] Konnichiwa means hello.") &&
		!strings.Contains(built, "- [GENERAL] Konnichiwa means hello.\n\n") {
		t.Errorf("Expected bare bullet for metadata-less document, got:\n%s", built)
	}
}

func TestBuilder_OptionsDisableSegments(t *testing.T) {
	built, err := New().
		WithRequest(testRequest("hi")).
		WithKnowledge([]knowledge.Result{{ID: "doc_1", Document: "some fact"}}).
		WithHistory(testHistory(2)).
		WithOptions(false, false).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if strings.Contains(built, knowledgeHeader) {
		t.Error("Expected knowledge segment to be omitted")
	}
	if strings.Contains(built, historyHeader) {
		t.Error("Expected history segment to be omitted")
	}
}

func TestBuilder_SkipsBlankTurns(t *testing.T) {
	history := []npc.Turn{
		{User: "kept question", Assistant: "kept answer"},
		{User: "", Assistant: "orphan answer"},
		{User: "orphan question", Assistant: "   "},
	}

	built, err := New().WithRequest(testRequest("hi")).WithHistory(history).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if !strings.Contains(built, "Human: kept question\nAssistant: kept answer") {
		t.Errorf("Expected complete turn in history, got:\n%s", built)
	}
	if strings.Contains(built, "orphan answer") || strings.Contains(built, "orphan question") {
		t.Errorf("Expected turns with a blank side to be skipped, got:\n%s", built)
	}
}

func TestBuilder_LowBudgetTemplate(t *testing.T) {
	built, err := New().
		WithRequest(testRequest("where is the exit?")).
		WithKnowledge([]knowledge.Result{{ID: "doc_1", Document: "ignored"}}).
		WithHistory(testHistory(3)).
		WithBudget(Budget{MaxTokens: LowBudgetThreshold}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	want := minimalRules + "\n\nHuman: where is the exit?\nAssistant:"
	if built != want {
		t.Errorf("Expected minimal template:\n%q\ngot:\n%q", want, built)
	}
}

func TestBuilder_DegradeStaysWithinBudget(t *testing.T) {
	budget := Budget{MaxTokens: 300}
	built, err := New().
		WithRequest(testRequest("short question")).
		WithHistory(testHistory(40)).
		WithBudget(budget).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if got := EstimateTokens(built); got > budget.MaxTokens {
		t.Errorf("Expected prompt within %d tokens, got %d", budget.MaxTokens, got)
	}
	if !strings.Contains(built, DefaultSystemPrompt) {
		t.Error("Expected system segment to survive degradation verbatim")
	}
	if !strings.Contains(built, "Human: short question\nAssistant:") {
		t.Error("Expected current turn to survive degradation verbatim")
	}
}

func TestBuilder_DegradeDropsOldestHistoryFirst(t *testing.T) {
	history := testHistory(40)
	built, err := New().
		WithRequest(testRequest("short question")).
		WithHistory(history).
		WithBudget(Budget{MaxTokens: 300}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	newest := "Assistant: " + strings.TrimSpace(history[len(history)-1].Assistant)
	oldest := "Human: " + strings.TrimSpace(history[0].User) + "\n"
	if !strings.Contains(built, newest) {
		t.Errorf("Expected newest history line to be kept, got:\n%s", built)
	}
	if strings.Contains(built, oldest) {
		t.Errorf("Expected oldest history line to be dropped, got:\n%s", built)
	}
}

func TestBuilder_DegradeDropsHistoryEntirelyWhenNothingFits(t *testing.T) {
	built, err := New().
		WithRequest(testRequest("short question")).
		WithHistory([]npc.Turn{{
			User:      strings.Repeat("long question ", 200),
			Assistant: strings.Repeat("long answer ", 200),
		}}).
		WithBudget(Budget{MaxTokens: 150}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if strings.Contains(built, historyHeader) {
		t.Errorf("Expected history segment (header included) to be dropped, got:\n%s", built)
	}
}

// Knowledge is intentionally kept whole during degradation: retrieved
// facts are what ground the answer, so they are never truncated even
// when that leaves the prompt over budget.
func TestBuilder_DegradeKeepsKnowledgeWhole(t *testing.T) {
	results := []knowledge.Result{
		{ID: "doc_big", Document: strings.Repeat("an important station fact ", 100)},
	}
	budget := Budget{MaxTokens: 200}

	built, err := New().
		WithRequest(testRequest("short question")).
		WithKnowledge(results).
		WithHistory(testHistory(5)).
		WithBudget(budget).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if !strings.Contains(built, results[0].Document) {
		t.Error("Expected the full knowledge document to survive degradation")
	}
	if strings.Contains(built, historyHeader) {
		t.Errorf("Expected history to be sacrificed before knowledge, got:\n%s", built)
	}
}

func TestBuilder_Validation(t *testing.T) {
	var vErr *ValidationError

	_, err := New().WithRequest(testRequest("   ")).Build()
	if !errors.As(err, &vErr) {
		t.Errorf("Expected ValidationError for blank input, got %v", err)
	}

	_, err = New().Build()
	if !errors.As(err, &vErr) {
		t.Errorf("Expected ValidationError for missing request, got %v", err)
	}

	_, err = New().WithRequest(&npc.Request{PlayerInput: "hi"}).Build()
	if !errors.As(err, &vErr) {
		t.Errorf("Expected ValidationError for missing game context, got %v", err)
	}

	_, err = New().WithRequest(testRequest("hi")).WithBudget(Budget{MaxTokens: 0}).Build()
	if err == nil {
		t.Error("Expected error for non-positive budget")
	}
	if errors.As(err, &vErr) {
		t.Error("Expected budget error to not be a ValidationError")
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 1},
		{"abc", 1},
		{"abcd", 1},
		{"abcdefgh", 2},
		{strings.Repeat("a", 400), 100},
	}
	for _, tc := range cases {
		if got := EstimateTokens(tc.text); got != tc.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}
