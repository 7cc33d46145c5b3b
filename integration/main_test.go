//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/stationai/npc-engine/internal/config"
	"github.com/stationai/npc-engine/internal/handlers"
	"github.com/stationai/npc-engine/internal/history"
	"github.com/stationai/npc-engine/internal/knowledge"
	"github.com/stationai/npc-engine/internal/middleware"
	"github.com/stationai/npc-engine/internal/persona"
	"github.com/stationai/npc-engine/internal/processor"
	"github.com/stationai/npc-engine/pkg/npc"
)

const embedderDims = 8

// stubEmbedderServer mimics the Ollama embeddings endpoint with
// deterministic vectors, so the same text always lands in the same
// spot of the index.
func stubEmbedderServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		h := fnv.New32a()
		_, _ = h.Write([]byte(req.Prompt))
		seed := h.Sum32()
		vec := make([]float64, embedderDims)
		for i := range vec {
			seed = seed*1664525 + 1013904223
			vec[i] = float64(seed%1000)/1000.0 - 0.5
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": vec})
	}))
	t.Cleanup(server.Close)
	return server
}

// stubModelServer mimics the Anthropic messages endpoint, echoing a
// canned reply for every prompt.
func stubModelServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/messages" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("x-api-key") == "" {
			http.Error(w, "missing api key", http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":   "msg_test",
			"type": "message",
			"role": "assistant",
			"content": []map[string]string{
				{"type": "text", "text": reply},
			},
			"model":       "test-model",
			"stop_reason": "end_turn",
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func writeProfile(t *testing.T, dir, name string, profile map[string]any) {
	t.Helper()
	data, err := json.Marshal(profile)
	if err != nil {
		t.Fatalf("marshal profile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
}

// apiStack is the full service wired together in-process, the same
// composition cmd/api performs.
type apiStack struct {
	server  *httptest.Server
	store   *knowledge.Store
	history *history.RedisStore
}

func startStack(t *testing.T) *apiStack {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	embedder := stubEmbedderServer(t)
	model := stubModelServer(t, "Welcome to the harbor market, traveler. The tide charts are on the far wall.")
	redis := miniredis.RunT(t)

	profileDir := t.TempDir()
	writeProfile(t, profileDir, "base_villager.json", map[string]any{
		"profile_id": "base_villager",
		"personality_traits": map[string]float64{
			"friendliness": 0.8,
		},
		"knowledge_areas": []string{"local rumors"},
	})
	writeProfile(t, profileDir, "mira.json", map[string]any{
		"profile_id": "mira",
		"name":       "Mira",
		"role":       "harbor merchant",
		"backstory":  "Mira has traded in the harbor market for twenty years.",
		"extends":    []string{"base_villager"},
		"knowledge_areas": []string{
			"tide charts", "trade routes",
		},
	})

	cfg := &config.Config{
		Port:       "0",
		RedisURL:   redis.Addr(),
		ProfileDir: profileDir,
		Hosted: config.TierConfig{
			Enabled: true,
			BaseURL: model.URL,
			Model:   "test-model",
			APIKey:  "test-key",
		},
		Knowledge: config.KnowledgeConfig{
			DBPath:        filepath.Join(t.TempDir(), "knowledge.db"),
			Collection:    "integration",
			EmbedderURL:   embedder.URL,
			EmbedderModel: "test-embed",
			EmbedderDims:  embedderDims,
			CacheSize:     100,
		},
		Prompt: config.PromptConfig{
			MaxPromptTokens:  800,
			IncludeKnowledge: true,
			IncludeHistory:   true,
			HistoryWindow:    10,
		},
	}

	emb := knowledge.NewOllamaEmbedder(cfg.Knowledge.EmbedderURL, cfg.Knowledge.EmbedderModel, cfg.Knowledge.EmbedderDims, logger)
	store, err := knowledge.NewStore(cfg.Knowledge.DBPath, cfg.Knowledge.Collection, cfg.Knowledge.CacheSize, emb, logger)
	if err != nil {
		t.Fatalf("open knowledge store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	docs := []struct {
		text string
		meta map[string]any
	}{
		{
			text: "The harbor market opens at dawn and closes when the evening bell rings.",
			meta: map[string]any{"id": "doc_market", "type": "location", "importance": "high", "source": "Harbor Almanac"},
		},
		{
			text: "Tide charts are posted on the far wall of the merchant hall.",
			meta: map[string]any{"id": "doc_tides", "type": "general", "importance": "medium", "source": "Harbor Almanac"},
		},
	}
	for _, doc := range docs {
		if err := store.Add(ctx, doc.text, doc.meta); err != nil {
			t.Fatalf("add document: %v", err)
		}
	}

	personas, err := persona.NewLoader(cfg.ProfileDir, logger)
	if err != nil {
		t.Fatalf("load personas: %v", err)
	}

	historyStore := history.NewRedisStore(cfg.RedisURL, logger)
	t.Cleanup(func() { _ = historyStore.Close() })

	proc := processor.New(cfg, store, personas, historyStore, logger)

	mux := http.NewServeMux()
	mux.Handle("/health", handlers.NewHealthHandler(historyStore, store, logger))
	mux.Handle("/v1/chat", handlers.NewChatHandler(proc, logger))
	mux.Handle("/v1/npcs", handlers.NewNPCsHandler(personas, logger))
	mux.Handle("/v1/analytics", handlers.NewAnalyticsHandler(store, logger))

	server := httptest.NewServer(middleware.Logger(logger, mux))
	t.Cleanup(server.Close)

	return &apiStack{server: server, store: store, history: historyStore}
}

func postChat(t *testing.T, baseURL string, req *npc.Request) (*npc.Response, int) {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(baseURL+"/v1/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("chat request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read chat response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode
	}
	var out npc.Response
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("parse chat response: %v (body %s)", err, raw)
	}
	return &out, resp.StatusCode
}

func TestChatRoundTrip(t *testing.T) {
	stack := startStack(t)

	req := &npc.Request{
		PlayerInput: "Where can I find the tide charts?",
		GameContext: &npc.GameContext{
			PlayerID:       "integration-player",
			PlayerLocation: "harbor_market",
			NPCID:          "mira",
		},
		ConversationID: "conv-1",
	}

	resp, status := postChat(t, stack.server.URL, req)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if resp.ProcessingTier != npc.TierHosted {
		t.Errorf("expected hosted tier, got %q", resp.ProcessingTier)
	}
	if resp.IsFallback {
		t.Errorf("expected a real response, got fallback: %v", resp.DebugInfo)
	}
	if resp.ResponseText == "" {
		t.Error("expected non-empty response text")
	}
	if resp.RequestID == "" {
		t.Error("expected a generated request id")
	}
	if count, ok := resp.DebugInfo["knowledge_count"].(float64); !ok || count == 0 {
		t.Errorf("expected retrieved knowledge in debug info, got %v", resp.DebugInfo["knowledge_count"])
	}

	// The exchange should now be visible as history for the player.
	turns, err := stack.history.GetRecent(context.Background(), "integration-player", 10)
	if err != nil {
		t.Fatalf("get recent history: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected 1 stored turn, got %d", len(turns))
	}
	if turns[0].User != req.PlayerInput {
		t.Errorf("stored turn user = %q, want %q", turns[0].User, req.PlayerInput)
	}
	if turns[0].NPCID != "mira" {
		t.Errorf("stored turn npc_id = %q, want mira", turns[0].NPCID)
	}

	// A follow-up request sees the first exchange in its prompt context.
	req.PlayerInput = "Thanks! And when does the market close?"
	resp, status = postChat(t, stack.server.URL, req)
	if status != http.StatusOK {
		t.Fatalf("expected 200 on follow-up, got %d", status)
	}
	if count, ok := resp.DebugInfo["history_count"].(float64); !ok || count != 1 {
		t.Errorf("expected history_count 1 on follow-up, got %v", resp.DebugInfo["history_count"])
	}
}

func TestChatRejectsInvalidRequests(t *testing.T) {
	stack := startStack(t)

	cases := []struct {
		name string
		req  *npc.Request
	}{
		{"blank input", &npc.Request{PlayerInput: "   ", GameContext: &npc.GameContext{PlayerID: "p1"}}},
		{"missing context", &npc.Request{PlayerInput: "hello"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, status := postChat(t, stack.server.URL, tc.req)
			if status != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", status)
			}
		})
	}
}

func TestNPCListing(t *testing.T) {
	stack := startStack(t)

	resp, err := http.Get(stack.server.URL + "/v1/npcs")
	if err != nil {
		t.Fatalf("npcs request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var npcs []handlers.NPCSummary
	if err := json.NewDecoder(resp.Body).Decode(&npcs); err != nil {
		t.Fatalf("parse npc list: %v", err)
	}
	if len(npcs) != 1 {
		t.Fatalf("expected 1 NPC, got %d", len(npcs))
	}
	if npcs[0].ID != "mira" || npcs[0].Name != "Mira" || npcs[0].Role != "harbor merchant" {
		t.Errorf("unexpected NPC summary: %+v", npcs[0])
	}
}

func TestHealthReportsComponents(t *testing.T) {
	stack := startStack(t)

	resp, err := http.Get(stack.server.URL + "/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var health handlers.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("parse health response: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("expected healthy status, got %q", health.Status)
	}
	if health.Components["history"] != "healthy" {
		t.Errorf("expected healthy history component, got %v", health.Components["history"])
	}
	if docs, ok := health.Components["knowledge_documents"].(float64); !ok || docs != 2 {
		t.Errorf("expected 2 knowledge documents, got %v", health.Components["knowledge_documents"])
	}
}

func TestAnalyticsTracksSearches(t *testing.T) {
	stack := startStack(t)

	req := &npc.Request{
		PlayerInput: "Tell me about the market.",
		GameContext: &npc.GameContext{
			PlayerID:       "analytics-player",
			PlayerLocation: "harbor_market",
			NPCID:          "mira",
		},
	}
	// Same question twice: one miss, one cache hit.
	for i := 0; i < 2; i++ {
		if _, status := postChat(t, stack.server.URL, req); status != http.StatusOK {
			t.Fatalf("chat %d: expected 200, got %d", i+1, status)
		}
	}

	resp, err := http.Get(stack.server.URL + "/v1/analytics")
	if err != nil {
		t.Fatalf("analytics request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var analytics knowledge.Analytics
	if err := json.NewDecoder(resp.Body).Decode(&analytics); err != nil {
		t.Fatalf("parse analytics: %v", err)
	}
	if analytics.TotalQueries < 2 {
		t.Errorf("expected at least 2 queries, got %d", analytics.TotalQueries)
	}
	if analytics.CacheHitRate <= 0 {
		t.Errorf("expected a positive cache hit rate, got %v", analytics.CacheHitRate)
	}
}
