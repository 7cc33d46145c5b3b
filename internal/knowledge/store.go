package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/stationai/npc-engine/pkg/npc"
)

// Request intents that map to a metadata filter during contextual search.
const (
	IntentVocabularyHelp    = "vocabulary_help"
	IntentDirectionGuidance = "direction_guidance"
)

// DefaultTopK is the number of documents a contextual search returns.
const DefaultTopK = 3

// Store indexes knowledge documents by embedding and answers
// context-aware relevance queries with caching and usage analytics.
// Documents are immutable once indexed and removed only by Clear.
type Store struct {
	embedder Embedder
	index    *vectorIndex
	cache    *searchCache
	logger   *slog.Logger
}

// NewStore opens (or creates) the vector index at dbPath and wires it
// to the given embedder. Reopening an existing index does not re-embed
// already-indexed documents.
func NewStore(dbPath, collection string, cacheSize int, embedder Embedder, logger *slog.Logger) (*Store, error) {
	index, err := openIndex(dbPath, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge index: %w", err)
	}

	s := &Store{
		embedder: embedder,
		index:    index,
		cache:    newSearchCache(cacheSize),
		logger:   logger,
	}

	logger.Info("Initialized knowledge store", "collection", collection, "documents", index.count())
	return s, nil
}

// Count returns the number of indexed documents.
func (s *Store) Count() int {
	return s.index.count()
}

// Add embeds and indexes one document.
func (s *Store) Add(ctx context.Context, text string, metadata map[string]any) error {
	if metadata == nil {
		metadata = make(map[string]any)
	}

	id, _ := metadata["id"].(string)
	if id == "" {
		id = fmt.Sprintf("doc_%d", s.index.count()+1)
	}
	if s.index.has(id) {
		return nil
	}

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed document: %w", err)
	}

	if err := s.index.add(id, text, metadata, vector); err != nil {
		return err
	}
	s.logger.Debug("Added document to knowledge store", "id", id)
	return nil
}

// Search runs a nearest-neighbor query restricted by an optional
// metadata equality filter. Results are ordered by descending
// similarity, ties broken by insertion order.
func (s *Store) Search(ctx context.Context, query string, topK int, filter map[string]string) ([]Result, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return s.index.search(vector, topK, filter), nil
}

// ContextualSearch is the primary retrieval entry point. It builds a
// query from the request's input and situational context, consults the
// LFU cache, and records analytics.
func (s *Store) ContextualSearch(ctx context.Context, req *npc.Request) ([]Result, error) {
	if req == nil {
		return nil, fmt.Errorf("contextual search requires a request")
	}

	signature := cacheSignature(req)
	if results, ok := s.cache.lookup(signature); ok {
		s.logger.Debug("Contextual search cache hit", "signature", signature)
		return results, nil
	}

	start := time.Now()
	results, err := s.Search(ctx, contextualQuery(req), DefaultTopK, filterForIntent(req.Intent))
	if err != nil {
		return nil, err
	}
	s.cache.store(signature, results, time.Since(start))

	return results, nil
}

// Analytics reports store usage since startup (or the last Clear).
func (s *Store) Analytics() Analytics {
	return s.cache.analytics()
}

// Clear removes every document, cache entry and counter.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.index.clear(); err != nil {
		return err
	}
	s.cache.reset()
	s.logger.Info("Cleared knowledge store")
	return nil
}

// Close releases the underlying index database.
func (s *Store) Close() error {
	return s.index.close()
}

// cacheSignature derives the cache key from the request fields that
// influence retrieval. Identical signatures always see the result set
// computed at first miss, until evicted.
func cacheSignature(req *npc.Request) string {
	parts := []string{req.PlayerInput, "", req.Intent}
	if req.GameContext != nil {
		parts[1] = req.GameContext.PlayerLocation
	}
	parts = append(parts, sortedValues(req.AdditionalContext)...)
	return strings.Join(parts, "|")
}

// contextualQuery concatenates the player input, current objective and
// additional context values into one retrieval query.
func contextualQuery(req *npc.Request) string {
	parts := []string{req.PlayerInput}
	if req.GameContext != nil && req.GameContext.CurrentObjective != "" {
		parts = append(parts, req.GameContext.CurrentObjective)
	}
	parts = append(parts, sortedValues(req.AdditionalContext)...)
	return strings.Join(parts, " ")
}

// filterForIntent maps a request intent to a metadata filter.
func filterForIntent(intent string) map[string]string {
	switch intent {
	case IntentVocabularyHelp:
		return map[string]string{"type": "language_learning"}
	case IntentDirectionGuidance:
		return map[string]string{"type": "location"}
	default:
		return nil
	}
}

func sortedValues(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = m[k]
	}
	return values
}

// knowledgeItem is one entry of a bulk-import JSON file.
type knowledgeItem struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Content          string   `json:"content"`
	Type             string   `json:"type"`
	Importance       string   `json:"importance"`
	RelatedNPCs      []string `json:"related_npcs"`
	RelatedLocations []string `json:"related_locations"`
}

// LoadKnowledgeBase bulk-imports documents from a JSON file. Items
// whose id is already indexed are skipped, so re-running an import is
// idempotent. Returns the number of documents added.
func (s *Store) LoadKnowledgeBase(ctx context.Context, path string) (int, error) {
	s.logger.Info("Loading knowledge base", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read knowledge base: %w", err)
	}

	var items []knowledgeItem
	if err := json.Unmarshal(data, &items); err != nil {
		return 0, fmt.Errorf("invalid knowledge base file: %w", err)
	}

	added := 0
	for i, item := range items {
		id := item.ID
		if id == "" {
			id = fmt.Sprintf("doc_%d", i+1)
		}
		if s.index.has(id) {
			continue
		}

		metadata := map[string]any{
			"id":         id,
			"type":       defaultString(item.Type, "general"),
			"importance": defaultString(item.Importance, "medium"),
			"source":     item.Title,
		}
		if len(item.RelatedNPCs) > 0 {
			metadata["related_npcs"] = strings.Join(item.RelatedNPCs, ", ")
		}
		if len(item.RelatedLocations) > 0 {
			metadata["related_locations"] = strings.Join(item.RelatedLocations, ", ")
		}

		if err := s.Add(ctx, item.Content, metadata); err != nil {
			return added, fmt.Errorf("failed to add document %s: %w", id, err)
		}
		added++
	}

	s.logger.Info("Loaded knowledge base", "added", added, "total", s.index.count())
	return added, nil
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
