package knowledge

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	_ "modernc.org/sqlite"
)

// Result is a single similarity search hit.
type Result struct {
	ID       string         `json:"id"`
	Document string         `json:"document"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score"`
}

type indexEntry struct {
	id       string
	text     string
	metadata map[string]any
	vector   []float32 // normalized
	position int
}

// vectorIndex persists documents and their embeddings in SQLite and
// answers brute-force cosine similarity queries from memory. At the
// document counts this system handles (hundreds, not millions) exact
// brute force is faster than maintaining an ANN structure.
type vectorIndex struct {
	db         *sql.DB
	collection string

	mu      sync.RWMutex
	entries []*indexEntry
	byID    map[string]*indexEntry
}

func openIndex(path, collection string) (*vectorIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}

	idx := &vectorIndex{
		db:         db,
		collection: collection,
		byID:       make(map[string]*indexEntry),
	}

	if err := idx.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("index migrate: %w", err)
	}
	if err := idx.loadAll(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("index load: %w", err)
	}

	return idx, nil
}

func (idx *vectorIndex) migrate() error {
	_, err := idx.db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			text       TEXT NOT NULL,
			metadata   TEXT NOT NULL,
			embedding  BLOB NOT NULL,
			position   INTEGER NOT NULL,
			PRIMARY KEY (collection, id)
		)
	`)
	return err
}

// loadAll reads every document of the collection into memory, in
// insertion order. Reopening an existing index never re-embeds.
func (idx *vectorIndex) loadAll() error {
	rows, err := idx.db.Query(
		"SELECT id, text, metadata, embedding, position FROM documents WHERE collection = ? ORDER BY position",
		idx.collection)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			id, text, metaJSON string
			blob               []byte
			position           int
		)
		if err := rows.Scan(&id, &text, &metaJSON, &blob, &position); err != nil {
			return err
		}

		metadata := make(map[string]any)
		if err := json.Unmarshal([]byte(metaJSON), &metadata); err != nil {
			return fmt.Errorf("document %s has invalid metadata: %w", id, err)
		}

		entry := &indexEntry{
			id:       id,
			text:     text,
			metadata: metadata,
			vector:   decodeVector(blob),
			position: position,
		}
		idx.entries = append(idx.entries, entry)
		idx.byID[id] = entry
	}
	return rows.Err()
}

func (idx *vectorIndex) count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

func (idx *vectorIndex) has(id string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.byID[id]
	return ok
}

// add persists one document and its embedding. Adding an id that
// already exists is a no-op (the store is append-only).
func (idx *vectorIndex) add(id, text string, metadata map[string]any, vector []float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.byID[id]; ok {
		return nil
	}

	normalized := normalize(vector)
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	position := len(idx.entries)
	_, err = idx.db.Exec(
		"INSERT INTO documents (collection, id, text, metadata, embedding, position) VALUES (?, ?, ?, ?, ?, ?)",
		idx.collection, id, text, string(metaJSON), encodeVector(normalized), position)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	entry := &indexEntry{
		id:       id,
		text:     text,
		metadata: metadata,
		vector:   normalized,
		position: position,
	}
	idx.entries = append(idx.entries, entry)
	idx.byID[id] = entry
	return nil
}

// search returns at most topK results ordered by descending cosine
// similarity, ties broken by insertion order. An optional filter
// restricts results to documents whose metadata fields equal the
// given values.
func (idx *vectorIndex) search(queryVector []float32, topK int, filter map[string]string) []Result {
	query := normalize(queryVector)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	type scored struct {
		entry *indexEntry
		score float64
	}

	candidates := make([]scored, 0, len(idx.entries))
	for _, entry := range idx.entries {
		if !matchesFilter(entry.metadata, filter) {
			continue
		}
		candidates = append(candidates, scored{entry: entry, score: cosine(query, entry.vector)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].entry.position < candidates[j].entry.position
	})

	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}

	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = Result{
			ID:       c.entry.id,
			Document: c.entry.text,
			Metadata: c.entry.metadata,
			Score:    c.score,
		}
	}
	return results
}

// clear removes every document of the collection, on disk and in memory.
func (idx *vectorIndex) clear() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, err := idx.db.Exec("DELETE FROM documents WHERE collection = ?", idx.collection); err != nil {
		return fmt.Errorf("failed to clear documents: %w", err)
	}
	idx.entries = nil
	idx.byID = make(map[string]*indexEntry)
	return nil
}

func (idx *vectorIndex) close() error {
	return idx.db.Close()
}

func matchesFilter(metadata map[string]any, filter map[string]string) bool {
	for field, want := range filter {
		got, ok := metadata[field]
		if !ok {
			return false
		}
		if s, ok := got.(string); !ok || s != want {
			return false
		}
	}
	return true
}

// cosine computes the dot product of two normalized vectors, which is
// their cosine similarity (score = 1 - cosine distance).
func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
