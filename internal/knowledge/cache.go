package knowledge

import (
	"sort"
	"sync"
	"time"
)

// DocCount pairs a document id with its retrieval count.
type DocCount struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

// Analytics is a point-in-time report of store usage.
type Analytics struct {
	TotalQueries      int                `json:"total_queries"`
	CacheHitRate      float64            `json:"cache_hit_rate"`
	AvgLatencyMs      map[string]float64 `json:"avg_latency_ms"`
	MostRetrievedDocs []DocCount         `json:"most_retrieved_docs"`
}

// searchCache caches contextual search results keyed by request
// signature, with least-frequently-used eviction. Counters for a
// signature are removed together with its entry.
//
// All methods take the internal lock; callers must never hold it
// across a network call.
type cacheEntry struct {
	results []Result
	seq     int
}

type searchCache struct {
	mu       sync.Mutex
	capacity int
	nextSeq  int

	entries   map[string]*cacheEntry
	hits      map[string]int
	misses    map[string]int
	latencies map[string][]time.Duration
	docCounts map[string]int
}

func newSearchCache(capacity int) *searchCache {
	return &searchCache{
		capacity:  capacity,
		entries:   make(map[string]*cacheEntry),
		hits:      make(map[string]int),
		misses:    make(map[string]int),
		latencies: make(map[string][]time.Duration),
		docCounts: make(map[string]int),
	}
}

// lookup returns the cached results for a signature, recording a hit
// (with zero latency) when present.
func (c *searchCache) lookup(signature string) ([]Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[signature]
	if !ok {
		return nil, false
	}
	c.hits[signature]++
	return entry.results, true
}

// store records a miss with its measured latency, caches the results,
// bumps per-document retrieval counters, and prunes the cache if it
// grew past capacity.
func (c *searchCache) store(signature string, results []Result, latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[signature] = &cacheEntry{results: results, seq: c.nextSeq}
	c.nextSeq++
	c.misses[signature]++
	c.latencies[signature] = append(c.latencies[signature], latency)

	for _, r := range results {
		c.docCounts[r.ID]++
	}

	c.prune()
}

// prune evicts entries in ascending total query count until the cache
// is back under capacity, oldest entry first among equally-queried
// signatures. The evicted entry's counters go with it.
func (c *searchCache) prune() {
	for c.capacity > 0 && len(c.entries) > c.capacity {
		var victim string
		victimCount := -1
		victimSeq := 0
		for sig, entry := range c.entries {
			count := c.hits[sig] + c.misses[sig]
			if victimCount == -1 || count < victimCount ||
				(count == victimCount && entry.seq < victimSeq) {
				victim = sig
				victimCount = count
				victimSeq = entry.seq
			}
		}
		delete(c.entries, victim)
		delete(c.hits, victim)
		delete(c.misses, victim)
		delete(c.latencies, victim)
	}
}

// analytics summarizes cache usage: total queries, global hit rate,
// average latency per key, and the ten most-retrieved documents.
func (c *searchCache) analytics() Analytics {
	c.mu.Lock()
	defer c.mu.Unlock()

	totalHits := 0
	for _, n := range c.hits {
		totalHits += n
	}
	totalQueries := totalHits
	for _, n := range c.misses {
		totalQueries += n
	}

	report := Analytics{
		TotalQueries: totalQueries,
		AvgLatencyMs: make(map[string]float64, len(c.latencies)),
	}
	if totalQueries > 0 {
		report.CacheHitRate = float64(totalHits) / float64(totalQueries)
	}

	for sig, samples := range c.latencies {
		var sum time.Duration
		for _, d := range samples {
			sum += d
		}
		report.AvgLatencyMs[sig] = float64(sum.Microseconds()) / float64(len(samples)) / 1000.0
	}

	docs := make([]DocCount, 0, len(c.docCounts))
	for id, count := range c.docCounts {
		docs = append(docs, DocCount{ID: id, Count: count})
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Count != docs[j].Count {
			return docs[i].Count > docs[j].Count
		}
		return docs[i].ID < docs[j].ID
	})
	if len(docs) > 10 {
		docs = docs[:10]
	}
	report.MostRetrievedDocs = docs

	return report
}

// reset clears every entry and counter.
func (c *searchCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.hits = make(map[string]int)
	c.misses = make(map[string]int)
	c.latencies = make(map[string][]time.Duration)
	c.docCounts = make(map[string]int)
}

// queryCount reports the total queries recorded for a signature.
func (c *searchCache) queryCount(signature string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits[signature] + c.misses[signature]
}

// contains reports whether a signature is currently cached.
func (c *searchCache) contains(signature string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[signature]
	return ok
}
