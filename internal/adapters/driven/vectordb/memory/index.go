// Package memory provides an in-memory vector index with exact cosine
// search, used in development and tests. Ranking is deterministic:
// equal similarities keep insertion order.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/oratorio-dev/rudybot/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// entry is one stored (chunk, embedding) pair with its insertion seq.
type entry struct {
	driven.IndexEntry
	seq int
}

// Index is an in-memory implementation of driven.VectorIndex.
type Index struct {
	mu           sync.RWMutex
	entries      map[string]entry
	modelVersion string
	nextSeq      int
}

// NewIndex creates an empty in-memory index.
func NewIndex() *Index {
	return &Index{entries: make(map[string]entry)}
}

// Upsert inserts or replaces entries keyed by chunk ID. Replacing an
// entry keeps its original insertion sequence.
func (x *Index) Upsert(_ context.Context, entries []driven.IndexEntry) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, e := range entries {
		prev, ok := x.entries[e.Chunk.ID]
		seq := x.nextSeq
		if ok {
			seq = prev.seq
		} else {
			x.nextSeq++
		}
		x.entries[e.Chunk.ID] = entry{IndexEntry: e, seq: seq}
	}
	return nil
}

// Delete removes entries by chunk ID.
func (x *Index) Delete(_ context.Context, chunkIDs []string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, id := range chunkIDs {
		delete(x.entries, id)
	}
	return nil
}

// Search returns the k nearest entries by cosine similarity.
func (x *Index) Search(_ context.Context, vector []float32, k int) ([]driven.VectorHit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	type scored struct {
		hit driven.VectorHit
		seq int
	}
	results := make([]scored, 0, len(x.entries))
	for _, e := range x.entries {
		results = append(results, scored{
			hit: driven.VectorHit{
				Chunk:      e.Chunk,
				Similarity: cosine(vector, e.Embedding),
			},
			seq: e.seq,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].hit.Similarity != results[j].hit.Similarity {
			return results[i].hit.Similarity > results[j].hit.Similarity
		}
		return results[i].seq < results[j].seq
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	hits := make([]driven.VectorHit, len(results))
	for i, r := range results {
		hits[i] = r.hit
	}
	return hits, nil
}

// ModelVersion returns the stamped embedding model version.
func (x *Index) ModelVersion(_ context.Context) (string, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.modelVersion, nil
}

// SetModelVersion stamps the index with the embedding model.
func (x *Index) SetModelVersion(_ context.Context, version string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.modelVersion = version
	return nil
}

// Count returns the number of stored entries.
func (x *Index) Count(_ context.Context) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries), nil
}

// Close releases resources.
func (x *Index) Close() error {
	return nil
}

// cosine computes cosine similarity between two vectors. Mismatched
// lengths or zero vectors score 0.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
