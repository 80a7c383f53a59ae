package driven

import (
	"context"

	"github.com/oratorio-dev/rudybot/internal/core/domain"
)

// IndexEntry is a (chunk, embedding, metadata) triple stored in the
// vector index, keyed by chunk ID for idempotent upsert.
type IndexEntry struct {
	// Chunk carries the text and provenance stored as payload.
	Chunk domain.Chunk

	// Embedding is the vector. Must match the index dimensionality.
	Embedding []float32
}

// VectorHit is one k-nearest-neighbour match.
type VectorHit struct {
	// Chunk is the stored chunk reconstructed from the payload.
	Chunk domain.Chunk

	// Similarity is the cosine similarity score.
	Similarity float64
}

// VectorIndex persists index entries and answers nearest-neighbour
// queries. Unreachable backends surface domain.ErrIndexUnavailable.
type VectorIndex interface {
	// Upsert inserts or replaces entries keyed by chunk ID.
	Upsert(ctx context.Context, entries []IndexEntry) error

	// Delete removes entries by chunk ID.
	Delete(ctx context.Context, chunkIDs []string) error

	// Search returns the k nearest neighbours by similarity, in the
	// backend's ranked order.
	Search(ctx context.Context, vector []float32, k int) ([]VectorHit, error)

	// ModelVersion returns the embedding model the index was built
	// with, or "" for an empty index.
	ModelVersion(ctx context.Context) (string, error)

	// SetModelVersion stamps the index with the embedding model.
	SetModelVersion(ctx context.Context, version string) error

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}
