package domain

// ScoredChunk is one retrieval candidate with its similarity score and,
// when reranking ran, a secondary relevance score.
type ScoredChunk struct {
	// Chunk is the retrieved chunk.
	Chunk Chunk

	// Similarity is the cosine similarity returned by the vector index.
	Similarity float64

	// RerankScore is the secondary relevance score (0-10).
	// Nil when reranking did not run.
	RerankScore *float64

	// Rank is the insertion-order position in the index response,
	// used as the stable tie-break.
	Rank int
}

// RetrievalResult is the ordered candidate set for one query.
// It is consumed immediately by the context assembler and never persisted.
type RetrievalResult struct {
	// Query is the (rewritten) query the candidates were retrieved for.
	Query string

	// Chunks is in ranked order: descending similarity with ties broken
	// by Rank, then scored candidates reordered by the rerank pass.
	Chunks []ScoredChunk
}

// ContextEntry is one chunk admitted into the assembled context,
// tagged with its citation marker.
type ContextEntry struct {
	// Chunk is the included chunk.
	Chunk Chunk

	// Marker is the 1-based citation marker, rendered as [n] in the prompt.
	Marker int
}

// ContextBlock is the token-budgeted context passed to the generator.
type ContextBlock struct {
	// Entries keeps the retriever's ranked relevance order.
	Entries []ContextEntry

	// TokenCount is the estimated total token count of all entries.
	TokenCount int
}

// Empty reports whether no chunks survived assembly.
func (b ContextBlock) Empty() bool {
	return len(b.Entries) == 0
}
