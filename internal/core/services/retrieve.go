package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/oratorio-dev/rudybot/internal/core/domain"
	"github.com/oratorio-dev/rudybot/internal/core/ports/driven"
	"github.com/oratorio-dev/rudybot/internal/logger"
)

// rerankPrompt asks the model for a bare relevance score per candidate.
const rerankPrompt = `Rate how relevant the passage is to the question on a scale of 0 to 10.
Reply with ONLY the number.

Question: %s

Passage:
%s

Score:`

// Retriever embeds a query and fetches the top candidates from the
// vector index, optionally reranking them with a secondary relevance
// signal from the LLM.
type Retriever struct {
	embedder driven.EmbeddingService
	index    driven.VectorIndex
	llm      driven.LLMService
	topN     int
	k        int
	rerank   bool
}

// RetrieverOption configures the retriever.
type RetrieverOption func(*Retriever)

// WithTopN sets the candidate count fetched from the index.
func WithTopN(n int) RetrieverOption {
	return func(r *Retriever) {
		if n > 0 {
			r.topN = n
		}
	}
}

// WithK sets the final result count.
func WithK(k int) RetrieverOption {
	return func(r *Retriever) {
		if k > 0 {
			r.k = k
		}
	}
}

// WithRerank enables the LLM rerank pass. Reranking requires an LLM
// service; without one the similarity ordering stands.
func WithRerank(enabled bool) RetrieverOption {
	return func(r *Retriever) {
		r.rerank = enabled
	}
}

// NewRetriever creates a retriever. The llm parameter may be nil when
// reranking is disabled.
func NewRetriever(
	embedder driven.EmbeddingService,
	index driven.VectorIndex,
	llm driven.LLMService,
	opts ...RetrieverOption,
) *Retriever {
	r := &Retriever{
		embedder: embedder,
		index:    index,
		llm:      llm,
		topN:     20,
		k:        5,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.topN < r.k {
		r.topN = r.k
	}
	return r
}

// Retrieve returns the top-k chunks for the query in ranked order:
// descending similarity with ties broken by index insertion order,
// then the rerank pass reordering the candidates it managed to score
// among themselves. The embedding
// model is checked against the index stamp first: mismatched embedding
// spaces silently degrade relevance and must be prevented, not assumed
// away by convention.
func (r *Retriever) Retrieve(ctx context.Context, query string) (domain.RetrievalResult, error) {
	logger.Section("Retrieval")
	logger.Debug("Query: %q", query)

	stored, err := r.index.ModelVersion(ctx)
	if err != nil {
		return domain.RetrievalResult{}, fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	if stored != "" && stored != r.embedder.ModelName() {
		return domain.RetrievalResult{}, fmt.Errorf("%w: index built with %q, embedder is %q",
			domain.ErrModelVersionMismatch, stored, r.embedder.ModelName())
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return domain.RetrievalResult{}, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
	}
	logger.Debug("Query embedding: %d dimensions", len(vector))

	hits, err := r.index.Search(ctx, vector, r.topN)
	if err != nil {
		return domain.RetrievalResult{}, fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	logger.Debug("Index returned %d candidates", len(hits))

	candidates := make([]domain.ScoredChunk, len(hits))
	for i, hit := range hits {
		candidates[i] = domain.ScoredChunk{
			Chunk:      hit.Chunk,
			Similarity: hit.Similarity,
			Rank:       i,
		}
	}

	// Stable sort: equal similarities keep insertion order, so
	// retrieval is deterministic for identical inputs.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].Rank < candidates[j].Rank
	})

	if r.rerank && r.llm != nil {
		r.rerankCandidates(ctx, query, candidates)
		reorderByRerank(candidates)
	}

	if len(candidates) > r.k {
		candidates = candidates[:r.k]
	}
	logger.Info("Retrieved %d chunks", len(candidates))

	return domain.RetrievalResult{Query: query, Chunks: candidates}, nil
}

// rerankCandidates scores each candidate with the LLM. A failed score
// leaves that candidate on its similarity ordering; rerank is best
// effort and never fails retrieval.
func (r *Retriever) rerankCandidates(ctx context.Context, query string, candidates []domain.ScoredChunk) {
	logger.Debug("Reranking %d candidates", len(candidates))
	for i := range candidates {
		prompt := fmt.Sprintf(rerankPrompt, query, candidates[i].Chunk.Text)
		result, err := r.llm.Complete(ctx, prompt, driven.CompleteOptions{
			MaxTokens:   4,
			Temperature: 0,
		})
		if err != nil {
			logger.Warn("Rerank scoring failed for %s: %v", candidates[i].Chunk.ID, err)
			continue
		}
		score, err := strconv.ParseFloat(strings.TrimSpace(result), 64)
		if err != nil || score < 0 || score > 10 {
			logger.Warn("Rerank returned unparseable score %q for %s", result, candidates[i].Chunk.ID)
			continue
		}
		s := score
		candidates[i].RerankScore = &s
	}
}

// reorderByRerank sorts the scored candidates among the positions they
// already hold; a candidate without a score stays pinned at its
// similarity rank. Rerank scores (0-10) and cosine similarities are
// different scales and are never compared against each other.
func reorderByRerank(candidates []domain.ScoredChunk) {
	var slots []int
	var scored []domain.ScoredChunk
	for i, c := range candidates {
		if c.RerankScore != nil {
			slots = append(slots, i)
			scored = append(scored, c)
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if *scored[i].RerankScore != *scored[j].RerankScore {
			return *scored[i].RerankScore > *scored[j].RerankScore
		}
		return scored[i].Rank < scored[j].Rank
	})
	for i, slot := range slots {
		candidates[slot] = scored[i]
	}
}
