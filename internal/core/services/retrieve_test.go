package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oratorio-dev/rudybot/internal/core/domain"
	"github.com/oratorio-dev/rudybot/internal/core/ports/driven"
)

func hit(id string, similarity float64) driven.VectorHit {
	return driven.VectorHit{
		Chunk:      domain.Chunk{ID: id, DocumentID: "doc", Text: "text " + id},
		Similarity: similarity,
	}
}

func TestRetriever_Retrieve_OrdersBySimilarity(t *testing.T) {
	index := &mockIndex{
		modelVersion: "test-embed",
		searchHits:   []driven.VectorHit{hit("a", 0.5), hit("b", 0.9), hit("c", 0.7)},
	}
	r := NewRetriever(newMockEmbedder(), index, nil, WithK(3), WithTopN(10))

	result, err := r.Retrieve(context.Background(), "question")
	require.NoError(t, err)
	require.Len(t, result.Chunks, 3)
	assert.Equal(t, "b", result.Chunks[0].Chunk.ID)
	assert.Equal(t, "c", result.Chunks[1].Chunk.ID)
	assert.Equal(t, "a", result.Chunks[2].Chunk.ID)
}

func TestRetriever_Retrieve_TiesKeepInsertionOrder(t *testing.T) {
	index := &mockIndex{
		modelVersion: "test-embed",
		searchHits:   []driven.VectorHit{hit("first", 0.8), hit("second", 0.8), hit("third", 0.8)},
	}
	r := NewRetriever(newMockEmbedder(), index, nil, WithK(3))

	result, err := r.Retrieve(context.Background(), "question")
	require.NoError(t, err)
	require.Len(t, result.Chunks, 3)
	assert.Equal(t, "first", result.Chunks[0].Chunk.ID)
	assert.Equal(t, "second", result.Chunks[1].Chunk.ID)
	assert.Equal(t, "third", result.Chunks[2].Chunk.ID)
}

func TestRetriever_Retrieve_CapsAtK(t *testing.T) {
	var hits []driven.VectorHit
	for i := 0; i < 20; i++ {
		hits = append(hits, hit(fmt.Sprintf("c%d", i), 1.0-float64(i)/100))
	}
	index := &mockIndex{modelVersion: "test-embed", searchHits: hits}
	r := NewRetriever(newMockEmbedder(), index, nil, WithK(5), WithTopN(20))

	result, err := r.Retrieve(context.Background(), "question")
	require.NoError(t, err)
	assert.Len(t, result.Chunks, 5)
}

func TestRetriever_Retrieve_FewerCandidatesThanK(t *testing.T) {
	index := &mockIndex{
		modelVersion: "test-embed",
		searchHits:   []driven.VectorHit{hit("only", 0.4)},
	}
	r := NewRetriever(newMockEmbedder(), index, nil, WithK(5))

	result, err := r.Retrieve(context.Background(), "question")
	require.NoError(t, err)
	assert.Len(t, result.Chunks, 1)
}

func TestRetriever_Retrieve_EmptyIndex(t *testing.T) {
	index := &mockIndex{modelVersion: "test-embed"}
	r := NewRetriever(newMockEmbedder(), index, nil)

	result, err := r.Retrieve(context.Background(), "question")
	require.NoError(t, err)
	assert.Empty(t, result.Chunks)
}

func TestRetriever_Retrieve_ModelVersionMismatch(t *testing.T) {
	index := &mockIndex{modelVersion: "other-model"}
	r := NewRetriever(newMockEmbedder(), index, nil)

	_, err := r.Retrieve(context.Background(), "question")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrModelVersionMismatch)
}

func TestRetriever_Retrieve_FreshIndexHasNoVersion(t *testing.T) {
	index := &mockIndex{modelVersion: ""}
	r := NewRetriever(newMockEmbedder(), index, nil)

	_, err := r.Retrieve(context.Background(), "question")
	require.NoError(t, err)
}

func TestRetriever_Retrieve_IndexUnavailable(t *testing.T) {
	index := &mockIndex{modelVersionErr: errors.New("connection refused")}
	r := NewRetriever(newMockEmbedder(), index, nil)

	_, err := r.Retrieve(context.Background(), "question")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
}

func TestRetriever_Retrieve_SearchFailureIsIndexUnavailable(t *testing.T) {
	index := &mockIndex{modelVersion: "test-embed", searchErr: errors.New("boom")}
	r := NewRetriever(newMockEmbedder(), index, nil)

	_, err := r.Retrieve(context.Background(), "question")
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
}

func TestRetriever_Retrieve_EmbeddingFailure(t *testing.T) {
	embedder := newMockEmbedder()
	embedder.embedFunc = func(string) ([]float32, error) {
		return nil, errors.New("embedding down")
	}
	index := &mockIndex{modelVersion: "test-embed"}
	r := NewRetriever(embedder, index, nil)

	_, err := r.Retrieve(context.Background(), "question")
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestRetriever_Retrieve_RerankReorders(t *testing.T) {
	index := &mockIndex{
		modelVersion: "test-embed",
		searchHits:   []driven.VectorHit{hit("a", 0.9), hit("b", 0.5)},
	}
	// The LLM scores "b" higher than "a".
	llm := &mockLLM{completeFunc: func(prompt string, _ driven.CompleteOptions) (string, error) {
		if strings.Contains(prompt, "text b") {
			return "9", nil
		}
		return "2", nil
	}}
	r := NewRetriever(newMockEmbedder(), index, llm, WithRerank(true), WithK(2))

	result, err := r.Retrieve(context.Background(), "question")
	require.NoError(t, err)
	require.Len(t, result.Chunks, 2)
	assert.Equal(t, "b", result.Chunks[0].Chunk.ID)
	assert.Equal(t, "a", result.Chunks[1].Chunk.ID)
}

func TestRetriever_Retrieve_RerankFailureKeepsSimilarityOrder(t *testing.T) {
	index := &mockIndex{
		modelVersion: "test-embed",
		searchHits:   []driven.VectorHit{hit("a", 0.9), hit("b", 0.5)},
	}
	llm := &mockLLM{completeFunc: func(string, driven.CompleteOptions) (string, error) {
		return "", errors.New("rate limited")
	}}
	r := NewRetriever(newMockEmbedder(), index, llm, WithRerank(true), WithK(2))

	result, err := r.Retrieve(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, "a", result.Chunks[0].Chunk.ID)
}

func TestRetriever_Retrieve_PartialRerankPinsUnscoredCandidates(t *testing.T) {
	index := &mockIndex{
		modelVersion: "test-embed",
		searchHits:   []driven.VectorHit{hit("a", 0.9), hit("b", 0.7), hit("c", 0.5)},
	}
	// "b" gets no usable score; "a" and "c" swap by rerank score. An
	// unscored candidate must hold its similarity position rather than
	// have its cosine similarity compared against 0-10 rerank scores.
	llm := &mockLLM{completeFunc: func(prompt string, _ driven.CompleteOptions) (string, error) {
		switch {
		case strings.Contains(prompt, "text a"):
			return "2", nil
		case strings.Contains(prompt, "text c"):
			return "9", nil
		}
		return "not a number", nil
	}}
	r := NewRetriever(newMockEmbedder(), index, llm, WithRerank(true), WithK(3))

	result, err := r.Retrieve(context.Background(), "question")
	require.NoError(t, err)
	require.Len(t, result.Chunks, 3)
	assert.Equal(t, "c", result.Chunks[0].Chunk.ID)
	assert.Equal(t, "b", result.Chunks[1].Chunk.ID)
	assert.Equal(t, "a", result.Chunks[2].Chunk.ID)
	assert.Nil(t, result.Chunks[1].RerankScore)
}

func TestRetriever_Retrieve_RerankIgnoresUnparseableScores(t *testing.T) {
	index := &mockIndex{
		modelVersion: "test-embed",
		searchHits:   []driven.VectorHit{hit("a", 0.9), hit("b", 0.5)},
	}
	llm := &mockLLM{completeFunc: func(string, driven.CompleteOptions) (string, error) {
		return "definitely relevant", nil
	}}
	r := NewRetriever(newMockEmbedder(), index, llm, WithRerank(true), WithK(2))

	result, err := r.Retrieve(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, "a", result.Chunks[0].Chunk.ID)
	assert.Nil(t, result.Chunks[0].RerankScore)
}
