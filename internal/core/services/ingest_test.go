package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oratorio-dev/rudybot/internal/chunker"
	"github.com/oratorio-dev/rudybot/internal/core/domain"
)

func newIngestFixture(blocks map[string][]domain.TextBlock) (*IngestService, *mockIndex, *mockDocStore, *mockEmbedder) {
	parser := &mockParser{blocks: blocks, errs: map[string]error{}}
	embedder := newMockEmbedder()
	index := &mockIndex{}
	docStore := newMockDocStore()
	svc := NewIngestService(parser, embedder, index, docStore, chunker.New())
	return svc, index, docStore, embedder
}

func TestIngestService_Ingest_SingleDocument(t *testing.T) {
	svc, index, docStore, _ := newIngestFixture(map[string][]domain.TextBlock{
		"a.txt": {{Text: "The oratory opens at nine. It closes at five."}},
	})

	report, err := svc.Ingest(context.Background(), []string{"a.txt"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.DocumentsProcessed)
	assert.Zero(t, report.DocumentsSkipped)
	assert.Empty(t, report.Failures)
	require.Len(t, index.upserted, 1)
	assert.Equal(t, report.ChunksCreated, len(index.upserted[0]))

	docs, err := docStore.ListDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a.txt", docs[0].SourcePath)
	assert.NotEmpty(t, docs[0].ContentHash)
}

func TestIngestService_Ingest_ReportsIndexSize(t *testing.T) {
	svc, index, _, _ := newIngestFixture(map[string][]domain.TextBlock{
		"a.txt": {{Text: "The oratory opens at nine. It closes at five."}},
	})

	report, err := svc.Ingest(context.Background(), []string{"a.txt"})
	require.NoError(t, err)
	assert.Positive(t, report.IndexSize)
	assert.Equal(t, report.ChunksCreated, report.IndexSize)

	// A count failure degrades the report, never the run.
	index.countErr = errors.New("backend down")
	report, err = svc.Ingest(context.Background(), []string{"a.txt"})
	require.NoError(t, err)
	assert.Zero(t, report.IndexSize)
}

func TestIngestService_Ingest_StampsModelVersion(t *testing.T) {
	svc, index, _, _ := newIngestFixture(map[string][]domain.TextBlock{
		"a.txt": {{Text: "Some text."}},
	})

	_, err := svc.Ingest(context.Background(), []string{"a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "test-embed", index.modelVersion)
}

func TestIngestService_Ingest_RefusesMismatchedIndex(t *testing.T) {
	svc, index, _, _ := newIngestFixture(map[string][]domain.TextBlock{
		"a.txt": {{Text: "Some text."}},
	})
	index.modelVersion = "another-model"

	_, err := svc.Ingest(context.Background(), []string{"a.txt"})
	assert.ErrorIs(t, err, domain.ErrModelVersionMismatch)
	assert.Empty(t, index.upserted)
}

func TestIngestService_Ingest_UnchangedDocumentSkipped(t *testing.T) {
	svc, index, _, embedder := newIngestFixture(map[string][]domain.TextBlock{
		"a.txt": {{Text: "Stable content that does not change."}},
	})

	_, err := svc.Ingest(context.Background(), []string{"a.txt"})
	require.NoError(t, err)
	firstUpserts := len(index.upserted)
	firstBatches := embedder.batchCalls

	report, err := svc.Ingest(context.Background(), []string{"a.txt"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.DocumentsSkipped)
	assert.Zero(t, report.DocumentsProcessed)
	assert.Equal(t, firstUpserts, len(index.upserted))
	assert.Equal(t, firstBatches, embedder.batchCalls)
}

func TestIngestService_Ingest_ChangedDocumentReplacesChunks(t *testing.T) {
	blocks := map[string][]domain.TextBlock{
		"a.txt": {{Text: "Original content."}},
	}
	svc, index, docStore, _ := newIngestFixture(blocks)

	_, err := svc.Ingest(context.Background(), []string{"a.txt"})
	require.NoError(t, err)
	oldChunks := index.upserted[0]

	blocks["a.txt"] = []domain.TextBlock{{Text: "Completely different content now."}}
	report, err := svc.Ingest(context.Background(), []string{"a.txt"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.DocumentsProcessed)
	assert.Equal(t, len(oldChunks), report.ChunksDeleted)

	// Stale chunk IDs were deleted after the new upsert.
	require.Len(t, index.deleted, 1)
	for i, e := range oldChunks {
		assert.Equal(t, e.Chunk.ID, index.deleted[0][i])
	}

	// Only the new document remains.
	docs, err := docStore.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestIngestService_Ingest_FailedDocumentDoesNotAbortRun(t *testing.T) {
	parser := &mockParser{
		blocks: map[string][]domain.TextBlock{
			"good.txt": {{Text: "Fine content."}},
		},
		errs: map[string]error{"bad.pdf": errors.New("corrupt file")},
	}
	svc := NewIngestService(parser, newMockEmbedder(), &mockIndex{}, newMockDocStore(), chunker.New())

	report, err := svc.Ingest(context.Background(), []string{"bad.pdf", "good.txt"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.DocumentsProcessed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "bad.pdf", report.Failures[0].SourcePath)
	assert.Equal(t, "extract", report.Failures[0].Stage)
}

func TestIngestService_Ingest_EmptyDocumentRecordedAsFailure(t *testing.T) {
	svc, index, _, _ := newIngestFixture(map[string][]domain.TextBlock{
		"empty.txt": {},
	})

	report, err := svc.Ingest(context.Background(), []string{"empty.txt"})
	require.NoError(t, err)
	assert.Zero(t, report.DocumentsProcessed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "no extractable text", report.Failures[0].Reason)
	assert.Empty(t, index.upserted)
}

func TestIngestService_Ingest_SecondRunRejectedWhileRunning(t *testing.T) {
	svc, _, _, _ := newIngestFixture(nil)

	svc.mu.Lock()
	defer svc.mu.Unlock()

	_, err := svc.Ingest(context.Background(), []string{"a.txt"})
	assert.ErrorIs(t, err, domain.ErrIngestInProgress)
}

func TestIngestService_Ingest_CancelledContext(t *testing.T) {
	svc, _, _, _ := newIngestFixture(map[string][]domain.TextBlock{
		"a.txt": {{Text: "content"}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Ingest(ctx, []string{"a.txt"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReuseEmbeddings(t *testing.T) {
	prior := []domain.Chunk{
		{Ordinal: 0, ContentHash: "same", Embedding: []float32{1, 2, 3}},
		{Ordinal: 1, ContentHash: "old", Embedding: []float32{4, 5, 6}},
	}
	chunks := []domain.Chunk{
		{Ordinal: 0, ContentHash: "same"},
		{Ordinal: 1, ContentHash: "new"},
		{Ordinal: 2, ContentHash: "extra"},
	}

	reused := reuseEmbeddings(chunks, prior)
	assert.Equal(t, 1, reused)
	assert.Equal(t, []float32{1, 2, 3}, chunks[0].Embedding)
	assert.Nil(t, chunks[1].Embedding)
	assert.Nil(t, chunks[2].Embedding)
}
