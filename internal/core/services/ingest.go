package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oratorio-dev/rudybot/internal/chunker"
	"github.com/oratorio-dev/rudybot/internal/core/domain"
	"github.com/oratorio-dev/rudybot/internal/core/ports/driven"
	"github.com/oratorio-dev/rudybot/internal/core/ports/driving"
	"github.com/oratorio-dev/rudybot/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// Default ingestion parameters.
const (
	DefaultBatchSize     = 32
	DefaultEmbedAttempts = 3
	DefaultRetryBase     = 500 * time.Millisecond
)

// IngestService orchestrates the ingestion pipeline:
// parse -> chunk -> embed -> upsert.
type IngestService struct {
	parser     driven.Parser
	embedder   driven.EmbeddingService
	index      driven.VectorIndex
	docStore   driven.DocumentStore
	chunker    *chunker.Chunker
	batchSize  int
	extensions []string

	// mu makes ingestion runs mutually exclusive. Query workflows keep
	// reading the index concurrently and tolerate stale-but-valid
	// chunks while a run is in flight.
	mu sync.Mutex
}

// IngestOption configures the ingestion service.
type IngestOption func(*IngestService)

// WithBatchSize sets the embedding batch size.
func WithBatchSize(n int) IngestOption {
	return func(s *IngestService) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithExtensions sets the file extensions picked up by IngestDir.
func WithExtensions(exts []string) IngestOption {
	return func(s *IngestService) {
		if len(exts) > 0 {
			s.extensions = exts
		}
	}
}

// NewIngestService creates the ingestion pipeline service.
func NewIngestService(
	parser driven.Parser,
	embedder driven.EmbeddingService,
	index driven.VectorIndex,
	docStore driven.DocumentStore,
	ch *chunker.Chunker,
	opts ...IngestOption,
) *IngestService {
	s := &IngestService{
		parser:     parser,
		embedder:   embedder,
		index:      index,
		docStore:   docStore,
		chunker:    ch,
		batchSize:  DefaultBatchSize,
		extensions: []string{".pdf", ".txt", ".md"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IngestDir ingests every matching file under dir.
func (s *IngestService) IngestDir(ctx context.Context, dir string) (domain.IngestionReport, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		for _, e := range s.extensions {
			if ext == e {
				paths = append(paths, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return domain.IngestionReport{}, fmt.Errorf("walk corpus dir: %w", err)
	}
	return s.Ingest(ctx, paths)
}

// Ingest processes the given documents. A failing document is recorded
// in the report and the pipeline continues with the rest.
func (s *IngestService) Ingest(ctx context.Context, paths []string) (domain.IngestionReport, error) {
	if !s.mu.TryLock() {
		return domain.IngestionReport{}, domain.ErrIngestInProgress
	}
	defer s.mu.Unlock()

	report := domain.IngestionReport{StartedAt: time.Now().UTC()}

	if err := s.checkModelVersion(ctx); err != nil {
		return report, err
	}

	logger.Section("Ingestion")
	logger.Info("Ingesting %d documents", len(paths))

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			report.FinishedAt = time.Now().UTC()
			return report, err
		}
		s.ingestOne(ctx, path, &report)
	}

	if size, err := s.index.Count(ctx); err != nil {
		logger.Warn("Reading index size: %v", err)
	} else {
		report.IndexSize = size
	}

	report.FinishedAt = time.Now().UTC()
	logger.Info("Ingestion finished: %d processed, %d skipped, %d chunks created, %d deleted, %d failures, index holds %d entries",
		report.DocumentsProcessed, report.DocumentsSkipped,
		report.ChunksCreated, report.ChunksDeleted, len(report.Failures), report.IndexSize)
	return report, nil
}

// checkModelVersion refuses to append into an index built with a
// different embedding model. A version change requires a full reindex,
// not an incremental append.
func (s *IngestService) checkModelVersion(ctx context.Context) error {
	stored, err := s.index.ModelVersion(ctx)
	if err != nil {
		return fmt.Errorf("read index model version: %w", err)
	}
	current := s.embedder.ModelName()
	if stored == "" {
		return s.index.SetModelVersion(ctx, current)
	}
	if stored != current {
		return fmt.Errorf("%w: index built with %q, embedder is %q (full reindex required)",
			domain.ErrModelVersionMismatch, stored, current)
	}
	return nil
}

// ingestOne runs the pipeline for a single document.
func (s *IngestService) ingestOne(ctx context.Context, path string, report *domain.IngestionReport) {
	logger.Debug("Ingesting %s", path)

	blocks, err := s.parser.Extract(ctx, path)
	if err != nil {
		logger.Warn("Extraction failed for %s: %v", path, err)
		report.Failures = append(report.Failures, domain.IngestionFailure{
			SourcePath: path, Stage: "extract", Reason: err.Error(),
		})
		return
	}

	contentHash := hashBlocks(blocks)

	prior, err := s.docStore.GetDocumentBySourcePath(ctx, path)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		report.Failures = append(report.Failures, domain.IngestionFailure{
			SourcePath: path, Stage: "index", Reason: err.Error(),
		})
		return
	}

	if prior != nil && prior.ContentHash == contentHash {
		logger.Debug("Unchanged content hash for %s, skipping", path)
		report.DocumentsSkipped++
		return
	}

	doc := &domain.Document{
		ID:          uuid.New().String(),
		SourcePath:  path,
		Title:       filepath.Base(path),
		ContentHash: contentHash,
		IngestedAt:  time.Now().UTC(),
	}

	chunks := s.chunker.Chunk(doc.ID, blocks)
	if len(chunks) == 0 {
		// Not a hard error: the document simply has no extractable text.
		logger.Warn("Document %s produced no extractable text", path)
		report.Failures = append(report.Failures, domain.IngestionFailure{
			SourcePath: path, Stage: "extract", Reason: "no extractable text",
		})
		return
	}
	for i := range chunks {
		chunks[i].DocumentTitle = doc.Title
	}

	// Reuse embeddings for chunks whose text is unchanged at the same
	// position in the previous ingestion of this path.
	var priorChunks []domain.Chunk
	if prior != nil {
		priorChunks, _ = s.docStore.GetChunks(ctx, prior.ID)
	}
	reused := reuseEmbeddings(chunks, priorChunks)
	if reused > 0 {
		logger.Debug("Reused %d embeddings for %s", reused, path)
	}

	if err := s.embedChunks(ctx, chunks); err != nil {
		report.Failures = append(report.Failures, domain.IngestionFailure{
			SourcePath: path, Stage: "embed", Reason: err.Error(),
		})
		return
	}

	entries := make([]driven.IndexEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = driven.IndexEntry{Chunk: c, Embedding: c.Embedding}
	}
	if err := s.index.Upsert(ctx, entries); err != nil {
		report.Failures = append(report.Failures, domain.IngestionFailure{
			SourcePath: path, Stage: "index", Reason: err.Error(),
		})
		return
	}
	report.ChunksCreated += len(entries)

	// Delete the superseded chunk set only after the new one is live:
	// readers observe stale-but-valid chunks, never a partial document.
	if prior != nil {
		var stale []string
		for _, c := range priorChunks {
			stale = append(stale, c.ID)
		}
		if len(stale) > 0 {
			if err := s.index.Delete(ctx, stale); err != nil {
				logger.Warn("Deleting superseded chunks for %s: %v", path, err)
			} else {
				report.ChunksDeleted += len(stale)
			}
		}
		if err := s.docStore.DeleteDocument(ctx, prior.ID); err != nil {
			logger.Warn("Deleting superseded document %s: %v", prior.ID, err)
		}
	}

	if err := s.docStore.SaveDocument(ctx, doc); err != nil {
		report.Failures = append(report.Failures, domain.IngestionFailure{
			SourcePath: path, Stage: "index", Reason: err.Error(),
		})
		return
	}
	if err := s.docStore.SaveChunks(ctx, doc.ID, chunks); err != nil {
		report.Failures = append(report.Failures, domain.IngestionFailure{
			SourcePath: path, Stage: "index", Reason: err.Error(),
		})
		return
	}

	report.DocumentsProcessed++
}

// embedChunks fills in missing embeddings batch by batch. Each batch is
// retried with exponential backoff; a batch that still fails aborts the
// document (the caller records a partial failure and moves on).
func (s *IngestService) embedChunks(ctx context.Context, chunks []domain.Chunk) error {
	var pending []int
	for i := range chunks {
		if chunks[i].Embedding == nil {
			pending = append(pending, i)
		}
	}

	for start := 0; start < len(pending); start += s.batchSize {
		end := start + s.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		texts := make([]string, len(batch))
		for i, idx := range batch {
			texts[i] = chunks[idx].Text
		}

		var vectors [][]float32
		err := withRetry(ctx, DefaultEmbedAttempts, DefaultRetryBase, func() error {
			var embedErr error
			vectors, embedErr = s.embedder.EmbedBatch(ctx, texts)
			return embedErr
		})
		if err != nil {
			return fmt.Errorf("embed batch at %d: %w", start, err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embed batch at %d: got %d vectors for %d texts", start, len(vectors), len(batch))
		}
		for i, idx := range batch {
			chunks[idx].Embedding = vectors[i]
		}
	}
	return nil
}

// reuseEmbeddings copies embeddings from prior chunks whose content
// hash matches at the same ordinal. Returns the number reused.
func reuseEmbeddings(chunks, prior []domain.Chunk) int {
	if len(prior) == 0 {
		return 0
	}
	byOrdinal := make(map[int]domain.Chunk, len(prior))
	for _, c := range prior {
		byOrdinal[c.Ordinal] = c
	}
	reused := 0
	for i := range chunks {
		p, ok := byOrdinal[chunks[i].Ordinal]
		if ok && p.ContentHash == chunks[i].ContentHash && len(p.Embedding) > 0 {
			chunks[i].Embedding = p.Embedding
			reused++
		}
	}
	return reused
}

// hashBlocks hashes the concatenated extracted text of a document.
func hashBlocks(blocks []domain.TextBlock) string {
	h := sha256.New()
	for _, b := range blocks {
		h.Write([]byte(b.Text))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
