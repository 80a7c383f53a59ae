package domain

import "time"

// IngestionFailure records one document or batch that could not be
// ingested. The pipeline continues past failures; they are reported here.
type IngestionFailure struct {
	// SourcePath is the document the failure belongs to.
	SourcePath string

	// Stage is where the failure happened: "extract", "embed" or "index".
	Stage string

	// Reason is the underlying error message.
	Reason string
}

// IngestionReport summarises one ingestion run.
type IngestionReport struct {
	// DocumentsProcessed counts documents that went through the pipeline.
	DocumentsProcessed int

	// DocumentsSkipped counts documents whose content hash was unchanged.
	DocumentsSkipped int

	// ChunksCreated counts chunks upserted into the vector index.
	ChunksCreated int

	// ChunksDeleted counts stale chunks removed from the vector index.
	ChunksDeleted int

	// IndexSize is the total entry count in the vector index after the
	// run, counting chunks from earlier runs too. Zero when the index
	// could not report its size.
	IndexSize int

	// Failures lists partial failures. A non-empty list does not mean
	// the run failed; unaffected documents were still ingested.
	Failures []IngestionFailure

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time
	FinishedAt time.Time
}

// HasFailures reports whether any document or batch failed.
func (r IngestionReport) HasFailures() bool {
	return len(r.Failures) > 0
}
