package domain

import (
	"strconv"
	"time"
)

// Document represents one ingested source file.
// Documents are immutable once ingested; re-ingesting the same path
// supersedes the previous chunk set rather than mutating it.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// SourcePath is the original file location.
	SourcePath string

	// Title is the human-readable title (file name by default).
	Title string

	// ContentHash is the SHA-256 of the extracted text, used to skip
	// re-embedding unchanged documents.
	ContentHash string

	// IngestedAt is when the document was last ingested.
	IngestedAt time.Time
}

// TextBlock is one unit of extracted text with its provenance label.
// The external parser produces an ordered sequence of blocks per document.
type TextBlock struct {
	// Text is the extracted text of the block.
	Text string

	// Page is the 1-based page number the block came from (0 if unknown).
	Page int

	// Section is an optional section label (heading, appendix name).
	Section string
}

// Chunk is the unit of retrieval: a bounded text segment with provenance.
type Chunk struct {
	// ID is a deterministic identifier of the form "docID:ordinal",
	// which makes vector index upserts idempotent.
	ID string

	// DocumentID links to the owning Document.
	DocumentID string

	// DocumentTitle is denormalised into the chunk so citations can be
	// rendered without a store lookup at query time.
	DocumentTitle string

	// Ordinal is the position of the chunk within the document.
	Ordinal int

	// Text is the chunk content.
	Text string

	// StartOffset and EndOffset are rune offsets into the document's
	// extracted text. Consecutive chunks overlap by the configured
	// overlap window and are otherwise gapless.
	StartOffset int
	EndOffset   int

	// TokenCount is the estimated token count of Text.
	TokenCount int

	// Page is the page the chunk starts on (0 if unknown).
	Page int

	// Section is the section label the chunk belongs to, if any.
	Section string

	// ContentHash is the SHA-256 of Text, used to skip re-embedding
	// chunks whose text did not change between ingestions.
	ContentHash string

	// Embedding is the vector representation, populated during ingestion.
	Embedding []float32
}

// CitationKey identifies the source location of a chunk for citation
// purposes. Two chunks from the same document and section/page share a key.
func (c Chunk) CitationKey() string {
	return c.DocumentID + "#" + c.Section + "#" + strconv.Itoa(c.Page)
}
