package driven

import (
	"context"

	"github.com/oratorio-dev/rudybot/internal/core/domain"
)

// DocumentStore persists document and chunk metadata.
// Backed by SQLite; an in-memory variant exists for tests.
type DocumentStore interface {
	// SaveDocument stores or updates a document.
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// GetDocumentBySourcePath finds the document last ingested from a path.
	GetDocumentBySourcePath(ctx context.Context, path string) (*domain.Document, error)

	// SaveChunks replaces the stored chunk set for a document.
	SaveChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error

	// GetChunks returns the chunks of a document ordered by ordinal.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// ListDocuments returns all ingested documents.
	ListDocuments(ctx context.Context) ([]domain.Document, error)

	// DeleteDocument removes a document and its chunks.
	DeleteDocument(ctx context.Context, id string) error
}
