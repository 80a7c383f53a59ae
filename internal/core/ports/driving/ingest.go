package driving

import (
	"context"

	"github.com/oratorio-dev/rudybot/internal/core/domain"
)

// IngestService builds and refreshes the searchable chunk index.
type IngestService interface {
	// Ingest processes the given document paths: extract, chunk, embed,
	// upsert. Re-ingesting an unchanged document is idempotent; a
	// single document's failure does not abort the rest of the corpus.
	Ingest(ctx context.Context, paths []string) (domain.IngestionReport, error)

	// IngestDir ingests every matching file under the corpus directory.
	IngestDir(ctx context.Context, dir string) (domain.IngestionReport, error)
}
