package driven

import (
	"context"

	"github.com/oratorio-dev/rudybot/internal/core/domain"
)

// Parser extracts ordered text blocks from a source file. Structural
// parsing (tables, footnotes) is the external collaborator's concern;
// the pipeline only consumes the block sequence.
type Parser interface {
	// Extract returns the text blocks of the file at path, in reading
	// order. A parseable file with no text returns an empty slice.
	Extract(ctx context.Context, path string) ([]domain.TextBlock, error)
}
