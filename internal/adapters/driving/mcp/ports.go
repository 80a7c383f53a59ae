package mcp

import (
	"github.com/oratorio-dev/rudybot/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Ask answers questions from the document corpus.
	Ask driving.AskService

	// Ingest rebuilds the corpus index. Optional; the ingest tool is
	// only registered when present.
	Ingest driving.IngestService
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Ask == nil {
		return ErrMissingAskService
	}
	return nil
}
