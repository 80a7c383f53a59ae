package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Question  string `json:"question" jsonschema:"the question to answer from the document corpus"`
	SessionID string `json:"session_id,omitempty" jsonschema:"conversation identifier for follow-up questions (default mcp)"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Answer       string           `json:"answer"`
	Citations    []CitationOutput `json:"citations,omitempty"`
	Insufficient bool             `json:"insufficient"`
}

// CitationOutput represents one source citation.
type CitationOutput struct {
	Marker        int    `json:"marker"`
	DocumentTitle string `json:"document_title"`
	Page          int    `json:"page,omitempty"`
	Section       string `json:"section,omitempty"`
}

// IngestInput is the input schema for the ingest tool.
type IngestInput struct {
	Dir string `json:"dir" jsonschema:"directory whose documents are ingested into the index"`
}

// IngestOutput is the output schema for the ingest tool.
type IngestOutput struct {
	DocumentsProcessed int      `json:"documents_processed"`
	DocumentsSkipped   int      `json:"documents_skipped"`
	ChunksCreated      int      `json:"chunks_created"`
	Failures           []string `json:"failures,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from the ingested document corpus, with citations",
	}, s.handleAsk)

	if s.ports.Ingest != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "ingest",
			Description: "Ingest a directory of documents into the index",
		}, s.handleIngest)
	}
}

// handleAsk handles the ask tool invocation.
func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	sessionID := input.SessionID
	if sessionID == "" {
		sessionID = "mcp"
	}

	answer, err := s.ports.Ask.Ask(ctx, sessionID, input.Question)
	if err != nil {
		return nil, AskOutput{}, err
	}

	output := AskOutput{
		Answer:       answer.Text,
		Insufficient: answer.Insufficient,
		Citations:    make([]CitationOutput, len(answer.Citations)),
	}
	for i, c := range answer.Citations {
		output.Citations[i] = CitationOutput{
			Marker:        c.Marker,
			DocumentTitle: c.DocumentTitle,
			Page:          c.Page,
			Section:       c.Section,
		}
	}

	return nil, output, nil
}

// handleIngest handles the ingest tool invocation.
func (s *Server) handleIngest(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestInput,
) (*mcp.CallToolResult, IngestOutput, error) {
	report, err := s.ports.Ingest.IngestDir(ctx, input.Dir)
	if err != nil {
		return nil, IngestOutput{}, err
	}

	output := IngestOutput{
		DocumentsProcessed: report.DocumentsProcessed,
		DocumentsSkipped:   report.DocumentsSkipped,
		ChunksCreated:      report.ChunksCreated,
	}
	for _, f := range report.Failures {
		output.Failures = append(output.Failures, f.SourcePath+": "+f.Reason)
	}

	return nil, output, nil
}
