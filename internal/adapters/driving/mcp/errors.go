// Package mcp provides an MCP (Model Context Protocol) server adapter
// exposing the question answering and ingestion workflows to AI
// assistants.
package mcp

import "errors"

// ErrMissingAskService is returned when the ask service is not provided.
var ErrMissingAskService = errors.New("mcp: ask service is required")
