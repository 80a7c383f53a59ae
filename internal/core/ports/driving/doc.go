// Package driving provides interfaces for inbound adapters
// (primary ports): the CLI, the chat transport and the MCP server.
package driving
