// Package driven provides interfaces for infrastructure adapters
// (secondary/outbound ports): embedding and generative model clients,
// the vector index, the document parser and the persistence stores.
package driven
