// Package services implements the core pipeline: ingestion
// (parse, chunk, embed, index) and the query workflow
// (rewrite, retrieve, assemble, generate).
package services
