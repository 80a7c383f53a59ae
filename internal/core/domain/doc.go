// Package domain contains the core entities of the question-answering
// pipeline: documents, chunks, sessions, retrieval results and answers.
// It has no dependencies on adapters or external services.
package domain
