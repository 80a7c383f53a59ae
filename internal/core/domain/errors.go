package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrIndexUnavailable indicates the vector index cannot be reached.
	// Retrieval aborts and the user receives the defined unavailability
	// answer; the generator is never invoked.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not
	// configured or unreachable.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrLLMUnavailable indicates the generative model service is not
	// configured or unreachable.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrInsufficientContext signals the grounded non-answer outcome.
	// It is a designed generator result, not an infrastructure error,
	// and is never retried: retrying cannot fix a lack of relevant
	// documents.
	ErrInsufficientContext = errors.New("insufficient context")

	// ErrRateLimited indicates the generative model rejected the call
	// with a rate-limit error. Callers back off and retry.
	ErrRateLimited = errors.New("rate limited")

	// ErrModelVersionMismatch indicates the query or ingestion embedding
	// model differs from the one the index was built with. Mixed-version
	// indices silently degrade relevance and are disallowed.
	ErrModelVersionMismatch = errors.New("embedding model version mismatch")

	// ErrIngestInProgress indicates an ingestion run is already active
	// for the same corpus scope.
	ErrIngestInProgress = errors.New("ingestion already in progress")

	// ErrSessionCorrupted indicates per-user turn ordering was violated.
	// Fatal to the affected request only; the session is reset.
	ErrSessionCorrupted = errors.New("session state corrupted")
)
