package engine

import "errors"

var (
	// ErrMissingCollaborator is returned by NewMemoryEngine when a required
	// dependency is nil.
	ErrMissingCollaborator = errors.New("missing collaborator")

	// ErrInvariantViolation signals that the vector index and the document
	// store have drifted: an indexed embedding has no stored memory.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrEmbeddingCountMismatch is returned when the embedding provider
	// answers a batch with a different number of vectors than requested.
	ErrEmbeddingCountMismatch = errors.New("embedding count mismatch")

	// ErrInvalidDraft is returned for drafts that cannot be ingested.
	ErrInvalidDraft = errors.New("invalid memory draft")
)
