package storage

import "errors"

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// Metadata keys written on every vector item.
const (
	MetadataAgentID  = "agent_id"
	MetadataMemoryID = "memory_id"
)

// VectorItem is one entry of a vector index.
type VectorItem struct {
	// ID identifies the item within its namespace (the embedding ID).
	ID string

	// Vector is the embedding.
	Vector []float32

	// Metadata is used for filtered queries. It always carries
	// MetadataAgentID.
	Metadata map[string]string
}

// VectorMatch is one ranked result of a vector query.
type VectorMatch struct {
	// ID is the matched item ID.
	ID string

	// Score is the similarity to the query (higher is closer).
	Score float64
}
