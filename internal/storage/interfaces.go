// Package storage provides composable storage interfaces for agent memory.
//
// The document store is split into small, focused interfaces that the engine
// consumes separately. Backends implement all of them and are composed as a
// DocumentStore. Vector search lives behind VectorIndex so the nearest-neighbor
// engine can be swapped independently of the record store.
package storage

import (
	"context"
	"time"

	"github.com/ai-town/ai-town-cn/pkg/types"
)

// EmbeddingStore looks up previously computed embeddings.
type EmbeddingStore interface {
	// EmbeddingByText returns the most recent embedding whose text is exactly
	// equal to text. Returns ErrNotFound on a miss.
	EmbeddingByText(ctx context.Context, text string) (*types.Embedding, error)
}

// MemoryStore persists memories together with their embeddings.
type MemoryStore interface {
	// CommitMemory writes the embedding and then the memory referencing it as
	// a single atomic unit. Empty IDs and zero timestamps are filled in, and
	// mem.EmbeddingID is set to emb.ID. Neither row is durable on error.
	CommitMemory(ctx context.Context, mem *types.Memory, emb *types.Embedding) error

	// MemoryByEmbedding returns the most recent memory of agentID that
	// references embeddingID. Returns ErrNotFound if there is none.
	MemoryByEmbedding(ctx context.Context, agentID, embeddingID string) (*types.Memory, error)

	// LatestMemoryOfKind returns agentID's newest memory with the given
	// payload kind created strictly after since (zero since = no bound).
	// Returns ErrNotFound if there is none.
	LatestMemoryOfKind(ctx context.Context, agentID string, kind types.PayloadKind, since time.Time) (*types.Memory, error)

	// LatestConversationMemory returns agentID's newest conversation memory
	// for conversationID. Returns ErrNotFound if there is none.
	LatestConversationMemory(ctx context.Context, agentID, conversationID string) (*types.Memory, error)

	// RecentMemories returns up to limit of agentID's memories created
	// strictly after since, newest first.
	RecentMemories(ctx context.Context, agentID string, since time.Time, limit int) ([]*types.Memory, error)
}

// AccessLog is the append-only log of retrieval events.
type AccessLog interface {
	// RecordAccesses appends one access entry per memory ID, all stamped at.
	RecordAccesses(ctx context.Context, memoryIDs []string, at time.Time) error

	// LastAccess returns the newest access entry for memoryID.
	// Returns ErrNotFound if the memory was never accessed.
	LastAccess(ctx context.Context, memoryID string) (*types.MemoryAccess, error)
}

// MessageStore holds dialogue messages.
type MessageStore interface {
	// AddMessage stores a message, filling in an empty ID and zero CreatedAt.
	AddMessage(ctx context.Context, msg *types.Message) error

	// ConversationMessages returns the messages of conversationID that were
	// written by or addressed to participantID and created strictly after
	// after (zero after = no bound), oldest first.
	ConversationMessages(ctx context.Context, conversationID, participantID string, after time.Time) ([]*types.Message, error)
}

// DocumentStore is the full persistent record store consumed by the engine.
type DocumentStore interface {
	EmbeddingStore
	MemoryStore
	AccessLog
	MessageStore

	// Close releases any resources held by the store.
	Close() error
}

// VectorIndex is a namespace-scoped nearest-neighbor store with metadata
// filtering.
type VectorIndex interface {
	// Upsert inserts or replaces items in namespace.
	Upsert(ctx context.Context, namespace string, items []VectorItem) error

	// Query returns up to topK items of namespace whose metadata contains
	// every key/value pair of filter, ranked by descending similarity.
	Query(ctx context.Context, namespace string, vector []float32, filter map[string]string, topK int) ([]VectorMatch, error)
}
