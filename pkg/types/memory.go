package types

import "time"

// Embedding is the vector representation of a piece of text. Text is the
// cache key: a later memory with the identical text reuses Vector instead of
// asking the embedding provider again. Embeddings are immutable.
type Embedding struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Text      string    `json:"text"`
	Vector    []float32 `json:"vector"`
	CreatedAt time.Time `json:"created_at"`
}

// Memory is a stored natural-language observation of one agent.
// EmbeddingID refers to exactly one Embedding created in the same commit.
type Memory struct {
	ID          string    `json:"id"`
	AgentID     string    `json:"agent_id"`
	Description string    `json:"description"`
	EmbeddingID string    `json:"embedding_id"`
	Importance  int       `json:"importance"` // 0–9
	Payload     Payload   `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// MemoryAccess records that a memory was selected by ranked retrieval.
// Entries are append-only; the newest one drives the memory's recency.
type MemoryAccess struct {
	ID        string    `json:"id"`
	MemoryID  string    `json:"memory_id"`
	CreatedAt time.Time `json:"created_at"`
}

// MemoryDraft is a memory that has not been ingested yet. A nil Importance
// asks the ingestion pipeline to rate it with the language model.
type MemoryDraft struct {
	AgentID     string
	Description string
	Payload     Payload
	Importance  *int
}

// Importance returns a pointer suitable for MemoryDraft.Importance.
func Importance(v int) *int {
	return &v
}
