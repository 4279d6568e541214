package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ai-town/ai-town-cn/internal/storage"
	"github.com/ai-town/ai-town-cn/pkg/types"
)

// SearchResult is a memory with its similarity to the query.
type SearchResult struct {
	Memory *types.Memory
	Score  float64
}

// Search returns up to limit of agentID's memories nearest to query, in the
// index's ranked order. It records no accesses. limit <= 0 uses
// Config.SearchLimit.
func (e *MemoryEngine) Search(ctx context.Context, agentID string, query []float32, limit int) ([]SearchResult, error) {
	defer e.metrics.observe("search", time.Now())

	if limit <= 0 {
		limit = e.config.SearchLimit
	}
	candidates, err := e.candidates(ctx, agentID, query, limit)
	if err != nil {
		return nil, err
	}

	out := make([]SearchResult, len(candidates))
	for i, c := range candidates {
		out[i] = SearchResult{Memory: c.memory, Score: c.score}
	}
	return out, nil
}

type candidate struct {
	memory *types.Memory
	score  float64
}

// candidates queries the index filtered to agentID and hydrates every match.
func (e *MemoryEngine) candidates(ctx context.Context, agentID string, query []float32, topK int) ([]candidate, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent ID is required", storage.ErrInvalidInput)
	}
	matches, err := e.index.Query(ctx, e.config.Namespace, query,
		map[string]string{storage.MetadataAgentID: agentID}, topK)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	out := make([]candidate, 0, len(matches))
	for _, m := range matches {
		mem, err := e.store.MemoryByEmbedding(ctx, agentID, m.ID)
		if errors.Is(err, storage.ErrNotFound) {
			e.logger.Error("vector index references a missing memory",
				"agent_id", agentID, "embedding_id", m.ID)
			return nil, fmt.Errorf("%w: no memory of agent %s for embedding %s", ErrInvariantViolation, agentID, m.ID)
		}
		if err != nil {
			return nil, fmt.Errorf("hydrate memory: %w", err)
		}
		out = append(out, candidate{memory: mem, score: m.Score})
	}
	return out, nil
}
