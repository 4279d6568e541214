package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ai-town/ai-town-cn/internal/storage"
	"github.com/ai-town/ai-town-cn/pkg/types"
)

// ScoredMemory is a retrieved memory with its composite score and the raw
// signals it was built from.
type ScoredMemory struct {
	Memory     *types.Memory
	Score      float64
	Relevance  float64
	Importance float64
	Recency    float64
}

// AccessMemories returns up to count of agentID's memories ranked by
// normalized relevance + importance + recency and appends one access entry
// per returned memory. count <= 0 uses Config.AccessCount.
func (e *MemoryEngine) AccessMemories(ctx context.Context, agentID string, query []float32, count int) ([]ScoredMemory, error) {
	defer e.metrics.observe("access_memories", time.Now())

	if count <= 0 {
		count = e.config.AccessCount
	}
	candidates, err := e.candidates(ctx, agentID, query, count*e.config.OverFetchFactor)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	now := e.now()
	relevance := make([]float64, len(candidates))
	importance := make([]float64, len(candidates))
	recency := make([]float64, len(candidates))
	for i, c := range candidates {
		last, err := e.lastTouched(ctx, c.memory)
		if err != nil {
			return nil, err
		}
		relevance[i] = c.score
		importance[i] = float64(c.memory.Importance)
		recency[i] = Recency(e.config.RecencyDecayRate, hoursSince(now, last))
	}

	scores := CompositeScores(relevance, importance, recency)
	order := rankByScore(scores)
	if len(order) > count {
		order = order[:count]
	}

	out := make([]ScoredMemory, len(order))
	ids := make([]string, len(order))
	for rank, i := range order {
		out[rank] = ScoredMemory{
			Memory:     candidates[i].memory,
			Score:      scores[i],
			Relevance:  relevance[i],
			Importance: importance[i],
			Recency:    recency[i],
		}
		ids[rank] = candidates[i].memory.ID
	}

	if err := e.store.RecordAccesses(ctx, ids, now); err != nil {
		return nil, fmt.Errorf("record accesses: %w", err)
	}
	e.metrics.AccessesRecorded.Add(float64(len(ids)))
	return out, nil
}

// lastTouched is the newest access time of mem, or its creation time.
func (e *MemoryEngine) lastTouched(ctx context.Context, mem *types.Memory) (time.Time, error) {
	access, err := e.store.LastAccess(ctx, mem.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return mem.CreatedAt, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("last access of %s: %w", mem.ID, err)
	}
	return access.CreatedAt, nil
}
