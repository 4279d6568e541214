package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ai-town/ai-town-cn/internal/storage"
	"github.com/ai-town/ai-town-cn/pkg/types"
)

// AddMemories embeds, scores and commits drafts, then indexes them. It
// returns the IDs of the committed memories in draft order.
//
// Every description is looked up in the embedding cache first; the distinct
// misses go to the provider in one batch. Each memory is committed together
// with its own embedding row. Index upserts happen only for committed
// memories. If a commit fails, the memories committed before it are still
// indexed, their IDs are returned and the error is reported.
func (e *MemoryEngine) AddMemories(ctx context.Context, drafts []types.MemoryDraft) ([]string, error) {
	defer e.metrics.observe("add_memories", time.Now())

	if len(drafts) == 0 {
		return nil, nil
	}
	for i, d := range drafts {
		if err := types.ValidateDraft(d); err != nil {
			return nil, fmt.Errorf("%w: draft %d: %v", ErrInvalidDraft, i, err)
		}
	}

	vectors, err := e.embedDrafts(ctx, drafts)
	if err != nil {
		return nil, err
	}

	importance, err := e.scoreImportance(ctx, drafts)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(drafts))
	items := make([]storage.VectorItem, 0, len(drafts))
	var commitErr error
	for i, d := range drafts {
		now := e.now()
		emb := &types.Embedding{
			AgentID:   d.AgentID,
			Text:      d.Description,
			Vector:    vectors[i],
			CreatedAt: now,
		}
		mem := &types.Memory{
			AgentID:     d.AgentID,
			Description: d.Description,
			Importance:  importance[i],
			Payload:     d.Payload,
			CreatedAt:   now,
		}
		if err := e.store.CommitMemory(ctx, mem, emb); err != nil {
			commitErr = fmt.Errorf("commit memory %d of %d: %w", i+1, len(drafts), err)
			break
		}
		ids = append(ids, mem.ID)
		items = append(items, storage.VectorItem{
			ID:     emb.ID,
			Vector: emb.Vector,
			Metadata: map[string]string{
				storage.MetadataAgentID:  mem.AgentID,
				storage.MetadataMemoryID: mem.ID,
			},
		})
	}

	if len(items) > 0 {
		if err := e.index.Upsert(ctx, e.config.Namespace, items); err != nil {
			e.logger.Error("committed memories could not be indexed",
				"count", len(items), "error", err)
			return ids, fmt.Errorf("index memories: %w", err)
		}
		for i, item := range items {
			e.cache.Remember(drafts[i].Description, item.Vector)
		}
		e.metrics.MemoriesIngested.Add(float64(len(items)))
	}

	if commitErr != nil {
		e.logger.Warn("memory batch partially committed",
			"committed", len(ids), "requested", len(drafts), "error", commitErr)
		return ids, commitErr
	}

	e.logger.Debug("memories added", "count", len(ids))
	return ids, nil
}

// embedDrafts returns one vector per draft, aligned by position.
func (e *MemoryEngine) embedDrafts(ctx context.Context, drafts []types.MemoryDraft) ([][]float32, error) {
	texts := make([]string, len(drafts))
	for i, d := range drafts {
		texts[i] = d.Description
	}

	vectors, err := e.cache.Lookup(ctx, texts)
	if err != nil {
		return nil, err
	}

	// Distinct uncached texts, in first-seen order.
	var missing []string
	missingAt := make(map[string][]int)
	for i, vec := range vectors {
		if vec != nil {
			continue
		}
		if _, ok := missingAt[texts[i]]; !ok {
			missing = append(missing, texts[i])
		}
		missingAt[texts[i]] = append(missingAt[texts[i]], i)
	}
	if len(missing) == 0 {
		return vectors, nil
	}

	fresh, err := e.embedder.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("embed descriptions: %w", err)
	}
	if len(fresh) != len(missing) {
		return nil, fmt.Errorf("%w: requested %d, got %d", ErrEmbeddingCountMismatch, len(missing), len(fresh))
	}
	e.metrics.ProviderEmbeds.Add(float64(len(missing)))

	for j, text := range missing {
		if len(fresh[j]) == 0 {
			return nil, fmt.Errorf("embed descriptions: provider returned an empty vector for input %d", j)
		}
		for _, i := range missingAt[text] {
			vectors[i] = fresh[j]
		}
	}
	return vectors, nil
}
