package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/ai-town/ai-town-cn/internal/storage"
)

// EmbeddingCache answers "has this exact text been embedded before?". A
// bounded in-process tier sits in front of the store's embeddings. Lookups
// are by exact string equality; paraphrases miss.
type EmbeddingCache struct {
	store   storage.EmbeddingStore
	hot     *ristretto.Cache
	metrics *Metrics
}

// NewEmbeddingCache creates a cache over store keeping up to maxEntries
// vectors in memory.
func NewEmbeddingCache(store storage.EmbeddingStore, maxEntries int64, metrics *Metrics) (*EmbeddingCache, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: embedding store", ErrMissingCollaborator)
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	hot, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return &EmbeddingCache{store: store, hot: hot, metrics: metrics}, nil
}

// Lookup returns, for each text, its stored vector or nil on a miss. The
// result is positionally aligned with texts. Each distinct text is looked up
// once.
func (c *EmbeddingCache) Lookup(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	seen := make(map[string][]float32, len(texts))

	for i, text := range texts {
		if vec, ok := seen[text]; ok {
			out[i] = vec
			continue
		}

		vec, err := c.lookup(ctx, text)
		if err != nil {
			return nil, err
		}
		if vec == nil {
			c.metrics.CacheMisses.Inc()
		} else {
			c.metrics.CacheHits.Inc()
		}
		seen[text] = vec
		out[i] = vec
	}
	return out, nil
}

func (c *EmbeddingCache) lookup(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.hot.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}

	emb, err := c.store.EmbeddingByText(ctx, text)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("embedding cache lookup: %w", err)
	}
	c.hot.Set(text, emb.Vector, 1)
	c.hot.Wait()
	return emb.Vector, nil
}

// Remember puts vec in the in-process tier and waits for the write to be
// applied, so an immediate Lookup sees it. The store tier is written by
// memory commits.
func (c *EmbeddingCache) Remember(text string, vec []float32) {
	if len(vec) == 0 {
		return
	}
	c.hot.Set(text, vec, 1)
	c.hot.Wait()
}

// Close stops the in-process tier's background goroutines.
func (c *EmbeddingCache) Close() {
	c.hot.Close()
}
