// Package chromem provides an embedded storage.VectorIndex backed by
// chromem-go. Each namespace maps to one collection.
package chromem

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/ai-town/ai-town-cn/internal/storage"
)

// VectorIndex implements storage.VectorIndex in process.
type VectorIndex struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
	logger      *slog.Logger
}

var _ storage.VectorIndex = (*VectorIndex)(nil)

// Option configures a VectorIndex.
type Option func(*VectorIndex)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *VectorIndex) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// New creates an in-memory index.
func New(opts ...Option) *VectorIndex {
	return newIndex(chromem.NewDB(), opts)
}

// NewPersistent creates an index that persists collections under dir.
func NewPersistent(dir string, compress bool, opts ...Option) (*VectorIndex, error) {
	db, err := chromem.NewPersistentDB(dir, compress)
	if err != nil {
		return nil, fmt.Errorf("chromem: open %s: %w", dir, err)
	}
	return newIndex(db, opts), nil
}

func newIndex(db *chromem.DB, opts []Option) *VectorIndex {
	v := &VectorIndex{
		db:          db,
		collections: make(map[string]*chromem.Collection),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// collection returns the collection for namespace, creating it on first use.
func (v *VectorIndex) collection(namespace string) (*chromem.Collection, error) {
	v.mu.RLock()
	col, ok := v.collections[namespace]
	v.mu.RUnlock()
	if ok {
		return col, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if col, ok := v.collections[namespace]; ok {
		return col, nil
	}

	// Embeddings are always supplied, so no embedding func is needed.
	col, err := v.db.GetOrCreateCollection(namespace, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: collection %q: %w", namespace, err)
	}
	v.collections[namespace] = col
	return col, nil
}

// Upsert adds items to namespace. Existing IDs are overwritten.
func (v *VectorIndex) Upsert(ctx context.Context, namespace string, items []storage.VectorItem) error {
	if len(items) == 0 {
		return nil
	}
	col, err := v.collection(namespace)
	if err != nil {
		return err
	}

	for _, item := range items {
		if item.ID == "" || len(item.Vector) == 0 {
			return fmt.Errorf("%w: vector item needs an ID and a vector", storage.ErrInvalidInput)
		}
		// chromem normalizes in place, so hand it a copy.
		vec := make([]float32, len(item.Vector))
		copy(vec, item.Vector)

		doc := chromem.Document{
			ID:        item.ID,
			Metadata:  copyMetadata(item.Metadata),
			Embedding: vec,
			Content:   item.ID,
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("chromem: add %s: %w", item.ID, err)
		}
	}

	v.logger.Debug("chromem: upserted vectors", "namespace", namespace, "count", len(items))
	return nil
}

// Query returns up to topK items of namespace whose metadata matches filter.
func (v *VectorIndex) Query(ctx context.Context, namespace string, vector []float32, filter map[string]string, topK int) ([]storage.VectorMatch, error) {
	if topK <= 0 {
		return nil, nil
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: query vector cannot be empty", storage.ErrInvalidInput)
	}
	col, err := v.collection(namespace)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the collection.
	n := topK
	if count := col.Count(); count == 0 {
		return nil, nil
	} else if n > count {
		n = count
	}

	query := make([]float32, len(vector))
	copy(query, vector)

	var where map[string]string
	if len(filter) > 0 {
		where = filter
	}
	results, err := col.QueryEmbedding(ctx, query, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query %q: %w", namespace, err)
	}

	matches := make([]storage.VectorMatch, 0, len(results))
	for _, r := range results {
		matches = append(matches, storage.VectorMatch{ID: r.ID, Score: float64(r.Similarity)})
	}
	return matches, nil
}

func copyMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[k] = val
	}
	return out
}
