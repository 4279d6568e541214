// Package engine implements agent long-term memory: ingestion with cached
// embeddings and model-scored importance, relevance search, composite-score
// retrieval that logs accesses, conversation summaries and reflections.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ai-town/ai-town-cn/internal/llm"
	"github.com/ai-town/ai-town-cn/internal/storage"
)

// Dependencies are the collaborators the engine needs. All are required.
type Dependencies struct {
	Store         storage.DocumentStore
	Index         storage.VectorIndex
	Embedder      llm.EmbeddingProvider
	LanguageModel llm.LanguageModel
}

// Option configures a MemoryEngine.
type Option func(*MemoryEngine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *MemoryEngine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the collectors, typically from NewMetrics(registry).
func WithMetrics(m *Metrics) Option {
	return func(e *MemoryEngine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithClock replaces time.Now for timestamps and recency.
func WithClock(now func() time.Time) Option {
	return func(e *MemoryEngine) {
		if now != nil {
			e.now = now
		}
	}
}

// MemoryEngine is safe for concurrent use.
type MemoryEngine struct {
	config Config

	store    storage.DocumentStore
	index    storage.VectorIndex
	embedder llm.EmbeddingProvider
	lm       llm.LanguageModel
	cache    *EmbeddingCache

	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewMemoryEngine builds an engine. It fails with ErrMissingCollaborator if
// any dependency is nil and rejects an invalid config.
func NewMemoryEngine(deps Dependencies, cfg Config, opts ...Option) (*MemoryEngine, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("%w: document store", ErrMissingCollaborator)
	case deps.Index == nil:
		return nil, fmt.Errorf("%w: vector index", ErrMissingCollaborator)
	case deps.Embedder == nil:
		return nil, fmt.Errorf("%w: embedding provider", ErrMissingCollaborator)
	case deps.LanguageModel == nil:
		return nil, fmt.Errorf("%w: language model", ErrMissingCollaborator)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	e := &MemoryEngine{
		config:   cfg,
		store:    deps.Store,
		index:    deps.Index,
		embedder: deps.Embedder,
		lm:       deps.LanguageModel,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}

	cache, err := NewEmbeddingCache(deps.Store, cfg.EmbeddingCacheMaxCost, e.metrics)
	if err != nil {
		return nil, err
	}
	e.cache = cache
	return e, nil
}

// Close releases the engine's cache. Collaborators are owned by the caller.
func (e *MemoryEngine) Close() {
	e.cache.Close()
}

// Cache exposes the embedding cache.
func (e *MemoryEngine) Cache() *EmbeddingCache {
	return e.cache
}

// EmbedText returns the embedding of text, consulting the cache before the
// provider. Provider results are kept in the in-process tier only.
func (e *MemoryEngine) EmbedText(ctx context.Context, text string) ([]float32, error) {
	cached, err := e.cache.Lookup(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if cached[0] != nil {
		return cached[0], nil
	}

	vecs, err := e.embedder.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: requested 1, got %d", ErrEmbeddingCountMismatch, len(vecs))
	}
	if len(vecs[0]) == 0 {
		return nil, fmt.Errorf("embed text: provider returned an empty vector")
	}
	e.metrics.ProviderEmbeds.Inc()
	e.cache.Remember(text, vecs[0])
	return vecs[0], nil
}
