package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-town/ai-town-cn/internal/storage"
	"github.com/ai-town/ai-town-cn/internal/storage/chromem"
	"github.com/ai-town/ai-town-cn/internal/storage/sqlite"
	"github.com/ai-town/ai-town-cn/pkg/types"
)

func draft(agentID, text string, importance *int) types.MemoryDraft {
	return types.MemoryDraft{
		AgentID:     agentID,
		Description: text,
		Payload:     types.RelationshipPayload{AgentID: "bob"},
		Importance:  importance,
	}
}

func TestAddMemories_DeduplicatesEmbeddingRequests(t *testing.T) {
	te := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	ids, err := te.AddMemories(ctx, []types.MemoryDraft{
		draft("alice", "bob waved", types.Importance(2)),
		draft("alice", "bob waved", types.Importance(2)),
		draft("alice", "bob left", types.Importance(4)),
	})
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.NotEqual(t, ids[0], ids[1], "identical text still yields distinct memories")

	calls := te.embedder.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"bob waved", "bob left"}, calls[0])

	// Already embedded text never reaches the provider again.
	_, err = te.AddMemories(ctx, []types.MemoryDraft{draft("alice", "bob waved", types.Importance(1))})
	require.NoError(t, err)
	assert.Len(t, te.embedder.calls(), 1)

	// Each memory owns its own embedding row.
	results, err := te.Search(ctx, "alice", hashVector("bob waved"), 10)
	require.NoError(t, err)
	require.Len(t, results, 4)
	embeddingIDs := map[string]bool{}
	for _, r := range results {
		embeddingIDs[r.Memory.EmbeddingID] = true
	}
	assert.Len(t, embeddingIDs, 4)
}

func TestAddMemories_ExplicitImportanceSkipsModel(t *testing.T) {
	te := newTestEngine(t, DefaultConfig())

	_, err := te.AddMemories(context.Background(), []types.MemoryDraft{
		draft("alice", "a", types.Importance(0)),
		draft("alice", "b", types.Importance(9)),
	})
	require.NoError(t, err)
	assert.Zero(t, te.lm.count(true))
}

func TestAddMemories_ScoresImportance(t *testing.T) {
	te := newTestEngine(t, DefaultConfig())
	te.lm.importanceReply = "Rating: 8"
	ctx := context.Background()

	_, err := te.AddMemories(ctx, []types.MemoryDraft{
		draft("alice", "got into college", nil),
		draft("alice", "brushed teeth", types.Importance(1)),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, te.lm.count(true))

	mems, err := te.store.RecentMemories(ctx, "alice", zeroTime, 10)
	require.NoError(t, err)
	byText := map[string]int{}
	for _, m := range mems {
		byText[m.Description] = m.Importance
	}
	assert.Equal(t, 8, byText["got into college"])
	assert.Equal(t, 1, byText["brushed teeth"])
}

func TestAddMemories_UnparsableImportanceDefaults(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	te := newTestEngine(t, DefaultConfig(), WithMetrics(metrics))
	te.lm.importanceReply = "quite important"
	ctx := context.Background()

	_, err := te.AddMemories(ctx, []types.MemoryDraft{draft("alice", "something", nil)})
	require.NoError(t, err)

	mems, err := te.store.RecentMemories(ctx, "alice", zeroTime, 10)
	require.NoError(t, err)
	require.Len(t, mems, 1)
	assert.Equal(t, types.DefaultImportance, mems[0].Importance)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ImportanceFallbacks))
}

func TestAddMemories_ModelErrorCommitsNothing(t *testing.T) {
	te := newTestEngine(t, DefaultConfig())
	te.lm.err = errors.New("model unavailable")
	ctx := context.Background()

	ids, err := te.AddMemories(ctx, []types.MemoryDraft{draft("alice", "x", nil)})
	assert.ErrorContains(t, err, "model unavailable")
	assert.Empty(t, ids)

	mems, err := te.store.RecentMemories(ctx, "alice", zeroTime, 10)
	require.NoError(t, err)
	assert.Empty(t, mems)
}

func TestAddMemories_EmbeddingCountMismatch(t *testing.T) {
	te := newTestEngine(t, DefaultConfig())
	te.embedder.extra = true
	ctx := context.Background()

	_, err := te.AddMemories(ctx, []types.MemoryDraft{draft("alice", "x", types.Importance(3))})
	assert.ErrorIs(t, err, ErrEmbeddingCountMismatch)

	mems, err := te.store.RecentMemories(ctx, "alice", zeroTime, 10)
	require.NoError(t, err)
	assert.Empty(t, mems)
}

func TestAddMemories_InvalidDraft(t *testing.T) {
	te := newTestEngine(t, DefaultConfig())

	tests := []struct {
		name  string
		draft types.MemoryDraft
	}{
		{"no agent", draft("", "x", nil)},
		{"no description", draft("alice", "", nil)},
		{"no payload", types.MemoryDraft{AgentID: "alice", Description: "x"}},
		{"importance too high", draft("alice", "x", types.Importance(10))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := te.AddMemories(context.Background(), []types.MemoryDraft{tt.draft})
			assert.ErrorIs(t, err, ErrInvalidDraft)
		})
	}
	assert.Empty(t, te.embedder.calls())
}

func TestAddMemories_Empty(t *testing.T) {
	te := newTestEngine(t, DefaultConfig())
	ids, err := te.AddMemories(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestAddMemories_Metrics(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	te := newTestEngine(t, DefaultConfig(), WithMetrics(metrics))
	ctx := context.Background()

	_, err := te.AddMemories(ctx, []types.MemoryDraft{
		draft("alice", "same", types.Importance(1)),
		draft("alice", "same", types.Importance(1)),
	})
	require.NoError(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.MemoriesIngested))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ProviderEmbeds))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheMisses))

	_, err = te.AddMemories(ctx, []types.MemoryDraft{draft("alice", "same", types.Importance(1))})
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ProviderEmbeds))
}

func TestSearch_ScopedToAgentWithoutAccesses(t *testing.T) {
	te := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	te.embedder.vectors["near"] = []float32{1, 0}
	te.embedder.vectors["far"] = []float32{0, 1}
	te.embedder.vectors["other agent"] = []float32{1, 0}

	_, err := te.AddMemories(ctx, []types.MemoryDraft{
		draft("alice", "far", types.Importance(1)),
		draft("alice", "near", types.Importance(1)),
		draft("bob", "other agent", types.Importance(1)),
	})
	require.NoError(t, err)

	results, err := te.Search(ctx, "alice", []float32{1, 0}, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "near", results[0].Memory.Description)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
	assert.Equal(t, "far", results[1].Memory.Description)

	for _, r := range results {
		assert.Equal(t, "alice", r.Memory.AgentID)
		_, err := te.store.LastAccess(ctx, r.Memory.ID)
		assert.Error(t, err, "search must not log accesses")
	}

	_, err = te.Search(ctx, "", []float32{1, 0}, 5)
	assert.Error(t, err)
}

// failingStore fails the failOn-th CommitMemory call (1-based).
type failingStore struct {
	*sqlite.Store
	mu     sync.Mutex
	calls  int
	failOn int
}

func (f *failingStore) CommitMemory(ctx context.Context, mem *types.Memory, emb *types.Embedding) error {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if n == f.failOn {
		return errors.New("disk full")
	}
	return f.Store.CommitMemory(ctx, mem, emb)
}

// recordingIndex remembers every upserted item.
type recordingIndex struct {
	storage.VectorIndex
	mu    sync.Mutex
	items []storage.VectorItem
}

func (r *recordingIndex) Upsert(ctx context.Context, namespace string, items []storage.VectorItem) error {
	r.mu.Lock()
	r.items = append(r.items, items...)
	r.mu.Unlock()
	return r.VectorIndex.Upsert(ctx, namespace, items)
}

func TestAddMemories_PartialCommitIndexesCommittedOnly(t *testing.T) {
	sq, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = sq.Close() }()

	store := &failingStore{Store: sq, failOn: 2}
	index := &recordingIndex{VectorIndex: chromem.New()}
	eng, err := NewMemoryEngine(Dependencies{
		Store:         store,
		Index:         index,
		Embedder:      &fakeEmbedder{vectors: map[string][]float32{}},
		LanguageModel: &scriptedLM{importanceReply: "5"},
	}, DefaultConfig())
	require.NoError(t, err)
	defer eng.Close()

	ctx := context.Background()
	ids, err := eng.AddMemories(ctx, []types.MemoryDraft{
		draft("alice", "one", types.Importance(1)),
		draft("alice", "two", types.Importance(2)),
		draft("alice", "three", types.Importance(3)),
	})
	require.ErrorContains(t, err, "disk full")
	require.Len(t, ids, 1)

	require.Len(t, index.items, 1)
	assert.Equal(t, ids[0], index.items[0].Metadata[storage.MetadataMemoryID])
	assert.Equal(t, "alice", index.items[0].Metadata[storage.MetadataAgentID])

	mems, err := sq.RecentMemories(ctx, "alice", zeroTime, 10)
	require.NoError(t, err)
	require.Len(t, mems, 1)
	assert.Equal(t, "one", mems[0].Description)

	results, err := eng.Search(ctx, "alice", hashVector("one"), 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ids[0], results[0].Memory.ID)
}
