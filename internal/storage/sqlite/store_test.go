package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-town/ai-town-cn/internal/storage"
	"github.com/ai-town/ai-town-cn/pkg/types"
)

// newTestStore creates an in-memory Store for tests and registers cleanup.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func commit(t *testing.T, store *Store, agentID, text string, importance int, payload types.Payload, at time.Time) *types.Memory {
	t.Helper()
	mem := &types.Memory{
		AgentID:     agentID,
		Description: text,
		Importance:  importance,
		Payload:     payload,
		CreatedAt:   at,
	}
	emb := &types.Embedding{Text: text, Vector: []float32{0.25, -1.5, 3}, CreatedAt: at}
	require.NoError(t, store.CommitMemory(context.Background(), mem, emb))
	return mem
}

func TestCommitMemoryRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 123, time.UTC)

	mem := commit(t, store, "agent-1", "likes tea", 7, types.RelationshipPayload{AgentID: "agent-2"}, at)
	require.NotEmpty(t, mem.ID)
	require.NotEmpty(t, mem.EmbeddingID)

	got, err := store.MemoryByEmbedding(ctx, "agent-1", mem.EmbeddingID)
	require.NoError(t, err)
	assert.Equal(t, mem.ID, got.ID)
	assert.Equal(t, "likes tea", got.Description)
	assert.Equal(t, 7, got.Importance)
	assert.Equal(t, types.RelationshipPayload{AgentID: "agent-2"}, got.Payload)
	assert.True(t, at.Equal(got.CreatedAt))

	emb, err := store.EmbeddingByText(ctx, "likes tea")
	require.NoError(t, err)
	assert.Equal(t, mem.EmbeddingID, emb.ID)
	assert.Equal(t, "agent-1", emb.AgentID)
	assert.Equal(t, []float32{0.25, -1.5, 3}, emb.Vector)
}

func TestMemoryByEmbeddingIsAgentScoped(t *testing.T) {
	store := newTestStore(t)
	mem := commit(t, store, "agent-1", "secret", 5, types.RelationshipPayload{AgentID: "x"}, time.Now())

	_, err := store.MemoryByEmbedding(context.Background(), "agent-2", mem.EmbeddingID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCommitMemoryRejectsInvalidInput(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		mem  *types.Memory
		emb  *types.Embedding
	}{
		{"nil memory", nil, &types.Embedding{Text: "a", Vector: []float32{1}}},
		{"importance out of range", &types.Memory{AgentID: "a", Description: "d", Importance: 10, Payload: types.ConversationPayload{ConversationID: "c"}}, &types.Embedding{Text: "a", Vector: []float32{1}}},
		{"missing payload", &types.Memory{AgentID: "a", Description: "d", Importance: 1}, &types.Embedding{Text: "a", Vector: []float32{1}}},
		{"empty vector", &types.Memory{AgentID: "a", Description: "d", Importance: 1, Payload: types.ConversationPayload{ConversationID: "c"}}, &types.Embedding{Text: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, store.CommitMemory(ctx, tt.mem, tt.emb), storage.ErrInvalidInput)
		})
	}

	// A failed commit leaves no embedding behind.
	_, err := store.EmbeddingByText(ctx, "a")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCommitMemoryRollsBackEmbeddingOnMemoryFailure(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	first := commit(t, store, "alice", "first", 3, types.RelationshipPayload{AgentID: "bob"}, at)

	// The embedding row inserts fine; the memory row collides on its ID.
	dup := &types.Memory{
		ID:          first.ID,
		AgentID:     "alice",
		Description: "second",
		Importance:  3,
		Payload:     types.RelationshipPayload{AgentID: "bob"},
		CreatedAt:   at.Add(time.Minute),
	}
	emb := &types.Embedding{Text: "second", Vector: []float32{1, 2}, CreatedAt: at.Add(time.Minute)}
	require.Error(t, store.CommitMemory(ctx, dup, emb))

	_, err := store.EmbeddingByText(ctx, "second")
	assert.ErrorIs(t, err, storage.ErrNotFound, "embedding must be rolled back with the memory")

	mems, err := store.RecentMemories(ctx, "alice", time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, mems, 1)
	assert.Equal(t, "first", mems[0].Description)
}

func TestEmbeddingByTextReturnsNewest(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	commit(t, store, "a", "same", 1, types.RelationshipPayload{AgentID: "b"}, base)
	newer := commit(t, store, "a", "same", 1, types.RelationshipPayload{AgentID: "b"}, base.Add(time.Hour))

	emb, err := store.EmbeddingByText(context.Background(), "same")
	require.NoError(t, err)
	assert.Equal(t, newer.EmbeddingID, emb.ID)

	_, err = store.EmbeddingByText(context.Background(), "Same")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLatestConversationMemory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	commit(t, store, "a", "first", 3, types.ConversationPayload{ConversationID: "c1"}, base)
	second := commit(t, store, "a", "second", 3, types.ConversationPayload{ConversationID: "c1"}, base.Add(time.Minute))
	commit(t, store, "a", "other", 3, types.ConversationPayload{ConversationID: "c2"}, base.Add(time.Hour))

	got, err := store.LatestConversationMemory(ctx, "a", "c1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	_, err = store.LatestConversationMemory(ctx, "b", "c1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLatestMemoryOfKindAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	m1 := commit(t, store, "a", "one", 2, types.RelationshipPayload{AgentID: "b"}, base)
	refl := commit(t, store, "a", "insight", 8, types.ReflectionPayload{RelatedMemoryIDs: []string{m1.ID}}, base.Add(time.Minute))
	m3 := commit(t, store, "a", "three", 4, types.RelationshipPayload{AgentID: "b"}, base.Add(2*time.Minute))

	got, err := store.LatestMemoryOfKind(ctx, "a", types.PayloadReflection, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, refl.ID, got.ID)
	assert.Equal(t, types.ReflectionPayload{RelatedMemoryIDs: []string{m1.ID}}, got.Payload)

	_, err = store.LatestMemoryOfKind(ctx, "a", types.PayloadReflection, refl.CreatedAt)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	recent, err := store.RecentMemories(ctx, "a", refl.CreatedAt, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, m3.ID, recent[0].ID)

	all, err := store.RecentMemories(ctx, "a", time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, m3.ID, all[0].ID)
	assert.Equal(t, refl.ID, all[1].ID)
}

func TestAccessLog(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	m1 := commit(t, store, "a", "one", 2, types.RelationshipPayload{AgentID: "b"}, base)
	m2 := commit(t, store, "a", "two", 2, types.RelationshipPayload{AgentID: "b"}, base)

	_, err := store.LastAccess(ctx, m1.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.RecordAccesses(ctx, []string{m1.ID, m2.ID}, base.Add(time.Hour)))
	require.NoError(t, store.RecordAccesses(ctx, []string{m1.ID}, base.Add(2*time.Hour)))
	require.NoError(t, store.RecordAccesses(ctx, nil, base))

	last, err := store.LastAccess(ctx, m1.ID)
	require.NoError(t, err)
	assert.Equal(t, m1.ID, last.MemoryID)
	assert.True(t, base.Add(2*time.Hour).Equal(last.CreatedAt))

	last, err = store.LastAccess(ctx, m2.ID)
	require.NoError(t, err)
	assert.True(t, base.Add(time.Hour).Equal(last.CreatedAt))
}

func TestRecordAccessesIsAtomic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	m1 := commit(t, store, "a", "one", 2, types.RelationshipPayload{AgentID: "b"}, time.Now())

	err := store.RecordAccesses(ctx, []string{m1.ID, "missing"}, time.Now())
	require.Error(t, err)

	_, err = store.LastAccess(ctx, m1.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestConversationMessages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	msgs := []*types.Message{
		{ConversationID: "c1", AuthorID: "alice", AuthorName: "Alice", RecipientIDs: []string{"bob"}, Text: "hi bob", CreatedAt: base},
		{ConversationID: "c1", AuthorID: "bob", AuthorName: "Bob", RecipientIDs: []string{"alice"}, Text: "hi alice", CreatedAt: base.Add(time.Second)},
		{ConversationID: "c1", AuthorID: "carol", AuthorName: "Carol", RecipientIDs: []string{"dave"}, Text: "aside", CreatedAt: base.Add(2 * time.Second)},
		{ConversationID: "c2", AuthorID: "alice", AuthorName: "Alice", Text: "elsewhere", CreatedAt: base.Add(3 * time.Second)},
	}
	for _, m := range msgs {
		require.NoError(t, store.AddMessage(ctx, m))
		require.NotEmpty(t, m.ID)
	}

	got, err := store.ConversationMessages(ctx, "c1", "bob", time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "hi bob", got[0].Text)
	assert.Equal(t, "hi alice", got[1].Text)
	assert.Equal(t, []string{"alice"}, got[1].RecipientIDs)

	got, err = store.ConversationMessages(ctx, "c1", "bob", base)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hi alice", got[0].Text)

	assert.ErrorIs(t, store.AddMessage(ctx, &types.Message{Text: "orphan"}), storage.ErrInvalidInput)
}

func TestEmbeddingCodec(t *testing.T) {
	vec := []float32{0, 1, -1, 3.1415927, 1e-7}
	buf, err := serializeEmbedding(vec)
	require.NoError(t, err)
	assert.Len(t, buf, len(vec)*4)

	got, err := deserializeEmbedding(buf, len(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = deserializeEmbedding(buf, len(vec)+1)
	assert.Error(t, err)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memories.db")

	store, err := NewStore(path)
	require.NoError(t, err)
	mem := commit(t, store, "a", "durable", 6, types.RelationshipPayload{AgentID: "b"}, time.Now())
	require.NoError(t, store.Close())

	store, err = NewStore(path)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.MemoryByEmbedding(context.Background(), "a", mem.EmbeddingID)
	require.NoError(t, err)
	assert.Equal(t, mem.ID, got.ID)
}

func TestDBPathFromDSN(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{":memory:", ""},
		{"", ""},
		{"file::memory:?cache=shared", ""},
		{"file:/tmp/a.db?_pragma=x", "/tmp/a.db"},
		{"/var/lib/town.db", "/var/lib/town.db"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, dbPathFromDSN(tt.dsn), tt.dsn)
	}
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "live.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	mem := commit(t, store, "alice", "snapshotted", 4, types.RelationshipPayload{AgentID: "bob"}, time.Now())

	dest := filepath.Join(dir, "snap.db")
	require.NoError(t, store.Snapshot(ctx, dest))
	assert.Error(t, store.Snapshot(ctx, dest), "existing target is not overwritten")

	snap, err := NewStore(dest)
	require.NoError(t, err)
	defer func() { _ = snap.Close() }()
	got, err := snap.MemoryByEmbedding(ctx, "alice", mem.EmbeddingID)
	require.NoError(t, err)
	assert.Equal(t, mem.ID, got.ID)
}
