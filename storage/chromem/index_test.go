package chromem

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/recall/ai/mock"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) (*Index, *mock.MockEmbedder) {
	t.Helper()
	embedder := mock.NewMockEmbedder()
	ix, err := NewIndex(embedder)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })
	return ix, embedder
}

func testMemory(id, store core.ID, owner core.Owner, title, desc, content string) *core.Memory {
	return &core.Memory{
		Id:          id,
		StoreId:     store,
		Owner:       owner,
		Title:       title,
		Description: desc,
		Content:     content,
	}
}

func TestIndexUpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	ix, _ := newTestIndex(t)
	alice := core.UserOwner(1)

	require.NoError(t, ix.Upsert(ctx, testMemory(10, 1, alice,
		"sourdough starter", "feeding schedule for the sourdough starter", "flour and water twice a day")))
	require.NoError(t, ix.Upsert(ctx, testMemory(11, 1, alice,
		"bicycle maintenance", "chain lubrication intervals", "clean and oil the chain monthly")))
	assert.Equal(t, 6, ix.Count(alice))

	hits, err := ix.Search(ctx, storage.VectorQuery{Text: "sourdough starter feeding", TopK: 5, Owners: []core.Owner{alice}})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, core.ID(10), hits[0].MemoryID)
	assert.Equal(t, core.ID(1), hits[0].StoreID)
	assert.Equal(t, alice, hits[0].Owner)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestIndexSkipsEmptyTitle(t *testing.T) {
	ctx := context.Background()
	ix, _ := newTestIndex(t)
	owner := core.UserOwner(1)

	require.NoError(t, ix.Upsert(ctx, testMemory(1, 1, owner, "", "a description", "some content")))
	assert.Equal(t, 2, ix.Count(owner))

	// Re-indexing with a title replaces the old documents.
	require.NoError(t, ix.Upsert(ctx, testMemory(1, 1, owner, "titled", "a description", "some content")))
	assert.Equal(t, 3, ix.Count(owner))
}

func TestIndexRejectsEmptyDescription(t *testing.T) {
	ix, _ := newTestIndex(t)
	err := ix.Upsert(context.Background(), testMemory(1, 1, core.UserOwner(1), "t", "", "c"))
	assert.ErrorIs(t, err, storage.ErrEmptyDescription)
}

func TestIndexNamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	ix, _ := newTestIndex(t)
	alice := core.UserOwner(1)
	team := core.GroupOwner(7)

	require.NoError(t, ix.Upsert(ctx, testMemory(1, 1, alice, "private note", "alice only", "secret garden plans")))
	require.NoError(t, ix.Upsert(ctx, testMemory(2, 2, team, "team note", "shared garden plans", "garden rota")))

	hits, err := ix.Search(ctx, storage.VectorQuery{Text: "garden plans", TopK: 10, Owners: []core.Owner{core.UserOwner(2)}})
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = ix.Search(ctx, storage.VectorQuery{Text: "garden plans", TopK: 10, Owners: []core.Owner{team}})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, h := range hits {
		assert.Equal(t, core.ID(2), h.MemoryID)
		assert.Equal(t, team, h.Owner)
	}

	hits, err = ix.Search(ctx, storage.VectorQuery{Text: "garden plans", TopK: 10, Owners: []core.Owner{alice, team}})
	require.NoError(t, err)
	seen := map[core.ID]bool{}
	for _, h := range hits {
		seen[h.MemoryID] = true
	}
	assert.Equal(t, map[core.ID]bool{1: true, 2: true}, seen)
}

func TestIndexStoreAndFieldFilters(t *testing.T) {
	ctx := context.Background()
	ix, _ := newTestIndex(t)
	owner := core.UserOwner(1)

	require.NoError(t, ix.Upsert(ctx, testMemory(1, 1, owner, "tea", "green tea brewing", "eighty degrees")))
	require.NoError(t, ix.Upsert(ctx, testMemory(2, 2, owner, "tea", "black tea brewing", "boiling water")))

	hits, err := ix.Search(ctx, storage.VectorQuery{Text: "tea brewing", TopK: 10, Owners: []core.Owner{owner}, StoreID: 2})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, h := range hits {
		assert.Equal(t, core.ID(2), h.StoreID)
	}

	hits, err = ix.Search(ctx, storage.VectorQuery{
		Text: "tea", TopK: 10, Owners: []core.Owner{owner}, Fields: []storage.Field{storage.FieldTitle},
	})
	require.NoError(t, err)
	assert.Len(t, hits, 2)
	for _, h := range hits {
		assert.Equal(t, storage.FieldTitle, h.Field)
	}
}

func TestIndexDelete(t *testing.T) {
	ctx := context.Background()
	ix, _ := newTestIndex(t)
	owner := core.UserOwner(1)

	require.NoError(t, ix.Upsert(ctx, testMemory(1, 1, owner, "a", "first", "one")))
	require.NoError(t, ix.Upsert(ctx, testMemory(2, 1, owner, "b", "second", "two")))
	require.NoError(t, ix.Upsert(ctx, testMemory(3, 2, owner, "c", "third", "three")))

	require.NoError(t, ix.Delete(ctx, owner, 1))
	assert.Equal(t, 6, ix.Count(owner))

	require.NoError(t, ix.DeleteStore(ctx, owner, 1))
	assert.Equal(t, 3, ix.Count(owner))

	// Unknown namespace and unknown memory are no-ops.
	assert.NoError(t, ix.Delete(ctx, core.GroupOwner(99), 1))
	assert.NoError(t, ix.Delete(ctx, owner, 42))
}

func TestIndexSearchValidation(t *testing.T) {
	ix, _ := newTestIndex(t)
	ctx := context.Background()

	_, err := ix.Search(ctx, storage.VectorQuery{Text: "", TopK: 1, Owners: []core.Owner{core.UserOwner(1)}})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	_, err = ix.Search(ctx, storage.VectorQuery{Text: "x", TopK: 0, Owners: []core.Owner{core.UserOwner(1)}})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)

	hits, err := ix.Search(ctx, storage.VectorQuery{Text: "x", TopK: 3})
	assert.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndexEmbeddingCache(t *testing.T) {
	ctx := context.Background()
	ix, embedder := newTestIndex(t)
	owner := core.UserOwner(1)

	m := testMemory(1, 1, owner, "cached", "cached description", "cached content")
	require.NoError(t, ix.Upsert(ctx, m))
	ix.cache.wait()
	calls := embedder.CallCount()

	require.NoError(t, ix.Upsert(ctx, m))
	assert.Equal(t, calls, embedder.CallCount(), "re-indexing unchanged text should hit the cache")
}

func TestIndexEmbedderFailure(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("embedding service down")
	}
	ix, err := NewIndex(embedder, WithCacheSize(0))
	require.NoError(t, err)
	defer ix.Close()

	err = ix.Upsert(context.Background(), testMemory(1, 1, core.UserOwner(1), "t", "d", "c"))
	assert.Error(t, err)
	assert.Equal(t, 0, ix.Count(core.UserOwner(1)))
}

func TestIndexZeroVector(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = make([]float32, 4)
		}
		return out, nil
	}
	ix, err := NewIndex(embedder)
	require.NoError(t, err)
	defer ix.Close()

	err = ix.Upsert(context.Background(), testMemory(1, 1, core.UserOwner(1), "t", "d", "c"))
	assert.ErrorIs(t, err, ErrZeroVector)
}

func TestIndexPersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	owner := core.GroupOwner(3)

	ix, err := NewIndex(mock.NewMockEmbedder(), WithPersistence(dir, false))
	require.NoError(t, err)
	require.NoError(t, ix.Upsert(ctx, testMemory(5, 2, owner, "kept", "survives reopen", "on disk")))
	require.NoError(t, ix.Close())

	reopened, err := NewIndex(mock.NewMockEmbedder(), WithPersistence(dir, false))
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 3, reopened.Count(owner))

	hits, err := reopened.Search(ctx, storage.VectorQuery{Text: "survives reopen", TopK: 3, Owners: []core.Owner{owner}})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, core.ID(5), hits[0].MemoryID)
}
