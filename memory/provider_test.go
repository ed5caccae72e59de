package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/poiesic/recall/ai/mock"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/routing"
	"github.com/poiesic/recall/storage"
	"github.com/poiesic/recall/storage/badger"
	"github.com/poiesic/recall/storage/chromem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	repo      *badger.Repository
	index     *chromem.Index
	completer *mock.MockCompleter
	provider  *Provider

	caller core.Caller
	other  core.Caller
	group  *core.Group
}

// respondFunc answers model calls by system prompt. Anything unhandled gets an
// empty reply, which ranks nothing and names nothing.
type respondFunc func(call mock.Call) (string, error)

func newFixture(t *testing.T, respond respondFunc, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()

	repo, err := badger.NewMemoryRepository()
	require.NoError(t, err)
	index, err := chromem.NewIndex(mock.NewMockEmbedder())
	require.NoError(t, err)

	completer := mock.NewMockCompleter().WithRespondFunc(func(_ context.Context, call mock.Call) (string, error) {
		if respond != nil {
			return respond(call)
		}
		return "", nil
	})
	router, err := routing.NewRouter(completer)
	require.NoError(t, err)

	provider, err := NewProvider(repo, index, completer, router, opts...)
	require.NoError(t, err)

	ada, err := repo.AddUser(ctx, &core.User{Name: "ada"})
	require.NoError(t, err)
	bob, err := repo.AddUser(ctx, &core.User{Name: "bob"})
	require.NoError(t, err)
	group, err := repo.AddGroup(ctx, &core.Group{Name: "team", Members: []core.ID{ada.Id}})
	require.NoError(t, err)

	t.Cleanup(func() {
		provider.Close()
		router.Release()
		index.Close()
		repo.Close()
	})
	return &fixture{
		repo:      repo,
		index:     index,
		completer: completer,
		provider:  provider,
		caller:    core.Caller{UserId: ada.Id, Groups: []core.ID{group.Id}},
		other:     core.Caller{UserId: bob.Id},
		group:     group,
	}
}

func (f *fixture) store(t *testing.T, title string, owner core.Owner) *core.MemoryStore {
	t.Helper()
	s, err := f.provider.CreateStore(context.Background(), f.caller, &core.MemoryStore{Title: title, Owner: owner})
	require.NoError(t, err)
	return s
}

func (f *fixture) memory(t *testing.T, storeID core.ID, title, content string) *core.Memory {
	t.Helper()
	m, err := f.provider.CreateMemory(context.Background(), f.caller, &core.Memory{
		StoreId:     storeID,
		Title:       title,
		Description: content,
		Content:     content,
	})
	require.NoError(t, err)
	return m
}

func TestNewProvider(t *testing.T) {
	repo, err := badger.NewMemoryRepository()
	require.NoError(t, err)
	defer repo.Close()
	index, err := chromem.NewIndex(mock.NewMockEmbedder())
	require.NoError(t, err)
	completer := mock.NewMockCompleter()
	router, err := routing.NewRouter(completer)
	require.NoError(t, err)
	defer router.Release()

	t.Run("valid configuration", func(t *testing.T) {
		p, err := NewProvider(repo, index, completer, router, WithLogger(nil), WithReranker(nil), WithMonitor(nil))
		require.NoError(t, err)
		assert.NoError(t, p.Close())
	})

	t.Run("missing dependencies", func(t *testing.T) {
		_, err := NewProvider(nil, index, completer, router)
		assert.Equal(t, ErrRepositoryRequired, err)
		_, err = NewProvider(repo, nil, completer, router)
		assert.Equal(t, ErrIndexRequired, err)
		_, err = NewProvider(repo, index, nil, router)
		assert.Equal(t, ErrCompleterRequired, err)
		_, err = NewProvider(repo, index, completer, nil)
		assert.Equal(t, ErrRouterRequired, err)
	})

	t.Run("invalid fallback tuning", func(t *testing.T) {
		_, err := NewProvider(repo, index, completer, router, WithFallbackRetainRatio(1.5))
		assert.Error(t, err)
		_, err = NewProvider(repo, index, completer, router, WithFallbackVectorWeight(-0.1))
		assert.Error(t, err)
	})
}

func TestCreateStore(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	s := f.store(t, "Recipes", core.Owner{})
	assert.Equal(t, core.UserOwner(f.caller.UserId), s.Owner)

	g := f.store(t, "Team notes", core.GroupOwner(f.group.Id))
	assert.Equal(t, core.GroupOwner(f.group.Id), g.Owner)

	_, err := f.provider.CreateStore(ctx, f.other, &core.MemoryStore{Title: "x", Owner: core.GroupOwner(f.group.Id)})
	assert.ErrorIs(t, err, ErrAccessDenied)

	stores, err := f.provider.ListStores(ctx, f.caller)
	require.NoError(t, err)
	assert.Len(t, stores, 2)

	stores, err = f.provider.ListStores(ctx, f.other)
	require.NoError(t, err)
	assert.Empty(t, stores)

	_, err = f.provider.GetStore(ctx, f.other, s.Id)
	assert.ErrorIs(t, err, ErrStoreNotFound)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateStore_KeepsOwner(t *testing.T) {
	f := newFixture(t, nil)
	s := f.store(t, "Recipes", core.Owner{})

	updated, err := f.provider.UpdateStore(context.Background(), f.caller, &core.MemoryStore{
		Id:    s.Id,
		Title: "Cooking",
		Owner: core.GroupOwner(f.group.Id),
	})
	require.NoError(t, err)
	assert.Equal(t, "Cooking", updated.Title)
	assert.Equal(t, s.Owner, updated.Owner)
}

func TestCreateMemory_SynthesizesDescription(t *testing.T) {
	f := newFixture(t, func(call mock.Call) (string, error) {
		if call.System == describeMemoryPrompt {
			return `"Notes on the office coffee machine."`, nil
		}
		return "", nil
	})
	ctx := context.Background()
	s := f.store(t, "Office", core.Owner{})

	m, err := f.provider.CreateMemory(ctx, f.caller, &core.Memory{
		StoreId: s.Id,
		Title:   "Coffee",
		Content: "Descale the machine every Friday.",
	})
	require.NoError(t, err)
	assert.Equal(t, "Notes on the office coffee machine.", m.Description)
	assert.Equal(t, s.Owner, m.Owner)

	f.provider.WaitSync()
	assert.Equal(t, 3, f.index.Count(s.Owner))
}

func TestCreateMemory_DescriptionFallsBackToContent(t *testing.T) {
	f := newFixture(t, func(call mock.Call) (string, error) {
		return "", errors.New("model offline")
	})
	s := f.store(t, "Office", core.Owner{})

	m, err := f.provider.CreateMemory(context.Background(), f.caller, &core.Memory{
		StoreId: s.Id,
		Content: "Descale the machine\nevery Friday.",
	})
	require.NoError(t, err)
	assert.Equal(t, "Descale the machine every Friday.", m.Description)
}

func TestCreateMemory_RoutesToBestStore(t *testing.T) {
	var cooking, code *core.MemoryStore
	f := newFixture(t, func(call mock.Call) (string, error) {
		if strings.Contains(call.User, "| Programming |") {
			return routing.FormatWeights(
				routing.Weight{ID: cooking.Id, Weight: 5},
				routing.Weight{ID: code.Id, Weight: 95},
			), nil
		}
		return "", nil
	})
	cooking = f.store(t, "Cooking", core.Owner{})
	code = f.store(t, "Programming", core.Owner{})

	m := f.memory(t, 0, "Goroutines", "Goroutines are cheap threads.")
	assert.Equal(t, code.Id, m.StoreId)
}

func TestCreateMemory_NoRouteCreatesStore(t *testing.T) {
	f := newFixture(t, func(call mock.Call) (string, error) {
		if call.System == nameStorePrompt {
			return "```json\n{\"title\": \"Garden\", \"description\": \"Plants and soil.\"}\n```", nil
		}
		return "", nil
	})
	ctx := context.Background()

	m := f.memory(t, 0, "Tomatoes", "Tomatoes need full sun.")
	store, err := f.provider.GetStore(ctx, f.caller, m.StoreId)
	require.NoError(t, err)
	assert.Equal(t, "Garden", store.Title)
	assert.Equal(t, "Plants and soil.", store.Description)
	assert.Equal(t, core.UserOwner(f.caller.UserId), store.Owner)

	// An existing store ranked at zero is not a route either.
	m2 := f.memory(t, 0, "Invoices", "Invoices are due on the first.")
	assert.NotEqual(t, m.StoreId, m2.StoreId)
}

func TestCreateMemory_NamingFailureUsesTitle(t *testing.T) {
	f := newFixture(t, func(call mock.Call) (string, error) {
		if call.System == nameStorePrompt {
			return "", errors.New("model offline")
		}
		return "", nil
	})

	m := f.memory(t, 0, "Tomatoes", "Tomatoes need full sun.")
	store, err := f.provider.GetStore(context.Background(), f.caller, m.StoreId)
	require.NoError(t, err)
	assert.Equal(t, "Tomatoes", store.Title)
}

func TestCreateMemory_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	s := f.store(t, "Office", core.Owner{})

	_, err := f.provider.CreateMemory(ctx, f.caller, &core.Memory{StoreId: s.Id, Title: "empty"})
	assert.ErrorIs(t, err, core.ErrInvalidMemory)

	_, err = f.provider.CreateMemory(ctx, f.other, &core.Memory{StoreId: s.Id, Content: "sneaky"})
	assert.ErrorIs(t, err, ErrStoreNotFound)
}

func TestGetMemory_Visibility(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	s := f.store(t, "Private", core.Owner{})
	m := f.memory(t, s.Id, "Secret", "The password is swordfish.")

	got, err := f.provider.GetMemory(ctx, f.caller, m.Id)
	require.NoError(t, err)
	assert.Equal(t, m.Content, got.Content)

	_, err = f.provider.GetMemory(ctx, f.other, m.Id)
	assert.ErrorIs(t, err, ErrMemoryNotFound)

	_, err = f.provider.ListMemories(ctx, f.other, s.Id)
	assert.ErrorIs(t, err, ErrStoreNotFound)

	list, err := f.provider.ListMemories(ctx, f.caller, s.Id)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestUpdateMemory(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	personal := f.store(t, "Personal", core.Owner{})
	team := f.store(t, "Team", core.GroupOwner(f.group.Id))
	m := f.memory(t, personal.Id, "Standup", "Standup is at nine.")
	f.provider.WaitSync()

	t.Run("merges non-zero fields", func(t *testing.T) {
		updated, err := f.provider.UpdateMemory(ctx, f.caller, &core.Memory{
			Id:      m.Id,
			Content: "Standup is at ten.",
			Pinned:  true,
		})
		require.NoError(t, err)
		assert.Equal(t, "Standup", updated.Title)
		assert.Equal(t, "Standup is at ten.", updated.Content)
		assert.True(t, updated.Pinned)
	})

	t.Run("moving stores moves vectors", func(t *testing.T) {
		updated, err := f.provider.UpdateMemory(ctx, f.caller, &core.Memory{Id: m.Id, StoreId: team.Id})
		require.NoError(t, err)
		assert.Equal(t, team.Owner, updated.Owner)

		f.provider.WaitSync()
		assert.Equal(t, 0, f.index.Count(personal.Owner))
		assert.Equal(t, 3, f.index.Count(team.Owner))
	})

	t.Run("replace clears unset fields", func(t *testing.T) {
		replaced, err := f.provider.ReplaceMemory(ctx, f.caller, &core.Memory{
			Id:          m.Id,
			Description: "Meeting time.",
			Content:     "Standup moved to eleven.",
		})
		require.NoError(t, err)
		assert.Empty(t, replaced.Title)
		assert.False(t, replaced.Pinned)
		assert.Equal(t, team.Id, replaced.StoreId)

		f.provider.WaitSync()
		assert.Equal(t, 2, f.index.Count(team.Owner))
	})

	t.Run("invisible memory", func(t *testing.T) {
		_, err := f.provider.UpdateMemory(ctx, f.other, &core.Memory{Id: m.Id, Content: "x"})
		assert.ErrorIs(t, err, ErrMemoryNotFound)
	})
}

func TestDeleteMemory(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	s := f.store(t, "Office", core.Owner{})
	m := f.memory(t, s.Id, "Coffee", "Descale on Friday.")
	keep := f.memory(t, s.Id, "Tea", "Kettle is in the cupboard.")
	f.provider.WaitSync()
	require.Equal(t, 6, f.index.Count(s.Owner))

	require.NoError(t, f.provider.DeleteMemory(ctx, f.caller, m.Id))
	f.provider.WaitSync()

	_, err := f.provider.GetMemory(ctx, f.caller, m.Id)
	assert.ErrorIs(t, err, ErrMemoryNotFound)
	assert.Equal(t, 3, f.index.Count(s.Owner))

	_, err = f.provider.GetMemory(ctx, f.caller, keep.Id)
	assert.NoError(t, err)
}

func TestDeleteMemoryByTitle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.store(t, "A", core.Owner{})
	b := f.store(t, "B", core.Owner{})
	f.memory(t, a.Id, "Todo", "Buy milk.")
	f.memory(t, b.Id, "todo", "Call the plumber.")
	f.memory(t, b.Id, "Unique", "Only one of these.")

	err := f.provider.DeleteMemoryByTitle(ctx, f.caller, 0, "TODO")
	assert.ErrorIs(t, err, ErrAmbiguousTitle)

	require.NoError(t, f.provider.DeleteMemoryByTitle(ctx, f.caller, a.Id, "todo"))
	require.NoError(t, f.provider.DeleteMemoryByTitle(ctx, f.caller, 0, "unique"))

	err = f.provider.DeleteMemoryByTitle(ctx, f.caller, 0, "missing")
	assert.ErrorIs(t, err, ErrMemoryNotFound)

	left, err := f.provider.ListMemories(ctx, f.caller, b.Id)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "Call the plumber.", left[0].Content)
}

func TestDeleteStore_RemovesRowsAndVectors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	s := f.store(t, "Doomed", core.Owner{})
	other := f.store(t, "Survivor", core.Owner{})
	var ids []core.ID
	for i := range 4 {
		m := f.memory(t, s.Id, fmt.Sprintf("note %d", i), fmt.Sprintf("content number %d", i))
		ids = append(ids, m.Id)
	}
	f.memory(t, other.Id, "kept", "this one stays")

	// Deleting before the syncs drain must still leave nothing behind.
	require.NoError(t, f.provider.DeleteStore(ctx, f.caller, s.Id))
	f.provider.WaitSync()

	_, err := f.provider.GetStore(ctx, f.caller, s.Id)
	assert.ErrorIs(t, err, ErrStoreNotFound)
	found, err := f.repo.GetMemories(ctx, ids...)
	require.NoError(t, err)
	assert.Empty(t, found)

	hits, err := f.index.Search(ctx, storage.VectorQuery{
		Text:    "content number",
		TopK:    50,
		Owners:  []core.Owner{s.Owner},
		StoreID: s.Id,
	})
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, 3, f.index.Count(s.Owner))
}

func TestDeleteStoreByTitle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.store(t, "Inbox", core.Owner{})
	f.store(t, "inbox", core.GroupOwner(f.group.Id))
	f.store(t, "Archive", core.Owner{})

	assert.ErrorIs(t, f.provider.DeleteStoreByTitle(ctx, f.caller, "INBOX"), ErrAmbiguousTitle)
	assert.ErrorIs(t, f.provider.DeleteStoreByTitle(ctx, f.caller, "missing"), ErrStoreNotFound)
	assert.ErrorIs(t, f.provider.DeleteStoreByTitle(ctx, f.other, "archive"), ErrStoreNotFound)
	require.NoError(t, f.provider.DeleteStoreByTitle(ctx, f.caller, " archive "))

	stores, err := f.provider.ListStores(ctx, f.caller)
	require.NoError(t, err)
	assert.Len(t, stores, 2)
}

func TestPublishStore(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	s := f.store(t, "Runbooks", core.Owner{})
	f.memory(t, s.Id, "Restart", "Restart the api with make restart.")
	f.memory(t, s.Id, "Logs", "Logs live in /var/log/api.")
	f.provider.WaitSync()

	t.Run("non-member", func(t *testing.T) {
		_, err := f.provider.PublishStore(ctx, f.other, s.Id, f.group.Id)
		assert.ErrorIs(t, err, ErrNotMember)
	})

	t.Run("unknown group", func(t *testing.T) {
		_, err := f.provider.PublishStore(ctx, f.caller, s.Id, f.group.Id+100)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("moves store and memories", func(t *testing.T) {
		published, err := f.provider.PublishStore(ctx, f.caller, s.Id, f.group.Id)
		require.NoError(t, err)
		assert.Equal(t, core.GroupOwner(f.group.Id), published.Owner)

		memories, err := f.provider.ListMemories(ctx, f.caller, s.Id)
		require.NoError(t, err)
		for _, m := range memories {
			assert.Equal(t, published.Owner, m.Owner)
		}

		f.provider.WaitSync()
		assert.Equal(t, 0, f.index.Count(core.UserOwner(f.caller.UserId)))
		assert.Equal(t, 6, f.index.Count(published.Owner))
	})

	t.Run("group stores cannot be republished", func(t *testing.T) {
		_, err := f.provider.PublishStore(ctx, f.caller, s.Id, f.group.Id)
		assert.ErrorIs(t, err, ErrAccessDenied)
	})
}

func TestImportStore_AndGetReference(t *testing.T) {
	f := newFixture(t, func(call mock.Call) (string, error) {
		if call.System == describeMemoryPrompt {
			return "Synthesized.", nil
		}
		return "", nil
	})
	ctx := context.Background()

	ref := &core.IngestionReference{
		Id:         core.IDFromContent("handbook.pdf\x000\x00Vacation policy text."),
		Source:     "handbook.pdf",
		Content:    "Vacation policy text.",
		BaseLength: len("Vacation policy text."),
	}
	memories := []*core.Memory{
		{Title: "Vacation", Description: "Leave policy.", Content: "Twenty days of leave.", RefType: core.RefDocument, Reference: fmt.Sprint(uint64(ref.Id))},
		{Title: "Undescribed", Content: "No description here."},
	}

	store, err := f.provider.ImportStore(ctx, f.caller, &core.MemoryStore{Title: "Handbook"}, memories, []*core.IngestionReference{ref})
	require.NoError(t, err)
	assert.Equal(t, core.UserOwner(f.caller.UserId), store.Owner)

	list, err := f.provider.ListMemories(ctx, f.caller, store.Id)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Synthesized.", list[1].Description)

	got, err := f.provider.GetReference(ctx, f.caller, list[0].Id)
	require.NoError(t, err)
	assert.Equal(t, ref.Content, got.Content)

	_, err = f.provider.GetReference(ctx, f.caller, list[1].Id)
	assert.ErrorIs(t, err, ErrNoReference)

	_, err = f.provider.GetReference(ctx, f.other, list[0].Id)
	assert.ErrorIs(t, err, ErrMemoryNotFound)

	f.provider.WaitSync()
	assert.Equal(t, 6, f.index.Count(store.Owner))
}

func TestReplaceStore(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	s := f.store(t, "Drafts", core.Owner{})
	old := f.memory(t, s.Id, "Old", "Old content.")
	f.provider.WaitSync()

	updated, err := f.provider.ReplaceStore(ctx, f.caller, &core.MemoryStore{Id: s.Id, Title: "Final"}, []*core.Memory{
		{Title: "New one", Description: "first", Content: "Fresh content."},
		{Title: "New two", Description: "second", Content: "More fresh content."},
	})
	require.NoError(t, err)
	assert.Equal(t, "Final", updated.Title)

	list, err := f.provider.ListMemories(ctx, f.caller, s.Id)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, m := range list {
		assert.NotEqual(t, old.Id, m.Id)
	}

	f.provider.WaitSync()
	assert.Equal(t, 6, f.index.Count(s.Owner))
}
