package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/ingestion"
	"github.com/poiesic/recall/storage"
)

var _ ingestion.Persister = (*Provider)(nil)

// CreateStore adds a memory store. A store without an owner belongs to the caller.
func (p *Provider) CreateStore(ctx context.Context, caller core.Caller, store *core.MemoryStore) (*core.MemoryStore, error) {
	if store.Owner.IsZero() {
		store.Owner = core.UserOwner(caller.UserId)
	}
	if !caller.CanSee(store.Owner) {
		return nil, fmt.Errorf("%w: cannot create store for %v", ErrAccessDenied, store.Owner)
	}
	created, err := p.repo.AddStore(ctx, store)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("created store", "store_id", created.Id, "owner", created.Owner)
	return created, nil
}

// GetStore returns a store the caller can see.
func (p *Provider) GetStore(ctx context.Context, caller core.Caller, id core.ID) (*core.MemoryStore, error) {
	store, err := p.repo.GetStore(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrStoreNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if !caller.CanSee(store.Owner) {
		// Hidden stores look missing.
		return nil, fmt.Errorf("%w: %d", ErrStoreNotFound, id)
	}
	return store, nil
}

// ListStores returns every store the caller can see: personal and group stores.
func (p *Provider) ListStores(ctx context.Context, caller core.Caller) ([]*core.MemoryStore, error) {
	return p.repo.GetStoresByOwner(ctx, caller.Owners()...)
}

// UpdateStore changes a store's title and description. Ownership changes go
// through PublishStore.
func (p *Provider) UpdateStore(ctx context.Context, caller core.Caller, store *core.MemoryStore) (*core.MemoryStore, error) {
	existing, err := p.GetStore(ctx, caller, store.Id)
	if err != nil {
		return nil, err
	}
	store.Owner = existing.Owner
	return p.repo.UpdateStore(ctx, store)
}

// ReplaceStore swaps a store's metadata and its entire memory set in one
// transaction. Vectors for removed and added memories are synced afterwards.
func (p *Provider) ReplaceStore(ctx context.Context, caller core.Caller, store *core.MemoryStore, memories []*core.Memory) (*core.MemoryStore, error) {
	existing, err := p.GetStore(ctx, caller, store.Id)
	if err != nil {
		return nil, err
	}
	store.Owner = existing.Owner
	for _, m := range memories {
		m.Id = 0
		m.StoreId = store.Id
		m.Owner = store.Owner
		p.ensureDescription(ctx, m)
	}

	var oldIDs, newIDs []core.ID
	var updated *core.MemoryStore
	err = p.repo.WithTransaction(ctx, func(ctx context.Context) error {
		old, err := p.repo.GetStoreMemories(ctx, store.Id)
		if err != nil {
			return err
		}
		for _, m := range old {
			oldIDs = append(oldIDs, m.Id)
		}
		if updated, err = p.repo.UpdateStore(ctx, store); err != nil {
			return err
		}
		if len(oldIDs) > 0 {
			if err := p.repo.DeleteMemories(ctx, oldIDs...); err != nil {
				return err
			}
		}
		if len(memories) == 0 {
			return nil
		}
		added, err := p.repo.AddMemories(ctx, memories...)
		if err != nil {
			return err
		}
		for _, m := range added {
			newIDs = append(newIDs, m.Id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.syncMemories(existing.Owner, oldIDs...)
	p.syncMemories(core.Owner{}, newIDs...)
	p.logger.Info("replaced store", "store_id", store.Id, "removed", len(oldIDs), "added", len(newIDs))
	return updated, nil
}

// DeleteStore removes a store with all its memories from both the vector index
// and the structured store. Vectors go first so a failure never leaves
// searchable orphans.
func (p *Provider) DeleteStore(ctx context.Context, caller core.Caller, id core.ID) error {
	store, err := p.GetStore(ctx, caller, id)
	if err != nil {
		return err
	}

	p.storeMu.Lock()
	defer p.storeMu.Unlock()
	if err := p.index.DeleteStore(ctx, store.Owner, id); err != nil {
		return fmt.Errorf("deleting store vectors: %w", err)
	}
	if err := p.repo.DeleteStore(ctx, id); err != nil {
		return err
	}
	p.logger.Info("deleted store", "store_id", id, "owner", store.Owner)
	return nil
}

// DeleteStoreByTitle deletes the one visible store whose title matches,
// ignoring case.
func (p *Provider) DeleteStoreByTitle(ctx context.Context, caller core.Caller, title string) error {
	stores, err := p.ListStores(ctx, caller)
	if err != nil {
		return err
	}
	var matches []*core.MemoryStore
	for _, s := range stores {
		if strings.EqualFold(strings.TrimSpace(s.Title), strings.TrimSpace(title)) {
			matches = append(matches, s)
		}
	}
	switch len(matches) {
	case 0:
		return fmt.Errorf("%w: %q", ErrStoreNotFound, title)
	case 1:
		return p.DeleteStore(ctx, caller, matches[0].Id)
	default:
		return fmt.Errorf("%w: %d stores titled %q", ErrAmbiguousTitle, len(matches), title)
	}
}

// PublishStore moves one of the caller's personal stores, with every memory in
// it, to a group the caller belongs to.
func (p *Provider) PublishStore(ctx context.Context, caller core.Caller, storeID, groupID core.ID) (*core.MemoryStore, error) {
	group, err := p.repo.GetGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("group %d: %w", groupID, err)
	}
	if !group.HasMember(caller.UserId) {
		return nil, fmt.Errorf("%w: group %d", ErrNotMember, groupID)
	}
	store, err := p.GetStore(ctx, caller, storeID)
	if err != nil {
		return nil, err
	}
	previous := store.Owner
	if previous != core.UserOwner(caller.UserId) {
		return nil, fmt.Errorf("%w: store %d is not a personal store", ErrAccessDenied, storeID)
	}

	store.Owner = core.GroupOwner(groupID)
	var ids []core.ID
	err = p.repo.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := p.repo.UpdateStore(ctx, store); err != nil {
			return err
		}
		memories, err := p.repo.GetStoreMemories(ctx, storeID)
		if err != nil {
			return err
		}
		if len(memories) == 0 {
			return nil
		}
		for _, m := range memories {
			m.Owner = store.Owner
			ids = append(ids, m.Id)
		}
		_, err = p.repo.UpdateMemories(ctx, memories...)
		return err
	})
	if err != nil {
		return nil, err
	}

	p.syncMemories(previous, ids...)
	p.logger.Info("published store", "store_id", storeID, "group_id", groupID, "memories", len(ids))
	return store, nil
}

// ImportStore persists an ingestion result: the store, its references and its
// memories land in one transaction, then the memories are indexed.
func (p *Provider) ImportStore(
	ctx context.Context,
	caller core.Caller,
	store *core.MemoryStore,
	memories []*core.Memory,
	references []*core.IngestionReference,
) (*core.MemoryStore, error) {
	if store.Owner.IsZero() {
		store.Owner = core.UserOwner(caller.UserId)
	}
	if !caller.CanSee(store.Owner) {
		return nil, fmt.Errorf("%w: cannot import store for %v", ErrAccessDenied, store.Owner)
	}
	for _, m := range memories {
		p.ensureDescription(ctx, m)
	}

	var created *core.MemoryStore
	var ids []core.ID
	err := p.repo.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		if created, err = p.repo.AddStore(ctx, store); err != nil {
			return err
		}
		if len(references) > 0 {
			if err := p.repo.AddReferences(ctx, references...); err != nil {
				return err
			}
		}
		for _, m := range memories {
			m.StoreId = created.Id
			m.Owner = created.Owner
		}
		if len(memories) == 0 {
			return nil
		}
		added, err := p.repo.AddMemories(ctx, memories...)
		if err != nil {
			return err
		}
		for _, m := range added {
			ids = append(ids, m.Id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.syncMemories(core.Owner{}, ids...)
	p.logger.Info("imported store",
		"store_id", created.Id,
		"memories", len(ids),
		"references", len(references))
	return created, nil
}
