package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/routing"
	"github.com/poiesic/recall/storage"
)

// CreateMemory stores a new memory. An empty description is synthesized. When
// StoreId is zero the router picks the most relevant visible store, and when no
// store fits a new personal store is named after the memory.
func (p *Provider) CreateMemory(ctx context.Context, caller core.Caller, m *core.Memory) (*core.Memory, error) {
	m.Id = 0
	if err := core.ValidateMemory(m); err != nil {
		return nil, err
	}
	p.ensureDescription(ctx, m)

	var store *core.MemoryStore
	var err error
	if m.StoreId != 0 {
		store, err = p.GetStore(ctx, caller, m.StoreId)
	} else {
		store, err = p.routeMemory(ctx, caller, m)
	}
	if err != nil {
		return nil, err
	}
	m.StoreId = store.Id
	m.Owner = store.Owner

	added, err := p.repo.AddMemories(ctx, m)
	if err != nil {
		return nil, err
	}
	created := added[0]
	p.syncMemories(core.Owner{}, created.Id)
	p.logger.Debug("created memory", "memory_id", created.Id, "store_id", created.StoreId)
	return created, nil
}

// routeMemory finds the store a memory without a store belongs in.
func (p *Provider) routeMemory(ctx context.Context, caller core.Caller, m *core.Memory) (*core.MemoryStore, error) {
	stores, err := p.ListStores(ctx, caller)
	if err != nil {
		return nil, err
	}
	candidates, err := p.listings(ctx, stores)
	if err != nil {
		return nil, err
	}
	route, err := p.router.RouteMemory(ctx, m, candidates)
	if err == nil {
		for _, s := range stores {
			if s.Id == route.StoreId {
				return s, nil
			}
		}
		return nil, fmt.Errorf("%w: routed to unknown store %d", ErrStoreNotFound, route.StoreId)
	}
	if !errors.Is(err, routing.ErrNoRoute) {
		return nil, err
	}

	p.logger.Debug("no store fits memory, creating one", "candidates", len(candidates))
	return p.CreateStore(ctx, caller, p.nameStore(ctx, m))
}

// nameStore asks the model for a store title and description seeded by m,
// falling back to the memory's own title.
func (p *Provider) nameStore(ctx context.Context, m *core.Memory) *core.MemoryStore {
	var name storeName
	if err := p.completer.CompleteJSON(ctx, nameStorePrompt, nameStoreUserPrompt(m), &name); err != nil {
		p.logger.Warn("store naming failed, using memory title", "err", err)
	}
	title := oneLine(name.Title)
	if title == "" {
		title = oneLine(m.Title)
	}
	if title == "" {
		title = oneLine(m.Description)
	}
	desc := oneLine(name.Description)
	if desc == "" {
		desc = m.Description
	}
	return &core.MemoryStore{
		Title:       core.Truncate(title, core.MaxTitleLength),
		Description: core.Truncate(desc, core.MaxDescriptionLength),
	}
}

// GetMemory returns a memory the caller can see.
func (p *Provider) GetMemory(ctx context.Context, caller core.Caller, id core.ID) (*core.Memory, error) {
	m, err := p.repo.GetMemory(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrMemoryNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if !caller.CanSee(m.Owner) {
		return nil, fmt.Errorf("%w: %d", ErrMemoryNotFound, id)
	}
	return m, nil
}

// ListMemories returns every memory in a visible store.
func (p *Provider) ListMemories(ctx context.Context, caller core.Caller, storeID core.ID) ([]*core.Memory, error) {
	if _, err := p.GetStore(ctx, caller, storeID); err != nil {
		return nil, err
	}
	return p.repo.GetStoreMemories(ctx, storeID)
}

// UpdateMemory merges the non-zero fields of patch into the stored memory.
// Pinned is always taken from patch.
func (p *Provider) UpdateMemory(ctx context.Context, caller core.Caller, patch *core.Memory) (*core.Memory, error) {
	existing, err := p.GetMemory(ctx, caller, patch.Id)
	if err != nil {
		return nil, err
	}
	merged := *existing
	if patch.Title != "" {
		merged.Title = patch.Title
	}
	if patch.Description != "" {
		merged.Description = patch.Description
	}
	if patch.Content != "" {
		merged.Content = patch.Content
	}
	if patch.Tags != nil {
		merged.Tags = patch.Tags
	}
	if patch.RefType != core.RefNone {
		merged.RefType = patch.RefType
		merged.Reference = patch.Reference
	}
	if patch.StoreId != 0 {
		merged.StoreId = patch.StoreId
	}
	merged.Pinned = patch.Pinned
	return p.saveMemory(ctx, caller, existing, &merged)
}

// ReplaceMemory overwrites every field of the stored memory with m. A zero
// StoreId keeps the memory where it is.
func (p *Provider) ReplaceMemory(ctx context.Context, caller core.Caller, m *core.Memory) (*core.Memory, error) {
	existing, err := p.GetMemory(ctx, caller, m.Id)
	if err != nil {
		return nil, err
	}
	replacement := *m
	if replacement.StoreId == 0 {
		replacement.StoreId = existing.StoreId
	}
	return p.saveMemory(ctx, caller, existing, &replacement)
}

func (p *Provider) saveMemory(ctx context.Context, caller core.Caller, existing, m *core.Memory) (*core.Memory, error) {
	if err := core.ValidateMemory(m); err != nil {
		return nil, err
	}
	if m.StoreId != existing.StoreId {
		store, err := p.GetStore(ctx, caller, m.StoreId)
		if err != nil {
			return nil, err
		}
		m.Owner = store.Owner
	} else {
		m.Owner = existing.Owner
	}
	p.ensureDescription(ctx, m)

	updated, err := p.repo.UpdateMemories(ctx, m)
	if err != nil {
		return nil, err
	}
	p.syncMemories(existing.Owner, m.Id)
	return updated[0], nil
}

// DeleteMemory removes a memory. Its vectors are removed asynchronously.
func (p *Provider) DeleteMemory(ctx context.Context, caller core.Caller, id core.ID) error {
	m, err := p.GetMemory(ctx, caller, id)
	if err != nil {
		return err
	}
	if err := p.repo.DeleteMemories(ctx, id); err != nil {
		return err
	}
	p.syncMemories(m.Owner, id)
	return nil
}

// DeleteMemoryByTitle deletes the one visible memory whose title matches,
// ignoring case. A non-zero storeID limits the search to that store.
func (p *Provider) DeleteMemoryByTitle(ctx context.Context, caller core.Caller, storeID core.ID, title string) error {
	var stores []*core.MemoryStore
	if storeID != 0 {
		store, err := p.GetStore(ctx, caller, storeID)
		if err != nil {
			return err
		}
		stores = []*core.MemoryStore{store}
	} else {
		var err error
		if stores, err = p.ListStores(ctx, caller); err != nil {
			return err
		}
	}

	var matches []*core.Memory
	for _, s := range stores {
		memories, err := p.repo.GetStoreMemories(ctx, s.Id)
		if err != nil {
			return err
		}
		for _, m := range memories {
			if strings.EqualFold(strings.TrimSpace(m.Title), strings.TrimSpace(title)) {
				matches = append(matches, m)
			}
		}
	}
	switch len(matches) {
	case 0:
		return fmt.Errorf("%w: %q", ErrMemoryNotFound, title)
	case 1:
		return p.DeleteMemory(ctx, caller, matches[0].Id)
	default:
		return fmt.Errorf("%w: %d memories titled %q", ErrAmbiguousTitle, len(matches), title)
	}
}

// GetReference returns the ingestion reference a document memory was extracted from.
func (p *Provider) GetReference(ctx context.Context, caller core.Caller, memoryID core.ID) (*core.IngestionReference, error) {
	m, err := p.GetMemory(ctx, caller, memoryID)
	if err != nil {
		return nil, err
	}
	if m.RefType != core.RefDocument || m.Reference == "" {
		return nil, fmt.Errorf("%w: memory %d", ErrNoReference, memoryID)
	}
	refID, err := strconv.ParseUint(m.Reference, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: memory %d has reference %q", ErrNoReference, memoryID, m.Reference)
	}
	return p.repo.GetReference(ctx, core.ID(refID))
}
