package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

// AddMemories adds one or more memories to storage.
// A memory with no owner inherits its store's owner.
func (r *Repository) AddMemories(ctx context.Context, memories ...*core.Memory) ([]*core.Memory, error) {
	for _, m := range memories {
		if err := core.ValidateMemory(m); err != nil {
			return nil, err
		}
	}

	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		now := time.Now().UTC()
		for _, m := range memories {
			if err := checkStore(tx, m); err != nil {
				return err
			}
			if m.Id == 0 {
				id, err := nextID(r.memSeq)
				if err != nil {
					return err
				}
				m.Id = core.ID(id)
			}
			m.CreatedAt = now
			m.UpdatedAt = now

			if err := tx.Set(makeMemoryKey(m.Id), storage.MarshalMemory(m)); err != nil {
				return err
			}
			if err := tx.Set(makeMemoryStoreKey(m.StoreId, m.Id), []byte{}); err != nil {
				return err
			}
		}
		return nil
	}, true)
	if err != nil {
		return nil, err
	}
	return memories, nil
}

// UpdateMemories updates existing memories, moving the store index when StoreId changes.
func (r *Repository) UpdateMemories(ctx context.Context, memories ...*core.Memory) ([]*core.Memory, error) {
	for _, m := range memories {
		if err := core.ValidateMemory(m); err != nil {
			return nil, err
		}
	}

	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		for _, m := range memories {
			old, err := mustRead(tx, makeMemoryKey(m.Id), storage.UnmarshalMemory)
			if err != nil {
				return fmt.Errorf("memory %d: %w", m.Id, err)
			}
			if err := checkStore(tx, m); err != nil {
				return err
			}

			m.CreatedAt = old.CreatedAt
			m.UpdatedAt = time.Now().UTC()
			if err := tx.Set(makeMemoryKey(m.Id), storage.MarshalMemory(m)); err != nil {
				return err
			}

			if old.StoreId != m.StoreId {
				if err := tx.Delete(makeMemoryStoreKey(old.StoreId, m.Id)); err != nil {
					return err
				}
				if err := tx.Set(makeMemoryStoreKey(m.StoreId, m.Id), []byte{}); err != nil {
					return err
				}
			}
		}
		return nil
	}, true)
	if err != nil {
		return nil, err
	}
	return memories, nil
}

// checkStore verifies the memory's store exists and shares its owner.
func checkStore(tx *badger.Txn, m *core.Memory) error {
	store, err := readValue(tx, makeStoreKey(m.StoreId), storage.UnmarshalStore)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("%w: store %d", storage.ErrNotFound, m.StoreId)
	}
	if m.Owner.IsZero() {
		m.Owner = store.Owner
	}
	if m.Owner != store.Owner {
		return fmt.Errorf("%w: memory %v, store %v", storage.ErrOwnerMismatch, m.Owner, store.Owner)
	}
	return nil
}

// GetMemory retrieves a single memory by ID.
func (r *Repository) GetMemory(ctx context.Context, id core.ID) (*core.Memory, error) {
	var memory *core.Memory
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		var err error
		memory, err = mustRead(tx, makeMemoryKey(id), storage.UnmarshalMemory)
		return err
	}, false)
	return memory, err
}

// GetMemories retrieves multiple memories by their IDs, skipping missing ones.
func (r *Repository) GetMemories(ctx context.Context, ids ...core.ID) ([]*core.Memory, error) {
	var result []*core.Memory
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		for _, id := range ids {
			m, err := readValue(tx, makeMemoryKey(id), storage.UnmarshalMemory)
			if err != nil {
				return err
			}
			if m != nil {
				result = append(result, m)
			}
		}
		return nil
	}, false)
	return result, err
}

// GetStoreMemories returns every memory in a store.
func (r *Repository) GetStoreMemories(ctx context.Context, storeID core.ID) ([]*core.Memory, error) {
	var result []*core.Memory
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		ids, err := storeMemoryIDs(tx, storeID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			m, err := readValue(tx, makeMemoryKey(id), storage.UnmarshalMemory)
			if err != nil {
				return err
			}
			if m != nil {
				result = append(result, m)
			}
		}
		return nil
	}, false)
	return result, err
}

// GetMemoriesAfter pages through all memories in ID order.
func (r *Repository) GetMemoriesAfter(ctx context.Context, afterID core.ID, limit int) ([]*core.Memory, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}

	var result []*core.Memory
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeKey(memoryPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(makeMemoryKey(afterID + 1)); iter.Valid() && len(result) < limit; iter.Next() {
			var m *core.Memory
			err := iter.Item().Value(func(val []byte) error {
				var err error
				m, err = storage.UnmarshalMemory(val)
				return err
			})
			if err != nil {
				return err
			}
			result = append(result, m)
		}
		return nil
	}, false)
	return result, err
}

// DeleteMemories removes memories by their IDs.
func (r *Repository) DeleteMemories(ctx context.Context, ids ...core.ID) error {
	return r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		for _, id := range ids {
			m, err := mustRead(tx, makeMemoryKey(id), storage.UnmarshalMemory)
			if err != nil {
				return fmt.Errorf("memory %d: %w", id, err)
			}
			if err := tx.Delete(makeMemoryStoreKey(m.StoreId, id)); err != nil {
				return err
			}
			if err := tx.Delete(makeMemoryKey(id)); err != nil {
				return err
			}
		}
		return nil
	}, true)
}
