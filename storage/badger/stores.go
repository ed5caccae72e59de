package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

// AddStore stores a memory store and indexes it by owner.
func (r *Repository) AddStore(ctx context.Context, store *core.MemoryStore) (*core.MemoryStore, error) {
	if err := core.ValidateStore(store); err != nil {
		return nil, err
	}
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		if store.Id == 0 {
			id, err := nextID(r.storeSeq)
			if err != nil {
				return err
			}
			store.Id = core.ID(id)
		}
		store.CreatedAt = time.Now().UTC()
		store.UpdatedAt = store.CreatedAt

		if err := tx.Set(makeStoreKey(store.Id), storage.MarshalStore(store)); err != nil {
			return err
		}
		return tx.Set(makeStoreOwnerKey(store.Owner, store.Id), []byte{})
	}, true)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// UpdateStore replaces a store's metadata. An owner change moves the owner index entry
// but leaves the store's memories untouched.
func (r *Repository) UpdateStore(ctx context.Context, store *core.MemoryStore) (*core.MemoryStore, error) {
	if err := core.ValidateStore(store); err != nil {
		return nil, err
	}
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		old, err := mustRead(tx, makeStoreKey(store.Id), storage.UnmarshalStore)
		if err != nil {
			return err
		}

		store.CreatedAt = old.CreatedAt
		store.UpdatedAt = time.Now().UTC()
		if err := tx.Set(makeStoreKey(store.Id), storage.MarshalStore(store)); err != nil {
			return err
		}

		if old.Owner != store.Owner {
			if err := tx.Delete(makeStoreOwnerKey(old.Owner, store.Id)); err != nil {
				return err
			}
			if err := tx.Set(makeStoreOwnerKey(store.Owner, store.Id), []byte{}); err != nil {
				return err
			}
		}
		return nil
	}, true)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// GetStore retrieves a store by ID.
func (r *Repository) GetStore(ctx context.Context, id core.ID) (*core.MemoryStore, error) {
	var store *core.MemoryStore
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		var err error
		store, err = mustRead(tx, makeStoreKey(id), storage.UnmarshalStore)
		return err
	}, false)
	return store, err
}

// GetStoresByOwner returns the stores owned by any of owners.
func (r *Repository) GetStoresByOwner(ctx context.Context, owners ...core.Owner) ([]*core.MemoryStore, error) {
	var stores []*core.MemoryStore
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		for _, owner := range owners {
			var ids []core.ID
			err := scanKeys(tx, makePartialStoreOwnerKey(owner), func(key []byte) error {
				ids = append(ids, keySuffixID(key))
				return nil
			})
			if err != nil {
				return err
			}
			for _, id := range ids {
				store, err := readValue(tx, makeStoreKey(id), storage.UnmarshalStore)
				if err != nil {
					return err
				}
				if store != nil {
					stores = append(stores, store)
				}
			}
		}
		return nil
	}, false)
	return stores, err
}

// DeleteStore removes a store, its memories and their indices.
func (r *Repository) DeleteStore(ctx context.Context, id core.ID) error {
	return r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		store, err := mustRead(tx, makeStoreKey(id), storage.UnmarshalStore)
		if err != nil {
			return err
		}

		memoryIDs, err := storeMemoryIDs(tx, id)
		if err != nil {
			return err
		}
		for _, memID := range memoryIDs {
			if err := tx.Delete(makeMemoryKey(memID)); err != nil {
				return err
			}
			if err := tx.Delete(makeMemoryStoreKey(id, memID)); err != nil {
				return err
			}
		}

		if err := tx.Delete(makeStoreOwnerKey(store.Owner, id)); err != nil {
			return err
		}
		if err := tx.Delete(makeStoreKey(id)); err != nil {
			return fmt.Errorf("deleting store %d: %w", id, err)
		}
		return nil
	}, true)
}

func storeMemoryIDs(tx *badger.Txn, storeID core.ID) ([]core.ID, error) {
	var ids []core.ID
	err := scanKeys(tx, makeKey(memoryStorePrefix, uint64(storeID)), func(key []byte) error {
		ids = append(ids, keySuffixID(key))
		return nil
	})
	return ids, err
}
