package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

// AddReferences stores ingestion references. References are immutable, so an
// existing key is never overwritten.
func (r *Repository) AddReferences(ctx context.Context, refs ...*core.IngestionReference) error {
	return r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		for _, ref := range refs {
			key := makeReferenceKey(ref.Id)
			existing, err := readValue(tx, key, storage.UnmarshalReference)
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}
			if ref.CreatedAt.IsZero() {
				ref.CreatedAt = time.Now().UTC()
			}
			if err := tx.Set(key, storage.MarshalReference(ref)); err != nil {
				return err
			}
		}
		return nil
	}, true)
}

// GetReference retrieves a reference by ID.
func (r *Repository) GetReference(ctx context.Context, id core.ID) (*core.IngestionReference, error) {
	var ref *core.IngestionReference
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		var err error
		ref, err = mustRead(tx, makeReferenceKey(id), storage.UnmarshalReference)
		return err
	}, false)
	return ref, err
}
