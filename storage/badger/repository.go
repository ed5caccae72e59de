package badger

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/recall/storage"
)

// Repository implements storage.Repository for BadgerDB.
type Repository struct {
	backend  *Backend
	ownsDB   bool
	userSeq  *badger.Sequence
	groupSeq *badger.Sequence
	storeSeq *badger.Sequence
	memSeq   *badger.Sequence
}

var (
	_ storage.Repository           = (*Repository)(nil)
	_ storage.CheckpointRepository = (*Repository)(nil)
)

// NewRepository opens (or creates) a BadgerDB database at path and returns a repository over it.
// The repository owns the database and closes it on Close.
func NewRepository(path string, logger *slog.Logger) (*Repository, error) {
	backend, err := OpenBackend(path, false, logger)
	if err != nil {
		return nil, err
	}
	repo, err := NewRepositoryFromBackend(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	repo.ownsDB = true
	return repo, nil
}

// NewRepositoryFromBackend creates a Repository over an already opened backend.
// Closing the repository releases its sequences but leaves the backend open.
func NewRepositoryFromBackend(backend *Backend) (*Repository, error) {
	r := &Repository{backend: backend}
	seqs := []struct {
		name string
		dst  **badger.Sequence
	}{
		{userIDSeq, &r.userSeq},
		{groupIDSeq, &r.groupSeq},
		{storeIDSeq, &r.storeSeq},
		{memoryIDSeq, &r.memSeq},
	}
	for _, s := range seqs {
		seq, err := backend.GetSequence(s.name)
		if err != nil {
			r.releaseSequences()
			return nil, err
		}
		*s.dst = seq
	}
	return r, nil
}

func (r *Repository) releaseSequences() error {
	var errs []error
	for _, seq := range []*badger.Sequence{r.userSeq, r.groupSeq, r.storeSeq, r.memSeq} {
		if seq != nil {
			errs = append(errs, seq.Release())
		}
	}
	return errors.Join(errs...)
}

// Close releases the ID sequences, and the database when the repository opened it.
func (r *Repository) Close() error {
	err := r.releaseSequences()
	if r.ownsDB {
		err = errors.Join(err, r.backend.Close())
	}
	return err
}

// WithTransaction delegates to the backend.
func (r *Repository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// Helper methods

// readValue reads and decodes a single record. Returns nil, nil if the key doesn't exist.
func readValue[T any](tx *badger.Txn, key []byte, decode func([]byte) (*T, error)) (*T, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var v *T
	err = item.Value(func(val []byte) error {
		var err error
		v, err = decode(val)
		return err
	})
	return v, err
}

// mustRead is readValue returning storage.ErrNotFound for missing keys.
func mustRead[T any](tx *badger.Txn, key []byte, decode func([]byte) (*T, error)) (*T, error) {
	v, err := readValue(tx, key, decode)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, storage.ErrNotFound
	}
	return v, nil
}

// scanKeys calls fn with every key under prefix, in order. Values are not fetched.
func scanKeys(tx *badger.Txn, prefix []byte, fn func(key []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		if err := fn(iter.Item().KeyCopy(nil)); err != nil {
			return err
		}
	}
	return nil
}
