// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package badger

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

// SaveCheckpoint persists the last processed ID for a named job.
func (r *Repository) SaveCheckpoint(ctx context.Context, name string, lastID core.ID) error {
	return r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		return tx.Set(makeCheckpointKey(name), storage.MarshalID(lastID))
	}, true)
}

// LoadCheckpoint retrieves the checkpoint for a named job.
// Returns 0, nil if no checkpoint exists.
func (r *Repository) LoadCheckpoint(ctx context.Context, name string) (core.ID, error) {
	var lastID core.ID
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		item, err := tx.Get(makeCheckpointKey(name))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}

		return item.Value(func(val []byte) error {
			var unmarshalErr error
			lastID, unmarshalErr = storage.UnmarshalID(val)
			return unmarshalErr
		})
	}, false)

	return lastID, err
}

// ClearCheckpoint removes the checkpoint for a named job.
func (r *Repository) ClearCheckpoint(ctx context.Context, name string) error {
	return r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		return tx.Delete(makeCheckpointKey(name))
	}, true)
}
