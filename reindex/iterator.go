package reindex

import (
	"context"

	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

const (
	// DefaultBatchSize is the default number of memories to fetch in each batch
	DefaultBatchSize = 100
)

// MemoryIterator pages through every memory in id order.
type MemoryIterator struct {
	repo      storage.MemoryRepository
	batchSize int
}

// NewMemoryIterator creates a new memory iterator.
// batchSize: number of memories to fetch in each batch (must be > 0)
func NewMemoryIterator(repo storage.MemoryRepository, batchSize int) *MemoryIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &MemoryIterator{repo: repo, batchSize: batchSize}
}

// ForEach calls fn with successive batches of memories whose id is greater than
// after. Iteration stops on the first error from fn or when memories run out.
// Context cancellation is checked between batches.
func (it *MemoryIterator) ForEach(ctx context.Context, after core.ID, fn func([]*core.Memory) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := it.repo.GetMemoriesAfter(ctx, after, it.batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < it.batchSize {
			return nil
		}
		after = batch[len(batch)-1].Id
	}
}

// Count returns the number of memories with id greater than after.
func (it *MemoryIterator) Count(ctx context.Context, after core.ID) (int, error) {
	total := 0
	err := it.ForEach(ctx, after, func(batch []*core.Memory) error {
		total += len(batch)
		return nil
	})
	return total, err
}
