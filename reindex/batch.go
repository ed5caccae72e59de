package reindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

// BatchProcessor upserts batches of memories into the vector index.
type BatchProcessor struct {
	index          storage.VectorIndex
	maxRetries     int
	retryBaseDelay time.Duration
	logger         *slog.Logger
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts per memory
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(index storage.VectorIndex, maxRetries int, retryBaseDelay time.Duration, logger *slog.Logger) *BatchProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchProcessor{
		index:          index,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
		logger:         logger,
	}
}

// Process indexes every memory in the batch. Memories without a description
// can't be indexed and are skipped; their count is returned.
func (bp *BatchProcessor) Process(ctx context.Context, memories []*core.Memory) (skipped int, err error) {
	for _, m := range memories {
		if m.Description == "" {
			bp.logger.Warn("skipping memory without description", "memory_id", m.Id)
			skipped++
			continue
		}
		err := ai.RetryWithBackoff(ctx, func() error {
			return bp.index.Upsert(ctx, m)
		}, bp.maxRetries, bp.retryBaseDelay)
		if errors.Is(err, storage.ErrEmptyDescription) {
			skipped++
			continue
		}
		if err != nil {
			return skipped, fmt.Errorf("failed to index memory %d after %d attempts: %w", m.Id, bp.maxRetries, err)
		}
	}
	return skipped, nil
}
