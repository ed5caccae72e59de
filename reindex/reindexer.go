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

package reindex

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
	"github.com/poiesic/recall/tasks"
)

const (
	// CheckpointName is the checkpoint key used by reindex runs.
	CheckpointName = "reindex"

	// TaskType is the type reported by reindex tasks.
	TaskType = "reindex"
)

// Config holds configuration for a reindex run.
type Config struct {
	// BatchSize is the number of memories to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of memories)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for each memory
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Restart ignores any saved checkpoint and reindexes everything.
	Restart bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Stats summarizes a finished run.
type Stats struct {
	Indexed int
	Skipped int
	// ResumedAfter is the checkpoint the run started from; zero for a full run.
	ResumedAfter core.ID
	Elapsed      time.Duration
}

// Repository is what a reindex run reads memories from and keeps its checkpoint in.
type Repository interface {
	storage.MemoryRepository
	storage.CheckpointRepository
}

// Reindexer re-embeds every memory in the structured store into the vector index.
type Reindexer struct {
	repo      Repository
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *MemoryIterator
	logger    *slog.Logger
}

// NewReindexer creates a new reindexer.
// progress: where to write progress output (typically os.Stderr)
func NewReindexer(repo Repository, index storage.VectorIndex, config *Config, progress io.Writer, logger *slog.Logger) (*Reindexer, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 1
	}
	if config.ReportInterval <= 0 {
		config.ReportInterval = config.BatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "reindexer")

	return &Reindexer{
		repo:      repo,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(index, config.MaxRetries, config.RetryDelay, logger),
		iterator:  NewMemoryIterator(repo, config.BatchSize),
		logger:    logger,
	}, nil
}

// Run indexes every memory after the saved checkpoint. report, when not nil,
// receives progress as a fraction. The checkpoint is cleared once the run completes.
func (r *Reindexer) Run(ctx context.Context, report func(message string, progress float64)) (Stats, error) {
	var stats Stats
	if r.config.Restart {
		if err := r.repo.ClearCheckpoint(ctx, CheckpointName); err != nil {
			return stats, fmt.Errorf("failed to clear checkpoint: %w", err)
		}
	}
	after, err := r.repo.LoadCheckpoint(ctx, CheckpointName)
	if err != nil {
		return stats, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	stats.ResumedAfter = after

	total, err := r.iterator.Count(ctx, after)
	if err != nil {
		return stats, fmt.Errorf("failed to count memories: %w", err)
	}
	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	if report != nil {
		tracker.OnReport(report)
	}
	if total == 0 {
		fmt.Fprintf(tracker.writer, "No memories to index\n")
		return stats, r.repo.ClearCheckpoint(ctx, CheckpointName)
	}

	r.logger.Info("reindex started", "memories", total, "after", after, "batch_size", r.config.BatchSize)
	fmt.Fprintf(tracker.writer, "Starting reindex of %d memories (batch size: %d)\n", total, r.config.BatchSize)
	tracker.Start()

	err = r.iterator.ForEach(ctx, after, func(batch []*core.Memory) error {
		skipped, err := r.processor.Process(ctx, batch)
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		stats.Indexed += len(batch) - skipped
		stats.Skipped += skipped
		if err := r.repo.SaveCheckpoint(ctx, CheckpointName, batch[len(batch)-1].Id); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}
		tracker.Increment(len(batch))
		return nil
	})
	if err != nil {
		r.logger.Error("reindex stopped", "indexed", stats.Indexed, "err", err)
		return stats, err
	}

	tracker.Finish()
	stats.Elapsed = tracker.Elapsed()
	if err := r.repo.ClearCheckpoint(ctx, CheckpointName); err != nil {
		return stats, fmt.Errorf("failed to clear checkpoint: %w", err)
	}
	fmt.Fprintf(tracker.writer, "Reindex complete. Indexed %d memories, skipped %d, in %v\n",
		stats.Indexed, stats.Skipped, stats.Elapsed.Round(time.Second))
	r.logger.Info("reindex complete", "indexed", stats.Indexed, "skipped", stats.Skipped)
	return stats, nil
}

// Task wraps the reindexer for the background task queue. The task result is
// the number of memories indexed.
func (r *Reindexer) Task() tasks.Task {
	return &reindexTask{r: r}
}

type reindexTask struct {
	r *Reindexer
}

func (t *reindexTask) Type() string { return TaskType }

func (t *reindexTask) Run(ctx context.Context, rep tasks.Reporter) (string, error) {
	stats, err := t.r.Run(ctx, rep.Report)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(stats.Indexed), nil
}
