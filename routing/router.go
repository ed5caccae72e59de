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

package routing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/core"
)

const (
	// DefaultBatchSize is the number of stores ranked per completion call.
	DefaultBatchSize = 3

	// DefaultPoolSize caps concurrent completion calls.
	DefaultPoolSize = 16
)

// Router ranks memory stores against a query with the completion service.
type Router struct {
	completer ai.Completer
	pool      *ants.Pool
	poolSize  int
	batchSize int
	logger    *slog.Logger
}

// Option configures a Router.
type Option func(*Router) error

// WithBatchSize sets how many stores are ranked per completion call.
func WithBatchSize(size int) Option {
	return func(r *Router) error {
		if size < 1 {
			return ErrInvalidBatchSize
		}
		r.batchSize = size
		return nil
	}
}

// WithPoolSize sets the maximum number of concurrent completion calls.
func WithPoolSize(size int) Option {
	return func(r *Router) error {
		if size < 1 {
			size = 1
		}
		r.poolSize = size
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRouter creates a router. Call Release when done with it.
func NewRouter(completer ai.Completer, opts ...Option) (*Router, error) {
	if completer == nil {
		return nil, ErrCompleterRequired
	}
	r := &Router{
		completer: completer,
		poolSize:  DefaultPoolSize,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	pool, err := ants.NewPool(r.poolSize)
	if err != nil {
		return nil, err
	}
	r.pool = pool
	r.logger = r.logger.With("component", "router")
	return r, nil
}

// Release releases the worker pool. The router should not be used afterwards.
func (r *Router) Release() {
	if r.pool != nil {
		r.pool.Release()
	}
}

// RankStores asks the model to weight every candidate against query. Candidates are
// ranked in batches concurrently; a batch that fails contributes nothing. Results
// are sorted by relevance, highest first, ties broken by store id.
func (r *Router) RankStores(ctx context.Context, query string, candidates []*StoreListing) ([]core.RoutingResult, error) {
	results := []core.RoutingResult{}
	if len(candidates) == 0 {
		return results, nil
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		best = make(map[core.ID]float64, len(candidates))
	)
	for start := 0; start < len(candidates); start += r.batchSize {
		if ctx.Err() != nil {
			break
		}
		end := min(start+r.batchSize, len(candidates))
		batch := candidates[start:end]

		wg.Add(1)
		err := r.pool.Submit(func() {
			defer wg.Done()
			weights := r.rankBatch(ctx, query, batch)
			mu.Lock()
			defer mu.Unlock()
			for _, w := range weights {
				if prev, ok := best[w.ID]; !ok || w.Weight > prev {
					best[w.ID] = w.Weight
				}
			}
		})
		if err != nil {
			wg.Done()
			r.logger.Error("failed to submit ranking batch", "err", err)
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for id, w := range best {
		results = append(results, core.RoutingResult{StoreId: id, Relevance: w})
	}
	SortResults(results)
	return results, nil
}

// rankBatch runs one completion call. Errors are logged and yield no weights.
func (r *Router) rankBatch(ctx context.Context, query string, batch []*StoreListing) []Weight {
	reply, err := r.completer.Complete(ctx, rankSystemPrompt, rankUserPrompt(query, batch))
	if err != nil {
		r.logger.Warn("store ranking batch failed", "stores", len(batch), "err", err)
		return nil
	}

	weights, malformed := ParseWeights(reply)
	if len(malformed) > 0 {
		r.logger.Warn("dropping malformed ranking entries", "entries", malformed)
	}

	inBatch := make(map[core.ID]bool, len(batch))
	for _, l := range batch {
		inBatch[l.Store.Id] = true
	}
	kept := weights[:0]
	for _, w := range weights {
		if !inBatch[w.ID] {
			r.logger.Warn("dropping ranking for store outside batch", "store_id", w.ID)
			continue
		}
		kept = append(kept, w)
	}
	return kept
}

// RouteMemory picks the most relevant candidate store for memory. It returns
// ErrNoRoute when there are no candidates or the model weighted none of them above zero.
func (r *Router) RouteMemory(ctx context.Context, memory *core.Memory, candidates []*StoreListing) (core.RoutingResult, error) {
	if len(candidates) == 0 {
		return core.RoutingResult{}, fmt.Errorf("%w: no candidate stores", ErrNoRoute)
	}
	results, err := r.RankStores(ctx, memoryQuery(memory), candidates)
	if err != nil {
		return core.RoutingResult{}, err
	}
	if len(results) == 0 || results[0].Relevance <= 0 {
		return core.RoutingResult{}, fmt.Errorf("%w: no store ranked above zero among %d", ErrNoRoute, len(candidates))
	}
	r.logger.Debug("routed memory", "store_id", results[0].StoreId, "relevance", results[0].Relevance)
	return results[0], nil
}

// SortResults orders results by relevance descending, then by store id.
func SortResults(results []core.RoutingResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Relevance != results[j].Relevance {
			return results[i].Relevance > results[j].Relevance
		}
		return results[i].StoreId < results[j].StoreId
	})
}
