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

package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/chunker"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/routing"
	"github.com/poiesic/recall/storage"
)

const (
	DefaultPoolSize             = 16
	DefaultLimit                = 10
	DefaultFallbackRetainRatio  = 0.5
	DefaultFallbackVectorWeight = 0.5
	DefaultFallbackMinHits      = 1

	// DefaultRelevanceTokenCeiling bounds one fallback relevance prompt.
	DefaultRelevanceTokenCeiling = 6000
	// DefaultRelevanceBatchSize bounds the memories listed in one relevance prompt.
	DefaultRelevanceBatchSize    = 100

	// candidateFactor widens the vector query so deduplication still leaves enough hits.
	candidateFactor = 3
	syncStripes     = 64
	maxListingTags  = 16
)

// Provider owns every read and write over the structured store and the vector
// index and keeps the two consistent. Rows are written first; vectors follow
// asynchronously on a bounded pool.
type Provider struct {
	repo      storage.Repository
	index     storage.VectorIndex
	completer ai.Completer
	router    *routing.Router
	reranker  Reranker
	monitor   SearchMonitor
	logger    *slog.Logger

	poolSize         int
	retainRatio      float64
	vectorWeight     float64
	fallbackMinHits  int
	defaultThreshold float32

	tokenizer        chunker.Tokenizer
	relevanceCeiling int
	relevanceBatch   int

	syncPool   *ants.Pool
	searchPool *ants.Pool
	syncWG     sync.WaitGroup
	// storeMu is held exclusively while a store's vectors and rows are removed so
	// no vector sync can slip in between.
	storeMu sync.RWMutex
	stripes [syncStripes]sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Provider.
type Option func(*Provider) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithReranker sets the reranker applied to primary search results.
// Default is IdentityReranker.
func WithReranker(r Reranker) Option {
	return func(p *Provider) error {
		if r == nil {
			r = IdentityReranker{}
		}
		p.reranker = r
		return nil
	}
}

// WithMonitor sets the search monitor used when a search doesn't supply its own.
func WithMonitor(m SearchMonitor) Option {
	return func(p *Provider) error {
		if m == nil {
			m = &noopMonitor{}
		}
		p.monitor = m
		return nil
	}
}

// WithPoolSize caps concurrent vector syncs and concurrent fallback store scoring.
func WithPoolSize(size int) Option {
	return func(p *Provider) error {
		if size < 1 {
			size = 1
		}
		p.poolSize = size
		return nil
	}
}

// WithFallbackRetainRatio keeps stores whose relevance is at least ratio times the
// top store's relevance during fallback search.
func WithFallbackRetainRatio(ratio float64) Option {
	return func(p *Provider) error {
		if ratio < 0 || ratio > 1 {
			return fmt.Errorf("retain ratio must be within [0,1], got %v", ratio)
		}
		p.retainRatio = ratio
		return nil
	}
}

// WithFallbackVectorWeight sets the weight of the vector score in fallback scoring;
// the model's relevance gets the remainder.
func WithFallbackVectorWeight(weight float64) Option {
	return func(p *Provider) error {
		if weight < 0 || weight > 1 {
			return fmt.Errorf("vector weight must be within [0,1], got %v", weight)
		}
		p.vectorWeight = weight
		return nil
	}
}

// WithFallbackMinHits runs the fallback when the primary search keeps fewer than n
// results. Default is 1: fall back only when nothing was found.
func WithFallbackMinHits(n int) Option {
	return func(p *Provider) error {
		if n < 0 {
			n = 0
		}
		p.fallbackMinHits = n
		return nil
	}
}

// WithDefaultThreshold sets the minimum score used when a search doesn't set one.
func WithDefaultThreshold(threshold float32) Option {
	return func(p *Provider) error {
		p.defaultThreshold = threshold
		return nil
	}
}

// WithRelevanceBatching splits a store's fallback relevance listing into prompts
// of at most batchSize memories and ceiling tokens as counted by tokenizer.
// A nil tokenizer counts words.
func WithRelevanceBatching(tokenizer chunker.Tokenizer, ceiling, batchSize int) Option {
	return func(p *Provider) error {
		if ceiling < 1 {
			return fmt.Errorf("relevance token ceiling must be positive, got %d", ceiling)
		}
		if batchSize < 1 {
			return fmt.Errorf("relevance batch size must be positive, got %d", batchSize)
		}
		if tokenizer == nil {
			tokenizer = wordTokenizer
		}
		p.tokenizer = tokenizer
		p.relevanceCeiling = ceiling
		p.relevanceBatch = batchSize
		return nil
	}
}

var wordTokenizer = chunker.TokenizerFunc(func(text string) int {
	return len(strings.Fields(text))
})

// NewProvider creates a provider. Call Close to drain pending vector syncs.
func NewProvider(
	repo storage.Repository,
	index storage.VectorIndex,
	completer ai.Completer,
	router *routing.Router,
	opts ...Option,
) (*Provider, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}
	if completer == nil {
		return nil, ErrCompleterRequired
	}
	if router == nil {
		return nil, ErrRouterRequired
	}

	p := &Provider{
		repo:             repo,
		index:            index,
		completer:        completer,
		router:           router,
		reranker:         IdentityReranker{},
		monitor:          &noopMonitor{},
		logger:           slog.Default(),
		poolSize:         DefaultPoolSize,
		retainRatio:      DefaultFallbackRetainRatio,
		vectorWeight:     DefaultFallbackVectorWeight,
		fallbackMinHits:  DefaultFallbackMinHits,
		tokenizer:        wordTokenizer,
		relevanceCeiling: DefaultRelevanceTokenCeiling,
		relevanceBatch:   DefaultRelevanceBatchSize,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "memory-provider")

	syncPool, err := ants.NewPool(p.poolSize)
	if err != nil {
		return nil, err
	}
	searchPool, err := ants.NewPool(p.poolSize)
	if err != nil {
		syncPool.Release()
		return nil, err
	}
	p.syncPool, p.searchPool = syncPool, searchPool
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p, nil
}

// WaitSync blocks until every pending vector sync has finished.
func (p *Provider) WaitSync() {
	p.syncWG.Wait()
}

// Close drains pending vector syncs and releases worker pools. It does not close
// the repository or the index.
func (p *Provider) Close() error {
	p.WaitSync()
	p.cancel()
	p.syncPool.Release()
	p.searchPool.Release()
	return nil
}

// syncMemories schedules vector reconciliation for ids. previous is the owner the
// memories were indexed under before this change, or zero for new memories.
func (p *Provider) syncMemories(previous core.Owner, ids ...core.ID) {
	for _, id := range ids {
		p.syncWG.Add(1)
		err := p.syncPool.Submit(func() {
			defer p.syncWG.Done()
			p.reconcile(p.ctx, id, previous)
		})
		if err != nil {
			p.syncWG.Done()
			p.logger.Error("failed to schedule vector sync", "memory_id", id, "err", err)
		}
	}
}

// reconcile brings the index in line with the structured store for one memory.
// It reads the current row, so out-of-order runs still converge.
func (p *Provider) reconcile(ctx context.Context, id core.ID, previous core.Owner) {
	p.storeMu.RLock()
	defer p.storeMu.RUnlock()
	stripe := &p.stripes[uint64(id)%syncStripes]
	stripe.Lock()
	defer stripe.Unlock()

	logger := p.logger.With("memory_id", id)
	m, err := p.repo.GetMemory(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		if !previous.IsZero() {
			if err := p.index.Delete(ctx, previous, id); err != nil {
				logger.Error("failed to delete vectors", "owner", previous, "err", err)
			}
		}
		return
	}
	if err != nil {
		logger.Error("failed to load memory for vector sync", "err", err)
		return
	}

	if !previous.IsZero() && previous != m.Owner {
		if err := p.index.Delete(ctx, previous, id); err != nil {
			logger.Error("failed to delete vectors", "owner", previous, "err", err)
		}
	}
	if err := p.index.Upsert(ctx, m); err != nil {
		logger.Error("failed to index memory", "err", err)
	}
}

// ensureDescription fills an empty description from the completion service,
// falling back to the content. The result is never empty when content isn't.
func (p *Provider) ensureDescription(ctx context.Context, m *core.Memory) {
	if strings.TrimSpace(m.Description) != "" {
		return
	}
	reply, err := p.completer.Complete(ctx, describeMemoryPrompt, describeMemoryUserPrompt(m))
	desc := strings.Trim(strings.TrimSpace(reply), `"`)
	if err != nil || desc == "" {
		if err != nil {
			p.logger.Warn("description synthesis failed, using content", "err", err)
		}
		desc = m.Content
		if desc == "" {
			desc = m.Title
		}
	}
	m.Description = core.Truncate(oneLine(desc), core.MaxDescriptionLength)
}

// listings describes candidate stores for the router, with their memories' tags.
func (p *Provider) listings(ctx context.Context, stores []*core.MemoryStore) ([]*routing.StoreListing, error) {
	out := make([]*routing.StoreListing, 0, len(stores))
	for _, s := range stores {
		memories, err := p.repo.GetStoreMemories(ctx, s.Id)
		if err != nil {
			return nil, err
		}
		seen := map[string]bool{}
		var tags []string
		for _, m := range memories {
			for _, t := range m.Tags {
				if !seen[t] && len(tags) < maxListingTags {
					seen[t] = true
					tags = append(tags, t)
				}
			}
		}
		sort.Strings(tags)
		out = append(out, &routing.StoreListing{Store: s, Tags: tags})
	}
	return out, nil
}
