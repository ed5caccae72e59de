package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/routing"
	"github.com/poiesic/recall/storage"
)

// SearchOptions scopes and bounds a search.
type SearchOptions struct {
	Query string
	// Limit caps the number of results. Zero means DefaultLimit.
	Limit int
	// Threshold is the minimum score a result must reach. Zero uses the
	// provider's default threshold.
	Threshold float32

	// GroupID restricts the search to one of the caller's groups.
	GroupID core.ID
	// IncludePersonal adds the caller's personal stores to a group search.
	IncludePersonal bool
	// StoreID restricts the search to one visible store.
	StoreID core.ID

	// Monitor overrides the provider's monitor for this search.
	Monitor SearchMonitor
}

type fallbackHit struct {
	result      *core.SearchResult
	vectorScore float64
	modelScore  float64
}

// Search finds the memories most relevant to a query among those the caller can
// see. Vector similarity runs first; when it keeps too few results, stores are
// ranked by the model and their memories scored by a blend of vector similarity
// and model relevance. Every returned result scores at least the threshold.
func (p *Provider) Search(ctx context.Context, caller core.Caller, opts SearchOptions) ([]*core.SearchResult, error) {
	query := strings.TrimSpace(opts.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = p.defaultThreshold
	}
	mon := opts.Monitor
	if mon == nil {
		mon = p.monitor
	}

	owners, err := p.searchOwners(ctx, caller, opts)
	if err != nil {
		return nil, err
	}
	mon.Start(query, owners)

	results, err := p.vectorSearch(ctx, query, owners, opts.StoreID, limit, threshold, mon)
	if err != nil {
		return nil, err
	}

	if len(results) >= p.fallbackMinHits {
		reranked, err := p.reranker.Rerank(ctx, query, results)
		if err != nil {
			p.logger.Warn("rerank failed, keeping vector order", "err", err)
		} else {
			results = reranked
		}
		mon.AfterRerank(results)
	} else {
		mon.FallbackStarted(len(results))
		fallback, err := p.fallbackSearch(ctx, query, owners, opts.StoreID, threshold, mon)
		if err != nil {
			return nil, err
		}
		results = mergeResults(results, fallback)
	}

	if len(results) > limit {
		results = results[:limit]
	}
	mon.Finish(results)
	return results, nil
}

// searchOwners resolves the namespaces a search may read.
func (p *Provider) searchOwners(ctx context.Context, caller core.Caller, opts SearchOptions) ([]core.Owner, error) {
	switch {
	case opts.StoreID != 0:
		store, err := p.GetStore(ctx, caller, opts.StoreID)
		if err != nil {
			return nil, err
		}
		return []core.Owner{store.Owner}, nil
	case opts.GroupID != 0:
		if !caller.InGroup(opts.GroupID) {
			return nil, fmt.Errorf("%w: group %d", ErrNotMember, opts.GroupID)
		}
		owners := []core.Owner{core.GroupOwner(opts.GroupID)}
		if opts.IncludePersonal {
			owners = append(owners, core.UserOwner(caller.UserId))
		}
		return owners, nil
	default:
		return caller.Owners(), nil
	}
}

func (p *Provider) vectorSearch(
	ctx context.Context,
	query string,
	owners []core.Owner,
	storeID core.ID,
	limit int,
	threshold float32,
	mon SearchMonitor,
) ([]*core.SearchResult, error) {
	hits, err := p.index.Search(ctx, storage.VectorQuery{
		Text:    query,
		TopK:    limit * candidateFactor,
		Owners:  owners,
		StoreID: storeID,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	mon.AfterVectorSearch(hits)

	// A memory matches once per field; keep its best field.
	best := make(map[core.ID]float32, len(hits))
	var ids []core.ID
	for _, h := range hits {
		prev, seen := best[h.MemoryID]
		if !seen {
			ids = append(ids, h.MemoryID)
		}
		if !seen || h.Score > prev {
			best[h.MemoryID] = h.Score
		}
	}
	kept := ids[:0]
	for _, id := range ids {
		if best[id] >= threshold {
			kept = append(kept, id)
		}
	}
	if len(kept) == 0 {
		return nil, nil
	}

	memories, err := p.repo.GetMemories(ctx, kept...)
	if err != nil {
		return nil, err
	}
	visible := make(map[core.Owner]bool, len(owners))
	for _, o := range owners {
		visible[o] = true
	}
	stores := map[core.ID]*core.MemoryStore{}
	results := make([]*core.SearchResult, 0, len(memories))
	for _, m := range memories {
		// The index can lag the structured store; trust the row.
		if !visible[m.Owner] {
			continue
		}
		store, ok := stores[m.StoreId]
		if !ok {
			if store, err = p.repo.GetStore(ctx, m.StoreId); err != nil {
				p.logger.Warn("skipping hit with unreadable store", "memory_id", m.Id, "err", err)
				continue
			}
			stores[m.StoreId] = store
		}
		r := &core.SearchResult{Memory: m, Store: store, Score: best[m.Id]}
		mon.VectorHit(r)
		results = append(results, r)
	}
	sortResults(results)
	return results, nil
}

// fallbackSearch ranks candidate stores with the router, keeps those close to the
// best one and scores their memories concurrently.
func (p *Provider) fallbackSearch(
	ctx context.Context,
	query string,
	owners []core.Owner,
	storeID core.ID,
	threshold float32,
	mon SearchMonitor,
) ([]*core.SearchResult, error) {
	var stores []*core.MemoryStore
	if storeID != 0 {
		store, err := p.repo.GetStore(ctx, storeID)
		if err != nil {
			return nil, err
		}
		stores = []*core.MemoryStore{store}
	} else {
		var err error
		if stores, err = p.repo.GetStoresByOwner(ctx, owners...); err != nil {
			return nil, err
		}
	}
	if len(stores) == 0 {
		mon.AfterStoreRanking(nil, nil)
		return nil, nil
	}

	candidates, err := p.listings(ctx, stores)
	if err != nil {
		return nil, err
	}
	ranked, err := p.router.RankStores(ctx, query, candidates)
	if err != nil {
		return nil, err
	}
	retained := p.retain(ranked)
	mon.AfterStoreRanking(ranked, retained)

	byID := make(map[core.ID]*core.MemoryStore, len(stores))
	for _, s := range stores {
		byID[s.Id] = s
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		hits []fallbackHit
	)
	for _, id := range retained {
		store := byID[id]
		wg.Add(1)
		err := p.searchPool.Submit(func() {
			defer wg.Done()
			scored := p.scoreStore(ctx, query, store, threshold)
			mu.Lock()
			hits = append(hits, scored...)
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			p.logger.Error("failed to submit store scoring", "store_id", id, "err", err)
		}
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]*core.SearchResult, 0, len(hits))
	for _, h := range hits {
		mon.FallbackHit(h.result, h.vectorScore, h.modelScore)
		results = append(results, h.result)
	}
	sortResults(results)
	return results, nil
}

// retain keeps the stores whose relevance is at least the retain ratio times the
// top relevance. Nothing is kept when no store scored above zero.
func (p *Provider) retain(ranked []core.RoutingResult) []core.ID {
	if len(ranked) == 0 || ranked[0].Relevance <= 0 {
		return nil
	}
	cutoff := ranked[0].Relevance * p.retainRatio
	var ids []core.ID
	for _, r := range ranked {
		if r.Relevance > 0 && r.Relevance >= cutoff {
			ids = append(ids, r.StoreId)
		}
	}
	return ids
}

// scoreStore blends vector similarity with model relevance over every memory in
// store. Failures degrade to whichever signal is still available.
func (p *Provider) scoreStore(ctx context.Context, query string, store *core.MemoryStore, threshold float32) []fallbackHit {
	logger := p.logger.With("store_id", store.Id)
	memories, err := p.repo.GetStoreMemories(ctx, store.Id)
	if err != nil {
		logger.Warn("failed to load store memories", "err", err)
		return nil
	}
	if len(memories) == 0 {
		return nil
	}

	vector := make(map[core.ID]float64, len(memories))
	hits, err := p.index.Search(ctx, storage.VectorQuery{
		Text:    query,
		TopK:    len(memories) * len(storage.AllFields),
		Owners:  []core.Owner{store.Owner},
		StoreID: store.Id,
	})
	if err != nil {
		logger.Warn("store vector search failed", "err", err)
	}
	for _, h := range hits {
		if s, ok := vector[h.MemoryID]; !ok || float64(h.Score) > s {
			vector[h.MemoryID] = float64(h.Score)
		}
	}

	model := make(map[core.ID]float64, len(memories))
	for _, batch := range p.relevanceBatches(query, memories) {
		if ctx.Err() != nil {
			break
		}
		reply, err := p.completer.Complete(ctx, relevancePrompt, listMemories(query, batch))
		if err != nil {
			logger.Warn("relevance scoring failed", "err", err, "memories", len(batch))
			continue
		}
		weights, malformed := routing.ParseWeights(reply)
		if len(malformed) > 0 {
			logger.Warn("dropping malformed relevance entries", "entries", malformed)
		}
		for _, w := range weights {
			model[w.ID] = min(max(w.Weight, 0), 100) / 100
		}
	}

	var out []fallbackHit
	for _, m := range memories {
		v, l := vector[m.Id], model[m.Id]
		score := float32(p.vectorWeight*v + (1-p.vectorWeight)*l)
		if score < threshold {
			continue
		}
		out = append(out, fallbackHit{
			result:      &core.SearchResult{Memory: m, Store: store, Score: score},
			vectorScore: v,
			modelScore:  l,
		})
	}
	return out
}

// relevanceBatches splits memories so each relevance prompt stays within the
// batch size and the token ceiling. A memory whose line alone exceeds the
// ceiling gets a batch of its own.
func (p *Provider) relevanceBatches(query string, memories []*core.Memory) [][]*core.Memory {
	budget := p.relevanceCeiling - p.tokenizer.Count(listMemories(query, nil))
	var (
		batches [][]*core.Memory
		current []*core.Memory
		used    int
	)
	for _, m := range memories {
		cost := p.tokenizer.Count(memoryLine(m))
		if len(current) > 0 && (len(current) >= p.relevanceBatch || used+cost > budget) {
			batches = append(batches, current)
			current, used = nil, 0
		}
		current = append(current, m)
		used += cost
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// mergeResults combines primary and fallback results, keeping the best score
// for a memory found by both.
func mergeResults(primary, fallback []*core.SearchResult) []*core.SearchResult {
	if len(primary) == 0 {
		return fallback
	}
	byID := make(map[core.ID]*core.SearchResult, len(primary)+len(fallback))
	out := make([]*core.SearchResult, 0, len(primary)+len(fallback))
	for _, r := range append(primary, fallback...) {
		if prev, ok := byID[r.Memory.Id]; ok {
			if r.Score > prev.Score {
				prev.Score = r.Score
			}
			continue
		}
		byID[r.Memory.Id] = r
		out = append(out, r)
	}
	sortResults(out)
	return out
}
