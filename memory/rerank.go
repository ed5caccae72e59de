package memory

import (
	"context"
	"log/slog"
	"sort"

	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/routing"
)

// Reranker reorders primary search results before they are trimmed to the limit.
// Implementations must not add results; they may change scores.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []*core.SearchResult) ([]*core.SearchResult, error)
}

// IdentityReranker keeps the vector order.
type IdentityReranker struct{}

func (IdentityReranker) Rerank(_ context.Context, _ string, results []*core.SearchResult) ([]*core.SearchResult, error) {
	return results, nil
}

// KeywordReranker boosts results whose title, description or content contain every
// keyword of the query.
type KeywordReranker struct {
	Boost float32
}

func (k KeywordReranker) Rerank(_ context.Context, query string, results []*core.SearchResult) ([]*core.SearchResult, error) {
	boost := k.Boost
	if boost == 0 {
		boost = 0.3
	}
	for _, r := range results {
		text := r.Memory.Title + " " + r.Memory.Description + " " + r.Memory.Content
		if containsAllKeywords(text, query) {
			r.Score += boost
		}
	}
	sortResults(results)
	return results, nil
}

// CompletionReranker asks the completion service to weight results and orders them
// by that weight, keeping the vector score as a tie breaker. Results the model
// doesn't mention sink to the end.
type CompletionReranker struct {
	completer ai.Completer
	logger    *slog.Logger
}

// NewCompletionReranker creates a reranker backed by completer.
func NewCompletionReranker(completer ai.Completer, logger *slog.Logger) *CompletionReranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompletionReranker{completer: completer, logger: logger.With("component", "reranker")}
}

func (c *CompletionReranker) Rerank(ctx context.Context, query string, results []*core.SearchResult) ([]*core.SearchResult, error) {
	if len(results) < 2 {
		return results, nil
	}
	memories := make([]*core.Memory, len(results))
	for i, r := range results {
		memories[i] = r.Memory
	}
	reply, err := c.completer.Complete(ctx, rerankPrompt, listMemories(query, memories))
	if err != nil {
		return nil, err
	}
	weights, malformed := routing.ParseWeights(reply)
	if len(malformed) > 0 {
		c.logger.Warn("dropping malformed rerank entries", "entries", malformed)
	}
	byID := make(map[core.ID]float64, len(weights))
	for _, w := range weights {
		byID[w.ID] = w.Weight
	}

	sort.SliceStable(results, func(i, j int) bool {
		wi, iok := byID[results[i].Memory.Id]
		wj, jok := byID[results[j].Memory.Id]
		if iok != jok {
			return iok
		}
		if wi != wj {
			return wi > wj
		}
		return results[i].Score > results[j].Score
	})
	return results, nil
}

// sortResults orders by score descending, then by memory id.
func sortResults(results []*core.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Memory.Id < results[j].Memory.Id
	})
}
