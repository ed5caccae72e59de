package memory

import (
	"log/slog"

	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to trace intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string, owners []core.Owner)
	AfterVectorSearch(hits []storage.VectorHit)
	VectorHit(result *core.SearchResult)
	FallbackStarted(primaryHits int)
	AfterStoreRanking(ranked []core.RoutingResult, retained []core.ID)
	FallbackHit(result *core.SearchResult, vectorScore, modelScore float64)
	AfterRerank(results []*core.SearchResult)
	Finish(results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ []core.Owner) {}
func (n *noopMonitor) AfterVectorSearch(_ []storage.VectorHit) {}
func (n *noopMonitor) VectorHit(_ *core.SearchResult) {}
func (n *noopMonitor) FallbackStarted(_ int) {}
func (n *noopMonitor) AfterStoreRanking(_ []core.RoutingResult, _ []core.ID) {}
func (n *noopMonitor) FallbackHit(_ *core.SearchResult, _ float64, _ float64) {}
func (n *noopMonitor) AfterRerank(_ []*core.SearchResult) {}
func (n *noopMonitor) Finish(_ []*core.SearchResult) {}

// LogMonitor writes every search step to a logger at debug level.
type LogMonitor struct {
	Logger *slog.Logger
}

var _ SearchMonitor = (*LogMonitor)(nil)

func (l *LogMonitor) Start(query string, owners []core.Owner) {
	l.Logger.Debug("search started", "query", query, "owners", owners)
}

func (l *LogMonitor) AfterVectorSearch(hits []storage.VectorHit) {
	l.Logger.Debug("vector search", "hits", len(hits))
}

func (l *LogMonitor) VectorHit(r *core.SearchResult) {
	l.Logger.Debug("vector hit", "memory_id", r.Memory.Id, "store_id", r.Store.Id, "score", r.Score)
}

func (l *LogMonitor) FallbackStarted(primaryHits int) {
	l.Logger.Debug("falling back to store ranking", "primary_hits", primaryHits)
}

func (l *LogMonitor) AfterStoreRanking(ranked []core.RoutingResult, retained []core.ID) {
	l.Logger.Debug("stores ranked", "ranked", len(ranked), "retained", retained)
}

func (l *LogMonitor) FallbackHit(r *core.SearchResult, vectorScore, modelScore float64) {
	l.Logger.Debug("fallback hit",
		"memory_id", r.Memory.Id,
		"store_id", r.Store.Id,
		"vector", vectorScore,
		"model", modelScore,
		"score", r.Score)
}

func (l *LogMonitor) AfterRerank(results []*core.SearchResult) {
	l.Logger.Debug("reranked", "results", len(results))
}

func (l *LogMonitor) Finish(results []*core.SearchResult) {
	l.Logger.Debug("search finished", "results", len(results))
}
