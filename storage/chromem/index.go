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

package chromem

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

const (
	metaMemoryID  = "memory_id"
	metaStoreID   = "store_id"
	metaField     = "field"
	metaOwnerKind = "owner_kind"
	metaOwnerID   = "owner_id"

	defaultCacheBytes = 64 << 20
)

// Index is a storage.VectorIndex backed by chromem-go. Each owner gets its own
// collection; each memory field is a separate document.
type Index struct {
	db       *chromem.DB
	embedder ai.Embedder
	cache    *embeddingCache
	logger   *slog.Logger

	mu          sync.RWMutex
	collections map[string]*chromem.Collection

	persistPath string
	compress    bool
	cacheBytes  int64
}

// Option configures an Index.
type Option func(*Index) error

// WithLogger sets the logger used by the index.
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Index) error {
		if logger != nil {
			ix.logger = logger
		}
		return nil
	}
}

// WithPersistence stores collections under path instead of in memory.
func WithPersistence(path string, compress bool) Option {
	return func(ix *Index) error {
		if path == "" {
			return fmt.Errorf("%w: empty persistence path", storage.ErrInvalidQuery)
		}
		ix.persistPath = path
		ix.compress = compress
		return nil
	}
}

// WithCacheSize bounds the embedding cache in bytes. Zero disables caching.
func WithCacheSize(bytes int64) Option {
	return func(ix *Index) error {
		ix.cacheBytes = bytes
		return nil
	}
}

// NewIndex creates a vector index that embeds text with embedder.
func NewIndex(embedder ai.Embedder, opts ...Option) (*Index, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	ix := &Index{
		embedder:    embedder,
		logger:      slog.Default(),
		collections: make(map[string]*chromem.Collection),
		cacheBytes:  defaultCacheBytes,
	}
	for _, opt := range opts {
		if err := opt(ix); err != nil {
			return nil, err
		}
	}
	ix.logger = ix.logger.With("component", "vector-index")

	if ix.persistPath != "" {
		db, err := chromem.NewPersistentDB(ix.persistPath, ix.compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector store at %s: %w", ix.persistPath, err)
		}
		ix.db = db
	} else {
		ix.db = chromem.NewDB()
	}

	cache, err := newEmbeddingCache(ix.cacheBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	ix.cache = cache
	return ix, nil
}

// collection returns the owner's collection, creating it when create is set.
// Returns nil when the collection doesn't exist and create is false.
func (ix *Index) collection(owner core.Owner, create bool) (*chromem.Collection, error) {
	name := owner.Namespace()

	ix.mu.RLock()
	col, ok := ix.collections[name]
	ix.mu.RUnlock()
	if ok {
		return col, nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if col, ok := ix.collections[name]; ok {
		return col, nil
	}

	// Persistent databases load existing collections on open.
	if col := ix.db.GetCollection(name, ix.embeddingFunc()); col != nil {
		ix.collections[name] = col
		return col, nil
	}
	if !create {
		return nil, nil
	}
	col, err := ix.db.GetOrCreateCollection(name, nil, ix.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	ix.collections[name] = col
	return col, nil
}

// embeddingFunc lets chromem embed on its own if it ever needs to; every document
// and query we hand it already carries an embedding.
func (ix *Index) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vectors, err := ix.embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		return vectors[0], nil
	}
}

// embed returns normalized embeddings for texts, consulting the cache first.
func (ix *Index) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if v, ok := ix.cache.get(text); ok {
			vectors[i] = v
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return vectors, nil
	}

	embedded, err := ix.embedder.EmbedTexts(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d texts: %w", len(missing), err)
	}
	if len(embedded) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(embedded), len(missing))
	}
	for j, v := range embedded {
		if len(v) == 0 || isZero(v) {
			return nil, ErrZeroVector
		}
		norm := NormalizeVector(v)
		ix.cache.set(missing[j], norm)
		vectors[missingIdx[j]] = norm
	}
	return vectors, nil
}

func documentID(memoryID core.ID, field storage.Field) string {
	return strconv.FormatUint(uint64(memoryID), 10) + ":" + string(field)
}

func formatID(id core.ID) string {
	return strconv.FormatUint(uint64(id), 10)
}

func fieldText(memory *core.Memory, field storage.Field) string {
	switch field {
	case storage.FieldTitle:
		return memory.Title
	case storage.FieldDescription:
		return memory.Description
	default:
		return memory.Content
	}
}

// Upsert embeds every non-empty field of memory and stores it under memory.Owner,
// replacing whatever was indexed for the memory before.
func (ix *Index) Upsert(ctx context.Context, memory *core.Memory) error {
	if memory == nil || memory.Id == 0 {
		return fmt.Errorf("%w: memory must have an id", storage.ErrInvalidQuery)
	}
	if memory.Description == "" {
		return storage.ErrEmptyDescription
	}
	if err := core.ValidateOwner(memory.Owner); err != nil {
		return err
	}

	var fields []storage.Field
	var texts []string
	for _, field := range storage.AllFields {
		if text := fieldText(memory, field); text != "" {
			fields = append(fields, field)
			texts = append(texts, text)
		}
	}
	vectors, err := ix.embed(ctx, texts)
	if err != nil {
		return err
	}

	col, err := ix.collection(memory.Owner, true)
	if err != nil {
		return err
	}
	memoryID := formatID(memory.Id)
	if err := col.Delete(ctx, map[string]string{metaMemoryID: memoryID}, nil); err != nil {
		return fmt.Errorf("failed to clear memory %d: %w", memory.Id, err)
	}

	docs := make([]chromem.Document, len(fields))
	for i, field := range fields {
		docs[i] = chromem.Document{
			ID:        documentID(memory.Id, field),
			Content:   texts[i],
			Embedding: vectors[i],
			Metadata: map[string]string{
				metaMemoryID:  memoryID,
				metaStoreID:   formatID(memory.StoreId),
				metaField:     string(field),
				metaOwnerKind: strconv.Itoa(int(memory.Owner.Kind)),
				metaOwnerID:   formatID(memory.Owner.ID),
			},
		}
	}
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("failed to index memory %d: %w", memory.Id, err)
	}
	return nil
}

// Search runs q against every owner namespace and field, returning all hits
// highest score first. Callers dedupe by memory.
func (ix *Index) Search(ctx context.Context, q storage.VectorQuery) ([]storage.VectorHit, error) {
	if q.Text == "" {
		return nil, fmt.Errorf("%w: empty query text", storage.ErrInvalidQuery)
	}
	if q.TopK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive", storage.ErrInvalidQuery)
	}
	if len(q.Owners) == 0 {
		return nil, nil
	}
	fields := q.Fields
	if len(fields) == 0 {
		fields = storage.AllFields
	}

	vectors, err := ix.embed(ctx, []string{q.Text})
	if err != nil {
		return nil, err
	}
	query := vectors[0]

	var hits []storage.VectorHit
	for _, owner := range q.Owners {
		col, err := ix.collection(owner, false)
		if err != nil {
			return nil, err
		}
		if col == nil {
			continue
		}
		for _, field := range fields {
			where := map[string]string{metaField: string(field)}
			if q.StoreID != 0 {
				where[metaStoreID] = formatID(q.StoreID)
			}
			results, err := ix.query(ctx, col, query, q.TopK, where)
			if err != nil {
				return nil, fmt.Errorf("search in %s failed: %w", owner.Namespace(), err)
			}
			for _, r := range results {
				hit, ok := ix.toHit(r, owner, field)
				if ok {
					hits = append(hits, hit)
				}
			}
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	return hits, nil
}

// query clamps n to the number of matching documents; chromem rejects larger requests.
func (ix *Index) query(ctx context.Context, col *chromem.Collection, query []float32, n int, where map[string]string) ([]chromem.Result, error) {
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if n > count {
		n = count
	}
	for {
		results, err := col.QueryEmbedding(ctx, query, n, where, nil)
		if err == nil {
			return results, nil
		}
		if !isTooManyResults(err) {
			return nil, err
		}
		// The filtered set can be smaller than the collection.
		if n == 1 {
			return nil, nil
		}
		n /= 2
	}
}

func isTooManyResults(err error) bool {
	return strings.Contains(err.Error(), "nResults must be")
}

func (ix *Index) toHit(r chromem.Result, owner core.Owner, field storage.Field) (storage.VectorHit, bool) {
	memoryID, err := strconv.ParseUint(r.Metadata[metaMemoryID], 10, 64)
	if err != nil {
		ix.logger.Warn("dropping vector hit with bad memory id", "doc", r.ID, "err", err)
		return storage.VectorHit{}, false
	}
	storeID, err := strconv.ParseUint(r.Metadata[metaStoreID], 10, 64)
	if err != nil {
		ix.logger.Warn("dropping vector hit with bad store id", "doc", r.ID, "err", err)
		return storage.VectorHit{}, false
	}
	return storage.VectorHit{
		MemoryID: core.ID(memoryID),
		StoreID:  core.ID(storeID),
		Owner:    owner,
		Field:    field,
		Score:    r.Similarity,
	}, true
}

// Delete removes every field of a memory from the owner's namespace.
func (ix *Index) Delete(ctx context.Context, owner core.Owner, memoryID core.ID) error {
	col, err := ix.collection(owner, false)
	if err != nil || col == nil {
		return err
	}
	if err := col.Delete(ctx, map[string]string{metaMemoryID: formatID(memoryID)}, nil); err != nil {
		return fmt.Errorf("failed to delete memory %d vectors: %w", memoryID, err)
	}
	return nil
}

// DeleteStore removes every vector of a store from the owner's namespace.
func (ix *Index) DeleteStore(ctx context.Context, owner core.Owner, storeID core.ID) error {
	col, err := ix.collection(owner, false)
	if err != nil || col == nil {
		return err
	}
	if err := col.Delete(ctx, map[string]string{metaStoreID: formatID(storeID)}, nil); err != nil {
		return fmt.Errorf("failed to delete store %d vectors: %w", storeID, err)
	}
	return nil
}

// Count returns the number of indexed documents in the owner's namespace.
func (ix *Index) Count(owner core.Owner) int {
	col, err := ix.collection(owner, false)
	if err != nil || col == nil {
		return 0
	}
	return col.Count()
}

// Close releases the embedding cache. chromem persists on every write.
func (ix *Index) Close() error {
	ix.cache.close()
	return nil
}

var _ storage.VectorIndex = (*Index)(nil)
