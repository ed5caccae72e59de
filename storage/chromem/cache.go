package chromem

import (
	"github.com/dgraph-io/ristretto/v2"
	"github.com/poiesic/recall/core"
)

// embeddingCache memoizes embeddings by a hash of the embedded text.
type embeddingCache struct {
	cache *ristretto.Cache[uint64, []float32]
}

func newEmbeddingCache(maxBytes int64) (*embeddingCache, error) {
	if maxBytes <= 0 {
		return &embeddingCache{}, nil
	}
	cache, err := ristretto.NewCache(&ristretto.Config[uint64, []float32]{
		NumCounters: 100_000,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &embeddingCache{cache: cache}, nil
}

func cacheKey(text string) uint64 {
	return uint64(core.IDFromContent(text))
}

func (c *embeddingCache) get(text string) ([]float32, bool) {
	if c.cache == nil {
		return nil, false
	}
	return c.cache.Get(cacheKey(text))
}

func (c *embeddingCache) set(text string, vector []float32) {
	if c.cache == nil {
		return
	}
	c.cache.Set(cacheKey(text), vector, int64(len(vector)*4))
}

// wait blocks until buffered writes are visible to get.
func (c *embeddingCache) wait() {
	if c.cache != nil {
		c.cache.Wait()
	}
}

func (c *embeddingCache) close() {
	if c.cache != nil {
		c.cache.Close()
	}
}
