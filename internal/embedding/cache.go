package embedding

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// CachedProvider memoizes embeddings per text. Query phrases repeat across
// decision cycles, so retrieval hits the cache far more often than not.
type CachedProvider struct {
	inner Provider
	cache *ristretto.Cache
}

// NewCachedProvider wraps inner with a cache holding up to maxEntries vectors.
func NewCachedProvider(inner Provider, maxEntries int64) (*CachedProvider, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: create cache: %w", err)
	}
	return &CachedProvider{inner: inner, cache: cache}, nil
}

// Embed serves cached vectors and forwards only the misses, in one call.
func (c *CachedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			out[i] = v.([]float32)
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embedding: got %d vectors for %d inputs", len(vecs), len(missing))
	}
	for j, v := range vecs {
		out[missingIdx[j]] = v
		c.cache.Set(missing[j], v, 1)
	}
	c.cache.Wait()
	return out, nil
}

func (c *CachedProvider) Dimension() int { return c.inner.Dimension() }

// Close releases the cache's background goroutines.
func (c *CachedProvider) Close() {
	c.cache.Close()
}
