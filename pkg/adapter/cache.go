package adapter

import (
	"context"

	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/goerr/v2"
)

// CachedEmbedder memoizes vectors per text in front of another embedder, so
// repeated lookups of the same text (dedup checks, REPL re-queries) skip the
// backend call.
type CachedEmbedder struct {
	backend Embedder
	cache   *ristretto.Cache
}

func NewCachedEmbedder(backend Embedder, maxEntries int64) (*CachedEmbedder, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedding cache")
	}

	return &CachedEmbedder{
		backend: backend,
		cache:   cache,
	}, nil
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, int, error) {
	vectors := make([][]float32, len(texts))

	var misses []string
	var missIndex []int
	for i, text := range texts {
		if cached, ok := c.cache.Get(text); ok {
			vectors[i] = cached.([]float32)
			continue
		}
		misses = append(misses, text)
		missIndex = append(missIndex, i)
	}

	if len(misses) == 0 {
		return vectors, 0, nil
	}

	fetched, tokens, err := c.backend.Embed(ctx, misses)
	if err != nil {
		return nil, 0, err
	}

	for i, vec := range fetched {
		vectors[missIndex[i]] = vec
		c.cache.Set(misses[i], vec, 1)
	}
	return vectors, tokens, nil
}

func (c *CachedEmbedder) Close() {
	c.cache.Close()
}
