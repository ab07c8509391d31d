package embed

import (
	"context"
	"fmt"
	"io"

	"github.com/Protocol-Lattice/go-prefs/src/cache"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/metrics"
)

// CachedEmbedder memoises a deterministic Embedder by the SHA-256 of the text.
type CachedEmbedder struct {
	inner   Embedder
	lru     *cache.LRU[string, []float32]
	metrics *metrics.Metrics
}

// NewCachedEmbedder wraps inner with an LRU of size entries. A non-positive
// size returns inner unchanged.
func NewCachedEmbedder(inner Embedder, size int, m *metrics.Metrics) Embedder {
	if size <= 0 {
		return inner
	}
	return &CachedEmbedder{inner: inner, lru: cache.NewLRU[string, []float32](size, 0), metrics: m}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cache.HashKey(text)
	if v, ok := c.lru.Get(key); ok {
		c.metrics.EmbedCache(true)
		return append([]float32(nil), v...), nil
	}
	c.metrics.EmbedCache(false)
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.lru.Set(key, append([]float32(nil), v...))
	return v, nil
}

// EmbedPassages serves cached documents from the LRU and embeds the rest
// together, through the provider's batch call when it has one.
func (c *CachedEmbedder) EmbedPassages(ctx context.Context, docs []string) ([][]float32, error) {
	out := make([][]float32, len(docs))
	var (
		missing []string
		at      []int
	)
	for i, d := range docs {
		if v, ok := c.lru.Get(cache.HashKey(d)); ok {
			c.metrics.EmbedCache(true)
			out[i] = append([]float32(nil), v...)
			continue
		}
		c.metrics.EmbedCache(false)
		missing = append(missing, d)
		at = append(at, i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	var fresh [][]float32
	if pe, ok := c.inner.(PassageEmbedder); ok {
		vecs, err := pe.EmbedPassages(ctx, missing)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(missing) {
			return nil, fmt.Errorf("provider returned %d vectors for %d documents", len(vecs), len(missing))
		}
		fresh = vecs
	} else {
		fresh = make([][]float32, 0, len(missing))
		for _, d := range missing {
			v, err := c.inner.Embed(ctx, d)
			if err != nil {
				return nil, err
			}
			fresh = append(fresh, v)
		}
	}
	for j, v := range fresh {
		c.lru.Set(cache.HashKey(missing[j]), append([]float32(nil), v...))
		out[at[j]] = v
	}
	return out, nil
}

// Close closes the wrapped provider.
func (c *CachedEmbedder) Close() error {
	if closer, ok := c.inner.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
