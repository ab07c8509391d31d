package workflow

import (
	"context"
	"time"

	"github.com/Protocol-Lattice/go-prefs/src/cache"
)

// CachedSummarizer memoises Summarize by its full input, so replaying an
// event does not call a remote model twice.
type CachedSummarizer struct {
	inner Summarizer
	lru   *cache.LRU[string, string]
}

// NewCachedSummarizer wraps inner with an LRU of size entries that expire
// after ttl (0 keeps them until evicted). A non-positive size returns inner.
func NewCachedSummarizer(inner Summarizer, size int, ttl time.Duration) Summarizer {
	if size <= 0 || inner == nil {
		return inner
	}
	return &CachedSummarizer{inner: inner, lru: cache.NewLRU[string, string](size, ttl)}
}

func (c *CachedSummarizer) Summarize(ctx context.Context, in SummaryInput) (string, error) {
	key := cache.HashKey(string(in.Domain), in.Current, in.Opinion, in.Description)
	if v, ok := c.lru.Get(key); ok {
		return v, nil
	}
	out, err := c.inner.Summarize(ctx, in)
	if err != nil {
		return "", err
	}
	c.lru.Set(key, out)
	return out, nil
}
