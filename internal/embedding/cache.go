package embedding

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached memoizes another embedder's results in a bounded LRU.
type Cached struct {
	next  Embedder
	cache *lru.Cache[string, []float32]
}

// NewCached wraps next with an LRU of at most size entries.
func NewCached(next Embedder, size int) (*Cached, error) {
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &Cached{next: next, cache: cache}, nil
}

// Embed returns a cached vector or computes and stores one.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.cache.Get(text); ok {
		return vec, nil
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, vec)
	return vec, nil
}

// Len returns the number of cached entries.
func (c *Cached) Len() int { return c.cache.Len() }

// Model returns the wrapped model identifier.
func (c *Cached) Model() string { return c.next.Model() }

// Dimension returns the wrapped vector length.
func (c *Cached) Dimension() int { return c.next.Dimension() }
