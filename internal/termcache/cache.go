// Package termcache caches the term code → term name reference map with an
// explicit reload that bypasses and rewrites the cached value.
package termcache

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// LoaderFunc fetches the term map from the remote site.
type LoaderFunc func(ctx context.Context) (map[string]string, error)

// Cache serves the term list from memory, loading from remote on first use.
type Cache struct {
	load   LoaderFunc
	logger *zap.Logger

	mu    sync.RWMutex
	terms map[string]string
}

// New constructs a Cache around a loader.
func New(load LoaderFunc, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		load:   load,
		logger: logger,
	}
}

// Terms returns the cached term map, loading it from remote if absent.
func (c *Cache) Terms(ctx context.Context) (map[string]string, error) {
	c.mu.RLock()
	cached := c.terms
	c.mu.RUnlock()
	if cached != nil {
		return copyTerms(cached), nil
	}

	c.logger.Debug("term cache miss, loading from remote")
	return c.Reload(ctx)
}

// Reload bypasses the cache, fetches from remote, and rewrites the cached
// value.
func (c *Cache) Reload(ctx context.Context) (map[string]string, error) {
	terms, err := c.load(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.terms = copyTerms(terms)
	c.mu.Unlock()
	return terms, nil
}

func copyTerms(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
