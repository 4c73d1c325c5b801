package query

import (
	"context"
	"log/slog"

	"github.com/rohankatakam/kgraph/internal/cache"
	"github.com/rohankatakam/kgraph/internal/graph"
	"github.com/rohankatakam/kgraph/internal/metrics"
)

// ResultCache stores query results as JSON
type ResultCache interface {
	Get(ctx context.Context, key string, target any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

// CachingExecutor is a read-through cache in front of another executor.
// Cache failures are logged and bypassed. Cached rows come back decoded
// from JSON, so numbers read from the cache are float64.
type CachingExecutor struct {
	next   Executor
	cache  ResultCache
	logger *slog.Logger
}

var _ Executor = (*CachingExecutor)(nil)

func NewCachingExecutor(next Executor, c ResultCache) *CachingExecutor {
	return &CachingExecutor{
		next:   next,
		cache:  c,
		logger: slog.Default().With("component", "query_cache"),
	}
}

func (c *CachingExecutor) Dialect() graph.Dialect { return c.next.Dialect() }

func (c *CachingExecutor) Execute(ctx context.Context, query string, params map[string]any) ([]Row, error) {
	key, err := cache.QueryCacheKey(string(c.next.Dialect()), query, params)
	if err != nil {
		metrics.QueryCache.WithLabelValues("error").Inc()
		c.logger.Warn("query not cacheable", "error", err)
		return c.next.Execute(ctx, query, params)
	}

	var cached []Row
	found, err := c.cache.Get(ctx, key, &cached)
	switch {
	case err != nil:
		metrics.QueryCache.WithLabelValues("error").Inc()
		c.logger.Warn("cache read failed, querying store", "error", err)
	case found:
		metrics.QueryCache.WithLabelValues("hit").Inc()
		if cached == nil {
			cached = []Row{}
		}
		return cached, nil
	default:
		metrics.QueryCache.WithLabelValues("miss").Inc()
	}

	rows, err := c.next.Execute(ctx, query, params)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, rows); err != nil {
		metrics.QueryCache.WithLabelValues("error").Inc()
		c.logger.Warn("cache write failed", "error", err)
	}
	return rows, nil
}
