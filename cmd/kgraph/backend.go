package main

import (
	"context"

	"github.com/rohankatakam/kgraph/internal/cache"
	"github.com/rohankatakam/kgraph/internal/config"
	"github.com/rohankatakam/kgraph/internal/errors"
	"github.com/rohankatakam/kgraph/internal/graph"
	"github.com/rohankatakam/kgraph/internal/query"
)

// openBackend connects to the configured graph store
func openBackend(ctx context.Context, sc config.StoreConfig) (graph.Backend, error) {
	switch sc.Backend {
	case config.BackendNeo4j:
		client, err := graph.NewClient(ctx, graph.Neo4jOptions{
			URI:                sc.Neo4jURI,
			User:               sc.Neo4jUser,
			Password:           sc.Neo4jPassword,
			Database:           sc.Neo4jDatabase,
			MaxPoolSize:        sc.MaxPoolSize,
			AcquisitionTimeout: sc.AcquisitionTimeout,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.BackendSQLite, "":
		store, err := graph.NewSQLiteStore(sc.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, errors.ConfigErrorf("unknown store backend %q", sc.Backend)
	}
}

// openCache connects to Redis when caching is enabled. A cache that cannot
// be reached is logged and skipped.
func openCache(ctx context.Context, cc config.CacheConfig) *cache.Client {
	if !cc.Enabled {
		return nil
	}
	c, err := cache.NewClient(ctx, cache.Options{
		Addr:     cc.RedisAddr,
		Password: cc.RedisPassword,
		DB:       cc.RedisDB,
		TTL:      cc.TTL,
	})
	if err != nil {
		logger.WithError(err).Warn("Query cache unavailable, continuing without it")
		return nil
	}
	return c
}

// newExecutor runs reads against backend, through the cache when present
func newExecutor(backend graph.Backend, c *cache.Client) query.Executor {
	var exec query.Executor = query.NewExecutor(backend)
	if c != nil {
		exec = query.NewCachingExecutor(exec, c)
	}
	return exec
}

// invalidateCache drops cached reads after the graph changed
func invalidateCache(ctx context.Context, c *cache.Client) {
	if c == nil {
		return
	}
	n, err := c.InvalidateQueries(ctx)
	if err != nil {
		logger.WithError(err).Warn("Failed to invalidate query cache")
		return
	}
	logger.WithField("keys", n).Debug("Query cache invalidated")
}
