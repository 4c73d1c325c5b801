// Package query runs read queries against the graph and wires the read path
// from a question to a report.
package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/rohankatakam/kgraph/internal/errors"
	"github.com/rohankatakam/kgraph/internal/graph"
	"github.com/rohankatakam/kgraph/internal/metrics"
)

// Row is one result record keyed by return column
type Row = map[string]any

// Query is a read query in the store's dialect with its named parameters
type Query struct {
	Text   string         `json:"text" yaml:"text"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// Executor runs a read query and returns every row
type Executor interface {
	Execute(ctx context.Context, query string, params map[string]any) ([]Row, error)
	Dialect() graph.Dialect
}

// StoreExecutor runs queries directly against a graph reader. The query is
// not parsed or restricted; callers own that trust boundary.
type StoreExecutor struct {
	reader graph.Reader
	logger *slog.Logger
}

var _ Executor = (*StoreExecutor)(nil)

func NewExecutor(reader graph.Reader) *StoreExecutor {
	return &StoreExecutor{
		reader: reader,
		logger: slog.Default().With("component", "executor"),
	}
}

func (e *StoreExecutor) Dialect() graph.Dialect { return e.reader.Dialect() }

// Execute collects every row eagerly. Malformed queries fail with a query
// error, connectivity problems with StoreUnavailable. Nothing is retried.
func (e *StoreExecutor) Execute(ctx context.Context, query string, params map[string]any) ([]Row, error) {
	dialect := string(e.reader.Dialect())
	start := time.Now()

	rows, err := e.reader.Read(ctx, query, params)
	if err != nil {
		status := "unavailable"
		if errors.IsQueryError(err) {
			status = "query_error"
		} else if _, typed := errors.As(err); !typed {
			err = errors.StoreUnavailable(err, "read query failed")
		}
		metrics.QueriesTotal.WithLabelValues(dialect, status).Inc()
		e.logger.Warn("read query failed", "dialect", dialect, "status", status, "error", err)
		return nil, err
	}

	metrics.QueriesTotal.WithLabelValues(dialect, "ok").Inc()
	e.logger.Debug("read query executed",
		"dialect", dialect,
		"rows", len(rows),
		"duration_ms", time.Since(start).Milliseconds())

	if rows == nil {
		rows = []Row{}
	}
	return rows, nil
}
