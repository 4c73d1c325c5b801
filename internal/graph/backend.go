package graph

import (
	"context"

	"github.com/rohankatakam/kgraph/internal/models"
)

// Dialect names the query language a backend accepts
type Dialect string

const (
	DialectCypher Dialect = "cypher"
	DialectSQL    Dialect = "sql"
)

// Store runs a unit of work inside one write transaction.
// fn may be invoked more than once when the backend retries a transient
// failure, so it must rebuild any per-attempt state itself.
// Nothing written through tx is visible to readers unless Write returns nil.
type Store interface {
	Write(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of graph operations available inside a write transaction
type Tx interface {
	// FindByKey returns up to two handles whose dedup key equals key,
	// in a stable order. More than one result means the store already
	// holds duplicates.
	FindByKey(ctx context.Context, kind models.Kind, key string) ([]models.Handle, error)

	// CreateNode persists a new record and returns its handle
	CreateNode(ctx context.Context, kind models.Kind, props map[string]any) (models.Handle, error)

	// MergeNode overwrites the given properties on an existing record and
	// leaves all others untouched
	MergeNode(ctx context.Context, kind models.Kind, handle models.Handle, props map[string]any) error

	// CreateEdge persists a directed edge of the given relationship type
	CreateEdge(ctx context.Context, spec models.RelSpec, from, to models.Handle, props map[string]any) error
}

// Reader executes an opaque read query and collects every row
type Reader interface {
	Read(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
	Dialect() Dialect
}

// Backend is a complete graph store: write transactions, reads and admin
type Backend interface {
	Store
	Reader

	// EnsureSchema installs dedup-key uniqueness and lookup indexes
	EnsureSchema(ctx context.Context) error

	// Clear deletes every record and edge
	Clear(ctx context.Context) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
