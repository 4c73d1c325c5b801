// Package resolve decides whether a candidate entity refers to a record that
// is already in the graph or needs a new one.
package resolve

import (
	"context"
	"log/slog"

	"github.com/rohankatakam/kgraph/internal/errors"
	"github.com/rohankatakam/kgraph/internal/graph"
	"github.com/rohankatakam/kgraph/internal/models"
)

// Outcome records what resolution did to the store
type Outcome int

const (
	OutcomeCreated Outcome = iota
	OutcomeUpdated
)

func (o Outcome) String() string {
	if o == OutcomeUpdated {
		return "updated"
	}
	return "created"
}

// Resolution is the result of resolving one candidate
type Resolution struct {
	Kind      models.Kind
	Handle    models.Handle
	Outcome   Outcome
	Ambiguous bool // the dedup lookup matched more than one record
}

// KeyNormalizer maps a dedup key to the form used for lookup and storage
type KeyNormalizer func(key string) string

// ExactMatch leaves keys as they are
func ExactMatch(key string) string { return key }

// Resolver upserts deduplicated kinds by key and creates fresh kinds
type Resolver struct {
	normalize KeyNormalizer
	logger    *slog.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithKeyNormalizer replaces exact key matching
func WithKeyNormalizer(fn KeyNormalizer) Option {
	return func(r *Resolver) {
		if fn != nil {
			r.normalize = fn
		}
	}
}

// New creates a resolver that matches keys exactly unless configured otherwise
func New(opts ...Option) *Resolver {
	r := &Resolver{
		normalize: ExactMatch,
		logger:    slog.Default().With("component", "resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve persists entity through tx. Deduplicated kinds cost one lookup and
// one write; fresh kinds cost one write.
func (r *Resolver) Resolve(ctx context.Context, tx graph.Tx, entity models.Entity) (Resolution, error) {
	kind := entity.Kind()
	props := entity.Properties()

	key, deduplicated := entity.DedupKey()
	if !deduplicated {
		handle, err := tx.CreateNode(ctx, kind, props)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{Kind: kind, Handle: handle, Outcome: OutcomeCreated}, nil
	}

	key = r.normalize(key)
	if key == "" {
		return Resolution{}, errors.ValidationErrorf("%s has an empty name", kind)
	}
	props[models.DedupProperty] = key

	matches, err := tx.FindByKey(ctx, kind, key)
	if err != nil {
		return Resolution{}, err
	}

	if len(matches) == 0 {
		handle, err := tx.CreateNode(ctx, kind, props)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{Kind: kind, Handle: handle, Outcome: OutcomeCreated}, nil
	}

	res := Resolution{Kind: kind, Handle: matches[0], Outcome: OutcomeUpdated}
	if len(matches) > 1 {
		res.Ambiguous = true
		r.logger.Warn("dedup lookup matched more than one record, using the first",
			"kind", kind,
			"key", key,
			"chosen", matches[0])
	}

	if err := tx.MergeNode(ctx, kind, res.Handle, props); err != nil {
		return Resolution{}, err
	}
	return res, nil
}
