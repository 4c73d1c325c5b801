// Package materialize writes an extracted batch into the graph store as one
// atomic unit.
package materialize

import (
	"context"
	"log/slog"
	"time"

	"github.com/rohankatakam/kgraph/internal/errors"
	"github.com/rohankatakam/kgraph/internal/graph"
	"github.com/rohankatakam/kgraph/internal/metrics"
	"github.com/rohankatakam/kgraph/internal/models"
	"github.com/rohankatakam/kgraph/internal/resolve"
)

// Drops counts relationships that were skipped, by reason
type Drops struct {
	UnknownKind int `json:"unknown_kind"`
	Unresolved  int `json:"unresolved"`
	Mismatch    int `json:"mismatch"`
}

func (d Drops) Total() int {
	return d.UnknownKind + d.Unresolved + d.Mismatch
}

// Result summarizes one committed batch
type Result struct {
	Article      models.Handle          `json:"article"`
	Created      map[models.Kind]int    `json:"created"`
	Updated      map[models.Kind]int    `json:"updated"`
	Edges        map[models.RelKind]int `json:"edges"`
	Dropped      Drops                  `json:"dropped"`
	DuplicateIDs int                    `json:"duplicate_ids"`
	Ambiguous    map[models.Kind]int    `json:"ambiguous"`
	Attempts     int                    `json:"attempts"`
	Duration     time.Duration          `json:"duration"`
}

func newResult() *Result {
	return &Result{
		Created:   make(map[models.Kind]int),
		Updated:   make(map[models.Kind]int),
		Edges:     make(map[models.RelKind]int),
		Ambiguous: make(map[models.Kind]int),
	}
}

// EdgesCreated is the total number of edges written
func (r *Result) EdgesCreated() int {
	n := 0
	for _, c := range r.Edges {
		n += c
	}
	return n
}

// Materializer persists batches through the resolver
type Materializer struct {
	store    graph.Store
	resolver *resolve.Resolver
	logger   *slog.Logger
	now      func() time.Time
}

func New(store graph.Store, resolver *resolve.Resolver) *Materializer {
	if resolver == nil {
		resolver = resolve.New()
	}
	return &Materializer{
		store:    store,
		resolver: resolver,
		logger:   slog.Default().With("component", "materializer"),
		now:      time.Now,
	}
}

// Materialize writes batch in a single store transaction. Either every
// entity and edge of the batch becomes visible or none does.
func (m *Materializer) Materialize(ctx context.Context, batch *models.Batch) (*Result, error) {
	if batch == nil {
		return nil, errors.ValidationErrorf("nil batch")
	}
	if err := batch.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, errors.SeverityHigh, "invalid batch")
	}

	start := m.now()
	attempts := 0
	var result *Result

	err := m.store.Write(ctx, func(tx graph.Tx) error {
		// the store may call us again after a transient failure; start clean
		attempts++
		result = newResult()
		return m.apply(ctx, tx, batch, result)
	})
	if err != nil {
		metrics.BatchesTotal.WithLabelValues("failed").Inc()
		if _, typed := errors.As(err); !typed {
			err = errors.StoreUnavailable(err, "batch transaction failed")
		}
		m.logger.Error("batch rolled back", "attempts", attempts, "error", err)
		return nil, err
	}

	result.Attempts = attempts
	result.Duration = m.now().Sub(start)
	m.record(result)

	m.logger.Info("batch committed",
		"article", result.Article,
		"created", sum(result.Created),
		"updated", sum(result.Updated),
		"edges", result.EdgesCreated(),
		"dropped", result.Dropped.Total(),
		"attempts", attempts)
	return result, nil
}

func (m *Materializer) apply(ctx context.Context, tx graph.Tx, batch *models.Batch, result *Result) error {
	ids := NewIdentifierMap()

	resolveInto := func(c models.Candidate) (resolve.Resolution, error) {
		res, err := m.resolver.Resolve(ctx, tx, c.Entity)
		if err != nil {
			return res, err
		}
		if res.Outcome == resolve.OutcomeUpdated {
			result.Updated[res.Kind]++
		} else {
			result.Created[res.Kind]++
		}
		if res.Ambiguous {
			result.Ambiguous[res.Kind]++
		}

		if c.ID == "" {
			m.logger.Debug("entity has no id and cannot be referenced", "kind", res.Kind)
		} else if !ids.Record(c.ID, Ref{Kind: res.Kind, Handle: res.Handle}) {
			result.DuplicateIDs++
			m.logger.Warn("duplicate id in batch, keeping the first mapping", "id", c.ID, "kind", res.Kind)
		}
		return res, nil
	}

	article, err := resolveInto(models.Candidate{ID: batch.Article.ID, Entity: batch.Article.Article})
	if err != nil {
		return err
	}
	result.Article = article.Handle

	for _, c := range batch.Deduplicated() {
		if _, err := resolveInto(c); err != nil {
			return err
		}
	}
	for _, c := range batch.Fresh() {
		if _, err := resolveInto(c); err != nil {
			return err
		}
	}

	for _, rel := range batch.Relationships {
		if err := m.link(ctx, tx, ids, rel, result); err != nil {
			return err
		}
	}
	return nil
}

func (m *Materializer) link(ctx context.Context, tx graph.Tx, ids *IdentifierMap, rel models.Relationship, result *Result) error {
	spec, ok := rel.Kind.Spec()
	if !ok {
		result.Dropped.UnknownKind++
		m.logger.Debug("dropping relationship of unknown kind", "kind", rel.Kind)
		return nil
	}

	from, okFrom := ids.Lookup(rel.StartNodeID)
	to, okTo := ids.Lookup(rel.EndNodeID)
	if !okFrom || !okTo {
		result.Dropped.Unresolved++
		m.logger.Debug("dropping unresolved relationship",
			"kind", spec.Kind, "start", rel.StartNodeID, "end", rel.EndNodeID)
		return nil
	}

	if !spec.Accepts(from.Kind, to.Kind) {
		result.Dropped.Mismatch++
		m.logger.Debug("dropping mistyped relationship",
			"kind", spec.Kind,
			"expected", string(spec.Source)+"->"+string(spec.Target),
			"got", string(from.Kind)+"->"+string(to.Kind))
		return nil
	}

	props := map[string]any{
		"kind":      string(spec.Kind),
		"createdAt": m.now().UTC(),
	}
	if spec.Evidence && rel.Evidence != nil && *rel.Evidence != "" {
		props["evidence"] = *rel.Evidence
	}

	if err := tx.CreateEdge(ctx, spec, from.Handle, to.Handle, props); err != nil {
		return err
	}
	result.Edges[spec.Kind]++
	return nil
}

func (m *Materializer) record(result *Result) {
	metrics.BatchesTotal.WithLabelValues("committed").Inc()
	metrics.BatchDuration.Observe(result.Duration.Seconds())

	for kind, n := range result.Created {
		metrics.EntitiesResolved.WithLabelValues(string(kind), resolve.OutcomeCreated.String()).Add(float64(n))
	}
	for kind, n := range result.Updated {
		metrics.EntitiesResolved.WithLabelValues(string(kind), resolve.OutcomeUpdated.String()).Add(float64(n))
	}
	for kind, n := range result.Edges {
		metrics.RelationshipsTotal.WithLabelValues(string(kind), metrics.RelCreated).Add(float64(n))
	}
	metrics.RelationshipsTotal.WithLabelValues("", metrics.RelDroppedUnknown).Add(float64(result.Dropped.UnknownKind))
	metrics.RelationshipsTotal.WithLabelValues("", metrics.RelDroppedUnresolved).Add(float64(result.Dropped.Unresolved))
	metrics.RelationshipsTotal.WithLabelValues("", metrics.RelDroppedMismatch).Add(float64(result.Dropped.Mismatch))
	for kind, n := range result.Ambiguous {
		metrics.AmbiguousDedup.WithLabelValues(string(kind)).Add(float64(n))
	}
}

func sum(m map[models.Kind]int) int {
	n := 0
	for _, c := range m {
		n += c
	}
	return n
}
