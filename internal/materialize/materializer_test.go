package materialize

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/kgraph/internal/errors"
	"github.com/rohankatakam/kgraph/internal/graph"
	"github.com/rohankatakam/kgraph/internal/metrics"
	"github.com/rohankatakam/kgraph/internal/models"
)

func strPtr(s string) *string { return &s }

func setupStore(t *testing.T) *graph.SQLiteStore {
	store, err := graph.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(context.Background()) })
	return store
}

func count(t *testing.T, store *graph.SQLiteStore, query string, params map[string]any) int {
	rows, err := store.Read(context.Background(), query, params)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	n, ok := rows[0]["n"].(int64)
	require.True(t, ok, "count column has type %T", rows[0]["n"])
	return int(n)
}

func nodeCount(t *testing.T, store *graph.SQLiteStore, kind models.Kind) int {
	return count(t, store, "SELECT COUNT(*) AS n FROM nodes WHERE kind = :kind", map[string]any{"kind": string(kind)})
}

func edgeCount(t *testing.T, store *graph.SQLiteStore) int {
	return count(t, store, "SELECT COUNT(*) AS n FROM edges", nil)
}

func article(id, title string) *models.ArticleCandidate {
	return &models.ArticleCandidate{ID: id, Article: models.Article{Title: title, Content: "body"}}
}

func rel(kind models.RelKind, from, to string) models.Relationship {
	return models.Relationship{Kind: kind, StartNodeID: from, EndNodeID: to}
}

// sampleBatch is an article about Jane Doe founding Acme in Paris
func sampleBatch() *models.Batch {
	return &models.Batch{
		Article:       article("a1", "Acme founded"),
		People:        []models.PersonCandidate{{ID: "p1", Person: models.Person{Name: "Jane Doe"}}},
		Organisations: []models.OrganisationCandidate{{ID: "o1", Organisation: models.Organisation{Name: "Acme"}}},
		Locations:     []models.LocationCandidate{{ID: "l1", Location: models.Location{Name: "Paris"}}},
		Events:        []models.EventCandidate{{ID: "e1", Event: models.Event{Description: "Acme founding"}}},
		Knowledge:     []models.KnowledgeCandidate{{ID: "k1", Knowledge: models.Knowledge{Fact: "Acme makes anvils"}}},
		Relationships: []models.Relationship{
			{Kind: models.RelMentionsPerson, StartNodeID: "a1", EndNodeID: "p1", Evidence: strPtr("Jane Doe said")},
			rel(models.RelMentionsOrganisation, "a1", "o1"),
			rel(models.RelMentionsLocation, "a1", "l1"),
			rel(models.RelMentionsEvent, "a1", "e1"),
			rel(models.RelInvolvedPerson, "e1", "p1"),
			rel(models.RelInvolvedOrganisation, "e1", "o1"),
			rel(models.RelOccurredIn, "e1", "l1"),
			rel(models.RelAboutOrganisation, "k1", "o1"),
			rel(models.RelSourcedFrom, "k1", "a1"),
		},
	}
}

func TestMaterialize_EndToEnd(t *testing.T) {
	store := setupStore(t)
	m := New(store, nil)

	res, err := m.Materialize(context.Background(), sampleBatch())
	require.NoError(t, err)

	assert.NotEmpty(t, res.Article)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 9, res.EdgesCreated())
	assert.Zero(t, res.Dropped.Total())
	for _, kind := range models.AllKinds() {
		assert.Equal(t, 1, res.Created[kind], "%s", kind)
		assert.Equal(t, 1, nodeCount(t, store, kind), "%s", kind)
	}
	assert.Equal(t, 9, edgeCount(t, store))

	rows, err := store.Read(context.Background(),
		`SELECT e.label AS label FROM edges e JOIN nodes n ON n.handle = e.to_handle
		 WHERE e.from_handle = :a AND n.kind = 'Person'`,
		map[string]any{"a": string(res.Article)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.LabelMentions, rows[0]["label"])
}

func TestMaterialize_DedupAcrossBatches(t *testing.T) {
	store := setupStore(t)
	m := New(store, nil)
	ctx := context.Background()

	first, err := m.Materialize(ctx, sampleBatch())
	require.NoError(t, err)
	second, err := m.Materialize(ctx, sampleBatch())
	require.NoError(t, err)

	for _, kind := range []models.Kind{models.KindPerson, models.KindOrganisation, models.KindLocation} {
		assert.Equal(t, 1, nodeCount(t, store, kind), "%s deduplicated", kind)
		assert.Equal(t, 1, second.Updated[kind], "%s", kind)
		assert.Zero(t, second.Created[kind], "%s", kind)
	}
	for _, kind := range []models.Kind{models.KindArticle, models.KindEvent, models.KindKnowledge} {
		assert.Equal(t, 2, nodeCount(t, store, kind), "%s always fresh", kind)
	}
	assert.NotEqual(t, first.Article, second.Article)
	assert.Equal(t, 18, edgeCount(t, store))
}

func TestMaterialize_DropsMistypedAndDangling(t *testing.T) {
	tests := []struct {
		name  string
		rel   models.Relationship
		check func(t *testing.T, d Drops)
	}{
		{
			name:  "swapped endpoints",
			rel:   rel(models.RelMentionsPerson, "p1", "a1"),
			check: func(t *testing.T, d Drops) { assert.Equal(t, 1, d.Mismatch) },
		},
		{
			name:  "wrong target kind",
			rel:   rel(models.RelOccurredIn, "e1", "o1"),
			check: func(t *testing.T, d Drops) { assert.Equal(t, 1, d.Mismatch) },
		},
		{
			name:  "unknown end id",
			rel:   rel(models.RelMentionsPerson, "a1", "nobody"),
			check: func(t *testing.T, d Drops) { assert.Equal(t, 1, d.Unresolved) },
		},
		{
			name:  "empty start id",
			rel:   rel(models.RelMentionsPerson, "", "p1"),
			check: func(t *testing.T, d Drops) { assert.Equal(t, 1, d.Unresolved) },
		},
		{
			name:  "unknown kind",
			rel:   rel(models.RelKind("FriendsWith"), "p1", "p1"),
			check: func(t *testing.T, d Drops) { assert.Equal(t, 1, d.UnknownKind) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setupStore(t)
			batch := sampleBatch()
			batch.Relationships = []models.Relationship{tt.rel}

			res, err := New(store, nil).Materialize(context.Background(), batch)
			require.NoError(t, err)
			assert.Equal(t, 1, res.Dropped.Total())
			tt.check(t, res.Dropped)
			assert.Zero(t, edgeCount(t, store))
			// entities are still written
			assert.Equal(t, 1, nodeCount(t, store, models.KindPerson))
		})
	}
}

func TestMaterialize_RelationshipKindAliases(t *testing.T) {
	store := setupStore(t)
	batch := sampleBatch()
	batch.Relationships = []models.Relationship{
		rel("OccuredIn", "e1", "l1"),
		rel("mentionspersonrelationship", "a1", "p1"),
	}

	res, err := New(store, nil).Materialize(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Edges[models.RelOccurredIn])
	assert.Equal(t, 1, res.Edges[models.RelMentionsPerson])
}

func TestMaterialize_DuplicateIDsFirstWins(t *testing.T) {
	store := setupStore(t)
	batch := sampleBatch()
	// o1 is reused by a location; relationships keep pointing at the organisation
	batch.Locations = append(batch.Locations, models.LocationCandidate{ID: "o1", Location: models.Location{Name: "Lyon"}})
	batch.Relationships = []models.Relationship{
		rel(models.RelMentionsOrganisation, "a1", "o1"),
		rel(models.RelMentionsLocation, "a1", "o1"),
	}

	res, err := New(store, nil).Materialize(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DuplicateIDs)
	assert.Equal(t, 1, res.Edges[models.RelMentionsOrganisation])
	assert.Equal(t, 1, res.Dropped.Mismatch)
	assert.Equal(t, 2, nodeCount(t, store, models.KindLocation))
}

func TestMaterialize_EvidenceOnlyOnEvidenceKinds(t *testing.T) {
	store := setupStore(t)
	batch := sampleBatch()
	batch.Relationships = []models.Relationship{
		{Kind: models.RelMentionsOrganisation, StartNodeID: "a1", EndNodeID: "o1", Evidence: strPtr("Acme grew")},
		{Kind: models.RelOccurredIn, StartNodeID: "e1", EndNodeID: "l1", Evidence: strPtr("in Paris")},
		{Kind: models.RelMentionsPerson, StartNodeID: "a1", EndNodeID: "p1", Evidence: strPtr("")},
	}

	_, err := New(store, nil).Materialize(context.Background(), batch)
	require.NoError(t, err)

	rows, err := store.Read(context.Background(), "SELECT kind, evidence FROM edges ORDER BY seq", nil)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Acme grew", rows[0]["evidence"])
	assert.Nil(t, rows[1]["evidence"])
	assert.Nil(t, rows[2]["evidence"])
}

func TestMaterialize_InvalidBatch(t *testing.T) {
	store := setupStore(t)
	m := New(store, nil)

	_, err := m.Materialize(context.Background(), nil)
	assert.True(t, errors.IsValidation(err))

	_, err = m.Materialize(context.Background(), &models.Batch{})
	assert.True(t, errors.IsValidation(err))

	batch := sampleBatch()
	batch.People = append(batch.People, models.PersonCandidate{ID: "p2"})
	_, err = m.Materialize(context.Background(), batch)
	assert.True(t, errors.IsValidation(err))
	assert.Zero(t, nodeCount(t, store, models.KindArticle))
}

// faultyStore fails the transaction after a number of node creations
type faultyStore struct {
	graph.Store
	failAfter int
}

func (f *faultyStore) Write(ctx context.Context, fn func(tx graph.Tx) error) error {
	return f.Store.Write(ctx, func(tx graph.Tx) error {
		return fn(&faultyTx{Tx: tx, remaining: f.failAfter})
	})
}

type faultyTx struct {
	graph.Tx
	remaining int
}

func (f *faultyTx) CreateNode(ctx context.Context, kind models.Kind, props map[string]any) (models.Handle, error) {
	if f.remaining == 0 {
		return "", errors.StoreUnavailable(fmt.Errorf("connection reset"), "create node")
	}
	f.remaining--
	return f.Tx.CreateNode(ctx, kind, props)
}

func TestMaterialize_FailureLeavesNothingBehind(t *testing.T) {
	for _, failAfter := range []int{0, 1, 3, 5} {
		t.Run(fmt.Sprintf("after %d creates", failAfter), func(t *testing.T) {
			store := setupStore(t)
			m := New(&faultyStore{Store: store, failAfter: failAfter}, nil)

			res, err := m.Materialize(context.Background(), sampleBatch())
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, errors.IsStoreUnavailable(err))

			assert.Zero(t, count(t, store, "SELECT COUNT(*) AS n FROM nodes", nil))
			assert.Zero(t, edgeCount(t, store))
		})
	}
}

func TestMaterialize_AmbiguousMatchUsesFirst(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	var first models.Handle
	require.NoError(t, store.Write(ctx, func(tx graph.Tx) error {
		var err error
		if first, err = tx.CreateNode(ctx, models.KindOrganisation, map[string]any{"name": "Acme"}); err != nil {
			return err
		}
		_, err = tx.CreateNode(ctx, models.KindOrganisation, map[string]any{"name": "Acme"})
		return err
	}))

	before := testutil.ToFloat64(metrics.AmbiguousDedup.WithLabelValues(string(models.KindOrganisation)))

	batch := sampleBatch()
	batch.Relationships = []models.Relationship{rel(models.RelMentionsOrganisation, "a1", "o1")}
	res, err := New(store, nil).Materialize(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Ambiguous[models.KindOrganisation])

	rows, err := store.Read(ctx, "SELECT to_handle FROM edges", nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, string(first), rows[0]["to_handle"])

	after := testutil.ToFloat64(metrics.AmbiguousDedup.WithLabelValues(string(models.KindOrganisation)))
	assert.Equal(t, before+1, after)
}

func TestMaterialize_MetricsOnlyAfterCommit(t *testing.T) {
	store := setupStore(t)
	committed := metrics.BatchesTotal.WithLabelValues("committed")
	failed := metrics.BatchesTotal.WithLabelValues("failed")
	created := metrics.EntitiesResolved.WithLabelValues(string(models.KindEvent), "created")

	c0, f0, e0 := testutil.ToFloat64(committed), testutil.ToFloat64(failed), testutil.ToFloat64(created)

	_, err := New(&faultyStore{Store: store, failAfter: 5}, nil).Materialize(context.Background(), sampleBatch())
	require.Error(t, err)
	assert.Equal(t, c0, testutil.ToFloat64(committed))
	assert.Equal(t, f0+1, testutil.ToFloat64(failed))
	assert.Equal(t, e0, testutil.ToFloat64(created))

	_, err = New(store, nil).Materialize(context.Background(), sampleBatch())
	require.NoError(t, err)
	assert.Equal(t, c0+1, testutil.ToFloat64(committed))
	assert.Equal(t, e0+1, testutil.ToFloat64(created))
}

func TestIdentifierMap(t *testing.T) {
	ids := NewIdentifierMap()
	a := Ref{Kind: models.KindPerson, Handle: "h1"}
	b := Ref{Kind: models.KindLocation, Handle: "h2"}

	assert.True(t, ids.Record("x", a))
	assert.False(t, ids.Record("x", b))
	assert.False(t, ids.Record("", b))

	got, ok := ids.Lookup("x")
	assert.True(t, ok)
	assert.Equal(t, a, got)

	_, ok = ids.Lookup("")
	assert.False(t, ok)
	_, ok = ids.Lookup("missing")
	assert.False(t, ok)
	assert.Equal(t, 1, ids.Len())
}
