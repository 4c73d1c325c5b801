package resolve

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/kgraph/internal/graph"
	"github.com/rohankatakam/kgraph/internal/models"
)

func strPtr(s string) *string { return &s }

// countingTx records how many store operations a resolution used
type countingTx struct {
	graph.Tx
	reads, writes int
}

func (c *countingTx) FindByKey(ctx context.Context, kind models.Kind, key string) ([]models.Handle, error) {
	c.reads++
	return c.Tx.FindByKey(ctx, kind, key)
}

func (c *countingTx) CreateNode(ctx context.Context, kind models.Kind, props map[string]any) (models.Handle, error) {
	c.writes++
	return c.Tx.CreateNode(ctx, kind, props)
}

func (c *countingTx) MergeNode(ctx context.Context, kind models.Kind, h models.Handle, props map[string]any) error {
	c.writes++
	return c.Tx.MergeNode(ctx, kind, h, props)
}

func setupStore(t *testing.T) *graph.SQLiteStore {
	store, err := graph.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(context.Background()) })
	return store
}

func resolveOne(t *testing.T, store *graph.SQLiteStore, r *Resolver, e models.Entity) (Resolution, *countingTx) {
	ctx := context.Background()
	var res Resolution
	var counter *countingTx
	err := store.Write(ctx, func(tx graph.Tx) error {
		counter = &countingTx{Tx: tx}
		var err error
		res, err = r.Resolve(ctx, counter, e)
		return err
	})
	require.NoError(t, err)
	return res, counter
}

func props(t *testing.T, store *graph.SQLiteStore, h models.Handle) map[string]any {
	rows, err := store.Read(context.Background(), "SELECT props FROM nodes WHERE handle = :h", map[string]any{"h": string(h)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	return rows[0]["props"].(map[string]any)
}

func TestResolve_CreatesThenUpdates(t *testing.T) {
	store := setupStore(t)
	r := New()

	first, c1 := resolveOne(t, store, r, models.Organisation{Name: "Acme", Description: strPtr("anvils")})
	assert.Equal(t, OutcomeCreated, first.Outcome)
	assert.Equal(t, 1, c1.reads)
	assert.Equal(t, 1, c1.writes)

	second, c2 := resolveOne(t, store, r, models.Organisation{Name: "Acme"})
	assert.Equal(t, OutcomeUpdated, second.Outcome)
	assert.Equal(t, first.Handle, second.Handle)
	assert.Equal(t, 1, c2.reads)
	assert.Equal(t, 1, c2.writes)

	// the omitted description was not cleared
	assert.Equal(t, "anvils", props(t, store, first.Handle)["description"])
}

func TestResolve_LastWriteWinsPerField(t *testing.T) {
	store := setupStore(t)
	r := New()

	a, _ := resolveOne(t, store, r, models.Person{Name: "Ada", Gender: strPtr("female"), Occupations: []string{"writer"}})
	b, _ := resolveOne(t, store, r, models.Person{Name: "Ada", Occupations: []string{"mathematician"}})
	require.Equal(t, a.Handle, b.Handle)

	p := props(t, store, a.Handle)
	assert.Equal(t, "female", p["gender"])
	assert.Equal(t, []any{"mathematician"}, p["occupations"])
}

func TestResolve_FreshKindsAlwaysCreate(t *testing.T) {
	store := setupStore(t)
	r := New()

	for _, e := range []models.Entity{
		models.Event{Description: "launch"},
		models.Knowledge{Fact: "water is wet"},
		models.Article{Title: "t", Content: "c"},
	} {
		first, c := resolveOne(t, store, r, e)
		second, _ := resolveOne(t, store, r, e)
		assert.Equal(t, OutcomeCreated, first.Outcome)
		assert.Equal(t, OutcomeCreated, second.Outcome)
		assert.NotEqual(t, first.Handle, second.Handle, "%s", e.Kind())
		assert.Equal(t, 0, c.reads)
		assert.Equal(t, 1, c.writes)
	}
}

func TestResolve_MatchingIsCaseSensitive(t *testing.T) {
	store := setupStore(t)
	r := New()

	a, _ := resolveOne(t, store, r, models.Location{Name: "Paris"})
	b, _ := resolveOne(t, store, r, models.Location{Name: "paris"})
	assert.NotEqual(t, a.Handle, b.Handle)
	assert.Equal(t, OutcomeCreated, b.Outcome)
}

func TestResolve_KeyNormalizer(t *testing.T) {
	store := setupStore(t)
	r := New(WithKeyNormalizer(func(k string) string { return strings.ToLower(strings.TrimSpace(k)) }))

	a, _ := resolveOne(t, store, r, models.Location{Name: "Paris"})
	b, _ := resolveOne(t, store, r, models.Location{Name: " PARIS "})
	assert.Equal(t, a.Handle, b.Handle)
	assert.Equal(t, "paris", props(t, store, a.Handle)["name"])
}

func TestResolve_AmbiguousPicksFirst(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	var first models.Handle
	require.NoError(t, store.Write(ctx, func(tx graph.Tx) error {
		var err error
		first, err = tx.CreateNode(ctx, models.KindPerson, map[string]any{"name": "Sam"})
		if err != nil {
			return err
		}
		_, err = tx.CreateNode(ctx, models.KindPerson, map[string]any{"name": "Sam"})
		return err
	}))

	res, _ := resolveOne(t, store, New(), models.Person{Name: "Sam", Gender: strPtr("x")})
	assert.True(t, res.Ambiguous)
	assert.Equal(t, first, res.Handle)
	assert.Equal(t, OutcomeUpdated, res.Outcome)
}

func TestResolve_SplitPersonName(t *testing.T) {
	store := setupStore(t)
	r := New()

	a, _ := resolveOne(t, store, r, models.Person{FirstName: "Ada", LastName: "Lovelace"})
	b, _ := resolveOne(t, store, r, models.Person{Name: "Ada Lovelace"})
	assert.Equal(t, a.Handle, b.Handle)
}

func TestResolve_EmptyKeyRejected(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	err := store.Write(ctx, func(tx graph.Tx) error {
		_, err := New().Resolve(ctx, tx, models.Organisation{})
		return err
	})
	assert.Error(t, err)
}
