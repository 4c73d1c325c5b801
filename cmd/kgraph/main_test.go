package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/kgraph/internal/config"
	"github.com/rohankatakam/kgraph/internal/dlq"
	"github.com/rohankatakam/kgraph/internal/errors"
	"github.com/rohankatakam/kgraph/internal/graph"
)

func TestMain(m *testing.M) {
	logger = logrus.New()
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

const janeBatch = `{
  "article": {"id": "a1", "title": "Acme opens new plant", "content": "Jane Doe cut the ribbon."},
  "people": [{"id": "p1", "name": "Jane Doe"}],
  "organisations": [{"id": "o1", "name": "Acme"}],
  "relationships": [
    {"kind": "MentionsPerson", "start_node_id": "a1", "end_node_id": "p1", "evidence": "Jane Doe cut the ribbon"},
    {"kind": "MentionsOrganisation", "start_node_id": "a1", "end_node_id": "o1"}
  ]
}`

func writeBatch(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func memoryStore(t *testing.T) *graph.SQLiteStore {
	t.Helper()
	store, err := graph.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(context.Background()) })
	return store
}

func openSpool(t *testing.T) *dlq.Queue {
	t.Helper()
	q, err := dlq.Open(filepath.Join(t.TempDir(), "spool.db"))
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func countNodes(t *testing.T, store *graph.SQLiteStore, kind string) int64 {
	t.Helper()
	rows, err := store.Read(context.Background(), "SELECT COUNT(*) AS n FROM nodes WHERE kind = :kind", map[string]any{"kind": kind})
	require.NoError(t, err)
	return rows[0]["n"].(int64)
}

// downStore fails every transaction the way an unreachable database does
type downStore struct{}

func (downStore) Write(ctx context.Context, fn func(tx graph.Tx) error) error {
	return errors.StoreUnavailable(fmt.Errorf("dial tcp 127.0.0.1:7687: connection refused"), "begin transaction")
}

func TestIngestFiles(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeBatch(t, dir, "one.json", janeBatch),
		writeBatch(t, dir, "two.json", janeBatch),
		writeBatch(t, dir, "bad.json", `{"people": [{"name": "No Article"}]}`),
		writeBatch(t, dir, "garbage.json", `{not json`),
		filepath.Join(dir, "missing.json"),
	}

	store := memoryStore(t)
	spool := openSpool(t)
	outcomes := newIngester(store, spool, nil).ingestFiles(context.Background(), paths, 2)

	require.Len(t, outcomes, len(paths))
	assert.Equal(t, statusCommitted, outcomes[0].Status)
	assert.Equal(t, statusCommitted, outcomes[1].Status)
	for _, o := range outcomes[2:] {
		assert.Equal(t, statusFailed, o.Status, o.Source)
		assert.Error(t, o.Err)
	}
	assert.True(t, errors.IsValidation(outcomes[2].Err))
	assert.True(t, errors.IsValidation(outcomes[3].Err))

	assert.Equal(t, int64(1), countNodes(t, store, "Person"), "people are deduplicated across batches")
	assert.Equal(t, int64(1), countNodes(t, store, "Organisation"))
	assert.Equal(t, int64(2), countNodes(t, store, "Article"))
	assert.Equal(t, 0, spool.Len(), "only store outages are spooled")

	assert.Error(t, report(outcomes))
}

func TestIngestSpoolsAndRetries(t *testing.T) {
	dir := t.TempDir()
	path := writeBatch(t, dir, "batch.json", janeBatch)
	spool := openSpool(t)

	outcomes := newIngester(downStore{}, spool, nil).ingestFiles(context.Background(), []string{path}, 1)
	require.Len(t, outcomes, 1)
	assert.Equal(t, statusSpooled, outcomes[0].Status)
	assert.True(t, errors.IsStoreUnavailable(outcomes[0].Err))
	assert.Equal(t, 1, spool.Len())
	assert.NoError(t, report(outcomes), "spooled batches are not failures")

	// still down: the entry stays with its retry count bumped
	retried, err := newIngester(downStore{}, spool, nil).retrySpooled(context.Background())
	require.NoError(t, err)
	require.Len(t, retried, 1)
	assert.Equal(t, statusSpooled, retried[0].Status)

	entries, err := spool.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].RetryCount)

	// back up: the batch commits and leaves the spool
	store := memoryStore(t)
	retried, err = newIngester(store, spool, nil).retrySpooled(context.Background())
	require.NoError(t, err)
	require.Len(t, retried, 1)
	assert.Equal(t, statusCommitted, retried[0].Status)
	assert.Equal(t, 0, spool.Len())
	assert.Equal(t, int64(1), countNodes(t, store, "Person"))
}

func TestIngestWithoutSpool(t *testing.T) {
	path := writeBatch(t, t.TempDir(), "batch.json", janeBatch)

	outcomes := newIngester(downStore{}, nil, nil).ingestFiles(context.Background(), []string{path}, 0)
	require.Len(t, outcomes, 1)
	assert.Equal(t, statusFailed, outcomes[0].Status)
	assert.Error(t, report(outcomes))
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]any
		wantErr bool
	}{
		{name: "none", pairs: nil, want: nil},
		{name: "string", pairs: []string{"name=Jane Doe"}, want: map[string]any{"name": "Jane Doe"}},
		{name: "value with equals", pairs: []string{"q=a=b"}, want: map[string]any{"q": "a=b"}},
		{name: "int", pairs: []string{"limit=10"}, want: map[string]any{"limit": int64(10)}},
		{name: "float", pairs: []string{"score=0.5"}, want: map[string]any{"score": 0.5}},
		{name: "bool", pairs: []string{"active=true"}, want: map[string]any{"active": true}},
		{name: "list", pairs: []string{`names=["a","b"]`}, want: map[string]any{"names": []any{"a", "b"}}},
		{name: "empty value", pairs: []string{"name="}, want: map[string]any{"name": ""}},
		{name: "missing equals", pairs: []string{"name"}, wantErr: true},
		{name: "missing key", pairs: []string{"=x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseParams(tt.pairs)
			if tt.wantErr {
				assert.True(t, errors.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadQueryText(t *testing.T) {
	got, err := loadQueryText("MATCH (n) RETURN n", "")
	require.NoError(t, err)
	assert.Equal(t, "MATCH (n) RETURN n", got)

	path := writeBatch(t, t.TempDir(), "q.cypher", "MATCH (p:Person) RETURN p.name")
	got, err = loadQueryText("", path)
	require.NoError(t, err)
	assert.Equal(t, "MATCH (p:Person) RETURN p.name", got)

	_, err = loadQueryText("", "")
	assert.True(t, errors.IsValidation(err))

	_, err = loadQueryText("", filepath.Join(t.TempDir(), "nope.cypher"))
	assert.Error(t, err)
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()

	b, err := openBackend(ctx, config.StoreConfig{Backend: config.BackendSQLite, SQLitePath: filepath.Join(t.TempDir(), "g.db")})
	require.NoError(t, err)
	assert.Equal(t, graph.DialectSQL, b.Dialect())
	require.NoError(t, b.Close(ctx))

	_, err = openBackend(ctx, config.StoreConfig{Backend: "mysql"})
	assert.Error(t, err)

	_, err = openBackend(ctx, config.StoreConfig{Backend: config.BackendNeo4j})
	assert.Error(t, err, "neo4j needs credentials")
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"untyped", fmt.Errorf("boom"), 1},
		{"validation", errors.ValidationErrorf("bad --param"), 2},
		{"config", errors.ConfigErrorf("no password"), 2},
		{"store down", fmt.Errorf("ingest: %w", errors.StoreUnavailable(fmt.Errorf("refused"), "dial")), 3},
		{"bad query", errors.QueryError(fmt.Errorf("syntax"), "rejected"), 4},
		{"external", errors.ExternalError(fmt.Errorf("429"), "llm"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}
