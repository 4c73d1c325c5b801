package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCypherBuilder_FindByKey(t *testing.T) {
	b := NewCypherBuilder()
	query, err := b.BuildFindByKey("Person", "name", "Ada Lovelace")
	require.NoError(t, err)

	assert.Equal(t, "MATCH (n:Person {name: $p0}) RETURN elementId(n) AS handle ORDER BY handle LIMIT 2", query)
	assert.Equal(t, map[string]any{"p0": "Ada Lovelace"}, b.Params())
}

func TestCypherBuilder_CreateAndMerge(t *testing.T) {
	b := NewCypherBuilder()
	props := map[string]any{"name": "Acme", "description": "anvils"}

	query, err := b.BuildCreateNode("Organisation", props)
	require.NoError(t, err)
	assert.Equal(t, "CREATE (n:Organisation) SET n = $p0 RETURN elementId(n) AS handle", query)
	assert.Equal(t, props, b.Params()["p0"])

	query, err = b.BuildMergeProperties("Organisation", "4:abc:1", map[string]any{"description": "rockets"})
	require.NoError(t, err)
	assert.Equal(t, "MATCH (n:Organisation) WHERE elementId(n) = $p1 SET n += $p2 RETURN elementId(n) AS handle", query)
	assert.Equal(t, "4:abc:1", b.Params()["p1"])
}

func TestCypherBuilder_CreateEdge(t *testing.T) {
	b := NewCypherBuilder()
	query, err := b.BuildCreateEdge("Article", "a", "Person", "p", "MENTIONS", map[string]any{"kind": "MentionsPerson"})
	require.NoError(t, err)

	assert.Contains(t, query, "MATCH (from:Article) WHERE elementId(from) = $p0")
	assert.Contains(t, query, "MATCH (to:Person) WHERE elementId(to) = $p1")
	assert.Contains(t, query, "CREATE (from)-[r:MENTIONS]->(to) SET r = $p2")
	assert.Len(t, b.Params(), 3)
}

func TestCypherBuilder_RejectsInjection(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *CypherBuilder) error
	}{
		{"label", func(b *CypherBuilder) error {
			_, err := b.BuildCreateNode("Person) DETACH DELETE (n", nil)
			return err
		}},
		{"property key", func(b *CypherBuilder) error {
			_, err := b.BuildCreateNode("Person", map[string]any{"name; DROP": "x"})
			return err
		}},
		{"edge label", func(b *CypherBuilder) error {
			_, err := b.BuildCreateEdge("Article", "a", "Person", "p", "MENTIONS]->()", nil)
			return err
		}},
		{"empty key", func(b *CypherBuilder) error {
			_, err := b.BuildFindByKey("Person", "", "x")
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.build(NewCypherBuilder()))
		})
	}
}

func TestBuildUniqueConstraint(t *testing.T) {
	stmt, err := BuildUniqueConstraint("Organisation", "name")
	require.NoError(t, err)
	assert.Equal(t,
		"CREATE CONSTRAINT organisation_name_unique IF NOT EXISTS FOR (n:Organisation) REQUIRE n.name IS UNIQUE",
		stmt)
}

func TestGetConfigForOperation(t *testing.T) {
	cfg := GetConfigForOperation(OpMaterializeBatch)
	assert.Equal(t, "write", cfg.Metadata["type"])
	assert.Len(t, cfg.AsNeo4jConfig(), 2)

	unknown := GetConfigForOperation("nope")
	assert.Equal(t, "unknown", unknown.Metadata["type"])

	tagged := cfg.WithCustomMetadata("batch", "b-1")
	assert.Equal(t, "b-1", tagged.Metadata["batch"])
	assert.NotContains(t, cfg.Metadata, "batch")
}
