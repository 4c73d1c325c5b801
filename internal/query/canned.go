package query

import (
	"fmt"

	"github.com/rohankatakam/kgraph/internal/graph"
)

// Canned queries used by the tool server. Both return the same columns in
// either dialect.

const articlesMentioningCypher = `
MATCH (a:Article)-[r:MENTIONS]->(p:Person {name: $name})
RETURN a.title AS title, a.url AS url, a.summary AS summary,
       a.content AS content, r.evidence AS evidence
ORDER BY a.title`

const articlesMentioningSQL = `
SELECT json_extract(a.props, '$.title') AS title,
       json_extract(a.props, '$.url') AS url,
       json_extract(a.props, '$.summary') AS summary,
       json_extract(a.props, '$.content') AS content,
       e.evidence AS evidence
FROM nodes p
JOIN edges e ON e.to_handle = p.handle AND e.label = 'MENTIONS'
JOIN nodes a ON a.handle = e.from_handle AND a.kind = 'Article'
WHERE p.kind = 'Person' AND p.dedup_key = :name
ORDER BY title`

// related people within two hops, with the node they share
const relatedPeopleCypher = `
MATCH (start:Person {name: $name})-[r1]-(mid)-[r2]-(other:Person)
WHERE start <> other
RETURN DISTINCT other.name AS person, labels(mid)[0] AS via,
       properties(mid) AS through, type(r1) AS rel1, type(r2) AS rel2
ORDER BY person`

const relatedPeopleSQL = `
WITH adj AS (
	SELECT from_handle AS src, to_handle AS dst, label FROM edges
	UNION ALL
	SELECT to_handle, from_handle, label FROM edges
)
SELECT DISTINCT json_extract(o.props, '$.name') AS person,
       m.kind AS via, m.props AS through,
       a1.label AS rel1, a2.label AS rel2
FROM nodes s
JOIN adj a1 ON a1.src = s.handle
JOIN nodes m ON m.handle = a1.dst
JOIN adj a2 ON a2.src = m.handle
JOIN nodes o ON o.handle = a2.dst AND o.kind = 'Person'
WHERE s.kind = 'Person' AND s.dedup_key = :name AND o.handle <> s.handle
ORDER BY person`

// ArticlesMentioning finds articles that mention the named person
func ArticlesMentioning(d graph.Dialect, person string) (Query, error) {
	return canned(d, articlesMentioningCypher, articlesMentioningSQL, person)
}

// RelatedPeople finds people sharing an article, event or fact with the
// named person
func RelatedPeople(d graph.Dialect, person string) (Query, error) {
	return canned(d, relatedPeopleCypher, relatedPeopleSQL, person)
}

func canned(d graph.Dialect, cypher, sql, person string) (Query, error) {
	params := map[string]any{"name": person}
	switch d {
	case graph.DialectCypher:
		return Query{Text: cypher, Params: params}, nil
	case graph.DialectSQL:
		return Query{Text: sql, Params: params}, nil
	default:
		return Query{}, fmt.Errorf("unsupported dialect %q", d)
	}
}
