package graph

import (
	"fmt"
	"regexp"
)

// CypherBuilder builds parameterized Cypher statements.
// Labels and property keys cannot be parameters in Cypher, so they are
// validated as identifiers; every value goes through a parameter.
type CypherBuilder struct {
	params  map[string]any
	counter int
}

// NewCypherBuilder creates a query builder
func NewCypherBuilder() *CypherBuilder {
	return &CypherBuilder{
		params: make(map[string]any),
	}
}

// AddParam adds a parameter and returns its placeholder
func (b *CypherBuilder) AddParam(value any) string {
	paramName := fmt.Sprintf("p%d", b.counter)
	b.counter++
	b.params[paramName] = value
	return "$" + paramName
}

// Params returns all parameters for the query
func (b *CypherBuilder) Params() map[string]any {
	return b.params
}

// BuildFindByKey matches records of a label by dedup key. Results are
// ordered by element id and capped at two so duplicates can be detected.
func (b *CypherBuilder) BuildFindByKey(label, key string, value any) (string, error) {
	if err := validateIdentifiers(label, key); err != nil {
		return "", err
	}
	p := b.AddParam(value)
	return fmt.Sprintf(
		"MATCH (n:%s {%s: %s}) RETURN elementId(n) AS handle ORDER BY handle LIMIT 2",
		label, key, p,
	), nil
}

// BuildCreateNode creates a record with the given properties
func (b *CypherBuilder) BuildCreateNode(label string, properties map[string]any) (string, error) {
	if err := validateIdentifiers(label); err != nil {
		return "", err
	}
	if err := validatePropertyKeys(properties); err != nil {
		return "", err
	}
	p := b.AddParam(properties)
	return fmt.Sprintf(
		"CREATE (n:%s) SET n = %s RETURN elementId(n) AS handle",
		label, p,
	), nil
}

// BuildMergeProperties overwrites the given properties of an existing record
func (b *CypherBuilder) BuildMergeProperties(label string, handle string, properties map[string]any) (string, error) {
	if err := validateIdentifiers(label); err != nil {
		return "", err
	}
	if err := validatePropertyKeys(properties); err != nil {
		return "", err
	}
	h := b.AddParam(handle)
	p := b.AddParam(properties)
	return fmt.Sprintf(
		"MATCH (n:%s) WHERE elementId(n) = %s SET n += %s RETURN elementId(n) AS handle",
		label, h, p,
	), nil
}

// BuildCreateEdge creates a directed edge between two records identified by
// element id, checking both endpoint labels.
func (b *CypherBuilder) BuildCreateEdge(
	fromLabel string, fromHandle string,
	toLabel string, toHandle string,
	edgeLabel string,
	properties map[string]any,
) (string, error) {
	if err := validateIdentifiers(fromLabel, toLabel, edgeLabel); err != nil {
		return "", err
	}
	if err := validatePropertyKeys(properties); err != nil {
		return "", err
	}

	fromParam := b.AddParam(fromHandle)
	toParam := b.AddParam(toHandle)
	propsParam := b.AddParam(properties)

	return fmt.Sprintf(
		"MATCH (from:%s) WHERE elementId(from) = %s "+
			"MATCH (to:%s) WHERE elementId(to) = %s "+
			"CREATE (from)-[r:%s]->(to) SET r = %s RETURN elementId(r) AS handle",
		fromLabel, fromParam,
		toLabel, toParam,
		edgeLabel, propsParam,
	), nil
}

// BuildUniqueConstraint creates an idempotent uniqueness constraint
func BuildUniqueConstraint(label, key string) (string, error) {
	if err := validateIdentifiers(label, key); err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"CREATE CONSTRAINT %s_%s_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
		toSnake(label), key, label, key,
	), nil
}

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// isValidIdentifier validates that a string can be safely used as a Cypher identifier
func isValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

func validateIdentifiers(ids ...string) error {
	for _, id := range ids {
		if !isValidIdentifier(id) {
			return fmt.Errorf("invalid identifier: %q (must be alphanumeric + underscore)", id)
		}
	}
	return nil
}

func validatePropertyKeys(properties map[string]any) error {
	for key := range properties {
		if !isValidIdentifier(key) {
			return fmt.Errorf("invalid property key: %q (must be alphanumeric + underscore)", key)
		}
	}
	return nil
}

func toSnake(s string) string {
	out := make([]byte, 0, len(s)+4)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			if i > 0 {
				out = append(out, '_')
			}
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}
