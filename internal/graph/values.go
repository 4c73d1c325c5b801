package graph

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/rohankatakam/kgraph/internal/models"
)

// toNeo4jProps converts model property values into driver types
func toNeo4jProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = toNeo4jValue(v)
	}
	return out
}

func toNeo4jValue(v any) any {
	switch val := v.(type) {
	case models.Date:
		return neo4j.DateOf(val.Time)
	case models.TimeOfDay:
		return neo4j.LocalTimeOf(val.Time())
	case models.DateTime:
		return val.Time
	default:
		return v
	}
}

// normalizeNeo4jValue turns driver result values into plain values that
// serialize cleanly to JSON and YAML
func normalizeNeo4jValue(v any) any {
	switch val := v.(type) {
	case neo4j.Node:
		props := normalizeMap(val.Props)
		props["_id"] = val.ElementId
		props["_labels"] = val.Labels
		return props
	case neo4j.Relationship:
		props := normalizeMap(val.Props)
		props["_id"] = val.ElementId
		props["_type"] = val.Type
		props["_start"] = val.StartElementId
		props["_end"] = val.EndElementId
		return props
	case neo4j.Path:
		nodes := make([]any, len(val.Nodes))
		for i, n := range val.Nodes {
			nodes[i] = normalizeNeo4jValue(n)
		}
		rels := make([]any, len(val.Relationships))
		for i, r := range val.Relationships {
			rels[i] = normalizeNeo4jValue(r)
		}
		return map[string]any{"nodes": nodes, "relationships": rels}
	case neo4j.Date:
		return val.Time().Format("2006-01-02")
	case neo4j.LocalTime:
		return val.Time().Format("15:04:05")
	case neo4j.Time:
		return val.Time().Format("15:04:05Z07:00")
	case neo4j.LocalDateTime:
		return val.Time().Format("2006-01-02T15:04:05")
	case neo4j.Duration:
		return val.String()
	case time.Time:
		return val.Format(time.RFC3339)
	case map[string]any:
		return normalizeMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeNeo4jValue(item)
		}
		return out
	default:
		return v
	}
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeNeo4jValue(v)
	}
	return out
}

// jsonColumns are result columns that carry a node's property document
// (nodes.props, edges.props, and the shared node of the related-people query)
var jsonColumns = map[string]bool{"props": true, "through": true}

func isJSONColumn(name string) bool {
	return jsonColumns[name] || strings.HasSuffix(name, "_props")
}

// normalizeSQLValue turns driver bytes into strings and times into RFC 3339
// text so rows from both backends look alike. Property documents are decoded
// only in JSON columns; any other text, including text that happens to look
// like JSON, is returned as written.
func normalizeSQLValue(column string, v any) any {
	var s string
	switch val := v.(type) {
	case []byte:
		s = string(val)
	case string:
		s = val
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return v
	}

	if isJSONColumn(column) {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			return decoded
		}
	}
	return s
}
