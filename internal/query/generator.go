package query

import (
	"context"
	"fmt"
	"strings"
)

// Generator turns a natural-language question into a read query
type Generator interface {
	Generate(ctx context.Context, question string) (Query, error)
}

// StaticGenerator returns a caller-supplied query for any question. Text
// copied from a model response may still carry Markdown code fences; they
// are removed.
type StaticGenerator struct {
	Query Query
}

func (g StaticGenerator) Generate(ctx context.Context, question string) (Query, error) {
	text := StripFences(g.Query.Text)
	if text == "" {
		return Query{}, fmt.Errorf("no query supplied for %q", question)
	}
	return Query{Text: text, Params: g.Query.Params}, nil
}

// StripFences removes Markdown code fences (```cypher, ```sql or bare ```)
// and surrounding whitespace.
func StripFences(text string) string {
	for _, fence := range []string{"```cypher\n", "```sql\n", "```\n", "```"} {
		text = strings.ReplaceAll(text, fence, "")
	}
	return strings.TrimSpace(text)
}
