package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/kgraph/internal/errors"
	"github.com/rohankatakam/kgraph/internal/insight"
	"github.com/rohankatakam/kgraph/internal/llm"
	"github.com/rohankatakam/kgraph/internal/output"
	"github.com/rohankatakam/kgraph/internal/query"
)

var (
	queryQuestion   string
	queryText       string
	queryFile       string
	queryParams     []string
	queryFormat     string
	queryNoAnalysis bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a read query and report on the results",
	Long: `Runs a read query against the graph and prints a report: a record count,
per-column key findings and, when an LLM provider is configured, an analysis
of the rows in light of the question.

The query is Cypher on Neo4j and SQL on SQLite. Markdown code fences around
the query (as copied from a model response) are removed. On SQLite, result
columns named props, through or ending in _props are decoded from JSON;
other text columns come back as written.

Examples:
  kgraph query --question "Where does Jane Doe appear?" \
      --cypher 'MATCH (a:Article)-[:MENTIONS]->(p:Person {name: $name}) RETURN a.title AS title' \
      --param name="Jane Doe"

  kgraph query --backend sqlite --cypher-file people.sql --format table --no-analysis`,
	Args: cobra.NoArgs,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryQuestion, "question", "q", "", "the question the query answers")
	queryCmd.Flags().StringVar(&queryText, "cypher", "", "query text (Cypher, or SQL on the sqlite backend)")
	queryCmd.Flags().StringVar(&queryFile, "cypher-file", "", "read the query from a file ('-' for stdin)")
	queryCmd.Flags().StringArrayVarP(&queryParams, "param", "p", nil, "query parameter as key=value (repeatable)")
	queryCmd.Flags().StringVarP(&queryFormat, "format", "f", "", "output format: markdown, json, yaml, table (default: markdown on a terminal, json otherwise)")
	queryCmd.Flags().BoolVar(&queryNoAnalysis, "no-analysis", false, "skip the LLM analysis")
	queryCmd.MarkFlagsMutuallyExclusive("cypher", "cypher-file")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	text, err := loadQueryText(queryText, queryFile)
	if err != nil {
		return err
	}
	params, err := parseParams(queryParams)
	if err != nil {
		return err
	}

	format := output.DefaultFormat(os.Stdout)
	if queryFormat != "" {
		if format, err = output.ParseFormat(queryFormat); err != nil {
			return err
		}
	}

	question := queryQuestion
	if question == "" {
		question = "What does this data show?"
	}

	backend, err := openBackend(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer backend.Close(context.Background())

	c := openCache(ctx, cfg.Cache)
	if c != nil {
		defer c.Close()
	}

	analyst, err := newAnalyst(ctx, queryNoAnalysis)
	if err != nil {
		return err
	}

	pipeline := &query.Pipeline{
		Generator: query.StaticGenerator{Query: query.Query{Text: text, Params: params}},
		Executor:  newExecutor(backend, c),
		Assembler: insight.NewAssembler(analyst),
	}

	report, err := pipeline.Answer(ctx, question)
	if err != nil {
		return err
	}
	return output.NewFormatter(format).Format(report, os.Stdout)
}

func newAnalyst(ctx context.Context, disabled bool) (insight.Analyst, error) {
	if disabled {
		return insight.NoAnalysis{}, nil
	}
	return llm.NewAnalyst(ctx, cfg.LLM)
}

// loadQueryText returns the inline query or the contents of file
func loadQueryText(inline, file string) (string, error) {
	switch {
	case inline != "":
		return inline, nil
	case file == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read query from stdin: %w", err)
		}
		return string(data), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read query file: %w", err)
		}
		return string(data), nil
	default:
		return "", errors.ValidationErrorf("a query is required: pass --cypher or --cypher-file")
	}
}

// parseParams turns key=value pairs into query parameters. Values that
// parse as JSON numbers, booleans, arrays or objects keep that type;
// anything else is a string.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.ValidationErrorf("invalid --param %q, expected key=value", pair)
		}
		params[key] = paramValue(value)
	}
	return params, nil
}

func paramValue(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return v
		}
	}
	return s
}
