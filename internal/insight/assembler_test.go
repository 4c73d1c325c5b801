package insight

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/kgraph/internal/errors"
)

// recordingAnalyst captures what it was asked
type recordingAnalyst struct {
	question, data string
	reply          string
	err            error
}

func (r *recordingAnalyst) Analyze(ctx context.Context, question, data string) (string, error) {
	r.question, r.data = question, data
	return r.reply, r.err
}

type fixedFindings []string

func (f fixedFindings) Findings([]map[string]any) []string { return f }

func TestSummarize(t *testing.T) {
	assert.Equal(t, "Found 0 records", Summarize(nil))
	assert.Equal(t, "Found 2 records", Summarize([]map[string]any{{}, {}}))
}

func TestAssemble_PassesRowsVerbatim(t *testing.T) {
	analyst := &recordingAnalyst{reply: "Acme is mentioned twice."}
	a := NewAssembler(analyst)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }

	rows := []map[string]any{{"name": "Acme"}, {"name": "Acme"}}
	report, err := a.Assemble(context.Background(), "Who is mentioned?", "MATCH (o) RETURN o.name AS name", nil, rows)
	require.NoError(t, err)

	assert.Equal(t, "Who is mentioned?", analyst.question)
	assert.JSONEq(t, `[{"name":"Acme"},{"name":"Acme"}]`, analyst.data)
	assert.Equal(t, "Found 2 records", report.Summary)
	assert.Equal(t, "Acme is mentioned twice.", report.Analysis)
	assert.Equal(t, fixed, report.GeneratedAt)
	assert.Equal(t, rows, report.Rows)
	assert.NotEmpty(t, report.KeyFindings)
}

func TestAssemble_EmptyRows(t *testing.T) {
	analyst := &recordingAnalyst{reply: "Nothing found."}
	report, err := NewAssembler(analyst).Assemble(context.Background(), "q", "MATCH (n) RETURN n", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "[]", analyst.data)
	assert.Equal(t, "Found 0 records", report.Summary)
	assert.NotNil(t, report.Rows)
	assert.Empty(t, report.Rows)
}

func TestAssemble_AnalystFailure(t *testing.T) {
	analyst := &recordingAnalyst{err: fmt.Errorf("rate limited")}
	report, err := NewAssembler(analyst).Assemble(context.Background(), "q", "x", nil, nil)
	require.Error(t, err)
	assert.Nil(t, report)
	assert.Equal(t, errors.ErrorTypeExternal, errors.GetType(err))
}

func TestAssemble_CustomFindings(t *testing.T) {
	a := NewAssembler(&recordingAnalyst{}, WithFindings(fixedFindings{"one", "two"}))
	report, err := a.Assemble(context.Background(), "q", "x", nil, []map[string]any{{"a": 1}})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, report.KeyFindings)
}

func TestAssemble_NilAnalyst(t *testing.T) {
	report, err := NewAssembler(nil).Assemble(context.Background(), "q", "x", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Analysis disabled.", report.Analysis)
}

func TestColumnFindings(t *testing.T) {
	rows := []map[string]any{
		{"name": "Acme", "city": "Paris"},
		{"name": "Acme", "city": nil},
		{"name": "Globex"},
	}

	got := ColumnFindings{}.Findings(rows)
	assert.Equal(t, []string{
		"city: 1 of 3 records, 1 distinct (Paris)",
		"name: 3 of 3 records, 2 distinct (Acme, Globex)",
	}, got)
}

func TestColumnFindings_EdgeCases(t *testing.T) {
	assert.Equal(t, []string{"No records matched the query"}, ColumnFindings{}.Findings(nil))

	got := ColumnFindings{}.Findings([]map[string]any{{"x": nil}})
	assert.Equal(t, []string{"x: no values"}, got)

	got = ColumnFindings{TopValues: 1}.Findings([]map[string]any{{"v": "b"}, {"v": "a"}})
	assert.Equal(t, []string{"v: 2 of 2 records, 2 distinct (a)"}, got)

	long := strings.Repeat("x", 100)
	got = ColumnFindings{}.Findings([]map[string]any{{"v": long}})
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "...")

	got = ColumnFindings{}.Findings([]map[string]any{{"m": map[string]any{"k": "v"}}})
	assert.Equal(t, []string{`m: 1 of 1 records, 1 distinct ({"k":"v"})`}, got)
}

func TestColumnFindings_TruncatesOnRuneBoundary(t *testing.T) {
	title := strings.Repeat("a", 56) + "Ünïcödé headline about Zürich"

	got := ColumnFindings{}.Findings([]map[string]any{{"title": title}})
	require.Len(t, got, 1)
	assert.True(t, utf8.ValidString(got[0]), "finding %q", got[0])
	assert.Contains(t, got[0], "("+strings.Repeat("a", 56)+"...)")
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{name: "short", in: "abc", n: 10, want: "abc"},
		{name: "exact", in: "abcdef", n: 6, want: "abcdef"},
		{name: "ascii", in: "abcdefghij", n: 8, want: "abcde..."},
		{name: "two byte rune at cut", in: "abcdéfgh", n: 8, want: "abcd..."},
		{name: "three byte rune at cut", in: "abc€defgh", n: 8, want: "abc..."},
		{name: "four byte rune at cut", in: "a😀bcdefgh", n: 7, want: "a..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
			assert.LessOrEqual(t, len(got), tt.n)
		})
	}
}

func TestReportMarkdown(t *testing.T) {
	r := &Report{
		Question:    "Who founded Acme?",
		Query:       "MATCH (p:Person) RETURN p",
		Rows:        []map[string]any{{"p": "Jane"}},
		Summary:     "Found 1 records",
		Analysis:    "Jane founded Acme.",
		KeyFindings: []string{"p: 1 of 1 records", "second"},
	}

	want := "# Data Analysis Results\n\n" +
		"**Query:** Who founded Acme?\n\n" +
		"## Summary\nFound 1 records\n\n" +
		"## Analysis\nJane founded Acme.\n\n" +
		"## Key Findings\n• p: 1 of 1 records\n• second\n\n" +
		"## Technical Details\n**Records Found:** 1\n" +
		"**Query:** `MATCH (p:Person) RETURN p`"
	assert.Equal(t, want, r.Markdown())
}
