// Package insight turns query results into a report for the person who asked.
package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/rohankatakam/kgraph/internal/errors"
)

// Analyst writes prose analysis of serialized query results
type Analyst interface {
	Analyze(ctx context.Context, question, data string) (string, error)
}

// NoAnalysis is an Analyst that declines politely
type NoAnalysis struct{}

func (NoAnalysis) Analyze(ctx context.Context, question, data string) (string, error) {
	return "Analysis disabled.", nil
}

// Report is the answer to one question
type Report struct {
	Question    string           `json:"question" yaml:"question"`
	Query       string           `json:"query" yaml:"query"`
	Params      map[string]any   `json:"params,omitempty" yaml:"params,omitempty"`
	Rows        []map[string]any `json:"rows" yaml:"rows"`
	Summary     string           `json:"summary" yaml:"summary"`
	Analysis    string           `json:"analysis" yaml:"analysis"`
	KeyFindings []string         `json:"key_findings" yaml:"key_findings"`
	GeneratedAt time.Time        `json:"generated_at" yaml:"generated_at"`
}

// Assembler combines a question, its query and the rows into a Report
type Assembler struct {
	analyst  Analyst
	findings FindingsExtractor
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Assembler
type Option func(*Assembler)

// WithFindings replaces the default column summary
func WithFindings(f FindingsExtractor) Option {
	return func(a *Assembler) {
		if f != nil {
			a.findings = f
		}
	}
}

func NewAssembler(analyst Analyst, opts ...Option) *Assembler {
	if analyst == nil {
		analyst = NoAnalysis{}
	}
	a := &Assembler{
		analyst:  analyst,
		findings: ColumnFindings{},
		logger:   slog.Default().With("component", "assembler"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Summarize is the deterministic one-line summary of a result set
func Summarize(rows []map[string]any) string {
	return fmt.Sprintf("Found %d records", len(rows))
}

// Serialize renders rows verbatim as JSON for the analyst; no rows is "[]"
func Serialize(rows []map[string]any) (string, error) {
	if len(rows) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return "", errors.InternalErrorf("serialize rows: %v", err)
	}
	return string(data), nil
}

// Assemble builds the report. An analyst failure fails the whole call.
func (a *Assembler) Assemble(ctx context.Context, question, query string, params map[string]any, rows []map[string]any) (*Report, error) {
	if rows == nil {
		rows = []map[string]any{}
	}

	data, err := Serialize(rows)
	if err != nil {
		return nil, err
	}

	analysis, err := a.analyst.Analyze(ctx, question, data)
	if err != nil {
		a.logger.Error("analysis failed", "error", err)
		if _, typed := errors.As(err); typed {
			return nil, err
		}
		return nil, errors.ExternalError(err, "analysis failed")
	}

	report := &Report{
		Question:    question,
		Query:       query,
		Params:      params,
		Rows:        rows,
		Summary:     Summarize(rows),
		Analysis:    analysis,
		KeyFindings: a.findings.Findings(rows),
		GeneratedAt: a.now().UTC(),
	}
	a.logger.Info("report assembled", "records", len(rows), "findings", len(report.KeyFindings))
	return report, nil
}
