package query

import (
	"context"
	"log/slog"

	"github.com/rohankatakam/kgraph/internal/errors"
	"github.com/rohankatakam/kgraph/internal/insight"
)

// Pipeline answers a question: generate a query, run it, assemble a report
type Pipeline struct {
	Generator Generator
	Executor  Executor
	Assembler *insight.Assembler
}

func (p *Pipeline) Answer(ctx context.Context, question string) (*insight.Report, error) {
	q, err := p.Generator.Generate(ctx, question)
	if err != nil {
		if _, typed := errors.As(err); typed {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, errors.SeverityMedium, "generate query")
	}

	slog.Default().Debug("answering question", "component", "pipeline", "question", question, "query", q.Text)

	rows, err := p.Executor.Execute(ctx, q.Text, q.Params)
	if err != nil {
		return nil, err
	}
	return p.Assembler.Assemble(ctx, question, q.Text, q.Params, rows)
}
