// Package mcp exposes the read path as Model Context Protocol tools so an
// LLM agent can query the graph over stdio.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rohankatakam/kgraph/internal/insight"
	"github.com/rohankatakam/kgraph/internal/query"
)

const serverName = "kgraph"

// AnalyzeInput is the argument of the analyze_graph tool
type AnalyzeInput struct {
	Question string         `json:"question" jsonschema:"the question the query answers"`
	Query    string         `json:"query" jsonschema:"read query in the backend's dialect (Cypher for Neo4j, SQL for SQLite)"`
	Params   map[string]any `json:"params,omitempty" jsonschema:"named query parameters"`
}

// PersonInput is the argument of the person-centred tools
type PersonInput struct {
	Person string `json:"person" jsonschema:"exact name of the person"`
}

// Server registers the graph tools on an MCP server
type Server struct {
	executor  query.Executor
	assembler *insight.Assembler
	server    *mcpsdk.Server
	logger    *slog.Logger
}

// NewServer builds the tool server; version is reported during initialize
func NewServer(executor query.Executor, assembler *insight.Assembler, version string) *Server {
	s := &Server{
		executor:  executor,
		assembler: assembler,
		server:    mcpsdk.NewServer(&mcpsdk.Implementation{Name: serverName, Version: version}, nil),
		logger:    slog.Default().With("component", "mcp"),
	}

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "analyze_graph",
		Description: fmt.Sprintf("Run a read query against the knowledge graph (%s dialect) and return an analysis of the results", executor.Dialect()),
	}, s.analyzeGraph)

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "articles_mentioning",
		Description: "Find news articles that mention a person, with the supporting evidence",
	}, s.articlesMentioning)

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "related_people",
		Description: "Find people connected to a person through a shared article, event, organisation or fact",
	}, s.relatedPeople)

	return s
}

// MCP returns the underlying protocol server
func (s *Server) MCP() *mcpsdk.Server {
	return s.server
}

// Run serves over stdin/stdout until the client disconnects or ctx is done
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server listening on stdio", "dialect", s.executor.Dialect())
	return s.server.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) analyzeGraph(ctx context.Context, req *mcpsdk.CallToolRequest, in AnalyzeInput) (*mcpsdk.CallToolResult, any, error) {
	if strings.TrimSpace(in.Query) == "" {
		return toolError("query is required"), nil, nil
	}
	question := in.Question
	if question == "" {
		question = "What does this data show?"
	}
	return s.answer(ctx, question, query.Query{Text: in.Query, Params: in.Params})
}

func (s *Server) articlesMentioning(ctx context.Context, req *mcpsdk.CallToolRequest, in PersonInput) (*mcpsdk.CallToolResult, any, error) {
	if strings.TrimSpace(in.Person) == "" {
		return toolError("person is required"), nil, nil
	}
	q, err := query.ArticlesMentioning(s.executor.Dialect(), in.Person)
	if err != nil {
		return nil, nil, err
	}
	return s.answer(ctx, fmt.Sprintf("Which articles mention %s?", in.Person), q)
}

func (s *Server) relatedPeople(ctx context.Context, req *mcpsdk.CallToolRequest, in PersonInput) (*mcpsdk.CallToolResult, any, error) {
	if strings.TrimSpace(in.Person) == "" {
		return toolError("person is required"), nil, nil
	}
	q, err := query.RelatedPeople(s.executor.Dialect(), in.Person)
	if err != nil {
		return nil, nil, err
	}
	return s.answer(ctx, fmt.Sprintf("Who is related to %s?", in.Person), q)
}

// answer runs q through the read pipeline. Query failures are reported to
// the agent as tool errors so it can correct itself.
func (s *Server) answer(ctx context.Context, question string, q query.Query) (*mcpsdk.CallToolResult, any, error) {
	p := &query.Pipeline{
		Generator: query.StaticGenerator{Query: q},
		Executor:  s.executor,
		Assembler: s.assembler,
	}

	report, err := p.Answer(ctx, question)
	if err != nil {
		s.logger.Warn("tool query failed", "question", question, "error", err)
		return toolError(err.Error()), nil, nil
	}

	s.logger.Debug("tool query answered", "question", question, "records", len(report.Rows))
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: report.Markdown()}},
	}, nil, nil
}

func toolError(msg string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: msg}},
	}
}
