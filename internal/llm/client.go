// Package llm provides the prose half of a Report: an insight.Analyst backed
// by OpenAI, Gemini or any OpenAI-compatible endpoint.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rohankatakam/kgraph/internal/config"
	"github.com/rohankatakam/kgraph/internal/errors"
	"github.com/rohankatakam/kgraph/internal/insight"
	"github.com/rohankatakam/kgraph/internal/metrics"
)

const (
	DefaultOpenAIModel     = "gpt-4o-mini"
	DefaultGeminiModel     = "gemini-2.0-flash"
	DefaultCompatibleModel = "llama3.1"

	maxTokens = 2000
)

// Completer sends one system+user exchange to a model
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Client is an insight.Analyst over a single provider
type Client struct {
	provider  string
	completer Completer
	limiter   *RateLimiter
	logger    *slog.Logger
}

var _ insight.Analyst = (*Client)(nil)

// NewClient wires a Client around an existing Completer
func NewClient(provider string, completer Completer, requestsPerMinute int) *Client {
	return &Client{
		provider:  provider,
		completer: completer,
		limiter:   NewRateLimiter(requestsPerMinute),
		logger:    slog.Default().With("component", "llm", "provider", provider),
	}
}

// NewAnalyst builds the analyst selected by cfg.
// Provider "none", or a hosted provider without an API key, yields
// insight.NoAnalysis so the read path still produces a report.
func NewAnalyst(ctx context.Context, cfg config.LLMConfig) (insight.Analyst, error) {
	logger := slog.Default().With("component", "llm")

	var completer Completer
	switch cfg.Provider {
	case config.ProviderNone, "":
		logger.Debug("analysis disabled")
		return insight.NoAnalysis{}, nil

	case config.ProviderOpenAI:
		if cfg.OpenAIKey == "" {
			logger.Warn("openai selected but no API key configured, analysis disabled")
			logger.Info("set OPENAI_API_KEY or run 'kgraph configure --openai-key'")
			return insight.NoAnalysis{}, nil
		}
		completer = NewOpenAIClient(cfg.OpenAIKey, cfg.Model, cfg.Temperature)

	case config.ProviderGemini:
		if cfg.GeminiKey == "" {
			logger.Warn("gemini selected but no API key configured, analysis disabled")
			logger.Info("set GEMINI_API_KEY or run 'kgraph configure --gemini-key'")
			return insight.NoAnalysis{}, nil
		}
		gc, err := NewGeminiClient(ctx, cfg.GeminiKey, cfg.Model, cfg.Temperature)
		if err != nil {
			return nil, errors.ExternalError(err, "failed to initialize gemini")
		}
		completer = gc

	case config.ProviderCompatible:
		cc, err := NewCompatibleClient(cfg.BaseURL, cfg.OpenAIKey, cfg.Model, cfg.Temperature)
		if err != nil {
			return nil, err
		}
		completer = cc

	default:
		return nil, errors.ConfigErrorf("unknown llm provider %q", cfg.Provider)
	}

	logger.Info("analyst initialized", "provider", cfg.Provider, "requests_per_minute", cfg.RequestsPerMinute)
	return NewClient(cfg.Provider, completer, cfg.RequestsPerMinute), nil
}

// Provider returns the active provider name
func (c *Client) Provider() string {
	return c.provider
}

// Analyze asks the model to interpret query results for question
func (c *Client) Analyze(ctx context.Context, question, data string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		metrics.AnalystRequests.WithLabelValues(c.provider, "throttled").Inc()
		return "", errors.ExternalError(err, "analyst request not sent")
	}

	start := time.Now()
	text, err := c.completer.Complete(ctx, AnalystSystemPrompt, AnalysisPrompt(question, data))
	if err != nil {
		metrics.AnalystRequests.WithLabelValues(c.provider, "error").Inc()
		c.logger.Warn("analysis failed", "error", err, "duration", time.Since(start))
		return "", errors.ExternalError(err, fmt.Sprintf("%s analysis failed", c.provider))
	}

	metrics.AnalystRequests.WithLabelValues(c.provider, "ok").Inc()
	c.logger.Debug("analysis complete",
		"question_length", len(question),
		"data_length", len(data),
		"response_length", len(text),
		"duration", time.Since(start),
	)
	return text, nil
}
