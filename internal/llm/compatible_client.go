package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/rohankatakam/kgraph/internal/errors"
)

// CompatibleClient talks to any server exposing the OpenAI chat completions
// API (Ollama, vLLM, LM Studio)
type CompatibleClient struct {
	client      openai.Client
	model       openai.ChatModel
	temperature float64
	logger      *slog.Logger
}

// NewCompatibleClient targets baseURL. apiKey may be empty for local servers.
func NewCompatibleClient(baseURL, apiKey, model string, temperature float64) (*CompatibleClient, error) {
	if baseURL == "" {
		return nil, errors.ConfigErrorf("compatible provider requires llm.base_url")
	}
	if model == "" {
		model = DefaultCompatibleModel
	}

	// local servers ignore the key but the SDK always sends one
	if apiKey == "" {
		apiKey = "unused"
	}

	return &CompatibleClient{
		client:      openai.NewClient(option.WithBaseURL(baseURL), option.WithAPIKey(apiKey)),
		model:       openai.ChatModel(model),
		temperature: temperature,
		logger:      slog.Default().With("component", "compatible_llm", "model", model, "base_url", baseURL),
	}, nil
}

// Complete sends a chat completion to the configured endpoint
func (c *CompatibleClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Model:       c.model,
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(maxTokens),
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("endpoint returned no choices")
	}

	response := completion.Choices[0].Message.Content
	c.logger.Debug("compatible completion",
		"prompt_length", len(userPrompt),
		"response_length", len(response),
		"tokens_used", completion.Usage.TotalTokens,
	)

	return response, nil
}
