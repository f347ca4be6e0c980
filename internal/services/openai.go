package services

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jwebster45206/divergence-engine/pkg/turn"
)

// OpenAIGenerator implements SceneGenerator for OpenAI-compatible APIs.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

var _ SceneGenerator = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator creates an OpenAI client. An empty baseURL keeps the
// public endpoint.
func NewOpenAIGenerator(apiKey, model, baseURL string, logger *slog.Logger) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}
}

func (o *OpenAIGenerator) Provider() string  { return "openai" }
func (o *OpenAIGenerator) ModelName() string { return o.model }

// GenerateScene requests a JSON object completion.
func (o *OpenAIGenerator) GenerateScene(ctx context.Context, messages []turn.Message) (string, error) {
	system, user := splitMessages(messages)

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: DefaultTemperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	o.logger.Debug("Sending OpenAI request", "model", o.model, "system_bytes", len(system), "user_bytes", len(user))
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: response had no choices", ErrGenerationFailed)
	}
	return resp.Choices[0].Message.Content, nil
}
