package services

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/jwebster45206/divergence-engine/pkg/turn"
)

// GeminiGenerator implements SceneGenerator for Google Gemini.
type GeminiGenerator struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

var _ SceneGenerator = (*GeminiGenerator)(nil)

// NewGeminiGenerator creates a Gemini client. baseURL is only set in tests.
func NewGeminiGenerator(ctx context.Context, apiKey, model, baseURL string, logger *slog.Logger) (*GeminiGenerator, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiGenerator{
		client: client,
		model:  model,
		logger: logger,
	}, nil
}

func (g *GeminiGenerator) Provider() string  { return "gemini" }
func (g *GeminiGenerator) ModelName() string { return g.model }

// GenerateScene asks for a JSON response and returns the concatenated text parts.
func (g *GeminiGenerator) GenerateScene(ctx context.Context, messages []turn.Message) (string, error) {
	system, user := splitMessages(messages)

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleModel),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](DefaultTemperature),
	}

	g.logger.Debug("Sending Gemini request", "model", g.model, "system_bytes", len(system), "user_bytes", len(user))
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(user), config)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	return result.Text(), nil
}
