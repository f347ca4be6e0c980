package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jwebster45206/divergence-engine/pkg/turn"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"

	DefaultAnthropicMaxTokens = 2048

	// maxErrorBody bounds how much of a failed response is quoted in errors.
	maxErrorBody = 512
)

// AnthropicGenerator implements SceneGenerator for Anthropic Claude.
type AnthropicGenerator struct {
	apiKey     string
	modelName  string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ SceneGenerator = (*AnthropicGenerator)(nil)

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type AnthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
}

type AnthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type AnthropicResponse struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Role       string                  `json:"role"`
	Content    []AnthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewAnthropicGenerator creates a Claude client. An empty baseURL keeps the
// public endpoint. The HTTP client carries no timeout; callers bound each
// request with their context.
func NewAnthropicGenerator(apiKey, modelName, baseURL string, logger *slog.Logger) *AnthropicGenerator {
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	return &AnthropicGenerator{
		apiKey:     apiKey,
		modelName:  modelName,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     logger,
	}
}

func (a *AnthropicGenerator) Provider() string  { return "anthropic" }
func (a *AnthropicGenerator) ModelName() string { return a.modelName }

// GenerateScene sends the system instruction and user prompt to the
// messages endpoint and joins the text blocks of the reply.
func (a *AnthropicGenerator) GenerateScene(ctx context.Context, messages []turn.Message) (string, error) {
	system, user := splitMessages(messages)

	temperature := DefaultTemperature
	anthropicReq := AnthropicRequest{
		Model:       a.modelName,
		MaxTokens:   DefaultAnthropicMaxTokens,
		Temperature: &temperature,
		Messages:    []anthropicMessage{{Role: turn.RoleUser, Content: user}},
		System:      system,
	}

	reqBody, err := json.Marshal(anthropicReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("content-type", "application/json")

	a.logger.Debug("Sending Anthropic request", "model", a.modelName, "system_bytes", len(system), "user_bytes", len(user))
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response body: %w", ErrGenerationFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return "", fmt.Errorf("%w: API request failed with status %d: %s", ErrGenerationFailed, resp.StatusCode, snippet)
	}

	var anthropicResp AnthropicResponse
	if err := json.Unmarshal(body, &anthropicResp); err != nil {
		return "", fmt.Errorf("%w: failed to parse response: %w", ErrGenerationFailed, err)
	}
	if anthropicResp.Error != nil {
		return "", fmt.Errorf("%w: API error: %s", ErrGenerationFailed, anthropicResp.Error.Message)
	}

	var sb strings.Builder
	for _, content := range anthropicResp.Content {
		if content.Type == "text" {
			sb.WriteString(content.Text)
		}
	}
	return sb.String(), nil
}
