package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/jwebster45206/divergence-engine/pkg/scene"
	"github.com/jwebster45206/divergence-engine/pkg/turn"
)

// storyClient talks to the /api/story endpoint.
type storyClient struct {
	baseURL string
	http    *http.Client
}

func newStoryClient(cfg *ConsoleConfig) *storyClient {
	return &storyClient{
		baseURL: cfg.APIBaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// ping reports whether the API answers /health. A degraded server still
// counts; turns will carry the reason.
func (c *storyClient) ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// next posts one turn and returns the served scene.
func (c *storyClient) next(ctx context.Context, tr turn.Request) (scene.Scene, error) {
	jsonData, err := json.Marshal(tr)
	if err != nil {
		return scene.Scene{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/story", bytes.NewReader(jsonData))
	if err != nil {
		return scene.Scene{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return scene.Scene{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return scene.Scene{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp turn.ErrorResponse
		if err := json.Unmarshal(body, &errorResp); err != nil || errorResp.Error == "" {
			return scene.Scene{}, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
		}
		msg := errorResp.Error
		if errorResp.Kind != "" {
			msg = fmt.Sprintf("%s (%s)", msg, errorResp.Kind)
		}
		if errorResp.Detail != "" {
			msg += ": " + errorResp.Detail
		}
		return scene.Scene{}, fmt.Errorf("turn failed: %s", msg)
	}

	var s scene.Scene
	if err := json.Unmarshal(body, &s); err != nil {
		return scene.Scene{}, fmt.Errorf("failed to parse scene: %w", err)
	}
	return s, nil
}
