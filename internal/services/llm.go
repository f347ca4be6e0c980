package services

import (
	"context"
	"errors"
	"strings"

	"github.com/jwebster45206/divergence-engine/pkg/turn"
)

// ErrGenerationFailed is wrapped by every model call failure.
var ErrGenerationFailed = errors.New("scene generation failed")

// DefaultTemperature is used by every provider.
const DefaultTemperature = 0.9

// SceneGenerator produces the raw model text for one turn. The text is
// untrusted; callers extract and coerce it.
type SceneGenerator interface {
	// GenerateScene sends the prompt messages and returns the model's text.
	GenerateScene(ctx context.Context, messages []turn.Message) (string, error)

	// Provider names the backend, e.g. "gemini".
	Provider() string

	// ModelName returns the configured model.
	ModelName() string
}

// splitMessages combines system messages into one instruction and the rest
// into one user prompt.
func splitMessages(messages []turn.Message) (system string, user string) {
	var systemParts, userParts []string
	for _, msg := range messages {
		if msg.Role == turn.RoleSystem {
			systemParts = append(systemParts, msg.Content)
		} else {
			userParts = append(userParts, msg.Content)
		}
	}
	return strings.Join(systemParts, "\n\n"), strings.Join(userParts, "\n\n")
}
