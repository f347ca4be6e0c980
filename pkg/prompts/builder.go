package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jwebster45206/divergence-engine/pkg/scenario"
	"github.com/jwebster45206/divergence-engine/pkg/scene"
	"github.com/jwebster45206/divergence-engine/pkg/state"
	"github.com/jwebster45206/divergence-engine/pkg/turn"
)

// Builder constructs the messages for one scene generation using a fluent
// interface. The result is always a system instruction followed by a single
// user prompt.
type Builder struct {
	scenario *scenario.Scenario
	req      *turn.Request
	schema   []byte
	messages []turn.Message
}

// New creates a new prompt builder using the scene output schema.
func New() *Builder {
	return &Builder{
		schema:   scene.Schema(),
		messages: make([]turn.Message, 0, 2),
	}
}

// WithScenario sets the game configuration.
func (b *Builder) WithScenario(s *scenario.Scenario) *Builder {
	b.scenario = s
	return b
}

// WithRequest sets the turn being answered.
func (b *Builder) WithRequest(req turn.Request) *Builder {
	b.req = &req
	return b
}

// WithSchema overrides the JSON schema embedded in the system instruction.
func (b *Builder) WithSchema(schema []byte) *Builder {
	b.schema = schema
	return b
}

// Build constructs and returns the final message array for the model.
func (b *Builder) Build() ([]turn.Message, error) {
	if b.scenario == nil {
		return nil, fmt.Errorf("scenario is required")
	}
	if b.req == nil {
		return nil, fmt.Errorf("request is required")
	}

	b.messages = make([]turn.Message, 0, 2)
	b.messages = append(b.messages, turn.Message{
		Role:    turn.RoleSystem,
		Content: b.systemPrompt(),
	})

	user, err := b.userPrompt()
	if err != nil {
		return nil, fmt.Errorf("error building user prompt: %w", err)
	}
	b.messages = append(b.messages, turn.Message{
		Role:    turn.RoleUser,
		Content: user,
	})

	return b.messages, nil
}

func (b *Builder) systemPrompt() string {
	s := b.scenario
	var sb strings.Builder

	sb.WriteString(s.Role + "\n")
	sb.WriteString(fmt.Sprintf(titleLine, s.Title) + "\n")

	writeSection(&sb, headingCopyright, bullets(s.Copyright))
	writeSection(&sb, headingProtagonist, bullets(s.Protagonist))
	writeSection(&sb, headingStats, StatsLine())
	writeSection(&sb, headingChoices, bullets(ChoiceRules()))
	writeSection(&sb, headingEndings, strings.Join(EndingRuleLines(), "\n"))
	writeSection(&sb, headingRoadmap, state.Roadmap()+"\n"+roadmapRule)
	writeSection(&sb, headingStyle, s.Style)
	writeSection(&sb, headingOutput, bullets(s.Output)+"\n"+headingSchema+"\n"+string(b.schema))

	return strings.TrimSpace(sb.String())
}

func (b *Builder) userPrompt() (string, error) {
	r := b.req

	stateJSON, err := json.Marshal(r.State)
	if err != nil {
		return "", fmt.Errorf("failed to encode state: %w", err)
	}
	flagsJSON, err := json.Marshal(r.Flags)
	if err != nil {
		return "", fmt.Errorf("failed to encode flags: %w", err)
	}
	choiceJSON, err := json.Marshal(r.LastChoice)
	if err != nil {
		return "", fmt.Errorf("failed to encode last choice: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(headingState + "\n")
	sb.WriteString("state=" + string(stateJSON) + "\n")
	sb.WriteString("current_chapter=" + string(r.Chapter) + "\n")
	if note := b.scenario.ChapterNote(r.Chapter); note != "" {
		sb.WriteString("chapter_note=" + note + "\n")
	}
	sb.WriteString("flags=" + string(flagsJSON) + "\n")
	sb.WriteString("lastChoice=" + string(choiceJSON) + "\n")
	sb.WriteString("log=" + r.Log + "\n\n")

	if ending, ok := state.ResolveEnding(r.State); ok {
		sb.WriteString(fmt.Sprintf(EndingInstruction, ending) + "\n")
	}
	sb.WriteString(TurnInstruction)

	return sb.String(), nil
}

func writeSection(sb *strings.Builder, heading, body string) {
	sb.WriteString("\n" + heading + "\n")
	sb.WriteString(body + "\n")
}

func bullets(lines []string) string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = "- " + l
	}
	return strings.Join(out, "\n")
}

// BuildMessages is a convenience function for the common case.
func BuildMessages(s *scenario.Scenario, req turn.Request) ([]turn.Message, error) {
	return New().
		WithScenario(s).
		WithRequest(req).
		Build()
}
