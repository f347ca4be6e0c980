package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/divergence-engine/pkg/scenario"
	"github.com/jwebster45206/divergence-engine/pkg/scene"
	"github.com/jwebster45206/divergence-engine/pkg/state"
	"github.com/jwebster45206/divergence-engine/pkg/turn"
)

func testScenario(t *testing.T) *scenario.Scenario {
	t.Helper()
	s, err := scenario.Default()
	require.NoError(t, err)
	return s
}

func TestNew(t *testing.T) {
	builder := New()
	if builder == nil {
		t.Fatal("Expected builder to be created, got nil")
	}
	if len(builder.schema) == 0 {
		t.Error("Expected the scene schema to be set by default")
	}
}

func TestBuilder_FluentInterface(t *testing.T) {
	s := testScenario(t)
	req := turn.NewRequest()

	builder := New().
		WithScenario(s).
		WithRequest(req).
		WithSchema([]byte(`{}`))

	if builder.scenario != s {
		t.Error("WithScenario did not set scenario")
	}
	if builder.req == nil || builder.req.Chapter != state.ChapterPrologue {
		t.Error("WithRequest did not set request")
	}
	if string(builder.schema) != "{}" {
		t.Error("WithSchema did not set schema")
	}
}

func TestBuilder_Build_RequiresInputs(t *testing.T) {
	_, err := New().WithRequest(turn.NewRequest()).Build()
	assert.ErrorContains(t, err, "scenario is required")

	_, err = New().WithScenario(testScenario(t)).Build()
	assert.ErrorContains(t, err, "request is required")
}

func TestBuilder_SystemPrompt(t *testing.T) {
	s := testScenario(t)
	msgs, err := BuildMessages(s, turn.NewRequest())
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, turn.RoleSystem, msgs[0].Role)
	assert.Equal(t, turn.RoleUser, msgs[1].Role)

	system := msgs[0].Content
	for _, want := range []string{
		s.Role,
		"Ver Potter: Divergence",
		headingCopyright,
		headingProtagonist,
		"canonity, corruption, sanity, trust, fate (0~10)",
		"A=📜, B=⚠️, C=🩸, D=❓",
		"delta(정수 -3~+3)",
		"corruption ≥ 10 OR fate ≥ 10 → BAD END",
		"sanity ≤ 0 OR trust ≤ 0 → BAD END",
		"canonity ≥ 10 AND corruption ≤ 3 → GOOD END",
		state.Roadmap(),
		s.Style,
		headingSchema,
		`"choices"`,
	} {
		assert.Contains(t, system, want)
	}
	for _, rule := range s.Output {
		assert.Contains(t, system, "- "+rule)
	}
}

func TestBuilder_EndingRulesInPriorityOrder(t *testing.T) {
	lines := EndingRuleLines()
	require.Len(t, lines, 3)
	assert.True(t, strings.HasSuffix(lines[0], "BAD END"))
	assert.True(t, strings.HasSuffix(lines[1], "BAD END"))
	assert.True(t, strings.HasSuffix(lines[2], "GOOD END"))
}

func TestBuilder_UserPrompt(t *testing.T) {
	s := testScenario(t)
	choice := scene.Fallback().Choices[2]

	tests := []struct {
		name       string
		req        turn.Request
		contains   []string
		notContain []string
	}{
		{
			name: "opening turn",
			req:  turn.NewRequest(),
			contains: []string{
				`state={"canonity":5,"corruption":0,"sanity":7,"trust":6,"fate":0}`,
				"current_chapter=PROLOGUE",
				"chapter_note=" + s.ChapterNote(state.ChapterPrologue),
				"flags=[]",
				"lastChoice=null",
				TurnInstruction,
			},
			notContain: []string{"엔딩 조건이 충족되었다"},
		},
		{
			name: "mid game with a choice",
			req: turn.Request{
				State:      state.StoryState{Canonity: 6, Corruption: 3, Sanity: 5, Trust: 5, Fate: 2},
				Chapter:    state.ChapterSorting,
				LastChoice: &choice,
				Flags:      []string{"hat_hesitated"},
				Log:        "모자가 망설였다.",
			},
			contains: []string{
				"current_chapter=SORTING",
				`flags=["hat_hesitated"]`,
				`lastChoice={"id":"C","tag":"🩸"`,
				"log=모자가 망설였다.",
			},
		},
		{
			name: "ending reached",
			req: turn.Request{
				State:   state.StoryState{Canonity: 10, Corruption: 10, Sanity: 7, Trust: 6},
				Chapter: state.ChapterCore,
				Flags:   []string{},
			},
			contains: []string{"엔딩 조건이 충족되었다: BAD END"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := BuildMessages(s, tt.req)
			require.NoError(t, err)
			user := msgs[1].Content
			for _, want := range tt.contains {
				assert.Contains(t, user, want)
			}
			for _, unwanted := range tt.notContain {
				assert.NotContains(t, user, unwanted)
			}
			assert.True(t, strings.HasSuffix(user, TurnInstruction))
		})
	}
}
