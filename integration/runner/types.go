package runner

import (
	"time"

	"github.com/jwebster45206/divergence-engine/pkg/scene"
	"github.com/jwebster45206/divergence-engine/pkg/state"
)

// TestSuite defines one scripted playthrough against the story endpoint.
// Can either be a regular test with Steps, or a suite that references other Cases
type TestSuite struct {
	Name  string     `json:"name"`
	Seed  Seed       `json:"seed,omitempty"`  // Used for regular tests
	Steps []TestStep `json:"steps,omitempty"` // Used for regular tests
	Cases []string   `json:"cases,omitempty"` // Used for suite tests (list of case files)
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// Seed is the client state the first turn is sent with. Zero fields take
// the server defaults.
type Seed struct {
	State   *state.StoryState `json:"state,omitempty"`
	Chapter state.Chapter     `json:"chapter,omitempty"`
	Flags   []string          `json:"flags,omitempty"`
}

// TestStep is one turn. Choose names the choice taken from the previous
// scene before the turn is sent; the first step leaves it empty.
type TestStep struct {
	Name         string       `json:"name,omitempty"`
	Choose       string       `json:"choose,omitempty"`
	Expectations Expectations `json:"expect"`
}

// Expectations defines what to check after a turn returns
type Expectations struct {
	Status    *int   `json:"status,omitempty"`     // HTTP status, 200 when unset
	ErrorKind string `json:"error_kind,omitempty"` // error kind for non-200 responses

	Chapters []state.Chapter `json:"chapters,omitempty"` // allowed chapters for the scene
	Layers   []scene.Layer   `json:"layers,omitempty"`   // allowed layers
	Ending   string          `json:"ending,omitempty"`   // GOOD, BAD or none

	TextContains    []string `json:"text_contains,omitempty"`
	TextNotContains []string `json:"text_not_contains,omitempty"`
	TextRegex       string   `json:"text_regex,omitempty"`
	TextMinLength   *int     `json:"text_min_length,omitempty"`
	FlagsContain    []string `json:"flags_contain,omitempty"`
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	TestName string
	StepName string
	Success  bool
	Error    error
	Duration time.Duration
	Scene    *scene.Scene
}

// TestJob represents a test suite to be executed
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job      TestJob
	Results  []TestResult
	Error    error
	Duration time.Duration
	RunID    string // prefix of the X-Request-ID sent with every turn
}
