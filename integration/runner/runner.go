package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/divergence-engine/pkg/scene"
	"github.com/jwebster45206/divergence-engine/pkg/state"
	"github.com/jwebster45206/divergence-engine/pkg/textfilter"
	"github.com/jwebster45206/divergence-engine/pkg/turn"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// Runner plays scripted turns against a running divergence-engine API
type Runner struct {
	BaseURL           string
	Client            *http.Client
	Timeout           time.Duration
	Logger            func(format string, args ...interface{})
	ErrorHandlingMode ErrorHandlingMode
}

// NewRunner creates a new test runner
func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL:           strings.TrimSuffix(baseURL, "/"),
		Client:            &http.Client{Timeout: 90 * time.Second},
		Timeout:           75 * time.Second,
		Logger:            func(string, ...interface{}) {},
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// LoadTestSuite loads a test suite from a JSON file
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	if err := json.Unmarshal(content, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse JSON in %s: %w", filename, err)
	}
	return suite, nil
}

// LoadTestSuiteWithExpansion loads a test suite and expands it if it's a sequence
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	suite, err := LoadTestSuite(filename)
	if err != nil {
		return nil, err
	}

	if !suite.IsSequence() {
		return []TestJob{{
			Name:     suite.Name,
			Suite:    suite,
			CaseFile: filename,
		}}, nil
	}

	var jobs []TestJob
	for _, caseFile := range suite.Cases {
		casePath := filepath.Join(casesDir, caseFile)

		// Recursively load (in case a sequence references another sequence)
		subJobs, err := LoadTestSuiteWithExpansion(casePath, casesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load case '%s' referenced by sequence '%s': %w", caseFile, suite.Name, err)
		}
		jobs = append(jobs, subJobs...)
	}
	return jobs, nil
}

// playthrough is the client-side state carried between turns.
type playthrough struct {
	req   turn.Request
	scene *scene.Scene
}

func newPlaythrough(seed Seed) *playthrough {
	req := turn.NewRequest()
	if seed.State != nil {
		req.State = seed.State.Clamp()
	}
	if seed.Chapter != "" {
		req.Chapter = seed.Chapter
	}
	if seed.Flags != nil {
		req.Flags = append([]string(nil), seed.Flags...)
	}
	return &playthrough{req: req}
}

// choose applies a choice from the last scene the way the client does.
func (p *playthrough) choose(id string) error {
	if p.scene == nil {
		return errors.New("no previous scene to choose from")
	}
	c, ok := p.scene.Choice(strings.ToUpper(id))
	if !ok {
		return fmt.Errorf("previous scene has no choice %q", id)
	}
	next, _, _ := state.Advance(p.req.State, c.Delta)
	p.req.State = next
	p.req.LastChoice = &c
	p.req.Log = textfilter.Truncate(p.req.Log+"> "+c.Label+"\n", turn.MaxLogLen)
	return nil
}

// adopt moves the playthrough onto the served scene.
func (p *playthrough) adopt(s scene.Scene) {
	p.scene = &s
	p.req.Chapter = s.Chapter
	p.req.Flags = append([]string(nil), s.Flags...)
}

// RunSuite executes a complete test suite
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	result := TestRunResult{
		Job: TestJob{
			Name:  suite.Name,
			Suite: suite,
		},
		Results: make([]TestResult, 0, len(suite.Steps)),
		RunID:   uuid.NewString(),
	}

	p := newPlaythrough(suite.Seed)
	var failures int

	for i, step := range suite.Steps {
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), step.Name)
		stepResult := r.runStep(ctx, fmt.Sprintf("%s-%d", result.RunID, i+1), p, step)
		stepResult.TestName = suite.Name
		result.Results = append(result.Results, stepResult)

		if !stepResult.Success {
			failures++
			r.Logger("    [%d/%d] ✗ %s: %v", i+1, len(suite.Steps), step.Name, stepResult.Error)
			if r.ErrorHandlingMode == ErrorHandlingExit {
				break
			}
			continue
		}
		r.Logger("    [%d/%d] ✓ %s (%v)", i+1, len(suite.Steps), step.Name, stepResult.Duration)
	}

	result.Duration = time.Since(start)
	if failures > 0 {
		result.Error = fmt.Errorf("%d of %d steps failed", failures, len(suite.Steps))
	}
	return result, result.Error
}

func (r *Runner) runStep(ctx context.Context, requestID string, p *playthrough, step TestStep) TestResult {
	start := time.Now()
	res := TestResult{StepName: step.Name}
	fail := func(err error) TestResult {
		res.Error = err
		res.Duration = time.Since(start)
		return res
	}

	if step.Choose != "" {
		if err := p.choose(step.Choose); err != nil {
			return fail(err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	sent := p.req
	status, body, err := r.postTurn(ctx, requestID, sent)
	if err != nil {
		return fail(err)
	}

	wantStatus := http.StatusOK
	if step.Expectations.Status != nil {
		wantStatus = *step.Expectations.Status
	}
	if status != wantStatus {
		return fail(fmt.Errorf("expected status %d, got %d: %s", wantStatus, status, textfilter.Truncate(string(body), 300)))
	}

	if status != http.StatusOK {
		if err := checkError(step.Expectations, body); err != nil {
			return fail(err)
		}
		res.Success = true
		res.Duration = time.Since(start)
		return res
	}

	var s scene.Scene
	if err := json.Unmarshal(body, &s); err != nil {
		return fail(fmt.Errorf("failed to parse scene: %w", err))
	}
	res.Scene = &s

	if err := CheckScene(sent, s); err != nil {
		return fail(err)
	}
	if err := checkExpectations(step.Expectations, s); err != nil {
		return fail(err)
	}

	p.adopt(s)
	res.Success = true
	res.Duration = time.Since(start)
	return res
}

func (r *Runner) postTurn(ctx context.Context, requestID string, tr turn.Request) (int, []byte, error) {
	jsonData, err := json.Marshal(tr)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/api/story", bytes.NewReader(jsonData))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	resp, err := r.Client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// CheckScene verifies the guarantees every served scene must meet for the
// request it answered, independent of any scripted expectation.
func CheckScene(req turn.Request, s scene.Scene) error {
	var errs []error

	for i, c := range s.Choices {
		if c.ID != scene.ChoiceIDs[i] || c.Tag != scene.ChoiceTags[i] {
			errs = append(errs, fmt.Errorf("choice %d is %s/%s", i, c.ID, c.Tag))
		}
		if c.Delta != c.Delta.Clamp() {
			errs = append(errs, fmt.Errorf("choice %s delta out of range: %+v", c.ID, c.Delta))
		}
		if textfilter.Len(c.Label) > scene.MaxLabelLen {
			errs = append(errs, fmt.Errorf("choice %s label too long", c.ID))
		}
	}
	if textfilter.Len(s.Text) > scene.MaxTextLen {
		errs = append(errs, errors.New("text too long"))
	}
	if len(s.Flags) > scene.MaxFlags {
		errs = append(errs, fmt.Errorf("%d flags exceed the limit", len(s.Flags)))
	}

	want, ended := state.ResolveEnding(req.State.Clamp())
	switch {
	case ended && (s.Ending == nil || s.Ending.Type != want):
		errs = append(errs, fmt.Errorf("expected %s ending, got %s", want, endingName(s.Ending)))
	case ended && s.Chapter != state.ChapterEnding:
		errs = append(errs, fmt.Errorf("ending scene on chapter %s", s.Chapter))
	case !ended && s.Ending != nil:
		errs = append(errs, fmt.Errorf("unexpected %s ending", s.Ending.Type))
	case !ended:
		if _, ok := state.ClampChapter(req.Chapter, s.Chapter); !ok || s.Chapter == state.ChapterEnding {
			errs = append(errs, fmt.Errorf("chapter %s cannot follow %s", s.Chapter, req.Chapter))
		}
	}

	return errors.Join(errs...)
}

func checkExpectations(exp Expectations, s scene.Scene) error {
	var errs []error

	if len(exp.Chapters) > 0 && !slices.Contains(exp.Chapters, s.Chapter) {
		errs = append(errs, fmt.Errorf("expected chapter in %v, got %s", exp.Chapters, s.Chapter))
	}
	if len(exp.Layers) > 0 && !slices.Contains(exp.Layers, s.Layer) {
		errs = append(errs, fmt.Errorf("expected layer in %v, got %s", exp.Layers, s.Layer))
	}
	if exp.Ending != "" && !strings.EqualFold(exp.Ending, endingName(s.Ending)) {
		errs = append(errs, fmt.Errorf("expected ending %s, got %s", exp.Ending, endingName(s.Ending)))
	}

	for _, want := range exp.TextContains {
		if !strings.Contains(s.Text, want) {
			errs = append(errs, fmt.Errorf("text does not contain %q", want))
		}
	}
	for _, unwanted := range exp.TextNotContains {
		if strings.Contains(s.Text, unwanted) {
			errs = append(errs, fmt.Errorf("text contains %q", unwanted))
		}
	}
	if exp.TextRegex != "" {
		re, err := regexp.Compile(exp.TextRegex)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid text_regex: %w", err))
		} else if !re.MatchString(s.Text) {
			errs = append(errs, fmt.Errorf("text does not match %q", exp.TextRegex))
		}
	}
	if exp.TextMinLength != nil && textfilter.Len(s.Text) < *exp.TextMinLength {
		errs = append(errs, fmt.Errorf("text shorter than %d runes", *exp.TextMinLength))
	}
	for _, f := range exp.FlagsContain {
		if !slices.Contains(s.Flags, f) {
			errs = append(errs, fmt.Errorf("flags do not contain %q", f))
		}
	}

	return errors.Join(errs...)
}

func checkError(exp Expectations, body []byte) error {
	var resp turn.ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to parse error response: %w", err)
	}
	if resp.Error == "" {
		return errors.New("error response has no message")
	}
	if exp.ErrorKind != "" && resp.Kind != exp.ErrorKind {
		return fmt.Errorf("expected error kind %s, got %s", exp.ErrorKind, resp.Kind)
	}
	return nil
}

func endingName(e *scene.Ending) string {
	if e == nil {
		return "none"
	}
	return string(e.Type)
}
