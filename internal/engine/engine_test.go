package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/divergence-engine/internal/config"
	"github.com/jwebster45206/divergence-engine/internal/metrics"
	"github.com/jwebster45206/divergence-engine/internal/services"
	"github.com/jwebster45206/divergence-engine/pkg/scenario"
	"github.com/jwebster45206/divergence-engine/pkg/scene"
	"github.com/jwebster45206/divergence-engine/pkg/state"
	"github.com/jwebster45206/divergence-engine/pkg/turn"
)

func testConfig() *config.Config {
	return &config.Config{
		LLMProvider:     config.ProviderGemini,
		GeminiAPIKey:    "g-secret",
		ModelTimeout:    time.Second,
		ProgressionMode: config.ProgressionClamp,
	}
}

func newTestEngine(t *testing.T, cfg *config.Config, gen services.SceneGenerator) (*Engine, *metrics.Metrics) {
	t.Helper()
	sc, err := scenario.Default()
	require.NoError(t, err)
	m := metrics.New()
	return New(cfg, gen, sc, m, slog.New(slog.NewTextHandler(io.Discard, nil))), m
}

func replying(text string) *services.MockGenerator {
	gen := services.NewMockGenerator()
	gen.GenerateSceneFunc = func(ctx context.Context, messages []turn.Message) (string, error) {
		return text, nil
	}
	return gen
}

func requestAt(c state.Chapter) turn.Request {
	req := turn.NewRequest()
	req.Chapter = c
	return req
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func kindOf(t *testing.T, err error) *Error {
	t.Helper()
	var e *Error
	require.True(t, errors.As(err, &e), "expected *Error, got %T: %v", err, err)
	return e
}

func TestNextScene_HappyPath(t *testing.T) {
	gen := services.NewMockGenerator()
	eng, m := newTestEngine(t, testConfig(), gen)

	s, err := eng.NextScene(context.Background(), turn.NewRequest())
	require.NoError(t, err)

	assert.Equal(t, state.ChapterPrologue, s.Chapter)
	assert.Equal(t, "창밖을 본다", s.Choices[0].Label)
	assert.Equal(t, []string{"woke_up"}, s.Flags)
	assert.Nil(t, s.Ending)

	calls := gen.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Messages, 2)
	assert.Equal(t, turn.RoleSystem, calls[0].Messages[0].Role)
	assert.Contains(t, calls[0].Messages[1].Content, "current_chapter=PROLOGUE")

	assert.Contains(t, scrape(t, m), `divergence_scenes_total{outcome="ok"} 1`)
}

func TestNextScene_MissingCredential(t *testing.T) {
	cfg := testConfig()
	cfg.GeminiAPIKey = ""
	eng, _ := newTestEngine(t, cfg, nil)

	assert.False(t, eng.Ready())
	_, err := eng.NextScene(context.Background(), turn.NewRequest())
	e := kindOf(t, err)
	assert.Equal(t, KindConfiguration, e.Kind)
	assert.Equal(t, "Missing GEMINI_API_KEY", e.Message)
	assert.Equal(t, http.StatusInternalServerError, e.Status())
}

func TestNextScene_UpstreamFailure(t *testing.T) {
	gen := services.NewMockGenerator()
	gen.GenerateSceneFunc = func(ctx context.Context, messages []turn.Message) (string, error) {
		return "", fmt.Errorf("%w: request with key g-secret rejected", services.ErrGenerationFailed)
	}
	eng, _ := newTestEngine(t, testConfig(), gen)

	_, err := eng.NextScene(context.Background(), turn.NewRequest())
	e := kindOf(t, err)
	assert.Equal(t, KindUpstream, e.Kind)
	assert.Equal(t, http.StatusBadGateway, e.Status())
	assert.NotContains(t, e.Detail, "g-secret")
	assert.Contains(t, e.Detail, "[redacted]")
	assert.True(t, errors.Is(err, services.ErrGenerationFailed))
}

func TestNextScene_Timeout(t *testing.T) {
	cfg := testConfig()
	cfg.ModelTimeout = 10 * time.Millisecond

	gen := services.NewMockGenerator()
	gen.GenerateSceneFunc = func(ctx context.Context, messages []turn.Message) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	eng, _ := newTestEngine(t, cfg, gen)

	_, err := eng.NextScene(context.Background(), turn.NewRequest())
	e := kindOf(t, err)
	assert.Equal(t, KindUpstream, e.Kind)
	assert.Contains(t, e.Detail, "did not respond within 10ms")
}

func TestNextScene_MalformedOutput(t *testing.T) {
	long := "I refuse. " + strings.Repeat("가", MaxRawLen)
	eng, m := newTestEngine(t, testConfig(), replying(long))

	_, err := eng.NextScene(context.Background(), turn.NewRequest())
	e := kindOf(t, err)
	assert.Equal(t, KindMalformedOutput, e.Kind)
	assert.Equal(t, http.StatusBadGateway, e.Status())
	assert.Equal(t, "Invalid AI JSON", e.Response().Error)
	assert.Len(t, []rune(e.Raw), MaxRawLen)
	assert.True(t, strings.HasPrefix(e.Raw, "I refuse."))
	assert.True(t, errors.Is(err, scene.ErrExtraction))

	assert.Contains(t, scrape(t, m), `kind="malformed_output"`)
}

func TestNextScene_BrokenObjectIsMalformed(t *testing.T) {
	replies := map[string]string{
		"cut off":        "```json\n{\"chapter\":\"LETTER\",\"choices\":[{\"id\":\"A\",\"tag\":\"x\",\"label\":\"go\",\"delta\":{\"canonity\":1}},{\"id\":\"B\",\"label\":\"tr",
		"trailing comma": `{"chapter":"LETTER","choices":[{"id":"A","delta":{"fate":1}}],}`,
	}
	for name, reply := range replies {
		t.Run(name, func(t *testing.T) {
			eng, _ := newTestEngine(t, testConfig(), replying(reply))

			s, err := eng.NextScene(context.Background(), turn.NewRequest())
			e := kindOf(t, err)
			assert.Equal(t, KindMalformedOutput, e.Kind)
			assert.Equal(t, reply, e.Raw)
			assert.Equal(t, scene.Scene{}, s)
		})
	}
}

func TestNextScene_FencedAndPartialOutputIsRepaired(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig(), replying("```json\n{\"chapter\":\"LETTER\",\"text\":\"편지가 왔다.\"}\n```"))

	s, err := eng.NextScene(context.Background(), turn.NewRequest())
	require.NoError(t, err)
	assert.Equal(t, state.ChapterLetter, s.Chapter)
	assert.Equal(t, "편지가 왔다.", s.Text)
	assert.Equal(t, scene.Fallback().Choices, s.Choices)
}

func TestNextScene_ChapterClamp(t *testing.T) {
	tests := []struct {
		name     string
		current  state.Chapter
		proposed string
		want     state.Chapter
	}{
		{"stay", state.ChapterSorting, "SORTING", state.ChapterSorting},
		{"advance one", state.ChapterSorting, "CLASSES", state.ChapterClasses},
		{"skip ahead", state.ChapterSorting, "MIRROR", state.ChapterSorting},
		{"regress", state.ChapterSorting, "LETTER", state.ChapterSorting},
		{"ending without rules", state.ChapterCore, "ENDING", state.ChapterCore},
		{"missing chapter defaults to prologue then clamps", state.ChapterDiagon, "", state.ChapterDiagon},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"text":"x"}`
			if tt.proposed != "" {
				body = fmt.Sprintf(`{"chapter":%q,"text":"x"}`, tt.proposed)
			}
			eng, _ := newTestEngine(t, testConfig(), replying(body))

			s, err := eng.NextScene(context.Background(), requestAt(tt.current))
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Chapter)
		})
	}
}

func TestNextScene_ChapterReject(t *testing.T) {
	cfg := testConfig()
	cfg.ProgressionMode = config.ProgressionReject
	eng, _ := newTestEngine(t, cfg, replying(`{"chapter":"CORE"}`))

	_, err := eng.NextScene(context.Background(), requestAt(state.ChapterSorting))
	e := kindOf(t, err)
	assert.Equal(t, KindProgression, e.Kind)
	assert.Equal(t, http.StatusBadGateway, e.Status())
	assert.Contains(t, e.Detail, "CORE cannot follow SORTING")

	eng, _ = newTestEngine(t, cfg, replying(`{"chapter":"CLASSES"}`))
	s, err := eng.NextScene(context.Background(), requestAt(state.ChapterSorting))
	require.NoError(t, err)
	assert.Equal(t, state.ChapterClasses, s.Chapter)
}

func TestNextScene_Endings(t *testing.T) {
	sc, err := scenario.Default()
	require.NoError(t, err)
	badCopy, _ := sc.Ending(state.EndingBad)

	t.Run("resolved ending is forced with default copy", func(t *testing.T) {
		eng, _ := newTestEngine(t, testConfig(), replying(`{"chapter":"CORE","text":"x"}`))
		req := requestAt(state.ChapterCore)
		req.State = state.StoryState{Canonity: 10, Corruption: 10, Sanity: 7, Trust: 6}

		s, err := eng.NextScene(context.Background(), req)
		require.NoError(t, err)
		require.NotNil(t, s.Ending)
		assert.Equal(t, state.EndingBad, s.Ending.Type)
		assert.Equal(t, badCopy.Title, s.Ending.Title)
		assert.Equal(t, badCopy.Text, s.Ending.Text)
		assert.Equal(t, state.ChapterEnding, s.Chapter)
	})

	t.Run("model copy is kept but type is corrected", func(t *testing.T) {
		eng, m := newTestEngine(t, testConfig(), replying(`{"chapter":"ENDING","ending":{"type":"GOOD","title":"빛","text":"끝났다."}}`))
		req := requestAt(state.ChapterTrials)
		req.State = state.StoryState{Canonity: 5, Sanity: 0, Trust: 6}

		s, err := eng.NextScene(context.Background(), req)
		require.NoError(t, err)
		require.NotNil(t, s.Ending)
		assert.Equal(t, state.EndingBad, s.Ending.Type)
		assert.Equal(t, "빛", s.Ending.Title)
		assert.Equal(t, "끝났다.", s.Ending.Text)
		assert.Contains(t, scrape(t, m), `rule="ending"`)
	})

	t.Run("invented ending is removed", func(t *testing.T) {
		eng, _ := newTestEngine(t, testConfig(), replying(`{"chapter":"CLASSES","ending":{"type":"GOOD","title":"이른 결말"}}`))

		s, err := eng.NextScene(context.Background(), requestAt(state.ChapterSorting))
		require.NoError(t, err)
		assert.Nil(t, s.Ending)
		assert.Equal(t, state.ChapterClasses, s.Chapter)
	})

	t.Run("good ending", func(t *testing.T) {
		eng, _ := newTestEngine(t, testConfig(), replying(`{}`))
		req := requestAt(state.ChapterCore)
		req.State = state.StoryState{Canonity: 10, Corruption: 2, Sanity: 5, Trust: 5}

		s, err := eng.NextScene(context.Background(), req)
		require.NoError(t, err)
		require.NotNil(t, s.Ending)
		assert.Equal(t, state.EndingGood, s.Ending.Type)
	})
}

func TestNextScene_NormalizesRequest(t *testing.T) {
	gen := services.NewMockGenerator()
	eng, _ := newTestEngine(t, testConfig(), gen)

	req := turn.Request{State: state.StoryState{Canonity: 99, Sanity: 5, Trust: 5}, Chapter: "bogus"}
	_, err := eng.NextScene(context.Background(), req)
	require.NoError(t, err)

	user := gen.Calls()[0].Messages[1].Content
	assert.Contains(t, user, `"canonity":10`)
	assert.Contains(t, user, "current_chapter=PROLOGUE")
}

func TestError(t *testing.T) {
	e := InvalidRequest(errors.New("bad body"))
	assert.Equal(t, http.StatusBadRequest, e.Status())
	assert.Equal(t, "invalid_request: Invalid request: bad body", e.Error())
	assert.Equal(t, turn.ErrorResponse{Error: "Invalid request", Kind: "invalid_request", Detail: "bad body"}, e.Response())

	r := RateLimited(services.ErrThrottled)
	assert.Equal(t, http.StatusTooManyRequests, r.Status())
	assert.True(t, errors.Is(r, services.ErrThrottled))

	plain := AsError(errors.New("boom"))
	assert.Equal(t, KindUpstream, plain.Kind)
	assert.Same(t, e, AsError(fmt.Errorf("wrapped: %w", e)))
}
