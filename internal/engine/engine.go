package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jwebster45206/divergence-engine/internal/config"
	"github.com/jwebster45206/divergence-engine/internal/metrics"
	"github.com/jwebster45206/divergence-engine/internal/middleware"
	"github.com/jwebster45206/divergence-engine/internal/services"
	"github.com/jwebster45206/divergence-engine/pkg/prompts"
	"github.com/jwebster45206/divergence-engine/pkg/scenario"
	"github.com/jwebster45206/divergence-engine/pkg/scene"
	"github.com/jwebster45206/divergence-engine/pkg/state"
	"github.com/jwebster45206/divergence-engine/pkg/textfilter"
	"github.com/jwebster45206/divergence-engine/pkg/turn"
)

// Engine turns one client request into one validated scene.
type Engine struct {
	cfg       *config.Config
	generator services.SceneGenerator
	scenario  *scenario.Scenario
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates an engine. generator may be nil when no credential is
// configured; every turn then fails with a configuration error. m may be nil.
func New(cfg *config.Config, generator services.SceneGenerator, sc *scenario.Scenario, m *metrics.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		generator: generator,
		scenario:  sc,
		metrics:   m,
		logger:    logger,
	}
}

// Ready reports whether a model client is configured.
func (e *Engine) Ready() bool {
	return e.generator != nil
}

// NextScene builds the prompt, calls the model, extracts and coerces its
// output, then enforces chapter ordering and ending rules. On failure the
// returned error is an *Error and no scene data is returned.
func (e *Engine) NextScene(ctx context.Context, req turn.Request) (scene.Scene, error) {
	log := middleware.LoggerFrom(ctx, e.logger)

	s, err := e.nextScene(ctx, log, req)
	if err != nil {
		var ee *Error
		if errors.As(err, &ee) {
			e.metrics.TurnFailed(string(ee.Kind))
			log.Warn("Turn failed", "kind", ee.Kind, "error", ee.Message, "detail", ee.Detail)
		}
		return scene.Scene{}, err
	}
	return s, nil
}

func (e *Engine) nextScene(ctx context.Context, log *slog.Logger, req turn.Request) (scene.Scene, error) {
	if e.generator == nil {
		return scene.Scene{}, configurationError(e.cfg.APIKeyEnv())
	}

	req.Normalize()

	messages, err := prompts.BuildMessages(e.scenario, req)
	if err != nil {
		return scene.Scene{}, &Error{Kind: KindConfiguration, Message: "Prompt unavailable", Detail: err.Error(), Err: err}
	}

	text, err := e.generate(ctx, messages)
	if err != nil {
		return scene.Scene{}, err
	}

	raw, err := scene.Extract(text)
	if err != nil {
		return scene.Scene{}, malformedError(text, err)
	}

	s, report := scene.CoerceWithReport(raw)
	if err := e.enforce(log, req, &s); err != nil {
		return scene.Scene{}, err
	}

	outcome := metrics.OutcomeOK
	switch {
	case report.Fallback:
		outcome = metrics.OutcomeFallback
	case report.Repaired():
		outcome = metrics.OutcomeRepaired
	}
	e.metrics.SceneServed(outcome, len(report.Repairs))

	log.Info("Scene generated",
		"chapter", s.Chapter,
		"layer", s.Layer,
		"outcome", outcome,
		"repairs", len(report.Repairs),
		"ending", s.IsTerminal())
	if report.Repaired() {
		log.Debug("Scene repaired", "repairs", report.Repairs)
	}
	return s, nil
}

// generate calls the model under the configured timeout.
func (e *Engine) generate(ctx context.Context, messages []turn.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ModelTimeout)
	defer cancel()

	start := time.Now()
	text, err := e.generator.GenerateScene(ctx, messages)
	e.metrics.ObserveUpstream(e.generator.Provider(), time.Since(start), err)
	if err == nil {
		return text, nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "", upstreamError(fmt.Sprintf("model did not respond within %s", e.cfg.ModelTimeout), err)
	}
	return "", upstreamError(e.sanitize(err.Error()), err)
}

// sanitize removes the configured credential from upstream error text.
func (e *Engine) sanitize(detail string) string {
	if key := e.cfg.APIKey(); key != "" {
		detail = strings.ReplaceAll(detail, key, "[redacted]")
	}
	return textfilter.Truncate(detail, 500)
}

// enforce applies the ending rules to the request state and keeps the
// chapter on the roadmap. Endings are decided by the rules, never by the
// model: a resolved ending is forced onto the scene, and a model-invented
// one is removed.
func (e *Engine) enforce(log *slog.Logger, req turn.Request, s *scene.Scene) error {
	if ending, ok := state.ResolveEnding(req.State); ok {
		if s.Ending == nil || s.Ending.Type != ending {
			e.violation(log, "ending", "expected", ending, "proposed", endingType(s.Ending))
		}
		s.Ending = e.endingFor(ending, s.Ending)
		s.Chapter = state.ChapterEnding
		return nil
	}

	if s.Ending != nil {
		e.violation(log, "ending", "expected", "none", "proposed", s.Ending.Type)
		s.Ending = nil
	}

	proposed := s.Chapter
	next, ok := state.ClampChapter(req.Chapter, proposed)
	if ok && proposed == state.ChapterEnding && req.Chapter != state.ChapterEnding {
		// ENDING is only reachable through the ending rules
		next, ok = req.Chapter, false
	}
	if ok {
		return nil
	}

	if e.cfg.ProgressionMode == config.ProgressionReject {
		e.metrics.ProgressionViolation("chapter")
		return progressionError("chapter %s cannot follow %s", proposed, req.Chapter)
	}
	e.violation(log, "chapter", "current", req.Chapter, "proposed", proposed)
	s.Chapter = next
	return nil
}

func (e *Engine) violation(log *slog.Logger, rule string, args ...any) {
	e.metrics.ProgressionViolation(rule)
	log.Warn("Progression corrected", append([]any{"rule", rule}, args...)...)
}

// endingFor builds the forced ending, keeping model copy when present.
func (e *Engine) endingFor(t state.EndingType, proposed *scene.Ending) *scene.Ending {
	out := &scene.Ending{Type: t}
	if proposed != nil {
		out.Title = proposed.Title
		out.Text = proposed.Text
	}
	if def, ok := e.scenario.Ending(t); ok {
		if out.Title == "" {
			out.Title = textfilter.Bound(def.Title, scene.MaxTitleLen)
		}
		if out.Text == "" {
			out.Text = textfilter.Bound(def.Text, scene.MaxTextLen)
		}
	}
	return out
}

func endingType(e *scene.Ending) string {
	if e == nil {
		return "none"
	}
	return string(e.Type)
}
