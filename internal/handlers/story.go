package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/jwebster45206/divergence-engine/internal/engine"
	"github.com/jwebster45206/divergence-engine/internal/metrics"
	"github.com/jwebster45206/divergence-engine/internal/middleware"
	"github.com/jwebster45206/divergence-engine/internal/services"
	"github.com/jwebster45206/divergence-engine/pkg/scene"
	"github.com/jwebster45206/divergence-engine/pkg/turn"
)

// MaxBodyBytes bounds the size of a turn request body.
const MaxBodyBytes = 64 << 10

// SceneEngine produces the next scene for a turn.
type SceneEngine interface {
	NextScene(ctx context.Context, req turn.Request) (scene.Scene, error)
}

// StoryHandler serves /api/story.
type StoryHandler struct {
	engine   SceneEngine
	throttle services.Throttle
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewStoryHandler creates the turn handler. throttle and m may be nil.
func NewStoryHandler(e SceneEngine, throttle services.Throttle, m *metrics.Metrics, logger *slog.Logger) *StoryHandler {
	return &StoryHandler{
		engine:   e,
		throttle: throttle,
		metrics:  m,
		logger:   logger,
	}
}

func (h *StoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := middleware.LoggerFrom(r.Context(), h.logger)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet:
		writeJSON(w, log, http.StatusOK, turn.Hint{OK: true, Hint: "POST /api/story"})
		return
	case http.MethodPost:
	default:
		log.Warn("Method not allowed for story endpoint", "method", r.Method, "remote_addr", r.RemoteAddr)
		writeJSON(w, log, http.StatusMethodNotAllowed, turn.ErrorResponse{Error: "Use POST"})
		return
	}

	req, err := turn.Decode(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		h.fail(w, log, engine.InvalidRequest(err))
		return
	}

	if err := h.allow(r); err != nil {
		h.fail(w, log, err)
		return
	}

	s, err := h.engine.NextScene(r.Context(), req)
	if err != nil {
		h.fail(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, s)
}

// allow charges one turn to the caller. A throttle that cannot reach Redis
// lets the turn through.
func (h *StoryHandler) allow(r *http.Request) error {
	if h.throttle == nil {
		return nil
	}
	err := h.throttle.Allow(r.Context(), clientID(r))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, services.ErrThrottled):
		h.metrics.Throttled()
		return engine.RateLimited(err)
	default:
		middleware.LoggerFrom(r.Context(), h.logger).Warn("Throttle unavailable", "error", err)
		return nil
	}
}

func (h *StoryHandler) fail(w http.ResponseWriter, log *slog.Logger, err error) {
	ee := engine.AsError(err)
	if ee.Kind == engine.KindInvalidRequest || ee.Kind == engine.KindRateLimited {
		h.metrics.TurnFailed(string(ee.Kind))
		log.Warn("Turn rejected", "kind", ee.Kind, "detail", ee.Detail)
	}
	writeJSON(w, log, ee.Status(), ee.Response())
}

func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Error encoding response", "error", err, "status", status)
	}
}
