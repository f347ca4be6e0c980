package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Service    string            `json:"service"`
	Model      string            `json:"model,omitempty"`
	Components map[string]string `json:"components"`
}

// Readiness reports whether a model client is configured.
type Readiness interface {
	Ready() bool
}

// Pinger is satisfied by the Redis throttle.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	engine    Readiness
	redis     Pinger
	modelName string
	logger    *slog.Logger
}

// NewHealthHandler creates the health handler. redis is nil when the
// throttle is disabled.
func NewHealthHandler(engine Readiness, redis Pinger, modelName string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		engine:    engine,
		redis:     redis,
		modelName: modelName,
		logger:    logger,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("Health check requested",
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := make(map[string]string)
	overallStatus := "healthy"

	if h.engine != nil && h.engine.Ready() {
		components["model"] = "configured"
	} else {
		components["model"] = "missing"
		overallStatus = "degraded"
	}

	if h.redis == nil {
		components["redis"] = "disabled"
	} else if err := h.redis.Ping(ctx); err != nil {
		h.logger.Warn("Redis health check failed", "error", err)
		components["redis"] = "unhealthy"
		overallStatus = "degraded"
	} else {
		components["redis"] = "healthy"
	}

	response := HealthResponse{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Service:    "divergence-engine",
		Model:      h.modelName,
		Components: components,
	}

	statusCode := http.StatusOK
	if overallStatus != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, h.logger, statusCode, response)
}
