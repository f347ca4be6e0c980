package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jwebster45206/divergence-engine/internal/config"
	"github.com/jwebster45206/divergence-engine/internal/engine"
	"github.com/jwebster45206/divergence-engine/internal/handlers"
	"github.com/jwebster45206/divergence-engine/internal/logger"
	"github.com/jwebster45206/divergence-engine/internal/metrics"
	"github.com/jwebster45206/divergence-engine/internal/middleware"
	"github.com/jwebster45206/divergence-engine/internal/services"
	"github.com/jwebster45206/divergence-engine/pkg/scenario"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Divergence Engine API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"llm_provider", cfg.LLMProvider,
		"model_name", cfg.ModelName,
		"progression_mode", cfg.ProgressionMode)

	sc, err := scenario.Default()
	if err != nil {
		log.Error("Failed to load scenario", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	generator, err := newGenerator(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to create model client", "error", err, "provider", cfg.LLMProvider)
		os.Exit(1)
	}
	if generator == nil {
		log.Warn("Model credential missing; every turn will fail until it is set", "env", cfg.APIKeyEnv())
	}

	m := metrics.New()

	var throttle *services.RedisThrottle
	if cfg.ThrottleEnabled() {
		throttle = services.NewRedisThrottle(cfg.RedisURL, cfg.TurnsPerMinute, log)
		redisCtx, redisCancel := context.WithTimeout(ctx, 30*time.Second)
		if err := throttle.WaitForConnection(redisCtx); err != nil {
			redisCancel()
			log.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		redisCancel()
		log.Info("Turn throttle enabled", "turns_per_minute", cfg.TurnsPerMinute)
	}

	e := engine.New(cfg, generator, sc, m, log)

	mux := http.NewServeMux()
	mux.Handle("/api/story", handlers.NewStoryHandler(e, throttleOrNil(throttle), m, log))
	mux.Handle("/health", handlers.NewHealthHandler(e, pingerOrNil(throttle), cfg.ModelName, log))
	mux.Handle("/metrics", m.Handler())

	handler := middleware.Chain(mux, middleware.Logger(log), middleware.CORS(cfg.AllowedOrigin))
	// a turn may wait on the model for the full MODEL_TIMEOUT
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ModelTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	if throttle != nil {
		if err := throttle.Close(); err != nil {
			log.Error("Error closing Redis connection", "error", err)
		}
	}

	log.Info("Server exited")
}

// newGenerator returns the model client for the configured provider, or nil
// when its credential is missing.
func newGenerator(ctx context.Context, cfg *config.Config, log *slog.Logger) (services.SceneGenerator, error) {
	key := cfg.APIKey()
	if key == "" {
		return nil, nil
	}

	switch cfg.LLMProvider {
	case config.ProviderGemini:
		g, err := services.NewGeminiGenerator(ctx, key, cfg.ModelName, cfg.ModelBaseURL, log)
		if err != nil {
			return nil, err
		}
		return g, nil
	case config.ProviderOpenAI:
		return services.NewOpenAIGenerator(key, cfg.ModelName, cfg.ModelBaseURL, log), nil
	case config.ProviderAnthropic:
		return services.NewAnthropicGenerator(key, cfg.ModelName, cfg.ModelBaseURL, log), nil
	default:
		return nil, errors.New("unsupported provider " + cfg.LLMProvider)
	}
}

// The handlers take interfaces; a nil *RedisThrottle must become a nil
// interface so they see the throttle as disabled.
func throttleOrNil(t *services.RedisThrottle) services.Throttle {
	if t == nil {
		return nil
	}
	return t
}

func pingerOrNil(t *services.RedisThrottle) handlers.Pinger {
	if t == nil {
		return nil
	}
	return t
}
