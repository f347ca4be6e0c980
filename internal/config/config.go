package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Supported model providers.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Progression enforcement modes.
const (
	ProgressionClamp  = "clamp"
	ProgressionReject = "reject"
)

var defaultModels = map[string]string{
	ProviderGemini:    "gemini-2.0-flash",
	ProviderOpenAI:    "gpt-4o-mini",
	ProviderAnthropic: "claude-3-5-haiku-latest",
}

type Config struct {
	Port            string        `env:"PORT"              envDefault:"8080"`
	Environment     string        `env:"ENVIRONMENT"       envDefault:"development"`
	LogLevelName    string        `env:"LOG_LEVEL"         envDefault:"info"`
	LLMProvider     string        `env:"LLM_PROVIDER"      envDefault:"gemini"`
	ModelName       string        `env:"MODEL_NAME"`
	GeminiAPIKey    string        `env:"GEMINI_API_KEY"`
	OpenAIAPIKey    string        `env:"OPENAI_API_KEY"`
	AnthropicAPIKey string        `env:"ANTHROPIC_API_KEY"`
	ModelBaseURL    string        `env:"MODEL_BASE_URL"`
	ModelTimeout    time.Duration `env:"MODEL_TIMEOUT"     envDefault:"60s"`
	RedisURL        string        `env:"REDIS_URL"`
	TurnsPerMinute  int           `env:"TURNS_PER_MINUTE"  envDefault:"30"`
	ProgressionMode string        `env:"PROGRESSION_MODE"  envDefault:"clamp"`
	AllowedOrigin   string        `env:"ALLOWED_ORIGIN"    envDefault:"*"`

	LogLevel slog.Level // derived from LogLevelName
}

// Load parses the configuration from the environment. A missing model
// credential is not an error here; the server starts and reports it per
// request.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	cfg.ProgressionMode = strings.ToLower(strings.TrimSpace(cfg.ProgressionMode))
	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)
	if cfg.ModelName == "" {
		cfg.ModelName = defaultModels[cfg.LLMProvider]
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values that would otherwise fail much later.
func (c *Config) Validate() error {
	if _, ok := defaultModels[c.LLMProvider]; !ok {
		return fmt.Errorf("invalid LLM_PROVIDER %q: supported providers are gemini, openai, anthropic", c.LLMProvider)
	}
	switch c.ProgressionMode {
	case ProgressionClamp, ProgressionReject:
	default:
		return fmt.Errorf("invalid PROGRESSION_MODE %q: must be clamp or reject", c.ProgressionMode)
	}
	if c.ModelTimeout <= 0 {
		return fmt.Errorf("MODEL_TIMEOUT must be positive")
	}
	if c.TurnsPerMinute <= 0 {
		return fmt.Errorf("TURNS_PER_MINUTE must be positive")
	}
	return nil
}

// APIKey returns the credential for the configured provider.
func (c *Config) APIKey() string {
	switch c.LLMProvider {
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	case ProviderAnthropic:
		return c.AnthropicAPIKey
	default:
		return c.GeminiAPIKey
	}
}

// APIKeyEnv names the environment variable holding the provider credential.
func (c *Config) APIKeyEnv() string {
	return strings.ToUpper(c.LLMProvider) + "_API_KEY"
}

// ThrottleEnabled reports whether a Redis URL was configured.
func (c *Config) ThrottleEnabled() bool {
	return c.RedisURL != ""
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
