package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port        string     `env:"PORT"        envDefault:"8080"`
	Environment string     `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    slog.Level
	RawLogLevel string     `env:"LOG_LEVEL"   envDefault:"info"`

	RedisURL string `env:"REDIS_URL" envDefault:"localhost:6379"`

	OpenAIAPIKey      string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL     string        `env:"OPENAI_BASE_URL"`
	ModelName         string        `env:"AI_MODEL"            envDefault:"gpt-4o"`
	AITimeout         time.Duration `env:"AI_TIMEOUT"          envDefault:"30s"`
	SkipKeyValidation bool          `env:"SKIP_KEY_VALIDATION" envDefault:"false"`
	ContentRating     string        `env:"CONTENT_RATING"      envDefault:"PG13"`

	StoryFile   string `env:"STORY_FILE"`
	PersonaFile string `env:"PERSONA_FILE"`

	MaxSaveSlots     int           `env:"MAX_SAVE_SLOTS"    envDefault:"3"`
	SessionTTL       time.Duration `env:"SESSION_TTL"       envDefault:"24h"`
	HistoryExchanges int           `env:"HISTORY_EXCHANGES" envDefault:"20"`

	SessionLockTTL time.Duration `env:"SESSION_LOCK_TTL" envDefault:"30s"`
	WorkerID       string        `env:"WORKER_ID"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = parseLogLevel(cfg.RawLogLevel)

	if cfg.MaxSaveSlots < 1 {
		return nil, fmt.Errorf("MAX_SAVE_SLOTS must be at least 1, got %d", cfg.MaxSaveSlots)
	}
	if cfg.HistoryExchanges < 1 {
		return nil, fmt.Errorf("HISTORY_EXCHANGES must be at least 1, got %d", cfg.HistoryExchanges)
	}
	return &cfg, nil
}

// HasCredential reports whether a text-generation key is configured.
func (c *Config) HasCredential() bool {
	return c.OpenAIAPIKey != ""
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
