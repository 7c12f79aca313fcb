package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config holds runtime configuration for the feed bridge.
type Config struct {
	APIBaseURL     string        `env:"API_BASE_URL,default=http://localhost:8860"`
	APIToken       string        `env:"API_BEARER_TOKEN"`
	FeedURL        string        `env:"FEED_URL,default=https://siata.gov.co/data/siata_app/Pluviometrica.json"`
	MinInterval    time.Duration `env:"BRIDGE_MIN_INTERVAL,default=5m"`
	RequestTimeout time.Duration `env:"BRIDGE_REQUEST_TIMEOUT,default=30s"`
	ValueEpsilon   float64       `env:"BRIDGE_VALUE_EPSILON,default=0.01"`
	StateFile      string        `env:"BRIDGE_STATE_FILE,default=bridge-state.json"`
	PostAttempts   int           `env:"BRIDGE_POST_ATTEMPTS,default=3"`
	DryRun         bool          `env:"DRY_RUN,default=false"`
	LogLevel       string        `env:"LOG_LEVEL,default=info"`
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return cfg, fmt.Errorf("decode environment: %w", err)
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")

	if _, err := url.ParseRequestURI(cfg.APIBaseURL); err != nil {
		return cfg, fmt.Errorf("invalid API_BASE_URL: %w", err)
	}
	if _, err := url.ParseRequestURI(cfg.FeedURL); err != nil {
		return cfg, fmt.Errorf("invalid FEED_URL: %w", err)
	}
	if cfg.MinInterval < 0 {
		return cfg, fmt.Errorf("invalid BRIDGE_MIN_INTERVAL: %s", cfg.MinInterval)
	}
	if cfg.RequestTimeout <= 0 {
		return cfg, fmt.Errorf("invalid BRIDGE_REQUEST_TIMEOUT: %s", cfg.RequestTimeout)
	}
	if cfg.ValueEpsilon < 0 {
		return cfg, fmt.Errorf("invalid BRIDGE_VALUE_EPSILON: %v", cfg.ValueEpsilon)
	}
	if cfg.PostAttempts < 1 {
		cfg.PostAttempts = 1
	}
	return cfg, nil
}
