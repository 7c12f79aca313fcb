package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds environment-driven settings for the REST API.
type Config struct {
	DatabaseURL         string        `env:"DATABASE_URL"`
	StoreDriver         string        `env:"STORE_DRIVER,default=postgres"`
	BindHost            string        `env:"BIND_HOST,default=0.0.0.0"`
	Port                int           `env:"PORT,default=8860"`
	BearerToken         string        `env:"API_BEARER_TOKEN"`
	DefaultLimit        int           `env:"API_DEFAULT_LIMIT,default=100"`
	StoreTimeout        time.Duration `env:"STORE_TIMEOUT,default=10s"`
	RetryAttempts       int           `env:"DB_RETRY_ATTEMPTS,default=5"`
	RetryDelay          time.Duration `env:"DB_RETRY_DELAY,default=5s"`
	AllowStartWithoutDB bool          `env:"ALLOW_START_WITHOUT_DB,default=true"`

	DeviceResolver        string `env:"DEVICE_RESOLVER,default=positional"`
	DevicePatternsFile    string `env:"DEVICE_PATTERNS_FILE"`
	DeviceFallbackPattern string `env:"DEVICE_FALLBACK_PATTERN,default=dispositivo%d"`
	ProjectorConcurrency  int    `env:"PROJECTOR_CONCURRENCY,default=4"`

	LogLevel string `env:"LOG_LEVEL,default=info"`
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load() // ignore missing file

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return cfg, fmt.Errorf("decode environment: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" && !c.AllowStartWithoutDB {
			return errors.New("DATABASE_URL is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("invalid STORE_DRIVER: %s", c.StoreDriver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}
	if c.DefaultLimit <= 0 {
		return fmt.Errorf("invalid API_DEFAULT_LIMIT: %d", c.DefaultLimit)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("invalid STORE_TIMEOUT: %s", c.StoreTimeout)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("invalid DB_RETRY_ATTEMPTS: %d", c.RetryAttempts)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("invalid DB_RETRY_DELAY: %s", c.RetryDelay)
	}
	switch c.DeviceResolver {
	case "positional", "name_pattern":
	default:
		return fmt.Errorf("invalid DEVICE_RESOLVER: %s", c.DeviceResolver)
	}
	if c.DeviceFallbackPattern != "" && !hasOneIntVerb(c.DeviceFallbackPattern) {
		return fmt.Errorf("invalid DEVICE_FALLBACK_PATTERN: %q needs exactly one %%d", c.DeviceFallbackPattern)
	}
	if c.ProjectorConcurrency < 1 {
		return fmt.Errorf("invalid PROJECTOR_CONCURRENCY: %d", c.ProjectorConcurrency)
	}
	return nil
}

// hasOneIntVerb reports whether pattern formats a single int and nothing else.
func hasOneIntVerb(pattern string) bool {
	stripped := strings.ReplaceAll(pattern, "%%", "")
	return strings.Count(stripped, "%") == 1 && strings.Count(stripped, "%d") == 1
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.BindHost, strconv.Itoa(c.Port))
}
