package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sosodev/duration"
)

type AppConfig struct {
	Port string

	// MongoDB connection. An empty URI selects the in-memory store.
	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	// APIKeyHash is the bcrypt hash the ingestion Authorization header is checked against.
	APIKeyHash string

	// AllowedOrigin is the CORS origin for browser dashboards.
	AllowedOrigin string

	// Retention is how long readings are kept before eviction.
	Retention time.Duration
	// SweepInterval controls how often the in-memory store evicts expired readings.
	SweepInterval time.Duration

	// QueryConcurrency caps parallel store queries per request.
	QueryConcurrency int
	// QueryTimeout bounds each read request end to end.
	QueryTimeout time.Duration

	// Store circuit breaker.
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	LogLevel slog.Level
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.MongoURI = os.Getenv("MONGO_URI")
	cfg.MongoDatabase = getenvDefault("MONGO_DATABASE", "sensor_db")
	cfg.MongoCollection = getenvDefault("MONGO_COLLECTION", "sensor_reports")
	cfg.APIKeyHash = os.Getenv("API_KEY")
	cfg.AllowedOrigin = getenvDefault("ORIGIN", "*")

	var err error

	// Readings are kept for 32 days by default.
	if cfg.Retention, err = getenvDuration("RETENTION", "P32D"); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getenvDuration("SWEEP_INTERVAL", "PT15M"); err != nil {
		return nil, err
	}
	if cfg.QueryTimeout, err = getenvDuration("QUERY_TIMEOUT", "PT10S"); err != nil {
		return nil, err
	}
	if cfg.BreakerTimeout, err = getenvDuration("BREAKER_TIMEOUT", "PT30S"); err != nil {
		return nil, err
	}

	cfg.QueryConcurrency = getenvInt("QUERY_CONCURRENCY", 8)
	if cfg.QueryConcurrency <= 0 {
		return nil, fmt.Errorf("invalid QUERY_CONCURRENCY: must be positive")
	}
	failures := getenvInt("BREAKER_FAILURES", 5)
	if failures <= 0 {
		return nil, fmt.Errorf("invalid BREAKER_FAILURES: must be positive")
	}
	cfg.BreakerFailures = uint32(failures)

	if err := cfg.LogLevel.UnmarshalText([]byte(getenvDefault("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	return cfg, nil
}

// ParseDuration accepts ISO 8601 durations ("P32D", "PT15M") as well as Go
// duration strings ("15m").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(strings.ToUpper(s), "P") {
		d, err := duration.Parse(strings.ToUpper(s))
		if err != nil {
			return 0, err
		}
		return d.ToTimeDuration(), nil
	}
	return time.ParseDuration(s)
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
