// Package config provides environment-driven configuration for the doctrail
// server and the loader for tracking definition files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Storage backends.
const (
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

// Secret wraps a sensitive string to prevent accidental logging or marshalling.
type Secret string

// String implements fmt.Stringer, returning a redacted placeholder.
func (s Secret) String() string { return "[REDACTED]" }

// GoString implements fmt.GoStringer, returning a redacted placeholder.
func (s Secret) GoString() string { return "[REDACTED]" }

// MarshalText implements encoding.TextMarshaler, returning a redacted placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte("[REDACTED]"), nil }

// Value returns the underlying secret string.
func (s Secret) Value() string { return string(s) }

// Config holds all server configuration values.
type Config struct {
	Port           string
	ListenHost     string
	StorageBackend string
	BadgerPath     string
	DatabaseURL    Secret
	DBMaxConns     int
	CORSOrigins    []string
	LogLevel       string
	KafkaBrokers   string
	KafkaTopic     string
	TrackingConfig string
	FeedQueueSize  int

	// HistoryRetentionDays enables the periodic purge when positive.
	HistoryRetentionDays int

	// Requests per second and burst for identified actors, and for anonymous
	// callers keyed by remote IP.
	RateLimitRPS       float64
	RateLimitBurst     int
	AnonRateLimitRPS   float64
	AnonRateLimitBurst int

	// WSReplayLimit caps the reconnect backlog kept per scope;
	// WSReplayScopeLimits overrides it for named scopes.
	WSReplayLimit       int
	WSReplayScopeLimits map[string]int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           envOrDefault("PORT", "3040"),
		ListenHost:     envOrDefault("LISTEN_HOST", "127.0.0.1"),
		StorageBackend: strings.ToLower(envOrDefault("STORAGE_BACKEND", BackendBadger)),
		BadgerPath:     envOrDefault("BADGER_PATH", ""),
		DatabaseURL:    Secret(envOrDefault("DATABASE_URL", "")),
		LogLevel:       envOrDefault("LOG_LEVEL", "info"),
		KafkaBrokers:   envOrDefault("KAFKA_BROKERS", ""),
		KafkaTopic:     envOrDefault("KAFKA_TOPIC", "doctrail.history"),
		TrackingConfig: envOrDefault("TRACKING_CONFIG", ""),
	}

	var err error

	if cfg.DBMaxConns, err = envInt("DB_MAX_CONNS", 21); err != nil {
		return nil, err
	}

	if cfg.FeedQueueSize, err = envInt("FEED_QUEUE_SIZE", 1000); err != nil {
		return nil, err
	}

	if cfg.HistoryRetentionDays, err = envInt("HISTORY_RETENTION_DAYS", 0); err != nil {
		return nil, err
	}

	if err := cfg.loadLimits(); err != nil {
		return nil, err
	}

	origins := envOrDefault("CORS_ORIGINS", "http://localhost:3002")
	cfg.CORSOrigins = strings.Split(origins, ",")

	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Addr returns the listen address in host:port format.
func (c *Config) Addr() string {
	return c.ListenHost + ":" + c.Port
}

// KafkaEnabled reports whether committed records are published to Kafka.
func (c *Config) KafkaEnabled() bool {
	return c.KafkaBrokers != ""
}

func (c *Config) loadLimits() error {
	var err error

	if c.RateLimitRPS, err = envFloat("RATE_LIMIT_RPS", 100); err != nil {
		return err
	}

	if c.RateLimitBurst, err = envInt("RATE_LIMIT_BURST", 200); err != nil {
		return err
	}

	if c.AnonRateLimitRPS, err = envFloat("ANON_RATE_LIMIT_RPS", 20); err != nil {
		return err
	}

	if c.AnonRateLimitBurst, err = envInt("ANON_RATE_LIMIT_BURST", 40); err != nil {
		return err
	}

	if c.WSReplayLimit, err = envInt("WS_REPLAY_LIMIT", 1000); err != nil {
		return err
	}

	c.WSReplayScopeLimits, err = envScopeLimits("WS_REPLAY_SCOPE_LIMITS")

	return err
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}

	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}

	return f, nil
}

// envScopeLimits parses "Post=200,Invoice=50".
func envScopeLimits(key string) (map[string]int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil, nil
	}

	out := make(map[string]int)

	for _, pair := range strings.Split(v, ",") {
		scope, n, ok := strings.Cut(strings.TrimSpace(pair), "=")
		scope = strings.TrimSpace(scope)

		if !ok || scope == "" {
			return nil, fmt.Errorf("%s entry %q must be scope=limit", key, pair)
		}

		limit, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return nil, fmt.Errorf("%s limit for %s must be an integer: %w", key, scope, err)
		}

		out[scope] = limit
	}

	return out, nil
}
