package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

func (c *Config) validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}

	if err := c.validateNetwork(); err != nil {
		return err
	}

	if err := c.validateCORS(); err != nil {
		return err
	}

	if err := c.validateFeed(); err != nil {
		return err
	}

	if err := c.validateLimits(); err != nil {
		return err
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}

	if c.TrackingConfig == "" {
		return fmt.Errorf("TRACKING_CONFIG is required")
	}

	if c.HistoryRetentionDays < 0 {
		return fmt.Errorf("HISTORY_RETENTION_DAYS must not be negative")
	}

	return nil
}

func (c *Config) validateStorage() error {
	switch c.StorageBackend {
	case BackendBadger:
		return nil
	case BackendPostgres:
		return c.validateDatabase()
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", BackendBadger, BackendPostgres, c.StorageBackend)
	}
}

func (c *Config) validateDatabase() error {
	if c.DatabaseURL.Value() == "" {
		return fmt.Errorf("DATABASE_URL is required for the postgres backend")
	}

	dbURL, err := url.Parse(c.DatabaseURL.Value())
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}

	if dbURL.Scheme != "postgres" && dbURL.Scheme != "postgresql" {
		return fmt.Errorf("DATABASE_URL scheme must be postgres:// or postgresql://")
	}

	if dbURL.Hostname() == "" {
		return fmt.Errorf("DATABASE_URL must include a host")
	}

	dbHost := dbURL.Hostname()
	if !isLoopback(dbHost) && dbURL.Query().Get("sslmode") == "disable" {
		return fmt.Errorf("DATABASE_URL sslmode=disable is not allowed for non-local host %q", dbHost)
	}

	if c.DBMaxConns < 1 || c.DBMaxConns > 200 {
		return fmt.Errorf("DB_MAX_CONNS must be between 1 and 200")
	}

	return nil
}

func (c *Config) validateNetwork() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid integer: %w", err)
	}

	if port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}

	// Loopback for local deployments, any-address for containers where the
	// network boundary is enforced externally.
	validHosts := map[string]bool{
		"127.0.0.1": true,
		"::1":       true,
		"localhost": true,
		"0.0.0.0":   true,
		"::":        true,
	}
	if !validHosts[c.ListenHost] {
		return fmt.Errorf("LISTEN_HOST must be a loopback address or 0.0.0.0/:: for containers (got %q)", c.ListenHost)
	}

	return nil
}

func (c *Config) validateCORS() error {
	for _, origin := range c.CORSOrigins {
		if origin == "*" {
			return fmt.Errorf("CORS_ORIGINS must not contain wildcard '*'")
		}
		if strings.ContainsAny(origin, "*?[]") {
			return fmt.Errorf("CORS_ORIGINS must not contain glob characters (*?[]), got %q", origin)
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("CORS_ORIGINS contains invalid origin %q (must have scheme and host)", origin)
		}
	}

	return nil
}

func (c *Config) validateFeed() error {
	if c.FeedQueueSize < 1 || c.FeedQueueSize > 1_000_000 {
		return fmt.Errorf("FEED_QUEUE_SIZE must be between 1 and 1000000")
	}

	if c.KafkaEnabled() && strings.TrimSpace(c.KafkaTopic) == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return nil
}

const maxReplayLimit = 100_000

func (c *Config) validateLimits() error {
	if c.RateLimitRPS <= 0 || c.AnonRateLimitRPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and ANON_RATE_LIMIT_RPS must be positive")
	}

	if c.RateLimitBurst < 1 || c.AnonRateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_BURST and ANON_RATE_LIMIT_BURST must be at least 1")
	}

	if c.WSReplayLimit < 1 || c.WSReplayLimit > maxReplayLimit {
		return fmt.Errorf("WS_REPLAY_LIMIT must be between 1 and %d", maxReplayLimit)
	}

	for scope, n := range c.WSReplayScopeLimits {
		if n < 1 || n > maxReplayLimit {
			return fmt.Errorf("WS_REPLAY_SCOPE_LIMITS limit for %s must be between 1 and %d", scope, maxReplayLimit)
		}
	}

	return nil
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
