// Package config provides environment-aware configuration loading for the
// dispatch service: database, transport, saga, outbox, and audit tunables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// Config holds all dispatch service configuration. The yaml and env struct
// tags let Load layer an optional config file and tagged environment
// variables on top of the defaults applied by loadFromEnv, the same
// file-then-env cascade the teacher's pkg/config uses.
type Config struct {
	Env Environment `yaml:"env" env:"DISPATCH_ENV"`

	// HTTP
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`

	// Database
	DatabaseURL      string        `yaml:"database_url" env:"DATABASE_URL"`
	DBMaxConnections int           `yaml:"db_max_connections" env:"DB_MAX_CONNECTIONS"`
	DBIdleTimeout    time.Duration `yaml:"db_idle_timeout" env:"DB_IDLE_TIMEOUT"`

	// Redis (idempotency store, rate-limit state)
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB"`

	// Security
	JWTSecret string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	JWTExpiry time.Duration `yaml:"jwt_expiry" env:"JWT_EXPIRY"`

	// Outbox
	OutboxPollInterval time.Duration `yaml:"outbox_poll_interval" env:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `yaml:"outbox_batch_size" env:"OUTBOX_BATCH_SIZE"`
	OutboxMaxRetries   int           `yaml:"outbox_max_retries" env:"OUTBOX_MAX_RETRIES"`
	OutboxRetryBackoff time.Duration `yaml:"outbox_retry_backoff" env:"OUTBOX_RETRY_BACKOFF"`

	// Saga
	SagaTimeoutPollInterval time.Duration `yaml:"saga_timeout_poll_interval" env:"SAGA_TIMEOUT_POLL_INTERVAL"`
	SagaTimeoutBatchSize    int           `yaml:"saga_timeout_batch_size" env:"SAGA_TIMEOUT_BATCH_SIZE"`
	// SagaCacheUseLocal selects the in-process saga state cache; false
	// selects the distributed Redis-backed overlay instead, for
	// multi-instance coordinator deployments.
	SagaCacheUseLocal bool `yaml:"saga_cache_use_local" env:"SAGA_CACHE_USE_LOCAL"`

	// Audit
	AuditRetentionPeriod time.Duration `yaml:"audit_retention_period" env:"AUDIT_RETENTION_PERIOD"`
	AuditCleanupInterval time.Duration `yaml:"audit_cleanup_interval" env:"AUDIT_CLEANUP_INTERVAL"`
	AuditRetentionBatch  int           `yaml:"audit_retention_batch" env:"AUDIT_RETENTION_BATCH"`
	AuditMaxAlertsPerMin int           `yaml:"audit_max_alerts_per_minute" env:"AUDIT_MAX_ALERTS_PER_MINUTE"`

	// Logging
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT"`

	// Features
	MetricsEnabled bool `yaml:"metrics_enabled" env:"METRICS_ENABLED"`
	MetricsPort    int  `yaml:"metrics_port" env:"METRICS_PORT"`
}

// Load loads configuration based on the DISPATCH_ENV environment variable,
// layering three sources in increasing precedence: the hardcoded defaults
// and manual environment parsing in loadFromEnv, an optional YAML config
// file (CONFIG_FILE, or config/<env>.yaml when unset), and finally a
// struct-tag environment decode via envdecode so a field's env var always
// wins over a value supplied by the file.
func Load() (*Config, error) {
	envStr := os.Getenv("DISPATCH_ENV")
	if envStr == "" {
		envStr = string(Development)
	}

	env, ok := parseEnvironment(envStr)
	if !ok {
		return nil, fmt.Errorf("invalid DISPATCH_ENV: %s (must be development, testing, or production)", envStr)
	}

	configFile := filepath.Join("config", fmt.Sprintf("%s.env", env))
	if err := godotenv.Load(configFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Printf("Warning: Could not load %s: %v\n", configFile, err)
		}
	}

	cfg := &Config{Env: env}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	yamlPath := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if yamlPath == "" {
		yamlPath = filepath.Join("config", fmt.Sprintf("%s.yaml", env))
	}
	if err := loadFromFile(yamlPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", yamlPath, err)
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode returns an error when none of the tagged fields have a
		// matching environment variable set; treat that as "no overrides"
		// so a deployment can rely entirely on the file and defaults.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile layers path's YAML document onto cfg, leaving cfg untouched
// when the file does not exist.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func parseEnvironment(raw string) (Environment, bool) {
	switch Environment(strings.ToLower(strings.TrimSpace(raw))) {
	case Development, Testing, Production:
		return Environment(strings.ToLower(strings.TrimSpace(raw))), true
	default:
		return Development, false
	}
}

func (c *Config) loadFromEnv() error {
	c.HTTPPort = getIntEnv("HTTP_PORT", 8080)

	c.DatabaseURL = getEnv("DATABASE_URL", "")
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	c.DBMaxConnections = getIntEnv("DB_MAX_CONNECTIONS", 20)
	var err error
	c.DBIdleTimeout, err = getDurationEnv("DB_IDLE_TIMEOUT", 5*time.Minute)
	if err != nil {
		return err
	}

	c.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	c.RedisPassword = getEnv("REDIS_PASSWORD", "")
	c.RedisDB = getIntEnv("REDIS_DB", 0)

	c.JWTSecret = getEnv("JWT_SECRET", "")
	if c.JWTSecret == "" && c.Env == Production {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	c.JWTExpiry, err = getDurationEnv("JWT_EXPIRY", time.Hour)
	if err != nil {
		return err
	}

	c.OutboxPollInterval, err = getDurationEnv("OUTBOX_POLL_INTERVAL", 2*time.Second)
	if err != nil {
		return err
	}
	c.OutboxBatchSize = getIntEnv("OUTBOX_BATCH_SIZE", 100)
	c.OutboxMaxRetries = getIntEnv("OUTBOX_MAX_RETRIES", 5)
	c.OutboxRetryBackoff, err = getDurationEnv("OUTBOX_RETRY_BACKOFF", 30*time.Second)
	if err != nil {
		return err
	}

	c.SagaTimeoutPollInterval, err = getDurationEnv("SAGA_TIMEOUT_POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return err
	}
	c.SagaTimeoutBatchSize = getIntEnv("SAGA_TIMEOUT_BATCH_SIZE", 50)
	c.SagaCacheUseLocal = getBoolEnv("SAGA_CACHE_USE_LOCAL", true)

	c.AuditRetentionPeriod, err = getDurationEnv("AUDIT_RETENTION_PERIOD", 7*365*24*time.Hour)
	if err != nil {
		return err
	}
	c.AuditCleanupInterval, err = getDurationEnv("AUDIT_CLEANUP_INTERVAL", 24*time.Hour)
	if err != nil {
		return err
	}
	c.AuditRetentionBatch = getIntEnv("AUDIT_RETENTION_BATCH", 10000)
	c.AuditMaxAlertsPerMin = getIntEnv("AUDIT_MAX_ALERTS_PER_MINUTE", 60)

	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.LogFormat = getEnv("LOG_FORMAT", "json")

	c.MetricsEnabled = getBoolEnv("METRICS_ENABLED", c.Env != Production)
	c.MetricsPort = getIntEnv("METRICS_PORT", 9090)

	return nil
}

func (c *Config) IsDevelopment() bool { return c.Env == Development }
func (c *Config) IsTesting() bool     { return c.Env == Testing }
func (c *Config) IsProduction() bool  { return c.Env == Production }

// Validate applies production-hardening checks beyond what loadFromEnv
// already enforces at load time.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP_PORT: %d", c.HTTPPort)
	}
	if c.MetricsPort < 1 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid METRICS_PORT: %d", c.MetricsPort)
	}
	if c.IsProduction() {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if c.OutboxMaxRetries < 1 {
			return fmt.Errorf("OUTBOX_MAX_RETRIES must be positive in production")
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
