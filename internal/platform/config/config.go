// Package config loads certflow settings from the environment, optionally
// seeded by a .env file in development.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full runtime configuration.
type Config struct {
	Environment string `env:"CERTFLOW_ENV" envDefault:"development"`
	LogLevel    string `env:"CERTFLOW_LOG_LEVEL" envDefault:"info"`

	Server    Server
	Database  Database
	Redis     RedisConfig
	Kafka     Kafka
	Webhook   Webhook
	Scheduler Scheduler
	Tracing   Tracing
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"CERTFLOW_ADDR" envDefault:":8080"`
	JWTSigningKey   string        `env:"CERTFLOW_JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer       string        `env:"CERTFLOW_JWT_ISSUER" envDefault:"certflow"`
	JWTAudience     string        `env:"CERTFLOW_JWT_AUDIENCE" envDefault:"certflow-api"`
	ShutdownTimeout time.Duration `env:"CERTFLOW_SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// Database selects the Postgres repository. Empty URL means in-memory.
type Database struct {
	URL          string `env:"CERTFLOW_DATABASE_URL"`
	MaxOpenConns int    `env:"CERTFLOW_DATABASE_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns int    `env:"CERTFLOW_DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	Migrate      bool   `env:"CERTFLOW_DATABASE_MIGRATE" envDefault:"true"`
}

// RedisConfig enables the Redis-backed notification ledger when URL is set.
type RedisConfig struct {
	URL          string        `env:"CERTFLOW_REDIS_URL"`
	PoolSize     int           `env:"CERTFLOW_REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"CERTFLOW_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"CERTFLOW_REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"CERTFLOW_REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"CERTFLOW_REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// Kafka enables forwarding audit events when Brokers is non-empty.
type Kafka struct {
	Brokers           []string `env:"CERTFLOW_KAFKA_BROKERS" envSeparator:","`
	Topic             string   `env:"CERTFLOW_KAFKA_AUDIT_TOPIC" envDefault:"certflow.audit"`
	Partitions        int32    `env:"CERTFLOW_KAFKA_PARTITIONS" envDefault:"3"`
	ReplicationFactor int16    `env:"CERTFLOW_KAFKA_REPLICATION_FACTOR" envDefault:"1"`
}

// Webhook configures outbound notification delivery. Empty URL logs instead.
type Webhook struct {
	URL          string        `env:"CERTFLOW_WEBHOOK_URL"`
	Timeout      time.Duration `env:"CERTFLOW_WEBHOOK_TIMEOUT" envDefault:"5s"`
	MaxRetries   int           `env:"CERTFLOW_WEBHOOK_MAX_RETRIES" envDefault:"2"`
	RatePerSec   float64       `env:"CERTFLOW_WEBHOOK_RATE" envDefault:"20"`
	Burst        int           `env:"CERTFLOW_WEBHOOK_BURST" envDefault:"10"`
	SharedSecret string        `env:"CERTFLOW_WEBHOOK_SECRET"`
}

// Scheduler tunes the periodic sweep.
type Scheduler struct {
	Enabled       bool          `env:"CERTFLOW_SWEEP_ENABLED" envDefault:"true"`
	Interval      time.Duration `env:"CERTFLOW_SWEEP_INTERVAL" envDefault:"1h"`
	Workers       int           `env:"CERTFLOW_SWEEP_WORKERS" envDefault:"8"`
	SweepTimeout  time.Duration `env:"CERTFLOW_SWEEP_TIMEOUT" envDefault:"10m"`
	RecordTimeout time.Duration `env:"CERTFLOW_SWEEP_RECORD_TIMEOUT" envDefault:"15s"`
}

// Tracing exports spans over OTLP/HTTP when Endpoint is set.
type Tracing struct {
	Endpoint    string `env:"CERTFLOW_OTEL_ENDPOINT"`
	ServiceName string `env:"CERTFLOW_OTEL_SERVICE_NAME" envDefault:"certflow"`
}

// Load reads an optional .env file (CERTFLOW_ENV_FILE or ./.env) and then
// parses the environment. Variables already set win over the file.
func Load() (*Config, error) {
	path := os.Getenv("CERTFLOW_ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return FromEnv()
}

// FromEnv parses the process environment only.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Scheduler.Workers < 1 {
		return errors.New("config: CERTFLOW_SWEEP_WORKERS must be at least 1")
	}
	if c.Scheduler.Interval <= 0 {
		return errors.New("config: CERTFLOW_SWEEP_INTERVAL must be positive")
	}
	if c.Scheduler.RecordTimeout <= 0 || c.Scheduler.SweepTimeout <= 0 {
		return errors.New("config: sweep timeouts must be positive")
	}
	if c.IsProduction() && c.Server.JWTSigningKey == "dev-secret-key-change-in-production" {
		return errors.New("config: CERTFLOW_JWT_SIGNING_KEY must be set in production")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
