// Package config loads server configuration from HOTSTORE_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/alfredjeanlab/hotstore/internal/eventstore"
)

// EnvPrefix is prepended to every variable name below.
const EnvPrefix = "HOTSTORE_"

// Backend names.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	Backend     string        `env:"BACKEND" envDefault:"redis"` // redis, postgres or memory
	RedisURL    string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	DatabaseURL string        `env:"DATABASE_URL"` // required for postgres
	LogKey      string        `env:"LOG_KEY" envDefault:"events:recent"`
	DialTimeout time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`

	MaxEvents       int           `env:"MAX_EVENTS" envDefault:"2500"`
	MaxRetrievals   int           `env:"MAX_RETRIEVALS" envDefault:"500"`
	RetrievalMaxAge time.Duration `env:"RETRIEVAL_MAX_AGE" envDefault:"12h"`

	GRPCAddr  string `env:"GRPC_ADDR" envDefault:":9090"`
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":8080"`
	NATSURL   string `env:"NATS_URL"`   // empty = no NATS publishing
	AuthToken string `env:"AUTH_TOKEN"` // empty = auth disabled

	// Rehydration
	RehydrateInterval   time.Duration `env:"REHYDRATE_INTERVAL" envDefault:"5m"` // 0 = disabled
	RehydrateS3Bucket   string        `env:"REHYDRATE_S3_BUCKET"`                // enables S3 when set
	RehydrateS3Endpoint string        `env:"REHYDRATE_S3_ENDPOINT"`              // custom endpoint for MinIO
	RehydrateS3Region   string        `env:"REHYDRATE_S3_REGION" envDefault:"us-east-1"`
	RehydrateS3Key      string        `env:"REHYDRATE_S3_KEY" envDefault:"hotstore/events.jsonl"`
	RehydrateFile       string        `env:"REHYDRATE_FILE"` // enables the local file source when set

	LogFormat        string        `env:"LOG_FORMAT" envDefault:"text"` // text, json or pretty
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFile          string        `env:"LOG_FILE"` // also write JSON logs here when set
	OTelEndpoint     string        `env:"OTEL_ENDPOINT"` // empty = tracing disabled
	BotIdleThreshold time.Duration `env:"BOT_IDLE_THRESHOLD" envDefault:"15m"`
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	c := &Config{}
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks cross-field constraints that env tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New(EnvPrefix+"REDIS_URL is required for the redis backend"))
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New(EnvPrefix+"DATABASE_URL is required for the postgres backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("%sBACKEND: unknown backend %q", EnvPrefix, c.Backend))
	}
	if c.LogKey == "" {
		errs = append(errs, errors.New(EnvPrefix+"LOG_KEY must not be empty"))
	}
	if c.MaxEvents < 1 {
		errs = append(errs, fmt.Errorf("%sMAX_EVENTS must be positive, got %d", EnvPrefix, c.MaxEvents))
	}
	if c.MaxRetrievals < 0 {
		errs = append(errs, fmt.Errorf("%sMAX_RETRIEVALS must not be negative, got %d", EnvPrefix, c.MaxRetrievals))
	}
	if c.RetrievalMaxAge <= 0 {
		errs = append(errs, fmt.Errorf("%sRETRIEVAL_MAX_AGE must be positive, got %s", EnvPrefix, c.RetrievalMaxAge))
	}
	if c.RehydrateInterval < 0 {
		errs = append(errs, fmt.Errorf("%sREHYDRATE_INTERVAL must not be negative", EnvPrefix))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json", "pretty":
	default:
		errs = append(errs, fmt.Errorf("%sLOG_FORMAT: unknown format %q", EnvPrefix, c.LogFormat))
	}
	return errors.Join(errs...)
}

// Limits returns the event store limits.
func (c *Config) Limits() eventstore.Limits {
	return eventstore.Limits{
		MaxEvents:       c.MaxEvents,
		MaxRetrievals:   c.MaxRetrievals,
		RetrievalMaxAge: c.RetrievalMaxAge,
	}
}

// RehydrateEnabled reports whether any rehydration source is configured.
func (c *Config) RehydrateEnabled() bool {
	return c.RehydrateInterval > 0 && (c.RehydrateS3Bucket != "" || c.RehydrateFile != "")
}
