// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverDynamo   = "dynamo"
)

// Config is parsed from SKILLMATCH_ prefixed environment variables, for
// example SKILLMATCH_STORE_DRIVER or SKILLMATCH_JWT_SECRET.
type Config struct {
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`
	DatabaseURL string `envconfig:"DATABASE_URL" default:""`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"skillmatch.db"`

	DynamoRegion      string `envconfig:"DYNAMO_REGION" default:"us-east-1"`
	DynamoEndpoint    string `envconfig:"DYNAMO_ENDPOINT" default:""`
	DynamoTablePrefix string `envconfig:"DYNAMO_TABLE_PREFIX" default:"skillmatch-"`

	// Empty selects the in-process feed.
	RedisURL string `envconfig:"REDIS_URL" default:""`

	JWTSecret string `envconfig:"JWT_SECRET" default:""`
	JWTIssuer string `envconfig:"JWT_ISSUER" default:"efchat"`

	Port     int    `envconfig:"PORT" default:"8081"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	MatchTTL    time.Duration `envconfig:"MATCH_TTL" default:"24h"`
	KeyRetryMax int           `envconfig:"KEY_RETRY_MAX" default:"5"`
	NotifyQueue int           `envconfig:"NOTIFY_QUEUE" default:"256"`

	SweepEnabled  bool          `envconfig:"SWEEP_ENABLED" default:"false"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"10m"`
	SweepBatch    int           `envconfig:"SWEEP_BATCH" default:"100"`

	SynonymsPath   string   `envconfig:"SYNONYMS_PATH" default:""`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"https://efchat.net,https://app.efchat.net,http://localhost:3000"`
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("SKILLMATCH", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info().
		Str("store_driver", cfg.StoreDriver).
		Bool("database_url_present", cfg.DatabaseURL != "").
		Bool("redis", cfg.RedisURL != "").
		Str("jwt_issuer", cfg.JWTIssuer).
		Int("port", cfg.Port).
		Dur("match_ttl", cfg.MatchTTL).
		Bool("sweep_enabled", cfg.SweepEnabled).
		Msg("Configuration loaded")

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	case DriverDynamo:
		if c.DynamoRegion == "" {
			return fmt.Errorf("DYNAMO_REGION is required for the dynamo driver")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER: %q", c.StoreDriver)
	}
	if c.MatchTTL <= 0 {
		return fmt.Errorf("MATCH_TTL must be positive")
	}
	if c.KeyRetryMax < 1 {
		return fmt.Errorf("KEY_RETRY_MAX must be at least 1")
	}
	if c.SweepEnabled && c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive when sweeping is enabled")
	}
	return nil
}

// RequireJWT is checked by commands that serve HTTP.
func (c *Config) RequireJWT() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}
