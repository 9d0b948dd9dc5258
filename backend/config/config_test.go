// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SKILLMATCH_STORE_DRIVER", "sqlite")
	t.Setenv("SKILLMATCH_SQLITE_PATH", "/tmp/x.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, 24*time.Hour, cfg.MatchTTL)
	assert.Equal(t, 5, cfg.KeyRetryMax)
	assert.Equal(t, 256, cfg.NotifyQueue)
	assert.False(t, cfg.SweepEnabled)
	assert.Equal(t, ":8081", cfg.HTTPAddr())
	assert.Len(t, cfg.AllowedOrigins, 3)
	assert.Error(t, cfg.RequireJWT())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SKILLMATCH_STORE_DRIVER", "postgres")
	t.Setenv("SKILLMATCH_DATABASE_URL", "postgres://localhost/skillmatch?sslmode=disable")
	t.Setenv("SKILLMATCH_MATCH_TTL", "2h")
	t.Setenv("SKILLMATCH_SWEEP_ENABLED", "true")
	t.Setenv("SKILLMATCH_JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, cfg.MatchTTL)
	assert.True(t, cfg.SweepEnabled)
	assert.NoError(t, cfg.RequireJWT())
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{StoreDriver: DriverDynamo, DynamoRegion: "eu-west-1", MatchTTL: time.Hour, KeyRetryMax: 3}
	}

	cases := map[string]func(*Config){
		"unknown driver":       func(c *Config) { c.StoreDriver = "mongo" },
		"postgres without dsn": func(c *Config) { c.StoreDriver = DriverPostgres },
		"sqlite without path":  func(c *Config) { c.StoreDriver = DriverSQLite },
		"zero ttl":             func(c *Config) { c.MatchTTL = 0 },
		"no key retries":       func(c *Config) { c.KeyRetryMax = 0 },
		"sweep without period": func(c *Config) { c.SweepEnabled = true },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}

	c := valid()
	assert.NoError(t, c.Validate())
}
