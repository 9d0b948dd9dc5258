// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/efchatnet/skillmatch/backend/config"
	"github.com/efchatnet/skillmatch/backend/events"
	"github.com/efchatnet/skillmatch/backend/storage"
	"github.com/efchatnet/skillmatch/backend/storage/dynamo"
	"github.com/efchatnet/skillmatch/backend/storage/postgres"
	redisstore "github.com/efchatnet/skillmatch/backend/storage/redis"
	"github.com/efchatnet/skillmatch/backend/storage/sqlite"
)

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return s, nil
	case config.DriverSQLite:
		return sqlite.Open(ctx, cfg.SQLitePath)
	case config.DriverDynamo:
		return dynamo.NewFromConfig(ctx, dynamo.Options{
			Region:      cfg.DynamoRegion,
			Endpoint:    cfg.DynamoEndpoint,
			TablePrefix: cfg.DynamoTablePrefix,
		})
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

// openFeed returns the Redis feed when REDIS_URL is set and the in-process
// bus otherwise. The client is nil for the in-process bus.
func openFeed(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storage.Feed, *redis.Client, func(), error) {
	if cfg.RedisURL == "" {
		bus := events.NewBus()
		log.Info().Msg("Using in-process conversation feed")
		return bus, nil, func() { _ = bus.Close() }, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := redisstore.Ping(ctx, rdb); err != nil {
		_ = rdb.Close()
		return nil, nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return redisstore.NewFeed(rdb, log), rdb, func() { _ = rdb.Close() }, nil
}
