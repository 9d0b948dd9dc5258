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
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/efchatnet/skillmatch/backend/config"
	"github.com/efchatnet/skillmatch/backend/integration"
	"github.com/efchatnet/skillmatch/backend/logger"
	"github.com/efchatnet/skillmatch/backend/metrics"
	"github.com/efchatnet/skillmatch/backend/middleware"
	"github.com/efchatnet/skillmatch/backend/skills"
	"github.com/efchatnet/skillmatch/backend/sweeper"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.RequireJWT(); err != nil {
				return err
			}
			log := logger.New("skillmatch", cfg.LogLevel)
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	feed, rdb, closeFeed, err := openFeed(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeFeed()

	matcher := skills.Default
	if cfg.SynonymsPath != "" {
		extra, err := skills.LoadSynonyms(cfg.SynonymsPath)
		if err != nil {
			return err
		}
		matcher = skills.NewMatcher(extra)
		log.Info().Int("entries", len(extra)).Str("path", cfg.SynonymsPath).Msg("Loaded extra skill synonyms")
	}

	sm, err := integration.New(&integration.Config{
		Store:          store,
		Feed:           feed,
		Redis:          rdb,
		Matcher:        matcher,
		MatchTTL:       cfg.MatchTTL,
		KeyRetryMax:    cfg.KeyRetryMax,
		NotifyQueue:    cfg.NotifyQueue,
		JWTSecret:      cfg.JWTSecret,
		JWTIssuer:      cfg.JWTIssuer,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         log,
	})
	if err != nil {
		return err
	}
	defer sm.Close()

	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(log))
	r.HandleFunc("/health", sm.HealthHandler).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")
	sm.RegisterRoutes(r, nil)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           middleware.CORS(cfg.AllowedOrigins)(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("jwt_issuer", cfg.JWTIssuer).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("Server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.SweepEnabled {
		w := sweeper.New(store, log, cfg.SweepInterval, cfg.SweepBatch)
		g.Go(func() error { return w.Run(gctx) })
	}
	return g.Wait()
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the store schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.New("skillmatch", cfg.LogLevel)
			// Opening a store applies its schema.
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			log.Info().Str("store_driver", cfg.StoreDriver).Msg("Schema is up to date")
			return store.Close()
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire silent matches past their expiry once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.New("skillmatch", cfg.LogLevel)
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := sweeper.New(store, log, cfg.SweepInterval, cfg.SweepBatch).ProcessOnce(cmd.Context())
			if err != nil {
				return err
			}
			log.Info().Int("expired", n).Msg("Sweep finished")
			return nil
		},
	}
}
