// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package sweeper moves stale, silent matches to EXPIRED. It runs apart
// from every read path.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/efchatnet/skillmatch/backend/metrics"
	"github.com/efchatnet/skillmatch/backend/models"
	"github.com/efchatnet/skillmatch/backend/storage"
)

var errSkip = errors.New("match no longer eligible")

type Worker struct {
	store    storage.MatchStore
	log      zerolog.Logger
	interval time.Duration
	batch    int
	now      func() time.Time
}

func New(store storage.MatchStore, log zerolog.Logger, interval time.Duration, batch int) *Worker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	return &Worker{
		store:    store,
		log:      log.With().Str("component", "sweeper").Logger(),
		interval: interval,
		batch:    batch,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps immediately and then on every tick until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("sweep failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessOnce expires one batch and reports how many matches moved.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	now := w.now()
	candidates, err := w.store.ListExpiredActive(ctx, now, w.batch)
	if err != nil {
		return 0, models.StoreFailure(err)
	}

	expired := 0
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		_, err := w.store.UpdateMatch(ctx, c.ID, func(m *models.Match) error {
			if m.Status != models.MatchActive || m.LastMessageAt != nil || m.ExpiresAt.After(now) {
				return errSkip
			}
			m.Status = models.MatchExpired
			return nil
		})
		switch {
		case err == nil:
			expired++
		case errors.Is(err, errSkip), errors.Is(err, models.ErrNotFound):
		default:
			w.log.Warn().Err(err).Str("match_id", c.ID).Msg("failed to expire match")
		}
	}

	metrics.MatchesExpired(expired)
	if expired > 0 {
		w.log.Info().Int("expired", expired).Msg("expired silent matches")
	}
	return expired, nil
}
