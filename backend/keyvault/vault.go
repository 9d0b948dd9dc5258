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

// Package keyvault provisions the per-match conversation key.
package keyvault

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/efchatnet/skillmatch/backend/envelope"
	"github.com/efchatnet/skillmatch/backend/metrics"
	"github.com/efchatnet/skillmatch/backend/models"
	"github.com/efchatnet/skillmatch/backend/storage"
)

// Config bounds the provisioning retry budget. MaxAttempts counts every
// write attempt, the first one included.
type Config struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 20 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 500 * time.Millisecond
	}
}

// Vault hands out conversation keys. Keys leave the vault only as
// envelope.Key values and are never logged.
type Vault struct {
	store storage.MatchStore
	log   zerolog.Logger
	cfg   Config
	rand  io.Reader
}

func New(store storage.MatchStore, log zerolog.Logger, cfg Config) *Vault {
	cfg.applyDefaults()
	return &Vault{
		store: store,
		log:   log.With().Str("component", "keyvault").Logger(),
		cfg:   cfg,
		rand:  rand.Reader,
	}
}

// EnsureKey returns the key of matchID, generating and storing one if the
// match has none. Concurrent callers converge on the single stored key:
// each attempt is a transactional read-modify-write that only writes when
// the key is still absent.
func (v *Vault) EnsureKey(ctx context.Context, matchID string) (envelope.Key, error) {
	m, err := v.store.GetMatch(ctx, matchID)
	if err != nil {
		return envelope.Key{}, models.StoreFailure(err)
	}
	if m.HasKey() {
		return v.keyOf(m)
	}

	var stored *models.Match
	op := func() error {
		candidate, err := envelope.GenerateKey(v.rand)
		if err != nil {
			return backoff.Permanent(err)
		}
		raw := candidate.Bytes()
		updated, err := v.store.UpdateMatch(ctx, matchID, func(m *models.Match) error {
			if !m.HasKey() {
				m.ConversationKey = raw
			}
			return nil
		})
		switch {
		case err == nil:
			stored = updated
			return nil
		case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrMalformed):
			return backoff.Permanent(err)
		default:
			return err
		}
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = v.cfg.InitialInterval
	exp.MaxInterval = v.cfg.MaxInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(v.cfg.MaxAttempts-1)), ctx)

	notify := func(err error, wait time.Duration) {
		v.log.Debug().Err(err).Str("match_id", matchID).Dur("wait", wait).Msg("retrying key provisioning")
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrMalformed):
			return envelope.Key{}, err
		case ctx.Err() != nil:
			return envelope.Key{}, ctx.Err()
		}
		metrics.KeyUnavailable()
		v.log.Error().Err(err).Str("match_id", matchID).Msg("conversation key unavailable")
		return envelope.Key{}, fmt.Errorf("%w: match %s: %v", models.ErrKeyUnavailable, matchID, err)
	}
	return v.keyOf(stored)
}

func (v *Vault) keyOf(m *models.Match) (envelope.Key, error) {
	key, err := envelope.KeyFromBytes(m.ConversationKey)
	if err != nil {
		return envelope.Key{}, fmt.Errorf("%w: match %s key: %v", models.ErrMalformed, m.ID, err)
	}
	metrics.KeyProvisioned()
	return key, nil
}
