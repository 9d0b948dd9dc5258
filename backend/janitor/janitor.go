// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package janitor removes conversations whose peer no longer exists.
package janitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/efchatnet/skillmatch/backend/metrics"
	"github.com/efchatnet/skillmatch/backend/models"
	"github.com/efchatnet/skillmatch/backend/storage"
)

// Janitor is best effort: a partially completed purge leaves the match in
// place so the next access retries it.
type Janitor struct {
	store storage.Store
	log   zerolog.Logger
}

func New(store storage.Store, log zerolog.Logger) *Janitor {
	return &Janitor{store: store, log: log.With().Str("component", "janitor").Logger()}
}

// Verify checks that the participant of m other than self still has a
// profile. When it does not, the conversation is purged and
// models.ErrParticipantGone is returned.
func (j *Janitor) Verify(ctx context.Context, self string, m *models.Match) error {
	peer := m.Peer(self)
	_, err := j.store.GetProfile(ctx, peer)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, models.ErrNotFound):
		return models.StoreFailure(err)
	}

	if perr := j.Purge(ctx, m.ID); perr != nil {
		j.log.Warn().Err(perr).Str("match_id", m.ID).Msg("partial purge, will retry on next access")
	}
	return fmt.Errorf("%w: user %s left match %s", models.ErrParticipantGone, peer, m.ID)
}

// Purge deletes the messages, requests and record of a match. Requests go
// before the match so a failed run can still find them through the match.
func (j *Janitor) Purge(ctx context.Context, matchID string) error {
	var errs []error

	n, err := j.store.DeleteMessagesForMatch(ctx, matchID)
	if err != nil {
		errs = append(errs, fmt.Errorf("delete messages: %w", err))
	}

	reqs, err := j.store.ListRequests(ctx, models.RequestQuery{MatchID: matchID})
	if err != nil {
		errs = append(errs, fmt.Errorf("list requests: %w", err))
	}
	for _, r := range reqs {
		if err := j.store.DeleteRequest(ctx, r.ID); err != nil {
			errs = append(errs, fmt.Errorf("delete request %s: %w", r.ID, err))
		}
	}

	if len(errs) == 0 {
		if err := j.store.DeleteMatch(ctx, matchID); err != nil {
			errs = append(errs, fmt.Errorf("delete match: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return models.StoreFailure(err)
	}
	metrics.ConversationPurged()
	j.log.Info().Str("match_id", matchID).Int("messages", n).Int("requests", len(reqs)).Msg("conversation purged")
	return nil
}

// FilterLive returns the matches whose peer still exists, purging the rest.
func (j *Janitor) FilterLive(ctx context.Context, self string, matches []models.Match) ([]models.Match, error) {
	live := make([]models.Match, 0, len(matches))
	for i := range matches {
		err := j.Verify(ctx, self, &matches[i])
		switch {
		case err == nil:
			live = append(live, matches[i])
		case errors.Is(err, models.ErrParticipantGone):
		default:
			return nil, err
		}
	}
	return live, nil
}
