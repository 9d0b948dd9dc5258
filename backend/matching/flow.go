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

// Package matching turns one-directional like signals into matches.
//
// Every step is an independent transactional write, so a failed Accept can
// be retried from whatever state was last made durable: PENDING, ACCEPTED,
// or MATCHED with the match already created.
package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/efchatnet/skillmatch/backend/metrics"
	"github.com/efchatnet/skillmatch/backend/models"
	"github.com/efchatnet/skillmatch/backend/session"
	"github.com/efchatnet/skillmatch/backend/skills"
	"github.com/efchatnet/skillmatch/backend/storage"
)

type Flow struct {
	store   storage.Store
	matcher *skills.Matcher
	log     zerolog.Logger
	ttl     time.Duration
	now     func() time.Time
	newID   func() string
}

type Option func(*Flow)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(f *Flow) { f.now = now } }

// WithMatchTTL sets the advisory lifetime of new matches.
func WithMatchTTL(ttl time.Duration) Option { return func(f *Flow) { f.ttl = ttl } }

func WithMatcher(m *skills.Matcher) Option { return func(f *Flow) { f.matcher = m } }

func NewFlow(store storage.Store, log zerolog.Logger, opts ...Option) *Flow {
	f := &Flow{
		store:   store,
		matcher: skills.Default,
		log:     log.With().Str("component", "matching").Logger(),
		ttl:     models.DefaultMatchTTL,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FindCandidates returns compatible profiles in store order with their
// scores. Users the caller already has a PENDING request to, or has ever
// been matched with, are left out.
func (f *Flow) FindCandidates(ctx context.Context, sess session.Session) ([]models.Candidate, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	self, err := f.store.GetProfile(ctx, sess.UserID)
	if err != nil {
		return nil, models.StoreFailure(err)
	}
	pool, err := f.store.ListProfiles(ctx)
	if err != nil {
		return nil, models.StoreFailure(err)
	}

	exclude := make(map[string]bool)
	sent, err := f.store.ListRequests(ctx, models.RequestQuery{FromUserID: sess.UserID, Status: models.RequestPending})
	if err != nil {
		return nil, models.StoreFailure(err)
	}
	for _, r := range sent {
		exclude[r.ToUserID] = true
	}
	matches, err := f.store.ListMatches(ctx, sess.UserID, "")
	if err != nil {
		return nil, models.StoreFailure(err)
	}
	for _, m := range matches {
		exclude[m.Peer(sess.UserID)] = true
	}

	filtered := make([]models.UserProfile, 0, len(pool))
	for _, p := range pool {
		if !exclude[p.ID] {
			filtered = append(filtered, p)
		}
	}
	return f.matcher.Rank(*self, filtered), nil
}

// SendLikeSignal records the caller's interest in toUserID.
func (f *Flow) SendLikeSignal(ctx context.Context, sess session.Session, toUserID string) (*models.MatchRequest, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	return f.Create(ctx, sess.UserID, toUserID)
}

// Create persists a PENDING request from -> to. A PENDING request in the
// opposite direction does not block it.
func (f *Flow) Create(ctx context.Context, from, to string) (*models.MatchRequest, error) {
	if from == "" || to == "" {
		return nil, fmt.Errorf("%w: request needs both users", models.ErrValidation)
	}
	if from == to {
		return nil, fmt.Errorf("%w: cannot send a request to yourself", models.ErrValidation)
	}
	if _, err := f.store.GetProfile(ctx, to); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %s", models.ErrParticipantGone, to)
		}
		return nil, models.StoreFailure(err)
	}

	r := models.MatchRequest{
		ID:         f.newID(),
		FromUserID: from,
		ToUserID:   to,
		Status:     models.RequestPending,
		CreatedAt:  f.now(),
	}
	if err := f.store.CreatePendingRequest(ctx, r); err != nil {
		if errors.Is(err, models.ErrConflict) {
			metrics.RequestOutcome(metrics.RequestDuplicate)
			return nil, fmt.Errorf("%w: %s -> %s", models.ErrDuplicateRequest, from, to)
		}
		return nil, models.StoreFailure(err)
	}

	metrics.RequestOutcome(metrics.RequestCreated)
	f.log.Info().Str("request_id", r.ID).Str("from", from).Str("to", to).Msg("match request created")
	return &r, nil
}

// IncomingRequests lists PENDING requests addressed to the caller and
// notifies the caller when there are any.
func (f *Flow) IncomingRequests(ctx context.Context, sess session.Session) ([]models.MatchRequest, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	reqs, err := f.store.ListRequests(ctx, models.RequestQuery{ToUserID: sess.UserID, Status: models.RequestPending})
	if err != nil {
		return nil, models.StoreFailure(err)
	}
	if len(reqs) > 0 {
		sess.Notify("New match request", fmt.Sprintf("You have %d pending match request(s)", len(reqs)))
	}
	return reqs, nil
}

// Accept moves the request to MATCHED, creating the match if needed.
func (f *Flow) Accept(ctx context.Context, sess session.Session, requestID string) (*models.Match, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	r, err := f.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, models.StoreFailure(err)
	}
	if r.ToUserID != sess.UserID {
		return nil, fmt.Errorf("%w: request %s is not addressed to %s", models.ErrForbidden, requestID, sess.UserID)
	}

	switch r.Status {
	case models.RequestMatched:
		return f.matchOf(ctx, r)
	case models.RequestRejected:
		return nil, fmt.Errorf("%w: request %s was rejected", models.ErrInvalidTransition, requestID)
	}

	if _, err := f.store.GetProfile(ctx, r.FromUserID); err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return nil, models.StoreFailure(err)
		}
		if _, rerr := f.store.UpdateRequest(ctx, requestID, rejectUnlessMatched); rerr != nil {
			f.log.Warn().Err(rerr).Str("request_id", requestID).Msg("failed to reject request from missing user")
		}
		metrics.RequestOutcome(metrics.RequestGone)
		return nil, fmt.Errorf("%w: user %s", models.ErrParticipantGone, r.FromUserID)
	}

	r, err = f.store.UpdateRequest(ctx, requestID, func(r *models.MatchRequest) error {
		switch r.Status {
		case models.RequestPending:
			r.Status = models.RequestAccepted
		case models.RequestAccepted, models.RequestMatched:
		default:
			return fmt.Errorf("%w: request %s is %s", models.ErrInvalidTransition, r.ID, r.Status)
		}
		return nil
	})
	if err != nil {
		return nil, models.StoreFailure(err)
	}
	if r.Status == models.RequestMatched {
		return f.matchOf(ctx, r)
	}

	matchID, _, err := f.EnsureMatch(ctx, r.FromUserID, r.ToUserID)
	if err != nil {
		return nil, err
	}

	at := f.now()
	r, err = f.store.UpdateRequest(ctx, requestID, func(r *models.MatchRequest) error {
		switch r.Status {
		case models.RequestAccepted:
			r.Status = models.RequestMatched
			r.MatchID = &matchID
			r.MatchedAt = &at
		case models.RequestMatched:
		default:
			return fmt.Errorf("%w: request %s is %s", models.ErrInvalidTransition, r.ID, r.Status)
		}
		return nil
	})
	if err != nil {
		return nil, models.StoreFailure(err)
	}

	metrics.RequestOutcome(metrics.RequestAccepted)
	f.log.Info().Str("request_id", requestID).Str("match_id", *r.MatchID).Msg("match request accepted")
	return f.matchOf(ctx, r)
}

func (f *Flow) matchOf(ctx context.Context, r *models.MatchRequest) (*models.Match, error) {
	m, err := f.store.GetMatch(ctx, *r.MatchID)
	if err != nil {
		return nil, models.StoreFailure(err)
	}
	return m, nil
}

func rejectUnlessMatched(r *models.MatchRequest) error {
	switch r.Status {
	case models.RequestMatched:
		return fmt.Errorf("%w: request %s is already matched", models.ErrInvalidTransition, r.ID)
	case models.RequestRejected:
	default:
		r.Status = models.RequestRejected
	}
	return nil
}

// Reject moves the request to REJECTED. Rejecting twice is a no-op;
// rejecting a MATCHED request fails.
func (f *Flow) Reject(ctx context.Context, sess session.Session, requestID string) (*models.MatchRequest, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	r, err := f.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, models.StoreFailure(err)
	}
	if r.ToUserID != sess.UserID {
		return nil, fmt.Errorf("%w: request %s is not addressed to %s", models.ErrForbidden, requestID, sess.UserID)
	}
	r, err = f.store.UpdateRequest(ctx, requestID, rejectUnlessMatched)
	if err != nil {
		return nil, models.StoreFailure(err)
	}
	metrics.RequestOutcome(metrics.RequestRejected)
	return r, nil
}

// EnsureMatch returns the ACTIVE match between a and b in either order,
// creating it when none exists. The store's conditional create guarantees
// a single ACTIVE match per pair under concurrent callers.
func (f *Flow) EnsureMatch(ctx context.Context, a, b string) (string, bool, error) {
	if a == "" || b == "" || a == b {
		return "", false, fmt.Errorf("%w: a match needs two distinct users", models.ErrValidation)
	}
	existing, err := f.store.FindActiveMatch(ctx, a, b)
	switch {
	case err == nil:
		metrics.MatchEnsured(metrics.MatchExisting)
		return existing.ID, false, nil
	case !errors.Is(err, models.ErrNotFound):
		return "", false, models.StoreFailure(err)
	}

	id, created, err := f.store.CreateActiveMatch(ctx, models.NewMatch(f.newID(), a, b, f.now(), f.ttl))
	if err != nil {
		return "", false, models.StoreFailure(err)
	}
	if created {
		metrics.MatchEnsured(metrics.MatchCreated)
		f.log.Info().Str("match_id", id).Str("user1", a).Str("user2", b).Msg("match created")
	} else {
		metrics.MatchEnsured(metrics.MatchExisting)
	}
	return id, created, nil
}

// EndMatch closes an ACTIVE match on behalf of one participant.
func (f *Flow) EndMatch(ctx context.Context, sess session.Session, matchID string) (*models.Match, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	m, err := f.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, models.StoreFailure(err)
	}
	if !m.Involves(sess.UserID) {
		return nil, fmt.Errorf("%w: %s is not part of match %s", models.ErrForbidden, sess.UserID, matchID)
	}
	m, err = f.store.UpdateMatch(ctx, matchID, func(m *models.Match) error {
		switch m.Status {
		case models.MatchActive:
			m.Status = models.MatchEnded
		case models.MatchEnded:
		default:
			return fmt.Errorf("%w: match %s is %s", models.ErrInvalidTransition, m.ID, m.Status)
		}
		return nil
	})
	if err != nil {
		return nil, models.StoreFailure(err)
	}
	return m, nil
}
