// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package storetest is a compliance suite every storage.Store must pass.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/skillmatch/backend/models"
	"github.com/efchatnet/skillmatch/backend/storage"
)

// Run exercises the store returned by makeStore. Identifiers are random so
// the suite can run against a shared database.
func Run(t *testing.T, makeStore func(t *testing.T) storage.Store) {
	t.Helper()

	t.Run("profiles", func(t *testing.T) { testProfiles(t, makeStore(t)) })
	t.Run("requests", func(t *testing.T) { testRequests(t, makeStore(t)) })
	t.Run("matches", func(t *testing.T) { testMatches(t, makeStore(t)) })
	t.Run("concurrent match creation", func(t *testing.T) { testConcurrentMatchCreation(t, makeStore(t)) })
	t.Run("concurrent key provisioning", func(t *testing.T) { testConcurrentKeyUpdate(t, makeStore(t)) })
	t.Run("messages", func(t *testing.T) { testMessages(t, makeStore(t)) })
}

func id(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func testProfiles(t *testing.T, s storage.Store) {
	ctx := context.Background()
	uid := id("u")

	_, err := s.GetProfile(ctx, uid)
	require.ErrorIs(t, err, models.ErrNotFound)

	p := models.UserProfile{ID: uid, DisplayName: "Ayşe", KnownSkills: []string{"Gitar", "Python"}, WantedSkills: []string{"Yoga"}, CreatedAt: now()}
	require.NoError(t, s.SaveProfile(ctx, p))

	got, err := s.GetProfile(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, p.DisplayName, got.DisplayName)
	assert.Equal(t, p.KnownSkills, got.KnownSkills)
	assert.Equal(t, p.WantedSkills, got.WantedSkills)

	p.WantedSkills = []string{"Yoga", "Dans"}
	require.NoError(t, s.SaveProfile(ctx, p))
	got, err = s.GetProfile(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, []string{"Yoga", "Dans"}, got.WantedSkills)

	all, err := s.ListProfiles(ctx)
	require.NoError(t, err)
	assert.True(t, containsProfile(all, uid))

	require.NoError(t, s.DeleteProfile(ctx, uid))
	_, err = s.GetProfile(ctx, uid)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func containsProfile(ps []models.UserProfile, uid string) bool {
	for _, p := range ps {
		if p.ID == uid {
			return true
		}
	}
	return false
}

func newRequest(from, to string) models.MatchRequest {
	return models.MatchRequest{ID: id("r"), FromUserID: from, ToUserID: to, Status: models.RequestPending, CreatedAt: now()}
}

func testRequests(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a, b := id("a"), id("b")

	_, err := s.GetRequest(ctx, id("r"))
	require.ErrorIs(t, err, models.ErrNotFound)

	first := newRequest(a, b)
	require.NoError(t, s.CreatePendingRequest(ctx, first))

	err = s.CreatePendingRequest(ctx, newRequest(a, b))
	require.ErrorIs(t, err, models.ErrConflict, "second pending request for the same ordered pair")

	reverse := newRequest(b, a)
	require.NoError(t, s.CreatePendingRequest(ctx, reverse), "reverse direction may coexist")

	incoming, err := s.ListRequests(ctx, models.RequestQuery{ToUserID: b, Status: models.RequestPending})
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, first.ID, incoming[0].ID)

	matchID := id("m")
	at := now()
	updated, err := s.UpdateRequest(ctx, first.ID, func(r *models.MatchRequest) error {
		r.Status = models.RequestMatched
		r.MatchID = &matchID
		r.MatchedAt = &at
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.RequestMatched, updated.Status)

	got, err := s.GetRequest(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestMatched, got.Status)
	require.NotNil(t, got.MatchID)
	assert.Equal(t, matchID, *got.MatchID)
	require.NotNil(t, got.MatchedAt)
	assert.True(t, at.Equal(*got.MatchedAt))

	byMatch, err := s.ListRequests(ctx, models.RequestQuery{MatchID: matchID})
	require.NoError(t, err)
	require.Len(t, byMatch, 1)
	assert.Equal(t, first.ID, byMatch[0].ID)

	// no longer pending, so a fresh request is allowed
	require.NoError(t, s.CreatePendingRequest(ctx, newRequest(a, b)))

	sent, err := s.ListRequests(ctx, models.RequestQuery{FromUserID: a})
	require.NoError(t, err)
	assert.Len(t, sent, 2)

	_, err = s.UpdateRequest(ctx, reverse.ID, func(r *models.MatchRequest) error {
		return models.ErrInvalidTransition
	})
	require.ErrorIs(t, err, models.ErrInvalidTransition)
	got, err = s.GetRequest(ctx, reverse.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, got.Status, "aborted mutation leaves the record untouched")

	_, err = s.UpdateRequest(ctx, id("r"), func(*models.MatchRequest) error { return nil })
	require.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, s.DeleteRequest(ctx, reverse.ID))
	_, err = s.GetRequest(ctx, reverse.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func testMatches(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a, b, c := id("a"), id("b"), id("c")
	created := now()

	m := models.NewMatch(id("m"), a, b, created, models.DefaultMatchTTL)
	gotID, isNew, err := s.CreateActiveMatch(ctx, m)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, m.ID, gotID)

	again, isNew, err := s.CreateActiveMatch(ctx, models.NewMatch(id("m"), b, a, now(), 0))
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, m.ID, again, "reversed pair resolves to the existing match")

	found, err := s.FindActiveMatch(ctx, b, a)
	require.NoError(t, err)
	assert.Equal(t, m.ID, found.ID)
	assert.False(t, found.HasKey())
	assert.True(t, created.Add(models.DefaultMatchTTL).Equal(found.ExpiresAt))

	_, err = s.FindActiveMatch(ctx, a, c)
	require.ErrorIs(t, err, models.ErrNotFound)
	_, err = s.GetMatch(ctx, id("m"))
	require.ErrorIs(t, err, models.ErrNotFound)

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	sent := now()
	updated, err := s.UpdateMatch(ctx, m.ID, func(mm *models.Match) error {
		mm.ConversationKey = key
		mm.LastMessageAt = &sent
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, key, updated.ConversationKey)

	got, err := s.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, key, got.ConversationKey)
	require.NotNil(t, got.LastMessageAt)
	assert.True(t, sent.Equal(*got.LastMessageAt))

	other := models.NewMatch(id("m"), c, a, created.Add(-48*time.Hour), models.DefaultMatchTTL)
	_, _, err = s.CreateActiveMatch(ctx, other)
	require.NoError(t, err)

	expired, err := s.ListExpiredActive(ctx, now(), 1000)
	require.NoError(t, err)
	assert.True(t, containsMatch(expired, other.ID))
	assert.False(t, containsMatch(expired, m.ID))

	active, err := s.ListMatches(ctx, a, models.MatchActive)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	_, err = s.UpdateMatch(ctx, m.ID, func(mm *models.Match) error {
		mm.Status = models.MatchEnded
		return nil
	})
	require.NoError(t, err)

	fresh := models.NewMatch(id("m"), a, b, now(), 0)
	gotID, isNew, err = s.CreateActiveMatch(ctx, fresh)
	require.NoError(t, err)
	assert.True(t, isNew, "ended match no longer blocks the pair")
	assert.Equal(t, fresh.ID, gotID)

	all, err := s.ListMatches(ctx, b, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.DeleteMatch(ctx, m.ID))
	_, err = s.GetMatch(ctx, m.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func containsMatch(ms []models.Match, matchID string) bool {
	for _, m := range ms {
		if m.ID == matchID {
			return true
		}
	}
	return false
}

func testConcurrentMatchCreation(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a, b := id("a"), id("b")

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[string]int{}
		created int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			x, y := a, b
			if i%2 == 1 {
				x, y = b, a
			}
			mid, isNew, err := s.CreateActiveMatch(ctx, models.NewMatch(id("m"), x, y, now(), 0))
			if err != nil {
				// a store may surface the lost race as a conflict; the pair still has one match
				assert.ErrorIs(t, err, models.ErrConflict)
				return
			}
			mu.Lock()
			ids[mid]++
			if isNew {
				created++
			}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1)

	active, err := s.ListMatches(ctx, a, models.MatchActive)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func testConcurrentKeyUpdate(t *testing.T, s storage.Store) {
	ctx := context.Background()
	m := models.NewMatch(id("m"), id("a"), id("b"), now(), 0)
	_, _, err := s.CreateActiveMatch(ctx, m)
	require.NoError(t, err)

	const n = 8
	results := make([][]byte, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			candidate := make([]byte, 32)
			for j := range candidate {
				candidate[j] = byte(i + 1)
			}
			for attempt := 0; attempt < 20; attempt++ {
				got, err := s.UpdateMatch(ctx, m.ID, func(mm *models.Match) error {
					if !mm.HasKey() {
						mm.ConversationKey = candidate
					}
					return nil
				})
				if err == nil {
					results[i] = got.ConversationKey
					return
				}
				if !assert.ErrorIs(t, err, models.ErrConflict) {
					return
				}
			}
		}(i)
	}
	wg.Wait()

	stored, err := s.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	require.True(t, stored.HasKey())
	for i, r := range results {
		assert.Equal(t, stored.ConversationKey, r, "caller %d", i)
	}
}

func testMessages(t *testing.T, s storage.Store) {
	ctx := context.Background()
	matchID := id("m")
	base := now()

	_, err := s.GetMessage(ctx, matchID, id("msg"))
	require.ErrorIs(t, err, models.ErrNotFound)

	second := models.Message{ID: id("msg"), MatchID: matchID, SenderID: "a", ReceiverID: "b",
		Timestamp: base.Add(time.Second), Type: models.MessageText, EncVersion: models.EncVersionAESGCM,
		Ciphertext: []byte("0123456789abcdef-ct"), Nonce: []byte("0123456789ab")}
	first := models.Message{ID: id("msg"), MatchID: matchID, SenderID: "b", ReceiverID: "a",
		Timestamp: base, Type: models.MessageText, EncVersion: models.EncVersionPlaintext, Content: "eski"}

	require.NoError(t, s.SaveMessage(ctx, second))
	require.NoError(t, s.SaveMessage(ctx, first))
	require.NoError(t, s.SaveMessage(ctx, models.Message{ID: id("msg"), MatchID: id("m"), SenderID: "x",
		ReceiverID: "y", Timestamp: base, EncVersion: models.EncVersionPlaintext, Content: "other"}))

	err = s.SaveMessage(ctx, models.Message{ID: id("msg"), MatchID: matchID, SenderID: "a", EncVersion: models.EncVersionAESGCM})
	require.ErrorIs(t, err, models.ErrMalformed)

	list, err := s.ListMessages(ctx, matchID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, "eski", list[0].Content)
	assert.Equal(t, second.ID, list[1].ID)
	assert.Equal(t, second.Ciphertext, list[1].Ciphertext)
	assert.Equal(t, second.Nonce, list[1].Nonce)
	assert.True(t, second.Timestamp.Equal(list[1].Timestamp))

	got, err := s.GetMessage(ctx, matchID, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EncVersionAESGCM, got.EncVersion)

	n, err := s.DeleteMessagesForMatch(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err = s.ListMessages(ctx, matchID)
	require.NoError(t, err)
	assert.Empty(t, list)
}
