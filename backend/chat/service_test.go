// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package chat

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/efchatnet/skillmatch/backend/envelope"
	"github.com/efchatnet/skillmatch/backend/events"
	"github.com/efchatnet/skillmatch/backend/janitor"
	"github.com/efchatnet/skillmatch/backend/keyvault"
	"github.com/efchatnet/skillmatch/backend/models"
	"github.com/efchatnet/skillmatch/backend/notify"
	"github.com/efchatnet/skillmatch/backend/session"
	"github.com/efchatnet/skillmatch/backend/storage/sqlite"
)

func TestMain(m *testing.M) {
	defer goleak.VerifyTestMain(m)
	os.Exit(m.Run())
}

type fixture struct {
	store *sqlite.Store
	bus   *events.Bus
	vault *keyvault.Vault
	svc   *Service
	match models.Match
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	now := time.Now().UTC()
	for _, id := range []string{"alice", "bob", "carol"} {
		require.NoError(t, s.SaveProfile(ctx, models.UserProfile{ID: id, DisplayName: id, CreatedAt: now}))
	}
	m := models.NewMatch("m1", "alice", "bob", now, 0)
	_, _, err = s.CreateActiveMatch(ctx, m)
	require.NoError(t, err)

	bus := events.NewBus()
	t.Cleanup(func() { _ = bus.Close() })
	log := zerolog.Nop()
	vault := keyvault.New(s, log, keyvault.Config{})
	return &fixture{
		store: s,
		bus:   bus,
		vault: vault,
		svc:   NewService(s, vault, janitor.New(s, log), bus, log),
		match: m,
	}
}

func sess(userID string) session.Session {
	return session.Session{UserID: userID, Notifier: notify.Nop}
}

func TestSendMessageEncrypts(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	sent, err := fx.svc.SendMessage(ctx, sess("alice"), fx.match.ID, "  merhaba  ")
	require.NoError(t, err)
	assert.Equal(t, "merhaba", sent.Text)
	assert.True(t, sent.Mine)
	assert.Equal(t, "bob", sent.ReceiverID)

	stored, err := fx.store.GetMessage(ctx, fx.match.ID, sent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EncVersionAESGCM, stored.EncVersion)
	assert.Empty(t, stored.Content)
	assert.NotContains(t, string(stored.Ciphertext), "merhaba")
	assert.Len(t, stored.Nonce, envelope.NonceSize)

	m, err := fx.store.GetMatch(ctx, fx.match.ID)
	require.NoError(t, err)
	require.NotNil(t, m.LastMessageAt)
	assert.True(t, m.HasKey())

	conv, err := fx.svc.OpenConversation(ctx, sess("bob"), fx.match.ID)
	require.NoError(t, err)
	history, err := conv.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "merhaba", history[0].Text)
	assert.False(t, history[0].Mine)
}

func TestSendMessageRejections(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.SendMessage(ctx, sess("alice"), fx.match.ID, "   ")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = fx.svc.SendMessage(ctx, sess("carol"), fx.match.ID, "hi")
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = fx.svc.SendMessage(ctx, sess("alice"), "missing", "hi")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = fx.store.UpdateMatch(ctx, fx.match.ID, func(m *models.Match) error {
		m.Status = models.MatchEnded
		return nil
	})
	require.NoError(t, err)
	_, err = fx.svc.SendMessage(ctx, sess("alice"), fx.match.ID, "hi")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestHistoryReadsEveryEnvelope(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	key, err := fx.vault.EnsureKey(ctx, fx.match.ID)
	require.NoError(t, err)

	base := time.Now().UTC()
	legacy := models.Message{ID: "legacy", MatchID: fx.match.ID, SenderID: "bob", ReceiverID: "alice",
		Timestamp: base, EncVersion: models.EncVersionPlaintext, Content: "eski"}
	bound, err := envelope.EncryptWithAAD(key, "bağlı", []byte(fx.match.ID))
	require.NoError(t, err)
	withAAD := models.Message{ID: "aad", MatchID: fx.match.ID, SenderID: "bob", ReceiverID: "alice",
		Timestamp: base.Add(time.Second), EncVersion: models.EncVersionAESGCM, Ciphertext: bound.Ciphertext, Nonce: bound.Nonce}
	other, err := envelope.Encrypt(envelope.Key{1, 2, 3}, "başka anahtar")
	require.NoError(t, err)
	foreign := models.Message{ID: "foreign", MatchID: fx.match.ID, SenderID: "alice", ReceiverID: "bob",
		Timestamp: base.Add(2 * time.Second), EncVersion: models.EncVersionAESGCM, Ciphertext: other.Ciphertext, Nonce: other.Nonce}
	for _, m := range []models.Message{legacy, withAAD, foreign} {
		require.NoError(t, fx.store.SaveMessage(ctx, m))
	}

	conv, err := fx.svc.OpenConversation(ctx, sess("alice"), fx.match.ID)
	require.NoError(t, err)
	history, err := conv.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 3)

	assert.Equal(t, "eski", history[0].Text)
	assert.Equal(t, "bağlı", history[1].Text)
	assert.Equal(t, envelope.Placeholder, history[2].Text)
	assert.True(t, history[2].Undecryptable)
	assert.True(t, history[2].Mine)
}

func TestStreamDeliversNewMessages(t *testing.T) {
	fx := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := fx.svc.SendMessage(ctx, sess("alice"), fx.match.ID, "ilk")
	require.NoError(t, err)

	notified := make(chan string, 4)
	bob := session.Session{UserID: "bob", Notifier: notify.Func(func(title, body string) { notified <- title + ":" + body })}
	conv, err := fx.svc.OpenConversation(ctx, bob, fx.match.ID)
	require.NoError(t, err)
	stream, err := conv.Stream(ctx)
	require.NoError(t, err)

	first := next(t, stream)
	assert.Equal(t, "ilk", first.Text)

	_, err = fx.svc.SendMessage(ctx, sess("alice"), fx.match.ID, "ikinci")
	require.NoError(t, err)
	second := next(t, stream)
	assert.Equal(t, "ikinci", second.Text)
	assert.False(t, second.Mine)

	select {
	case n := <-notified:
		assert.Equal(t, "New message:ikinci", n)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification")
	}

	_, err = fx.svc.SendMessage(ctx, bob, fx.match.ID, "cevap")
	require.NoError(t, err)
	reply := next(t, stream)
	assert.True(t, reply.Mine)
	assert.Len(t, notified, 0, "own messages do not notify")

	cancel()
	for range stream {
	}
}

func next(t *testing.T, ch <-chan Entry) Entry {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "stream closed")
		return e
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for message")
		return Entry{}
	}
}

func TestParticipantGone(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.SendMessage(ctx, sess("alice"), fx.match.ID, "selam")
	require.NoError(t, err)
	require.NoError(t, fx.store.DeleteProfile(ctx, "bob"))

	_, err = fx.svc.OpenConversation(ctx, sess("alice"), fx.match.ID)
	require.ErrorIs(t, err, models.ErrParticipantGone)

	msgs, err := fx.store.ListMessages(ctx, fx.match.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = fx.svc.OpenConversation(ctx, sess("alice"), fx.match.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestOpenConversationWithDeletedPeer(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.store.DeleteProfile(ctx, "bob"))

	_, err := fx.svc.OpenConversationWithPeer(ctx, sess("alice"), "bob")
	require.ErrorIs(t, err, models.ErrParticipantGone)
	_, err = fx.store.GetMatch(ctx, fx.match.ID)
	require.ErrorIs(t, err, models.ErrNotFound, "the match is purged on first contact")

	_, err = fx.svc.OpenConversationWithPeer(ctx, sess("alice"), "bob")
	assert.ErrorIs(t, err, models.ErrParticipantGone)

	_, err = fx.svc.OpenConversationWithPeer(ctx, sess("alice"), "nobody")
	assert.ErrorIs(t, err, models.ErrParticipantGone)
}

func TestListConversations(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	older := models.NewMatch("m0", "carol", "alice", time.Now().UTC().Add(-time.Hour), 0)
	_, _, err := fx.store.CreateActiveMatch(ctx, older)
	require.NoError(t, err)

	list, err := fx.svc.ListConversations(ctx, sess("alice"))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, fx.match.ID, list[0].ID)

	_, err = fx.svc.SendMessage(ctx, sess("carol"), older.ID, "hey")
	require.NoError(t, err)
	list, err = fx.svc.ListConversations(ctx, sess("alice"))
	require.NoError(t, err)
	assert.Equal(t, older.ID, list[0].ID, "recent activity sorts first")

	require.NoError(t, fx.store.DeleteProfile(ctx, "carol"))
	list, err = fx.svc.ListConversations(ctx, sess("alice"))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, fx.match.ID, list[0].ID)
}

func TestOpenConversationWithPeer(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	conv, err := fx.svc.OpenConversationWithPeer(ctx, sess("bob"), "alice")
	require.NoError(t, err)
	assert.Equal(t, fx.match.ID, conv.Match().ID)

	_, err = fx.svc.OpenConversationWithPeer(ctx, sess("bob"), "carol")
	assert.ErrorIs(t, err, models.ErrNotFound)

	active, err := fx.store.ListMatches(ctx, "bob", "")
	require.NoError(t, err)
	assert.Len(t, active, 1, "opening by peer never creates a match")
}
