// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package sweeper

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

	"github.com/efchatnet/skillmatch/backend/models"
	"github.com/efchatnet/skillmatch/backend/storage/sqlite"
)

func TestMain(m *testing.M) {
	defer goleak.VerifyTestMain(m)
	os.Exit(m.Run())
}

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "sweep.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestProcessOnceExpiresOnlySilentMatches(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	past := time.Now().UTC().Add(-48 * time.Hour)

	silent := models.NewMatch("silent", "a", "b", past, time.Hour)
	chatty := models.NewMatch("chatty", "a", "c", past, time.Hour)
	fresh := models.NewMatch("fresh", "a", "d", time.Now().UTC(), time.Hour)
	for _, m := range []models.Match{silent, chatty, fresh} {
		_, _, err := s.CreateActiveMatch(ctx, m)
		require.NoError(t, err)
	}
	_, err := s.UpdateMatch(ctx, "chatty", func(m *models.Match) error {
		at := past.Add(time.Minute)
		m.LastMessageAt = &at
		return nil
	})
	require.NoError(t, err)

	w := New(s, zerolog.Nop(), time.Minute, 10)
	n, err := w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for id, want := range map[string]models.MatchStatus{
		"silent": models.MatchExpired,
		"chatty": models.MatchActive,
		"fresh":  models.MatchActive,
	} {
		m, err := s.GetMatch(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, m.Status, id)
	}

	n, err = w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.FindActiveMatch(ctx, "a", "b")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRunStopsOnCancel(t *testing.T) {
	s := openStore(t)
	past := time.Now().UTC().Add(-48 * time.Hour)
	_, _, err := s.CreateActiveMatch(context.Background(), models.NewMatch("m", "a", "b", past, time.Hour))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	w := New(s, zerolog.Nop(), time.Hour, 0)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		m, err := s.GetMatch(context.Background(), "m")
		return err == nil && m.Status == models.MatchExpired
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
