// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/skillmatch/backend/models"
	"github.com/efchatnet/skillmatch/backend/storage"
	"github.com/efchatnet/skillmatch/backend/storage/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "skillmatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreCompliance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storage.Store { return newTestStore(t) })
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
}

func TestMalformedRowIsRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO matches (match_id, user1_id, user2_id, pair_low, pair_high, status, created_at, expires_at)
		VALUES ('m1', 'a', 'b', 'a', 'b', 'PAUSED', 0, 0)`)
	require.NoError(t, err)

	_, err = s.GetMatch(ctx, "m1")
	assert.ErrorIs(t, err, models.ErrMalformed)
}
