// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package dynamo

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/skillmatch/backend/models"
)

func TestMessageKeySortsByTime(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	keys := []string{
		messageKey(base.Add(10*time.Second), "a"),
		messageKey(base, "z"),
		messageKey(base.Add(time.Millisecond), "m"),
	}
	sort.Strings(keys)
	assert.Equal(t, messageKey(base, "z"), keys[0])
	assert.Equal(t, messageKey(base.Add(10*time.Second), "a"), keys[2])
}

func TestLockIDs(t *testing.T) {
	assert.Equal(t, activeLockID("u1", "u2"), activeLockID("u2", "u1"))
	assert.NotEqual(t, pendingLockID("u1", "u2"), pendingLockID("u2", "u1"))
}

func TestMatchItemRejectsBadKeyEncoding(t *testing.T) {
	now := time.Now()
	it := matchToItem(models.NewMatch("m1", "a", "b", now, 0))
	it.ConversationKey = "%%%not-base64"

	_, err := it.model()
	require.ErrorIs(t, err, models.ErrMalformed)
}

func TestMatchItemKeepsOptionalFields(t *testing.T) {
	now := time.Now().UTC()
	m := models.NewMatch("m1", "b", "a", now, 0)
	it := matchToItem(m)
	assert.Zero(t, it.LastMessageAt)
	assert.Empty(t, it.ConversationKey)

	got, err := it.model()
	require.NoError(t, err)
	assert.Nil(t, got.LastMessageAt)
	assert.False(t, got.HasKey())
	assert.True(t, m.ExpiresAt.Equal(got.ExpiresAt))
}
