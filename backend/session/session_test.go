// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/skillmatch/backend/models"
	"github.com/efchatnet/skillmatch/backend/notify"
)

func TestNew(t *testing.T) {
	_, err := New("", nil)
	require.ErrorIs(t, err, models.ErrValidation)

	var titles []string
	s, err := New("u1", notify.Func(func(title, _ string) { titles = append(titles, title) }))
	require.NoError(t, err)
	assert.Equal(t, "u1", s.CurrentUserID())

	s.Notify("New match request", "")
	assert.Equal(t, []string{"New match request"}, titles)
}

func TestNilNotifier(t *testing.T) {
	s := Session{UserID: "u1"}
	assert.NotPanics(t, func() { s.Notify("t", "b") })
}
