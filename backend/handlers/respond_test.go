// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/efchatnet/skillmatch/backend/models"
	"github.com/efchatnet/skillmatch/backend/session"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrValidation, http.StatusBadRequest},
		{models.ErrForbidden, http.StatusForbidden},
		{models.ErrNotFound, http.StatusNotFound},
		{models.ErrDuplicateRequest, http.StatusConflict},
		{models.ErrConflict, http.StatusConflict},
		{models.ErrInvalidTransition, http.StatusConflict},
		{models.ErrParticipantGone, http.StatusGone},
		{models.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{models.ErrKeyUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("request r1: %w", models.ErrNotFound), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestWriteErrorHidesBackendDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, zerolog.Nop(), fmt.Errorf("%w: dial tcp 10.0.0.5:5432: refused", models.ErrStoreUnavailable))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
	assert.JSONEq(t, `{"error":"Service Unavailable"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	writeError(rec, zerolog.Nop(), fmt.Errorf("%w: message is empty", models.ErrValidation))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "message is empty")
}

func TestCurrentSessionRequiresUser(t *testing.T) {
	rec := httptest.NewRecorder()
	_, ok := currentSession(rec, httptest.NewRequest(http.MethodGet, "/", nil), func(id string) session.Session {
		return session.Session{UserID: id}
	})
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
