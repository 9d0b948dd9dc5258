// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package session carries the caller identity into every engine call.
package session

import (
	"fmt"

	"github.com/efchatnet/skillmatch/backend/models"
	"github.com/efchatnet/skillmatch/backend/notify"
)

// Session is the explicit per-caller context. The zero Notifier is treated
// as notify.Nop.
type Session struct {
	UserID   string
	Notifier notify.Notifier
}

func New(userID string, n notify.Notifier) (Session, error) {
	s := Session{UserID: userID, Notifier: n}
	if err := s.Validate(); err != nil {
		return Session{}, err
	}
	return s, nil
}

func (s Session) Validate() error {
	if s.UserID == "" {
		return fmt.Errorf("%w: session has no user", models.ErrValidation)
	}
	return nil
}

// CurrentUserID returns the authenticated user.
func (s Session) CurrentUserID() string { return s.UserID }

// Notify forwards to the session notifier. Hosts wrap slow notifiers in a
// notify.Queue so this returns immediately.
func (s Session) Notify(title, body string) {
	if s.Notifier == nil {
		return
	}
	s.Notifier.Notify(title, body)
}
