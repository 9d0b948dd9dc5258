// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package notify defines the fire-and-forget notification collaborator.
package notify

import "github.com/rs/zerolog"

// Notifier displays a notification to one user. Implementations must not
// block the caller for long and report failures only through their own logs.
type Notifier interface {
	Notify(title, body string)
}

// Func adapts a plain function to Notifier.
type Func func(title, body string)

func (f Func) Notify(title, body string) { f(title, body) }

// Nop discards notifications.
var Nop Notifier = Func(func(string, string) {})

// Log writes notifications to a logger. Bodies can carry decrypted message
// text, so only their length is recorded.
type Log struct {
	log    zerolog.Logger
	userID string
}

func NewLog(log zerolog.Logger, userID string) *Log {
	return &Log{log: log, userID: userID}
}

func (l *Log) Notify(title, body string) {
	l.log.Info().
		Str("user_id", l.userID).
		Str("title", title).
		Int("body_len", len(body)).
		Msg("notification")
}

// Multi fans out to several notifiers in order.
type Multi []Notifier

func (m Multi) Notify(title, body string) {
	for _, n := range m {
		if n != nil {
			n.Notify(title, body)
		}
	}
}
