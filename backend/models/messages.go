// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package models

import (
	"fmt"
	"time"
)

// Envelope versions carried on every message.
const (
	EncVersionPlaintext = 0
	EncVersionAESGCM    = 1
)

type MessageType string

const (
	MessageText   MessageType = "TEXT"
	MessageSystem MessageType = "SYSTEM"
)

// Message is an immutable chat message. Version 0 carries Content verbatim,
// version 1 carries Ciphertext and Nonce with Content left empty.
type Message struct {
	ID         string      `json:"id" db:"message_id"`
	MatchID    string      `json:"match_id" db:"match_id"`
	SenderID   string      `json:"sender_id" db:"sender_id"`
	ReceiverID string      `json:"receiver_id" db:"receiver_id"`
	Timestamp  time.Time   `json:"timestamp" db:"sent_at"`
	IsRead     bool        `json:"is_read" db:"is_read"`
	Type       MessageType `json:"type" db:"message_type"`
	EncVersion int         `json:"enc_version" db:"enc_version"`
	Content    string      `json:"content,omitempty" db:"content"`
	Ciphertext []byte      `json:"ciphertext,omitempty" db:"ciphertext"`
	Nonce      []byte      `json:"nonce,omitempty" db:"nonce"`
}

// Validate checks the envelope fields agree with EncVersion.
func (m *Message) Validate() error {
	if m.ID == "" || m.MatchID == "" || m.SenderID == "" {
		return fmt.Errorf("%w: message %q is missing identifiers", ErrMalformed, m.ID)
	}
	switch m.EncVersion {
	case EncVersionPlaintext:
		if len(m.Ciphertext) != 0 {
			return fmt.Errorf("%w: plaintext message %q carries ciphertext", ErrMalformed, m.ID)
		}
	case EncVersionAESGCM:
		if len(m.Ciphertext) == 0 || len(m.Nonce) == 0 {
			return fmt.Errorf("%w: encrypted message %q is missing ciphertext or nonce", ErrMalformed, m.ID)
		}
		if m.Content != "" {
			return fmt.Errorf("%w: encrypted message %q carries plaintext", ErrMalformed, m.ID)
		}
	default:
		return fmt.Errorf("%w: message %q has unknown envelope version %d", ErrMalformed, m.ID, m.EncVersion)
	}
	return nil
}

// MessageEvent is published on the conversation feed after a durable write.
type MessageEvent struct {
	MatchID   string `json:"match_id"`
	MessageID string `json:"message_id"`
	SenderID  string `json:"sender_id"`
}
