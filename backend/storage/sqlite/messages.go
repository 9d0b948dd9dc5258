// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/efchatnet/skillmatch/backend/models"
)

const messageColumns = `message_id, match_id, sender_id, receiver_id, sent_at, is_read, message_type, enc_version, content, ciphertext, nonce`

func (s *Store) SaveMessage(ctx context.Context, msg models.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.Type == "" {
		msg.Type = models.MessageText
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.MatchID, msg.SenderID, msg.ReceiverID, msg.Timestamp.UnixNano(),
		msg.IsRead, string(msg.Type), msg.EncVersion, msg.Content, msg.Ciphertext, msg.Nonce)
	if isUniqueViolation(err) {
		return fmt.Errorf("message %s: %w", msg.ID, models.ErrConflict)
	}
	return err
}

func (s *Store) GetMessage(ctx context.Context, matchID, messageID string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE match_id = ? AND message_id = ?`, matchID, messageID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", messageID, models.ErrNotFound)
	}
	return m, err
}

func (s *Store) ListMessages(ctx context.Context, matchID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE match_id = ?
		ORDER BY sent_at, message_id`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *Store) DeleteMessagesForMatch(ctx context.Context, matchID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE match_id = ?`, matchID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func scanMessage(row scanner) (*models.Message, error) {
	var (
		m       models.Message
		sentAt  int64
		msgType string
	)
	if err := row.Scan(&m.ID, &m.MatchID, &m.SenderID, &m.ReceiverID, &sentAt, &m.IsRead,
		&msgType, &m.EncVersion, &m.Content, &m.Ciphertext, &m.Nonce); err != nil {
		return nil, err
	}
	m.Timestamp = fromNanos(sentAt)
	m.Type = models.MessageType(msgType)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
