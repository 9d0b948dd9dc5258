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
	"time"

	"github.com/efchatnet/skillmatch/backend/models"
	"github.com/efchatnet/skillmatch/backend/storage"
)

const matchColumns = `match_id, user1_id, user2_id, status, created_at, expires_at, last_message_at, conversation_key, version`

// CreateActiveMatch checks for an ACTIVE match on the canonical pair and
// inserts inside the same transaction. The partial unique index backs the
// check if another process shares the file.
func (s *Store) CreateActiveMatch(ctx context.Context, m models.Match) (string, bool, error) {
	low, high := models.CanonicalPair(m.User1ID, m.User2ID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, err
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, `
		SELECT match_id FROM matches
		WHERE pair_low = ? AND pair_high = ? AND status = 'ACTIVE'`, low, high).Scan(&existing)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return "", false, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO matches (`+matchColumns+`, pair_low, pair_high)
		VALUES (?, ?, ?, ?, ?, ?, NULL, NULL, 0, ?, ?)`,
		m.ID, m.User1ID, m.User2ID, string(models.MatchActive),
		m.CreatedAt.UnixNano(), m.ExpiresAt.UnixNano(), low, high)
	if isUniqueViolation(err) {
		return "", false, fmt.Errorf("active match %s/%s: %w", low, high, models.ErrConflict)
	}
	if err != nil {
		return "", false, err
	}
	if err := tx.Commit(); err != nil {
		return "", false, err
	}
	return m.ID, true, nil
}

func (s *Store) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	return getMatch(ctx, s.db, id)
}

func getMatch(ctx context.Context, q querier, id string) (*models.Match, error) {
	row := q.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE match_id = ?`, id)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("match %s: %w", id, models.ErrNotFound)
	}
	return m, err
}

func (s *Store) FindActiveMatch(ctx context.Context, userA, userB string) (*models.Match, error) {
	low, high := models.CanonicalPair(userA, userB)
	row := s.db.QueryRowContext(ctx, `
		SELECT `+matchColumns+` FROM matches
		WHERE pair_low = ? AND pair_high = ? AND status = 'ACTIVE'`, low, high)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active match %s/%s: %w", low, high, models.ErrNotFound)
	}
	return m, err
}

func (s *Store) UpdateMatch(ctx context.Context, id string, fn storage.MatchMutator) (*models.Match, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	m, err := getMatch(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(m); err != nil {
		return nil, err
	}
	m.Version++

	_, err = tx.ExecContext(ctx, `
		UPDATE matches
		SET status = ?, expires_at = ?, last_message_at = ?, conversation_key = ?, version = ?
		WHERE match_id = ?`,
		string(m.Status), m.ExpiresAt.UnixNano(), nullNanos(m.LastMessageAt), m.ConversationKey, m.Version, id)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("match %s: %w", id, models.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) ListMatches(ctx context.Context, userID string, status models.MatchStatus) ([]models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE (user1_id = ? OR user2_id = ?)`
	args := []any{userID, userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, match_id`
	return s.queryMatches(ctx, query, args...)
}

func (s *Store) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]models.Match, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryMatches(ctx, `
		SELECT `+matchColumns+` FROM matches
		WHERE status = 'ACTIVE' AND expires_at <= ? AND last_message_at IS NULL
		ORDER BY expires_at, match_id
		LIMIT ?`, now.UnixNano(), limit)
}

func (s *Store) queryMatches(ctx context.Context, query string, args ...any) ([]models.Match, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *Store) DeleteMatch(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM matches WHERE match_id = ?`, id)
	return err
}

func scanMatch(row scanner) (*models.Match, error) {
	var (
		m                    models.Match
		status               string
		createdAt, expiresAt int64
		lastMessageAt        sql.NullInt64
		key                  []byte
	)
	if err := row.Scan(&m.ID, &m.User1ID, &m.User2ID, &status, &createdAt, &expiresAt, &lastMessageAt, &key, &m.Version); err != nil {
		return nil, err
	}
	m.Status = models.MatchStatus(status)
	m.CreatedAt = fromNanos(createdAt)
	m.ExpiresAt = fromNanos(expiresAt)
	m.LastMessageAt = timePtr(lastMessageAt)
	if len(key) > 0 {
		m.ConversationKey = key
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
