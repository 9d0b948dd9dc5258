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
	"strings"

	"github.com/efchatnet/skillmatch/backend/models"
	"github.com/efchatnet/skillmatch/backend/storage"
)

const requestColumns = `request_id, from_user_id, to_user_id, status, created_at, match_id, matched_at, version`

func (s *Store) CreatePendingRequest(ctx context.Context, r models.MatchRequest) error {
	r.Status = models.RequestPending
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO match_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, NULL, NULL, 0)`,
		r.ID, r.FromUserID, r.ToUserID, string(r.Status), r.CreatedAt.UnixNano())
	if isUniqueViolation(err) {
		return fmt.Errorf("pending request %s -> %s: %w", r.FromUserID, r.ToUserID, models.ErrConflict)
	}
	return err
}

func (s *Store) GetRequest(ctx context.Context, id string) (*models.MatchRequest, error) {
	return getRequest(ctx, s.db, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRequest(ctx context.Context, q querier, id string) (*models.MatchRequest, error) {
	row := q.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM match_requests WHERE request_id = ?`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("request %s: %w", id, models.ErrNotFound)
	}
	return r, err
}

func (s *Store) UpdateRequest(ctx context.Context, id string, fn storage.RequestMutator) (*models.MatchRequest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	r, err := getRequest(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(r); err != nil {
		return nil, err
	}
	r.Version++

	_, err = tx.ExecContext(ctx, `
		UPDATE match_requests SET status = ?, match_id = ?, matched_at = ?, version = ?
		WHERE request_id = ?`,
		string(r.Status), nullString(r.MatchID), nullNanos(r.MatchedAt), r.Version, id)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("request %s: %w", id, models.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) ListRequests(ctx context.Context, q models.RequestQuery) ([]models.MatchRequest, error) {
	var (
		where []string
		args  []any
	)
	if q.FromUserID != "" {
		where = append(where, "from_user_id = ?")
		args = append(args, q.FromUserID)
	}
	if q.ToUserID != "" {
		where = append(where, "to_user_id = ?")
		args = append(args, q.ToUserID)
	}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(q.Status))
	}
	if q.MatchID != "" {
		where = append(where, "match_id = ?")
		args = append(args, q.MatchID)
	}

	query := `SELECT ` + requestColumns + ` FROM match_requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, request_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MatchRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Store) DeleteRequest(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM match_requests WHERE request_id = ?`, id)
	return err
}

func scanRequest(row scanner) (*models.MatchRequest, error) {
	var (
		r         models.MatchRequest
		status    string
		createdAt int64
		matchID   sql.NullString
		matchedAt sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.FromUserID, &r.ToUserID, &status, &createdAt, &matchID, &matchedAt, &r.Version); err != nil {
		return nil, err
	}
	r.Status = models.RequestStatus(status)
	r.CreatedAt = fromNanos(createdAt)
	if matchID.Valid {
		id := matchID.String
		r.MatchID = &id
	}
	r.MatchedAt = timePtr(matchedAt)
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
