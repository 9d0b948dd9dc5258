// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package postgres

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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO match_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, NULL, NULL, 0)`,
		r.ID, r.FromUserID, r.ToUserID, string(models.RequestPending), r.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("pending request %s -> %s: %w", r.FromUserID, r.ToUserID, models.ErrConflict)
	}
	return err
}

func (s *Store) GetRequest(ctx context.Context, id string) (*models.MatchRequest, error) {
	return getRequest(ctx, s.db, id, "")
}

func getRequest(ctx context.Context, q querier, id, lock string) (*models.MatchRequest, error) {
	row := q.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM match_requests WHERE request_id = $1`+lock, id)
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

	r, err := getRequest(ctx, tx, id, " FOR UPDATE")
	if err != nil {
		return nil, err
	}
	if err := fn(r); err != nil {
		return nil, err
	}
	r.Version++

	_, err = tx.ExecContext(ctx, `
		UPDATE match_requests SET status = $1, match_id = $2, matched_at = $3, version = $4
		WHERE request_id = $5`,
		string(r.Status), nullString(r.MatchID), nullTime(r.MatchedAt), r.Version, id)
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
	add := func(column, value string) {
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if q.FromUserID != "" {
		add("from_user_id", q.FromUserID)
	}
	if q.ToUserID != "" {
		add("to_user_id", q.ToUserID)
	}
	if q.Status != "" {
		add("status", string(q.Status))
	}
	if q.MatchID != "" {
		add("match_id", q.MatchID)
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
	_, err := s.db.ExecContext(ctx, `DELETE FROM match_requests WHERE request_id = $1`, id)
	return err
}

func scanRequest(row scanner) (*models.MatchRequest, error) {
	var (
		r         models.MatchRequest
		status    string
		matchID   sql.NullString
		matchedAt sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.FromUserID, &r.ToUserID, &status, &r.CreatedAt, &matchID, &matchedAt, &r.Version); err != nil {
		return nil, err
	}
	r.Status = models.RequestStatus(status)
	r.CreatedAt = r.CreatedAt.UTC()
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
