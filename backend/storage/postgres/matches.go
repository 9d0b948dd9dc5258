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
	"time"

	"github.com/efchatnet/skillmatch/backend/models"
	"github.com/efchatnet/skillmatch/backend/storage"
)

const matchColumns = `match_id, user1_id, user2_id, status, created_at, expires_at, last_message_at, conversation_key, version`

// createAttempts bounds the insert/select loop when the existing ACTIVE match
// changes status between the two statements.
const createAttempts = 3

// CreateActiveMatch relies on the partial unique index over the canonical
// pair. A losing concurrent insert waits for the winner to commit and then
// reads its id.
func (s *Store) CreateActiveMatch(ctx context.Context, m models.Match) (string, bool, error) {
	low, high := models.CanonicalPair(m.User1ID, m.User2ID)

	for attempt := 0; attempt < createAttempts; attempt++ {
		var id string
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO matches (`+matchColumns+`, pair_low, pair_high)
			VALUES ($1, $2, $3, $4, $5, $6, NULL, NULL, 0, $7, $8)
			ON CONFLICT (pair_low, pair_high) WHERE status = 'ACTIVE' DO NOTHING
			RETURNING match_id`,
			m.ID, m.User1ID, m.User2ID, string(models.MatchActive), m.CreatedAt, m.ExpiresAt, low, high).Scan(&id)
		if err == nil {
			return id, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", false, err
		}

		err = s.db.QueryRowContext(ctx, `
			SELECT match_id FROM matches
			WHERE pair_low = $1 AND pair_high = $2 AND status = 'ACTIVE'`, low, high).Scan(&id)
		if err == nil {
			return id, false, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", false, err
		}
	}
	return "", false, fmt.Errorf("active match %s/%s: %w", low, high, models.ErrConflict)
}

func (s *Store) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	return getMatch(ctx, s.db, id, "")
}

func getMatch(ctx context.Context, q querier, id, lock string) (*models.Match, error) {
	row := q.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE match_id = $1`+lock, id)
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
		WHERE pair_low = $1 AND pair_high = $2 AND status = 'ACTIVE'`, low, high)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active match %s/%s: %w", low, high, models.ErrNotFound)
	}
	return m, err
}

// UpdateMatch locks the row for the duration of fn, so concurrent callers
// observe each other's writes in order.
func (s *Store) UpdateMatch(ctx context.Context, id string, fn storage.MatchMutator) (*models.Match, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	m, err := getMatch(ctx, tx, id, " FOR UPDATE")
	if err != nil {
		return nil, err
	}
	if err := fn(m); err != nil {
		return nil, err
	}
	m.Version++

	_, err = tx.ExecContext(ctx, `
		UPDATE matches
		SET status = $1, expires_at = $2, last_message_at = $3, conversation_key = $4, version = $5
		WHERE match_id = $6`,
		string(m.Status), m.ExpiresAt, nullTime(m.LastMessageAt), m.ConversationKey, m.Version, id)
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
	query := `SELECT ` + matchColumns + ` FROM matches WHERE (user1_id = $1 OR user2_id = $1)`
	args := []any{userID}
	if status != "" {
		query += ` AND status = $2`
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
		WHERE status = 'ACTIVE' AND expires_at <= $1 AND last_message_at IS NULL
		ORDER BY expires_at, match_id
		LIMIT $2`, now, limit)
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
	_, err := s.db.ExecContext(ctx, `DELETE FROM matches WHERE match_id = $1`, id)
	return err
}

func scanMatch(row scanner) (*models.Match, error) {
	var (
		m             models.Match
		status        string
		lastMessageAt sql.NullTime
		key           []byte
	)
	if err := row.Scan(&m.ID, &m.User1ID, &m.User2ID, &status, &m.CreatedAt, &m.ExpiresAt, &lastMessageAt, &key, &m.Version); err != nil {
		return nil, err
	}
	m.Status = models.MatchStatus(status)
	m.CreatedAt = m.CreatedAt.UTC()
	m.ExpiresAt = m.ExpiresAt.UTC()
	m.LastMessageAt = timePtr(lastMessageAt)
	if len(key) > 0 {
		m.ConversationKey = key
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
