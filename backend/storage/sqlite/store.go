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

// Package sqlite is the embedded single-node store. All access goes through
// one connection, so every transaction is serialised.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/efchatnet/skillmatch/backend/models"
)

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and runs migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, display_name, known_skills, wanted_skills, created_at
		FROM users WHERE user_id = ?`, userID)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", userID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]models.UserProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, display_name, known_skills, wanted_skills, created_at
		FROM users ORDER BY created_at, user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) SaveProfile(ctx context.Context, p models.UserProfile) error {
	known, err := json.Marshal(nonNil(p.KnownSkills))
	if err != nil {
		return err
	}
	wanted, err := json.Marshal(nonNil(p.WantedSkills))
	if err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, display_name, known_skills, wanted_skills, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE
		SET display_name = excluded.display_name,
		    known_skills = excluded.known_skills,
		    wanted_skills = excluded.wanted_skills`,
		p.ID, p.DisplayName, string(known), string(wanted), p.CreatedAt.UnixNano())
	return err
}

func (s *Store) DeleteProfile(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?`, userID)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (*models.UserProfile, error) {
	var (
		p              models.UserProfile
		known, wanted  string
		createdAtNanos int64
	)
	if err := row.Scan(&p.ID, &p.DisplayName, &known, &wanted, &createdAtNanos); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(known), &p.KnownSkills); err != nil {
		return nil, fmt.Errorf("%w: profile %s known skills: %v", models.ErrMalformed, p.ID, err)
	}
	if err := json.Unmarshal([]byte(wanted), &p.WantedSkills); err != nil {
		return nil, fmt.Errorf("%w: profile %s wanted skills: %v", models.ErrMalformed, p.ID, err)
	}
	p.CreatedAt = fromNanos(createdAtNanos)
	return &p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
