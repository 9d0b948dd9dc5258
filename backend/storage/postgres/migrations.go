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

import "context"

func (s *Store) Migrate(ctx context.Context) error {
	migrations := []string{
		// Profiles are owned by the profile service; this table is its local projection
		`CREATE TABLE IF NOT EXISTS users (
			user_id VARCHAR(255) PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			known_skills TEXT[] NOT NULL DEFAULT '{}',
			wanted_skills TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS match_requests (
			request_id VARCHAR(255) PRIMARY KEY,
			from_user_id VARCHAR(255) NOT NULL,
			to_user_id VARCHAR(255) NOT NULL,
			status VARCHAR(16) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			match_id VARCHAR(255),
			matched_at TIMESTAMPTZ,
			version BIGINT NOT NULL DEFAULT 0
		)`,

		// At most one PENDING request per ordered pair
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_requests_pending_pair
		ON match_requests(from_user_id, to_user_id)
		WHERE status = 'PENDING'`,

		`CREATE INDEX IF NOT EXISTS idx_requests_to
		ON match_requests(to_user_id, status)`,

		`CREATE INDEX IF NOT EXISTS idx_requests_match
		ON match_requests(match_id)
		WHERE match_id IS NOT NULL`,

		`CREATE TABLE IF NOT EXISTS matches (
			match_id VARCHAR(255) PRIMARY KEY,
			user1_id VARCHAR(255) NOT NULL,
			user2_id VARCHAR(255) NOT NULL,
			pair_low VARCHAR(255) NOT NULL,
			pair_high VARCHAR(255) NOT NULL,
			status VARCHAR(16) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			expires_at TIMESTAMPTZ NOT NULL,
			last_message_at TIMESTAMPTZ,
			conversation_key BYTEA,
			version BIGINT NOT NULL DEFAULT 0
		)`,

		// At most one ACTIVE match per unordered pair
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_matches_active_pair
		ON matches(pair_low, pair_high)
		WHERE status = 'ACTIVE'`,

		`CREATE INDEX IF NOT EXISTS idx_matches_user1 ON matches(user1_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_user2 ON matches(user2_id, status)`,

		`CREATE INDEX IF NOT EXISTS idx_matches_expiry
		ON matches(expires_at)
		WHERE status = 'ACTIVE' AND last_message_at IS NULL`,

		`CREATE TABLE IF NOT EXISTS messages (
			message_id VARCHAR(255) PRIMARY KEY,
			match_id VARCHAR(255) NOT NULL,
			sender_id VARCHAR(255) NOT NULL,
			receiver_id VARCHAR(255) NOT NULL,
			sent_at TIMESTAMPTZ NOT NULL,
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			message_type VARCHAR(16) NOT NULL DEFAULT 'TEXT',
			enc_version SMALLINT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			ciphertext BYTEA,
			nonce BYTEA
		)`,

		`CREATE INDEX IF NOT EXISTS idx_messages_match
		ON messages(match_id, sent_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return err
		}
	}

	return nil
}
