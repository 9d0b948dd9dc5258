// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package sqlite

import "context"

// Timestamps are stored as unix nanoseconds, skill lists as JSON arrays.
func (s *Store) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			known_skills TEXT NOT NULL DEFAULT '[]',
			wanted_skills TEXT NOT NULL DEFAULT '[]',
			created_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS match_requests (
			request_id TEXT PRIMARY KEY,
			from_user_id TEXT NOT NULL,
			to_user_id TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			match_id TEXT,
			matched_at INTEGER,
			version INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE UNIQUE INDEX IF NOT EXISTS idx_requests_pending_pair
		ON match_requests(from_user_id, to_user_id)
		WHERE status = 'PENDING'`,

		`CREATE INDEX IF NOT EXISTS idx_requests_to ON match_requests(to_user_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_match ON match_requests(match_id)`,

		`CREATE TABLE IF NOT EXISTS matches (
			match_id TEXT PRIMARY KEY,
			user1_id TEXT NOT NULL,
			user2_id TEXT NOT NULL,
			pair_low TEXT NOT NULL,
			pair_high TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL,
			last_message_at INTEGER,
			conversation_key BLOB,
			version INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE UNIQUE INDEX IF NOT EXISTS idx_matches_active_pair
		ON matches(pair_low, pair_high)
		WHERE status = 'ACTIVE'`,

		`CREATE INDEX IF NOT EXISTS idx_matches_user1 ON matches(user1_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_user2 ON matches(user2_id, status)`,

		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			match_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			receiver_id TEXT NOT NULL,
			sent_at INTEGER NOT NULL,
			is_read INTEGER NOT NULL DEFAULT 0,
			message_type TEXT NOT NULL DEFAULT 'TEXT',
			enc_version INTEGER NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			ciphertext BLOB,
			nonce BLOB
		)`,

		`CREATE INDEX IF NOT EXISTS idx_messages_match ON messages(match_id, sent_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return err
		}
	}
	return nil
}
