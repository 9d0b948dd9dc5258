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

package models

import (
	"fmt"
	"time"
)

type MatchStatus string

const (
	MatchActive  MatchStatus = "ACTIVE"
	MatchExpired MatchStatus = "EXPIRED"
	MatchEnded   MatchStatus = "ENDED"
)

// DefaultMatchTTL is the advisory lifetime written into ExpiresAt.
const DefaultMatchTTL = 24 * time.Hour

func (s MatchStatus) Valid() bool {
	switch s {
	case MatchActive, MatchExpired, MatchEnded:
		return true
	}
	return false
}

// Match pairs two users and owns their conversation key.
type Match struct {
	ID            string      `json:"id" db:"match_id"`
	User1ID       string      `json:"user1_id" db:"user1_id"`
	User2ID       string      `json:"user2_id" db:"user2_id"`
	Status        MatchStatus `json:"status" db:"status"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	ExpiresAt     time.Time   `json:"expires_at" db:"expires_at"`
	LastMessageAt *time.Time  `json:"last_message_at,omitempty" db:"last_message_at"`

	// ConversationKey is the raw 32 byte key, nil until provisioned.
	// Never serialised to API clients.
	ConversationKey []byte `json:"-" db:"conversation_key"`
	Version         int64  `json:"-" db:"version"`
}

// Involves reports whether userID is one of the two participants.
func (m *Match) Involves(userID string) bool {
	return m.User1ID == userID || m.User2ID == userID
}

// Peer returns the participant that is not self.
func (m *Match) Peer(self string) string {
	if m.User1ID == self {
		return m.User2ID
	}
	return m.User1ID
}

// HasKey reports whether a conversation key has been provisioned.
func (m *Match) HasKey() bool {
	return len(m.ConversationKey) > 0
}

func (m *Match) Validate() error {
	if m.ID == "" || m.User1ID == "" || m.User2ID == "" {
		return fmt.Errorf("%w: match %q is missing identifiers", ErrMalformed, m.ID)
	}
	if !m.Status.Valid() {
		return fmt.Errorf("%w: match %q has unknown status %q", ErrMalformed, m.ID, m.Status)
	}
	return nil
}

// CanonicalPair orders two user ids so that the same unordered pair always
// produces the same key.
func CanonicalPair(a, b string) (low, high string) {
	if a <= b {
		return a, b
	}
	return b, a
}

// NewMatch builds a fresh ACTIVE match between a and b created at now.
func NewMatch(id, a, b string, now time.Time, ttl time.Duration) Match {
	if ttl <= 0 {
		ttl = DefaultMatchTTL
	}
	return Match{
		ID:        id,
		User1ID:   a,
		User2ID:   b,
		Status:    MatchActive,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}
