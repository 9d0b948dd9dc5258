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

package storage

import (
	"context"
	"time"

	"github.com/efchatnet/skillmatch/backend/models"
)

// ProfileStore is the read side of the external profile collaborator. The
// write methods exist for seeding and tests.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	ListProfiles(ctx context.Context) ([]models.UserProfile, error)
	SaveProfile(ctx context.Context, p models.UserProfile) error
	DeleteProfile(ctx context.Context, userID string) error
}

// RequestMutator edits a request inside a transaction. Returning an error
// aborts the write.
type RequestMutator func(r *models.MatchRequest) error

type RequestStore interface {
	// CreatePendingRequest inserts r atomically, failing with models.ErrConflict
	// when a PENDING request already exists for the same ordered pair.
	CreatePendingRequest(ctx context.Context, r models.MatchRequest) error
	GetRequest(ctx context.Context, id string) (*models.MatchRequest, error)
	UpdateRequest(ctx context.Context, id string, fn RequestMutator) (*models.MatchRequest, error)
	ListRequests(ctx context.Context, q models.RequestQuery) ([]models.MatchRequest, error)
	DeleteRequest(ctx context.Context, id string) error
}

// MatchMutator edits a match inside a transaction.
type MatchMutator func(m *models.Match) error

type MatchStore interface {
	// CreateActiveMatch stores m unless an ACTIVE match already exists for the
	// same unordered pair, in which case the existing id is returned with
	// created=false.
	CreateActiveMatch(ctx context.Context, m models.Match) (id string, created bool, err error)
	GetMatch(ctx context.Context, id string) (*models.Match, error)
	FindActiveMatch(ctx context.Context, userA, userB string) (*models.Match, error)
	UpdateMatch(ctx context.Context, id string, fn MatchMutator) (*models.Match, error)
	// ListMatches returns matches involving userID; empty status means any.
	ListMatches(ctx context.Context, userID string, status models.MatchStatus) ([]models.Match, error)
	ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]models.Match, error)
	DeleteMatch(ctx context.Context, id string) error
}

type MessageStore interface {
	SaveMessage(ctx context.Context, msg models.Message) error
	GetMessage(ctx context.Context, matchID, messageID string) (*models.Message, error)
	// ListMessages returns the conversation ordered by timestamp, oldest first.
	ListMessages(ctx context.Context, matchID string) ([]models.Message, error)
	DeleteMessagesForMatch(ctx context.Context, matchID string) (int, error)
}

// Feed is the push-based change subscription for conversations.
type Feed interface {
	Publish(ctx context.Context, evt models.MessageEvent) error
	// Subscribe delivers events for matchID until ctx is done, then closes the channel.
	Subscribe(ctx context.Context, matchID string) (<-chan models.MessageEvent, error)
}

type Store interface {
	ProfileStore
	RequestStore
	MatchStore
	MessageStore
	Ping(ctx context.Context) error
	Close() error
}
