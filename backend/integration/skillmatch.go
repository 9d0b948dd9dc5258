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

// Package integration wires the engine into a host router, either the
// standalone server or an efchat process embedding it as a plugin.
package integration

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/efchatnet/skillmatch/backend/chat"
	"github.com/efchatnet/skillmatch/backend/handlers"
	"github.com/efchatnet/skillmatch/backend/janitor"
	"github.com/efchatnet/skillmatch/backend/keyvault"
	"github.com/efchatnet/skillmatch/backend/matching"
	"github.com/efchatnet/skillmatch/backend/middleware"
	"github.com/efchatnet/skillmatch/backend/notify"
	"github.com/efchatnet/skillmatch/backend/session"
	"github.com/efchatnet/skillmatch/backend/skills"
	"github.com/efchatnet/skillmatch/backend/storage"
	redisstore "github.com/efchatnet/skillmatch/backend/storage/redis"
)

// Config holds the collaborators of the engine. Feed and Redis are optional;
// without a feed conversations cannot be streamed, without Redis
// notifications only reach the log.
type Config struct {
	Store          storage.Store
	Feed           storage.Feed
	Redis          *redis.Client
	Matcher        *skills.Matcher
	MatchTTL       time.Duration
	KeyRetryMax    int
	NotifyQueue    int
	JWTSecret      string
	JWTIssuer      string
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// SkillMatch bundles the flows and handlers behind one registration call.
type SkillMatch struct {
	store        storage.Store
	redis        *redis.Client
	notifyQueue  *notify.Queue
	flow         *matching.Flow
	chat         *chat.Service
	janitor      *janitor.Janitor
	matchHandler *handlers.MatchHandler
	convHandler  *handlers.ConversationHandler
	jwtSecret    string
	jwtIssuer    string
	log          zerolog.Logger
}

func New(cfg *Config) (*SkillMatch, error) {
	if cfg.Store == nil {
		return nil, &ValidationError{Message: "store is not configured"}
	}
	log := cfg.Logger

	opts := []matching.Option{matching.WithMatchTTL(cfg.MatchTTL)}
	if cfg.Matcher != nil {
		opts = append(opts, matching.WithMatcher(cfg.Matcher))
	}
	jan := janitor.New(cfg.Store, log)
	vault := keyvault.New(cfg.Store, log, keyvault.Config{MaxAttempts: cfg.KeyRetryMax})

	s := &SkillMatch{
		store:       cfg.Store,
		redis:       cfg.Redis,
		notifyQueue: notify.NewQueue(cfg.NotifyQueue, log),
		flow:        matching.NewFlow(cfg.Store, log, opts...),
		chat:        chat.NewService(cfg.Store, vault, jan, cfg.Feed, log),
		janitor:     jan,
		jwtSecret:   cfg.JWTSecret,
		jwtIssuer:   cfg.JWTIssuer,
		log:         log,
	}
	s.matchHandler = handlers.NewMatchHandler(s.flow, s.Session, log)
	s.convHandler = handlers.NewConversationHandler(s.chat, s.Session, cfg.AllowedOrigins, log)
	return s, nil
}

// RegisterRoutes adds the engine routes to an existing router.
// If authMiddleware is nil, it will use the built-in JWT validation.
func (s *SkillMatch) RegisterRoutes(router *mux.Router, authMiddleware func(http.Handler) http.Handler) {
	api := router.PathPrefix("/api/skillmatch").Subrouter()

	if authMiddleware != nil {
		api.Use(authMiddleware)
	} else {
		api.Use(middleware.NewAuthMiddleware(s.jwtSecret, s.jwtIssuer))
	}

	// Discovery and requests
	api.HandleFunc("/candidates", s.matchHandler.GetCandidates).Methods("GET", "OPTIONS")
	api.HandleFunc("/requests", s.matchHandler.SendRequest).Methods("POST", "OPTIONS")
	api.HandleFunc("/requests/incoming", s.matchHandler.GetIncoming).Methods("GET", "OPTIONS")
	api.HandleFunc("/requests/{id}/accept", s.matchHandler.AcceptRequest).Methods("POST", "OPTIONS")
	api.HandleFunc("/requests/{id}/reject", s.matchHandler.RejectRequest).Methods("POST", "OPTIONS")

	// Matches
	api.HandleFunc("/matches", s.convHandler.ListMatches).Methods("GET", "OPTIONS")
	api.HandleFunc("/matches/{id}/end", s.matchHandler.EndMatch).Methods("POST", "OPTIONS")

	// Conversations
	api.HandleFunc("/conversations/peer/{peerId}/messages", s.convHandler.GetMessagesWithPeer).Methods("GET", "OPTIONS")
	api.HandleFunc("/conversations/{matchId}/messages", s.convHandler.GetMessages).Methods("GET", "OPTIONS")
	api.HandleFunc("/conversations/{matchId}/messages", s.convHandler.SendMessage).Methods("POST", "OPTIONS")
	api.HandleFunc("/conversations/{matchId}/stream", s.convHandler.Stream).Methods("GET")
}

// Session builds the per-caller session. Notifications always reach the
// log and are published to the user's Redis channel when Redis is wired.
// Delivery runs on the notification queue, never on the request path.
func (s *SkillMatch) Session(userID string) session.Session {
	var n notify.Notifier = notify.NewLog(s.log, userID)
	if s.redis != nil {
		n = notify.Multi{n, redisstore.NewNotifier(s.redis, userID, s.log)}
	}
	return session.Session{UserID: userID, Notifier: s.notifyQueue.Wrap(n)}
}

// Close stops notification delivery. Sessions built afterwards drop their
// notifications.
func (s *SkillMatch) Close() {
	s.notifyQueue.Close()
}

// HealthHandler pings the store and, when wired, Redis.
func (s *SkillMatch) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.log.Warn().Err(err).Msg("health check: store unavailable")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Database unavailable"))
		return
	}
	if s.redis != nil {
		if err := redisstore.Ping(ctx, s.redis); err != nil {
			s.log.Warn().Err(err).Msg("health check: redis unavailable")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("Redis unavailable"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *SkillMatch) Store() storage.Store { return s.store }

func (s *SkillMatch) Flow() *matching.Flow { return s.flow }

func (s *SkillMatch) Chat() *chat.Service { return s.chat }

// CleanupMatch removes a match with its messages and requests, for hosts
// that delete accounts on their side.
func (s *SkillMatch) CleanupMatch(ctx context.Context, matchID string) error {
	return s.janitor.Purge(ctx, matchID)
}

// ValidateSetup checks that the engine is properly configured.
func (s *SkillMatch) ValidateSetup(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return errors.Join(&ValidationError{Message: "store is unreachable"}, err)
	}
	if s.jwtSecret == "" {
		return &ValidationError{Message: "JWT secret is not configured"}
	}
	return nil
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
