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

// Package chat opens conversations and sends messages between matched users.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/efchatnet/skillmatch/backend/envelope"
	"github.com/efchatnet/skillmatch/backend/janitor"
	"github.com/efchatnet/skillmatch/backend/keyvault"
	"github.com/efchatnet/skillmatch/backend/metrics"
	"github.com/efchatnet/skillmatch/backend/models"
	"github.com/efchatnet/skillmatch/backend/session"
	"github.com/efchatnet/skillmatch/backend/storage"
)

// MaxMessageLength bounds a trimmed message body in bytes.
const MaxMessageLength = 4000

// Entry is a message as shown to one participant.
type Entry struct {
	ID            string             `json:"id"`
	MatchID       string             `json:"match_id"`
	SenderID      string             `json:"sender_id"`
	ReceiverID    string             `json:"receiver_id"`
	Timestamp     time.Time          `json:"timestamp"`
	IsRead        bool               `json:"is_read"`
	Type          models.MessageType `json:"type"`
	Text          string             `json:"text"`
	Mine          bool               `json:"mine"`
	Undecryptable bool               `json:"undecryptable,omitempty"`
}

type Service struct {
	store   storage.Store
	vault   *keyvault.Vault
	janitor *janitor.Janitor
	feed    storage.Feed
	log     zerolog.Logger
	now     func() time.Time
	newID   func() string
}

func NewService(store storage.Store, vault *keyvault.Vault, jan *janitor.Janitor, feed storage.Feed, log zerolog.Logger) *Service {
	return &Service{
		store:   store,
		vault:   vault,
		janitor: jan,
		feed:    feed,
		log:     log.With().Str("component", "chat").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// ListConversations returns the caller's ACTIVE matches whose peer still
// exists, most recently used first.
func (s *Service) ListConversations(ctx context.Context, sess session.Session) ([]models.Match, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	matches, err := s.store.ListMatches(ctx, sess.UserID, models.MatchActive)
	if err != nil {
		return nil, models.StoreFailure(err)
	}
	live, err := s.janitor.FilterLive(ctx, sess.UserID, matches)
	if err != nil {
		return nil, err
	}
	sortByActivity(live)
	return live, nil
}

// OpenConversation resolves matchID for the caller and makes sure the
// conversation key exists before any message is read.
func (s *Service) OpenConversation(ctx context.Context, sess session.Session, matchID string) (*Conversation, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	m, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, models.StoreFailure(err)
	}
	return s.open(ctx, sess, m)
}

// OpenConversationWithPeer opens the ACTIVE match between the caller and
// peerID. It never creates a match. A peer without a profile is reported as
// gone, whether or not the match was already purged.
func (s *Service) OpenConversationWithPeer(ctx context.Context, sess session.Session, peerID string) (*Conversation, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	_, perr := s.store.GetProfile(ctx, peerID)
	if perr != nil && !errors.Is(perr, models.ErrNotFound) {
		return nil, models.StoreFailure(perr)
	}
	m, err := s.store.FindActiveMatch(ctx, sess.UserID, peerID)
	if err != nil {
		if perr != nil && errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %s", models.ErrParticipantGone, peerID)
		}
		return nil, models.StoreFailure(err)
	}
	return s.open(ctx, sess, m)
}

func (s *Service) open(ctx context.Context, sess session.Session, m *models.Match) (*Conversation, error) {
	if !m.Involves(sess.UserID) {
		return nil, fmt.Errorf("%w: %s is not part of match %s", models.ErrForbidden, sess.UserID, m.ID)
	}
	if err := s.janitor.Verify(ctx, sess.UserID, m); err != nil {
		return nil, err
	}
	key, err := s.vault.EnsureKey(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	return &Conversation{svc: s, sess: sess, match: *m, key: key}, nil
}

// SendMessage encrypts text under the match key and stores it. The match is
// never written to in plaintext once a key can be provisioned; a key
// failure fails the send.
func (s *Service) SendMessage(ctx context.Context, sess session.Session, matchID, text string) (*Entry, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message is empty", models.ErrValidation)
	}
	if len(text) > MaxMessageLength {
		return nil, fmt.Errorf("%w: message exceeds %d bytes", models.ErrValidation, MaxMessageLength)
	}

	conv, err := s.OpenConversation(ctx, sess, matchID)
	if err != nil {
		return nil, err
	}
	if conv.match.Status != models.MatchActive {
		return nil, fmt.Errorf("%w: match %s is %s", models.ErrInvalidTransition, matchID, conv.match.Status)
	}

	msg := models.Message{
		ID:         s.newID(),
		MatchID:    matchID,
		SenderID:   sess.UserID,
		ReceiverID: conv.match.Peer(sess.UserID),
		Timestamp:  s.now(),
		Type:       models.MessageText,
	}
	if err := envelope.Seal(conv.key, &msg, text); err != nil {
		return nil, err
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, models.StoreFailure(err)
	}
	metrics.MessageSent()

	if _, err := s.store.UpdateMatch(ctx, matchID, func(m *models.Match) error {
		if m.LastMessageAt == nil || m.LastMessageAt.Before(msg.Timestamp) {
			at := msg.Timestamp
			m.LastMessageAt = &at
		}
		return nil
	}); err != nil {
		s.log.Warn().Err(err).Str("match_id", matchID).Msg("failed to update last message time")
	}
	if s.feed != nil {
		evt := models.MessageEvent{MatchID: matchID, MessageID: msg.ID, SenderID: msg.SenderID}
		if err := s.feed.Publish(ctx, evt); err != nil {
			s.log.Warn().Err(err).Str("match_id", matchID).Msg("failed to publish message event")
		}
	}

	e := conv.entry(msg, text, false)
	return &e, nil
}

// Conversation is an opened match with its key. The key stays inside.
type Conversation struct {
	svc   *Service
	sess  session.Session
	match models.Match
	key   envelope.Key
}

func (c *Conversation) Match() models.Match { return c.match }

// History returns every message oldest first. Messages that fail to verify
// are returned with a placeholder text.
func (c *Conversation) History(ctx context.Context) ([]Entry, error) {
	msgs, err := c.svc.store.ListMessages(ctx, c.match.ID)
	if err != nil {
		return nil, models.StoreFailure(err)
	}
	out := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, c.decode(m))
	}
	return out, nil
}

func (c *Conversation) decode(m models.Message) Entry {
	text, variant, err := envelope.OpenVariant(c.key, m)
	if err != nil {
		metrics.MessageOpened(metrics.DecryptFailed)
		if !errors.Is(err, models.ErrAuthenticationFailed) {
			c.svc.log.Warn().Err(err).Str("match_id", m.MatchID).Str("message_id", m.ID).Msg("unreadable message")
		}
		return c.entry(m, envelope.Placeholder, true)
	}
	metrics.MessageOpened(variant.String())
	return c.entry(m, text, false)
}

func (c *Conversation) entry(m models.Message, text string, undecryptable bool) Entry {
	msgType := m.Type
	if msgType == "" {
		msgType = models.MessageText
	}
	return Entry{
		ID:            m.ID,
		MatchID:       m.MatchID,
		SenderID:      m.SenderID,
		ReceiverID:    m.ReceiverID,
		Timestamp:     m.Timestamp,
		IsRead:        m.IsRead,
		Type:          msgType,
		Text:          text,
		Mine:          m.SenderID == c.sess.UserID,
		Undecryptable: undecryptable,
	}
}

// Stream delivers the history followed by new messages as they are
// written. The subscription is taken before the history is read so no
// message falls between the two. Inbound messages trigger a notification.
// The channel is closed when ctx ends or the feed goes away.
func (c *Conversation) Stream(ctx context.Context) (<-chan Entry, error) {
	if c.svc.feed == nil {
		return nil, fmt.Errorf("%w: no conversation feed configured", models.ErrStoreUnavailable)
	}
	events, err := c.svc.feed.Subscribe(ctx, c.match.ID)
	if err != nil {
		return nil, models.StoreFailure(err)
	}
	history, err := c.History(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan Entry, len(history)+8)
	seen := make(map[string]bool, len(history))
	for _, e := range history {
		seen[e.ID] = true
		out <- e
	}

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				if !c.catchUp(ctx, seen, out) {
					return
				}
			}
		}
	}()
	return out, nil
}

// catchUp re-reads the conversation and emits unseen messages. Events only
// signal that something changed, so dropped or duplicate events are harmless.
func (c *Conversation) catchUp(ctx context.Context, seen map[string]bool, out chan<- Entry) bool {
	msgs, err := c.svc.store.ListMessages(ctx, c.match.ID)
	if err != nil {
		c.svc.log.Warn().Err(err).Str("match_id", c.match.ID).Msg("failed to refresh conversation")
		return ctx.Err() == nil
	}
	for _, m := range msgs {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		e := c.decode(m)
		if !e.Mine {
			c.sess.Notify("New message", e.Text)
		}
		select {
		case out <- e:
		case <-ctx.Done():
			return false
		}
	}
	return true
}
