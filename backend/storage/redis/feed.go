// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/efchatnet/skillmatch/backend/models"
)

const (
	// Redis channel prefixes
	conversationPrefix = "conv:notify:" // conv:notify:{matchId} - message events
	userNotifyPrefix   = "notify:"      // notify:{userId} - user notifications

	notifyTimeout = 2 * time.Second
)

func conversationChannel(matchID string) string { return conversationPrefix + matchID }

func userChannel(userID string) string { return userNotifyPrefix + userID }

// Feed distributes message events between server instances over pub/sub.
// Events carry ids only; subscribers read message bodies from the store.
type Feed struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewFeed(rdb *redis.Client, log zerolog.Logger) *Feed {
	return &Feed{rdb: rdb, log: log.With().Str("component", "redis_feed").Logger()}
}

func (f *Feed) Publish(ctx context.Context, evt models.MessageEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := f.rdb.Publish(ctx, conversationChannel(evt.MatchID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe confirms the subscription before returning, so events published
// after Subscribe returns are delivered. The channel closes when ctx ends.
func (f *Feed) Subscribe(ctx context.Context, matchID string) (<-chan models.MessageEvent, error) {
	ps := f.rdb.Subscribe(ctx, conversationChannel(matchID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", matchID, err)
	}

	out := make(chan models.MessageEvent, 16)
	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var evt models.MessageEvent
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					f.log.Warn().Err(err).Str("match_id", matchID).Msg("skipping malformed event")
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Notifier publishes user notifications for a push gateway to deliver.
type Notifier struct {
	rdb    *redis.Client
	userID string
	log    zerolog.Logger
}

func NewNotifier(rdb *redis.Client, userID string, log zerolog.Logger) *Notifier {
	return &Notifier{rdb: rdb, userID: userID, log: log}
}

type notification struct {
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	SentAt time.Time `json:"sent_at"`
}

func (n *Notifier) Notify(title, body string) {
	data, err := json.Marshal(notification{Title: title, Body: body, SentAt: time.Now().UTC()})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := n.rdb.Publish(ctx, userChannel(n.userID), data).Err(); err != nil {
		n.log.Warn().Err(err).Str("user_id", n.userID).Msg("failed to publish notification")
	}
}

// Ping checks the connection.
func Ping(ctx context.Context, rdb *redis.Client) error {
	return rdb.Ping(ctx).Err()
}
