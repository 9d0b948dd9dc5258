// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package dynamo

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/efchatnet/skillmatch/backend/models"
)

// Timestamps are stored as unix nanoseconds so range filters compare numerically.

type profileItem struct {
	UserID       string   `dynamodbav:"userId"`
	DisplayName  string   `dynamodbav:"displayName"`
	KnownSkills  []string `dynamodbav:"knownSkills"`
	WantedSkills []string `dynamodbav:"wantedSkills"`
	CreatedAt    int64    `dynamodbav:"createdAt"`
}

type requestItem struct {
	RequestID  string `dynamodbav:"requestId"`
	FromUserID string `dynamodbav:"fromUserId"`
	ToUserID   string `dynamodbav:"toUserId"`
	Status     string `dynamodbav:"status"`
	CreatedAt  int64  `dynamodbav:"createdAt"`
	MatchID    string `dynamodbav:"matchId,omitempty"`
	MatchedAt  int64  `dynamodbav:"matchedAt,omitempty"`
	Version    int64  `dynamodbav:"version"`
}

type matchItem struct {
	MatchID         string `dynamodbav:"matchId"`
	User1ID         string `dynamodbav:"user1Id"`
	User2ID         string `dynamodbav:"user2Id"`
	Status          string `dynamodbav:"status"`
	CreatedAt       int64  `dynamodbav:"createdAt"`
	ExpiresAt       int64  `dynamodbav:"expiresAt"`
	LastMessageAt   int64  `dynamodbav:"lastMessageAt,omitempty"`
	ConversationKey string `dynamodbav:"conversationKey,omitempty"`
	Version         int64  `dynamodbav:"version"`
}

type messageItem struct {
	MatchID    string `dynamodbav:"matchId"`
	MessageKey string `dynamodbav:"messageKey"`
	MessageID  string `dynamodbav:"messageId"`
	SenderID   string `dynamodbav:"senderId"`
	ReceiverID string `dynamodbav:"receiverId"`
	Timestamp  int64  `dynamodbav:"timestamp"`
	IsRead     bool   `dynamodbav:"isRead"`
	Type       string `dynamodbav:"type"`
	EncVersion int    `dynamodbav:"encVersion"`
	Content    string `dynamodbav:"content,omitempty"`
	Ciphertext []byte `dynamodbav:"ciphertext,omitempty"`
	Nonce      []byte `dynamodbav:"nonce,omitempty"`
}

func toNanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func optNanos(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixNano()
}

func optTime(n int64) *time.Time {
	if n == 0 {
		return nil
	}
	t := fromNanos(n)
	return &t
}

// messageKey sorts lexically in timestamp order.
func messageKey(ts time.Time, id string) string {
	return fmt.Sprintf("%020d#%s", ts.UnixNano(), id)
}

func pendingLockID(from, to string) string {
	return "pending#" + from + "#" + to
}

func activeLockID(a, b string) string {
	low, high := models.CanonicalPair(a, b)
	return "active#" + low + "#" + high
}

func profileToItem(p models.UserProfile) profileItem {
	known, wanted := p.KnownSkills, p.WantedSkills
	if known == nil {
		known = []string{}
	}
	if wanted == nil {
		wanted = []string{}
	}
	return profileItem{
		UserID: p.ID, DisplayName: p.DisplayName,
		KnownSkills: known, WantedSkills: wanted,
		CreatedAt: toNanos(p.CreatedAt),
	}
}

func (it profileItem) model() models.UserProfile {
	return models.UserProfile{
		ID: it.UserID, DisplayName: it.DisplayName,
		KnownSkills: it.KnownSkills, WantedSkills: it.WantedSkills,
		CreatedAt: fromNanos(it.CreatedAt),
	}
}

func requestToItem(r models.MatchRequest) requestItem {
	it := requestItem{
		RequestID: r.ID, FromUserID: r.FromUserID, ToUserID: r.ToUserID,
		Status: string(r.Status), CreatedAt: toNanos(r.CreatedAt),
		MatchedAt: optNanos(r.MatchedAt), Version: r.Version,
	}
	if r.MatchID != nil {
		it.MatchID = *r.MatchID
	}
	return it
}

func (it requestItem) model() (*models.MatchRequest, error) {
	r := &models.MatchRequest{
		ID: it.RequestID, FromUserID: it.FromUserID, ToUserID: it.ToUserID,
		Status: models.RequestStatus(it.Status), CreatedAt: fromNanos(it.CreatedAt),
		MatchedAt: optTime(it.MatchedAt), Version: it.Version,
	}
	if it.MatchID != "" {
		id := it.MatchID
		r.MatchID = &id
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func matchToItem(m models.Match) matchItem {
	it := matchItem{
		MatchID: m.ID, User1ID: m.User1ID, User2ID: m.User2ID,
		Status: string(m.Status), CreatedAt: toNanos(m.CreatedAt), ExpiresAt: toNanos(m.ExpiresAt),
		LastMessageAt: optNanos(m.LastMessageAt), Version: m.Version,
	}
	if m.HasKey() {
		it.ConversationKey = base64.StdEncoding.EncodeToString(m.ConversationKey)
	}
	return it
}

func (it matchItem) model() (*models.Match, error) {
	m := &models.Match{
		ID: it.MatchID, User1ID: it.User1ID, User2ID: it.User2ID,
		Status: models.MatchStatus(it.Status), CreatedAt: fromNanos(it.CreatedAt), ExpiresAt: fromNanos(it.ExpiresAt),
		LastMessageAt: optTime(it.LastMessageAt), Version: it.Version,
	}
	if it.ConversationKey != "" {
		key, err := base64.StdEncoding.DecodeString(it.ConversationKey)
		if err != nil {
			return nil, fmt.Errorf("%w: match %s key encoding: %v", models.ErrMalformed, it.MatchID, err)
		}
		m.ConversationKey = key
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func messageToItem(m models.Message) messageItem {
	return messageItem{
		MatchID: m.MatchID, MessageKey: messageKey(m.Timestamp, m.ID), MessageID: m.ID,
		SenderID: m.SenderID, ReceiverID: m.ReceiverID, Timestamp: toNanos(m.Timestamp),
		IsRead: m.IsRead, Type: string(m.Type), EncVersion: m.EncVersion,
		Content: m.Content, Ciphertext: m.Ciphertext, Nonce: m.Nonce,
	}
}

func (it messageItem) model() (*models.Message, error) {
	m := &models.Message{
		ID: it.MessageID, MatchID: it.MatchID, SenderID: it.SenderID, ReceiverID: it.ReceiverID,
		Timestamp: fromNanos(it.Timestamp), IsRead: it.IsRead, Type: models.MessageType(it.Type),
		EncVersion: it.EncVersion, Content: it.Content, Ciphertext: it.Ciphertext, Nonce: it.Nonce,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
