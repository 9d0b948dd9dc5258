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
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/skillmatch/backend/models"
	"github.com/efchatnet/skillmatch/backend/notify"
)

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "conv:notify:m1", conversationChannel("m1"))
	assert.Equal(t, "notify:u1", userChannel("u1"))
}

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("SKILLMATCH_TEST_REDIS_URL")
	if url == "" {
		t.Skip("SKILLMATCH_TEST_REDIS_URL not set; skipping redis integration test")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, Ping(context.Background(), rdb))
	return rdb
}

func TestFeedRoundTrip(t *testing.T) {
	rdb := testClient(t)
	feed := NewFeed(rdb, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	matchID := uuid.NewString()
	events, err := feed.Subscribe(ctx, matchID)
	require.NoError(t, err)

	evt := models.MessageEvent{MatchID: matchID, MessageID: "msg1", SenderID: "a"}
	require.NoError(t, feed.Publish(ctx, evt))

	select {
	case got := <-events:
		assert.Equal(t, evt, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	for range events {
	}
}

func TestNotifierPublishes(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()
	userID := uuid.NewString()

	ps := rdb.Subscribe(ctx, userChannel(userID))
	defer ps.Close()
	_, err := ps.Receive(ctx)
	require.NoError(t, err)

	NewNotifier(rdb, userID, zerolog.Nop()).Notify("New message", "selam")

	msg, err := ps.ReceiveMessage(ctx)
	require.NoError(t, err)
	var n notification
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &n))
	assert.Equal(t, "New message", n.Title)
	assert.Equal(t, "selam", n.Body)
}

func TestQueuedNotifierDoesNotBlockOnStalledServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()

	rdb := redis.NewClient(&redis.Options{Addr: ln.Addr().String(), MaxRetries: -1})
	q := notify.NewQueue(8, zerolog.Nop())
	defer func() {
		_ = ln.Close()
		mu.Lock()
		for _, c := range conns {
			_ = c.Close()
		}
		mu.Unlock()
		q.Close()
		_ = rdb.Close()
	}()

	n := q.Wrap(NewNotifier(rdb, "u1", zerolog.Nop()))
	start := time.Now()
	n.Notify("New message", "selam")
	n.Notify("New match request", "")
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
