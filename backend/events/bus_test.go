// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package events

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/efchatnet/skillmatch/backend/models"
)

func TestMain(m *testing.M) {
	defer goleak.VerifyTestMain(m)
	os.Exit(m.Run())
}

func recv(t *testing.T, ch <-chan models.MessageEvent) (models.MessageEvent, bool) {
	t.Helper()
	select {
	case evt, ok := <-ch:
		return evt, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return models.MessageEvent{}, false
	}
}

func TestBusDeliversToMatchSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := bus.Subscribe(ctx, "m1")
	require.NoError(t, err)
	second, err := bus.Subscribe(ctx, "m1")
	require.NoError(t, err)
	other, err := bus.Subscribe(ctx, "m2")
	require.NoError(t, err)

	evt := models.MessageEvent{MatchID: "m1", MessageID: "msg1", SenderID: "a"}
	require.NoError(t, bus.Publish(ctx, evt))

	got, ok := recv(t, first)
	require.True(t, ok)
	assert.Equal(t, evt, got)
	got, ok = recv(t, second)
	require.True(t, ok)
	assert.Equal(t, evt, got)

	select {
	case <-other:
		t.Fatal("event leaked to another match")
	default:
	}
}

func TestBusCancelClosesChannel(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := bus.Subscribe(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Subscribers("m1"))

	cancel()
	_, ok := recv(t, ch)
	assert.False(t, ok)
	assert.Equal(t, 0, bus.Subscribers("m1"))
	assert.NoError(t, bus.Publish(context.Background(), models.MessageEvent{MatchID: "m1"}))
}

func TestBusSlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := bus.Subscribe(ctx, "m1")
	require.NoError(t, err)

	for i := 0; i < defaultBuffer*3; i++ {
		require.NoError(t, bus.Publish(ctx, models.MessageEvent{MatchID: "m1"}))
	}
}

func TestBusClose(t *testing.T) {
	bus := NewBus()
	ch, err := bus.Subscribe(context.Background(), "m1")
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	_, ok := recv(t, ch)
	assert.False(t, ok)

	_, err = bus.Subscribe(context.Background(), "m1")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, bus.Publish(context.Background(), models.MessageEvent{MatchID: "m1"}), ErrClosed)
	assert.NoError(t, bus.Close())
}
