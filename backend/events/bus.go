// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package events is the in-process conversation feed used when no Redis
// is configured.
package events

import (
	"context"
	"errors"
	"sync"

	"github.com/efchatnet/skillmatch/backend/models"
)

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("event bus closed")

const defaultBuffer = 16

// Bus fans message events out to every subscriber of a match. A slow
// subscriber loses events rather than blocking the publisher; subscribers
// treat events as a hint to re-read the store.
type Bus struct {
	mu     sync.Mutex
	subs   map[string]map[chan models.MessageEvent]struct{}
	done   chan struct{}
	closed bool
	buffer int
}

func NewBus() *Bus {
	return &Bus{
		subs:   make(map[string]map[chan models.MessageEvent]struct{}),
		done:   make(chan struct{}),
		buffer: defaultBuffer,
	}
}

func (b *Bus) Publish(_ context.Context, evt models.MessageEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	for ch := range b.subs[evt.MatchID] {
		select {
		case ch <- evt:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of events for matchID. The channel is closed
// when ctx ends or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context, matchID string) (<-chan models.MessageEvent, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	ch := make(chan models.MessageEvent, b.buffer)
	if b.subs[matchID] == nil {
		b.subs[matchID] = make(map[chan models.MessageEvent]struct{})
	}
	b.subs[matchID][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
		}
		b.remove(matchID, ch)
	}()
	return ch, nil
}

func (b *Bus) remove(matchID string, ch chan models.MessageEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[matchID]
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	if len(set) == 0 {
		delete(b.subs, matchID)
	}
	close(ch)
}

// Subscribers reports the number of live subscriptions for matchID.
func (b *Bus) Subscribers(matchID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[matchID])
}

// Close ends every subscription.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()
	return nil
}
