// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package notify

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/efchatnet/skillmatch/backend/metrics"
)

// DefaultQueueSize is used when NewQueue is given a non-positive size.
const DefaultQueueSize = 256

type delivery struct {
	to          Notifier
	title, body string
}

// Queue hands notifications to a single background goroutine. Notifiers
// wrapped by a queue return to the caller at once; when the buffer is full
// the notification is dropped and counted.
type Queue struct {
	log     zerolog.Logger
	pending chan delivery
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewQueue(size int, log zerolog.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	q := &Queue{
		log:     log,
		pending: make(chan delivery, size),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		select {
		case d := <-q.pending:
			d.to.Notify(d.title, d.body)
		case <-q.quit:
			return
		}
	}
}

// Wrap returns a Notifier that enqueues onto q instead of calling n.
func (q *Queue) Wrap(n Notifier) Notifier {
	if n == nil {
		return Nop
	}
	return Func(func(title, body string) { q.enqueue(delivery{to: n, title: title, body: body}) })
}

func (q *Queue) enqueue(d delivery) {
	select {
	case <-q.quit:
		return
	default:
	}
	select {
	case q.pending <- d:
	default:
		metrics.NotificationDropped()
		q.log.Warn().Str("title", d.title).Msg("notification queue full, dropping")
	}
}

// Close stops the worker once any in-flight delivery returns. Queued
// notifications not yet started are discarded.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.quit) })
	<-q.done
}
