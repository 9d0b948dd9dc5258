// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package metrics holds the Prometheus collectors for the engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "skillmatch"

// Outcome labels.
const (
	RequestCreated   = "created"
	RequestDuplicate = "duplicate"
	RequestAccepted  = "accepted"
	RequestRejected  = "rejected"
	RequestGone      = "participant_gone"

	MatchCreated  = "created"
	MatchExisting = "existing"

	DecryptPlaintext = "plaintext"
	DecryptNoAAD     = "no_aad"
	DecryptMatchAAD  = "match_aad"
	DecryptFailed    = "failed"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "transitions_total",
			Help:      "Match request operations by outcome.",
		},
		[]string{"outcome"},
	)

	matchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matches",
			Name:      "ensure_total",
			Help:      "Idempotent match creation calls by result.",
		},
		[]string{"result"},
	)

	keysProvisioned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "keyvault",
		Name:      "provisioned_total",
		Help:      "EnsureKey calls that returned a key.",
	})

	keysUnavailable = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "keyvault",
		Name:      "unavailable_total",
		Help:      "EnsureKey calls that exhausted the retry budget.",
	})

	decryptTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "envelope",
			Name:      "open_total",
			Help:      "Messages opened, by the envelope variant that verified.",
		},
		[]string{"variant"},
	)

	messagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "messages_sent_total",
		Help:      "Messages durably written.",
	})

	janitorPurges = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "janitor",
		Name:      "purges_total",
		Help:      "Matches purged because a participant disappeared.",
	})

	sweptMatches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweeper",
		Name:      "expired_total",
		Help:      "Matches moved to EXPIRED by the sweeper.",
	})

	notificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "dropped_total",
		Help:      "Notifications discarded because the delivery queue was full.",
	})
)

func RequestOutcome(outcome string) { requestsTotal.WithLabelValues(outcome).Inc() }
func MatchEnsured(result string)    { matchesTotal.WithLabelValues(result).Inc() }
func KeyProvisioned()               { keysProvisioned.Inc() }
func KeyUnavailable()               { keysUnavailable.Inc() }
func MessageOpened(variant string)  { decryptTotal.WithLabelValues(variant).Inc() }
func MessageSent()                  { messagesSent.Inc() }
func ConversationPurged()           { janitorPurges.Inc() }
func MatchesExpired(n int)          { sweptMatches.Add(float64(n)) }
func NotificationDropped()          { notificationsDropped.Inc() }

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
