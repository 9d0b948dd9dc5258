// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(decryptTotal.WithLabelValues(DecryptMatchAAD))
	MessageOpened(DecryptMatchAAD)
	assert.Equal(t, before+1, testutil.ToFloat64(decryptTotal.WithLabelValues(DecryptMatchAAD)))

	swept := testutil.ToFloat64(sweptMatches)
	MatchesExpired(3)
	assert.Equal(t, swept+3, testutil.ToFloat64(sweptMatches))
}

func TestHandlerExposesCollectors(t *testing.T) {
	RequestOutcome(RequestCreated)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `skillmatch_requests_transitions_total{outcome="created"}`)
}
