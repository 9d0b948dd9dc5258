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

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/efchatnet/skillmatch/backend/matching"
)

type MatchHandler struct {
	flow     *matching.Flow
	sessions SessionFactory
	log      zerolog.Logger
}

func NewMatchHandler(flow *matching.Flow, sessions SessionFactory, log zerolog.Logger) *MatchHandler {
	return &MatchHandler{flow: flow, sessions: sessions, log: log.With().Str("handler", "matches").Logger()}
}

// GetCandidates lists compatible users ranked by score.
func (h *MatchHandler) GetCandidates(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	candidates, err := h.flow.FindCandidates(r.Context(), sess)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"candidates": candidates,
		"count":      len(candidates),
	})
}

// SendRequest records a like signal from the caller to to_user_id.
func (h *MatchHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	var req struct {
		ToUserID string `json:"to_user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	created, err := h.flow.SendLikeSignal(r.Context(), sess, req.ToUserID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *MatchHandler) GetIncoming(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	requests, err := h.flow.IncomingRequests(r.Context(), sess)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"requests": requests,
		"count":    len(requests),
	})
}

// AcceptRequest accepts the request and returns the resulting match.
func (h *MatchHandler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	match, err := h.flow.Accept(r.Context(), sess, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

func (h *MatchHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	rejected, err := h.flow.Reject(r.Context(), sess, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, rejected)
}

func (h *MatchHandler) EndMatch(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	ended, err := h.flow.EndMatch(r.Context(), sess, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ended)
}
