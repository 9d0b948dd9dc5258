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
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/efchatnet/skillmatch/backend/chat"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type ConversationHandler struct {
	chat     *chat.Service
	sessions SessionFactory
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewConversationHandler serves conversations. Websocket upgrades are only
// accepted from the listed origins or from clients that send none.
func NewConversationHandler(svc *chat.Service, sessions SessionFactory, origins []string, log zerolog.Logger) *ConversationHandler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &ConversationHandler{
		chat:     svc,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin]
			},
		},
		log: log.With().Str("handler", "conversations").Logger(),
	}
}

// ListMatches returns the caller's live ACTIVE matches, most recent first.
func (h *ConversationHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	matches, err := h.chat.ListConversations(r.Context(), sess)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"matches": matches,
		"count":   len(matches),
	})
}

func (h *ConversationHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	conv, err := h.chat.OpenConversation(r.Context(), sess, mux.Vars(r)["matchId"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	h.writeHistory(w, r, conv)
}

// GetMessagesWithPeer resolves the ACTIVE match with peerId.
func (h *ConversationHandler) GetMessagesWithPeer(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	conv, err := h.chat.OpenConversationWithPeer(r.Context(), sess, mux.Vars(r)["peerId"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	h.writeHistory(w, r, conv)
}

func (h *ConversationHandler) writeHistory(w http.ResponseWriter, r *http.Request, conv *chat.Conversation) {
	history, err := conv.History(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"match_id": conv.Match().ID,
		"messages": history,
		"count":    len(history),
	})
}

func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	sent, err := h.chat.SendMessage(r.Context(), sess, mux.Vars(r)["matchId"], req.Content)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, sent)
}

// Stream upgrades to a websocket and pushes decrypted entries, history
// first. Client frames are read only to notice the peer going away.
func (h *ConversationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	conv, err := h.chat.OpenConversation(r.Context(), sess, mux.Vars(r)["matchId"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	entries, err := conv.Stream(ctx)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case e, ok := <-entries:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
