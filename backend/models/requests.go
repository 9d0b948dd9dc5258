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

package models

import (
	"fmt"
	"time"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestAccepted RequestStatus = "ACCEPTED"
	RequestRejected RequestStatus = "REJECTED"
	RequestMatched  RequestStatus = "MATCHED"
)

// Valid reports whether s is a known request status.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestAccepted, RequestRejected, RequestMatched:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s RequestStatus) Terminal() bool {
	return s == RequestRejected || s == RequestMatched
}

// MatchRequest is a one-directional interest signal from FromUserID to ToUserID.
type MatchRequest struct {
	ID         string        `json:"id" db:"request_id"`
	FromUserID string        `json:"from_user_id" db:"from_user_id"`
	ToUserID   string        `json:"to_user_id" db:"to_user_id"`
	Status     RequestStatus `json:"status" db:"status"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
	MatchID    *string       `json:"match_id,omitempty" db:"match_id"`
	MatchedAt  *time.Time    `json:"matched_at,omitempty" db:"matched_at"`
	Version    int64         `json:"-" db:"version"`
}

// Validate rejects records that cannot have been produced by the flow.
func (r *MatchRequest) Validate() error {
	if r.ID == "" || r.FromUserID == "" || r.ToUserID == "" {
		return fmt.Errorf("%w: request %q is missing identifiers", ErrMalformed, r.ID)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: request %q has unknown status %q", ErrMalformed, r.ID, r.Status)
	}
	if r.Status == RequestMatched && (r.MatchID == nil || *r.MatchID == "") {
		return fmt.Errorf("%w: matched request %q has no match id", ErrMalformed, r.ID)
	}
	return nil
}

// RequestQuery filters ListRequests. Empty fields are ignored.
type RequestQuery struct {
	FromUserID string
	ToUserID   string
	Status     RequestStatus
	MatchID    string
}

// Matches reports whether r satisfies q.
func (q RequestQuery) Matches(r MatchRequest) bool {
	if q.FromUserID != "" && r.FromUserID != q.FromUserID {
		return false
	}
	if q.ToUserID != "" && r.ToUserID != q.ToUserID {
		return false
	}
	if q.Status != "" && r.Status != q.Status {
		return false
	}
	if q.MatchID != "" && (r.MatchID == nil || *r.MatchID != q.MatchID) {
		return false
	}
	return true
}
