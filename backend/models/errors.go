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
	"context"
	"errors"
	"fmt"
)

// Storage level errors returned by every storage.Store implementation.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Domain errors surfaced to callers of the engine.
var (
	// ErrDuplicateRequest means a PENDING request already exists for the ordered pair.
	ErrDuplicateRequest = errors.New("duplicate match request")
	// ErrParticipantGone means a referenced user profile no longer exists.
	ErrParticipantGone = errors.New("participant no longer exists")
	// ErrAuthenticationFailed means a ciphertext did not verify under any envelope variant.
	ErrAuthenticationFailed = errors.New("message authentication failed")
	// ErrKeyUnavailable means the conversation key could not be provisioned within the retry budget.
	ErrKeyUnavailable = errors.New("conversation key unavailable")
	// ErrStoreUnavailable wraps transport or backend failures.
	ErrStoreUnavailable = errors.New("store unavailable")

	ErrValidation        = errors.New("validation failed")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrMalformed         = errors.New("malformed record")
)

// StoreFailure classifies err as a backend failure unless it already carries
// a domain meaning the caller can act on.
func StoreFailure(err error) error {
	if err == nil || IsDomainError(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// IsDomainError reports whether err wraps one of the package sentinels.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrConflict, ErrDuplicateRequest, ErrParticipantGone,
		ErrAuthenticationFailed, ErrKeyUnavailable, ErrStoreUnavailable,
		ErrValidation, ErrForbidden, ErrInvalidTransition, ErrMalformed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
