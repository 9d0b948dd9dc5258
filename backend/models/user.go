// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package models

import "time"

// UserProfile is the read-only view of a user the matching engine works with.
// Skill lists keep the order the user entered them in.
type UserProfile struct {
	ID           string    `json:"id" db:"user_id"`
	DisplayName  string    `json:"display_name" db:"display_name"`
	KnownSkills  []string  `json:"known_skills" db:"known_skills"`
	WantedSkills []string  `json:"wanted_skills" db:"wanted_skills"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Candidate is a compatible profile together with its compatibility score.
type Candidate struct {
	Profile UserProfile `json:"profile"`
	Score   int         `json:"score"`
}
