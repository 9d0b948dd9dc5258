// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package chat

import (
	"sort"
	"time"

	"github.com/efchatnet/skillmatch/backend/models"
)

func lastActivity(m models.Match) time.Time {
	if m.LastMessageAt != nil {
		return *m.LastMessageAt
	}
	return m.CreatedAt
}

func sortByActivity(ms []models.Match) {
	sort.SliceStable(ms, func(i, j int) bool {
		return lastActivity(ms[i]).After(lastActivity(ms[j]))
	})
}
