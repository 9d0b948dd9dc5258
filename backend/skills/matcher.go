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

// Package skills decides whether two users can teach each other and how well
// their skill lists line up. Everything here is pure: no I/O, no state beyond
// the immutable synonym table.
package skills

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/efchatnet/skillmatch/backend/models"
)

// Matcher holds a normalised synonym table. It is safe for concurrent use.
type Matcher struct {
	synonyms map[string]map[string]struct{}
}

// Default uses only the built-in synonym table.
var Default = NewMatcher(nil)

// NewMatcher builds a matcher from the built-in table plus extra entries.
func NewMatcher(extra map[string][]string) *Matcher {
	return &Matcher{synonyms: buildTable(extra)}
}

// Normalize trims, case-folds and strips diacritics so "  Müzik" and
// "muzik" compare equal.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	t := transform.Chain(cases.Fold(), norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// SkillsMatch reports whether two free-text skills refer to the same thing:
// equal after normalisation, one containing the other, or related through
// the synonym table in either direction.
func (m *Matcher) SkillsMatch(a, b string) bool {
	return m.match(Normalize(a), Normalize(b))
}

func (m *Matcher) match(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b || strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	if _, ok := m.synonyms[a][b]; ok {
		return true
	}
	_, ok := m.synonyms[b][a]
	return ok
}

// normalized is a profile with its skill lists pre-normalised. Blank entries
// are dropped because an empty string is contained in every skill.
type normalized struct {
	wanted []string
	known  []string
}

func normalize(p models.UserProfile) normalized {
	return normalized{wanted: normalizeAll(p.WantedSkills), known: normalizeAll(p.KnownSkills)}
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if n := Normalize(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// covered counts how many of wanted have at least one match in known.
func (m *Matcher) covered(wanted, known []string) int {
	n := 0
	for _, w := range wanted {
		for _, k := range known {
			if m.match(w, k) {
				n++
				break
			}
		}
	}
	return n
}

func (m *Matcher) compatible(a, b normalized) bool {
	return m.covered(a.wanted, b.known) > 0 && m.covered(b.wanted, a.known) > 0
}

// IsCompatible is true when each user wants something the other knows.
func (m *Matcher) IsCompatible(a, b models.UserProfile) bool {
	return m.compatible(normalize(a), normalize(b))
}

// Score returns 0 for incompatible pairs, otherwise the truncated average of
// the two truncated coverage percentages.
func (m *Matcher) Score(a, b models.UserProfile) int {
	return m.score(normalize(a), normalize(b))
}

func (m *Matcher) score(a, b normalized) int {
	if !m.compatible(a, b) {
		return 0
	}
	ab := m.covered(a.wanted, b.known) * 100 / len(a.wanted)
	ba := m.covered(b.wanted, a.known) * 100 / len(b.wanted)
	score := (ab + ba) / 2
	if score == 0 {
		// very long wanted lists can truncate to zero; compatible pairs stay above it
		score = 1
	}
	return score
}

// FindCandidates filters pool down to compatible users other than self,
// keeping pool order.
func (m *Matcher) FindCandidates(self models.UserProfile, pool []models.UserProfile) []models.UserProfile {
	me := normalize(self)
	var out []models.UserProfile
	for _, p := range pool {
		if p.ID == self.ID {
			continue
		}
		if m.compatible(me, normalize(p)) {
			out = append(out, p)
		}
	}
	return out
}

// Rank is FindCandidates with the score attached to each entry.
func (m *Matcher) Rank(self models.UserProfile, pool []models.UserProfile) []models.Candidate {
	me := normalize(self)
	var out []models.Candidate
	for _, p := range pool {
		if p.ID == self.ID {
			continue
		}
		if s := m.score(me, normalize(p)); s > 0 {
			out = append(out, models.Candidate{Profile: p, Score: s})
		}
	}
	return out
}

func IsCompatible(a, b models.UserProfile) bool { return Default.IsCompatible(a, b) }

func Score(a, b models.UserProfile) int { return Default.Score(a, b) }

func FindCandidates(self models.UserProfile, pool []models.UserProfile) []models.UserProfile {
	return Default.FindCandidates(self, pool)
}
