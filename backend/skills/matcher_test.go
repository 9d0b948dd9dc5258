// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package skills

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/skillmatch/backend/models"
)

func profile(id string, known, wanted []string) models.UserProfile {
	return models.UserProfile{ID: id, KnownSkills: known, WantedSkills: wanted}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "gitar", Normalize("  Gitar "))
	assert.Equal(t, "muzik", Normalize("Müzik"))
	assert.Equal(t, "editing", Normalize("Éditing"))
	assert.Equal(t, Normalize("Fotoğrafçılık"), Normalize("fotoğrafçılık"))
	assert.Equal(t, "", Normalize("   "))
}

func TestSkillsMatch(t *testing.T) {
	m := Default
	tests := []struct {
		a, b string
		want bool
	}{
		{"Gitar", "gitar", true},
		{"web", "Web Tasarım", true},
		{"Web Tasarım", "web", true},
		{"python", "kodlama", true},
		{"kodlama", "python", true},
		{"meditasyon", "mindfulness", true},
		{"mindfulness", "meditasyon", true},
		{"muzik", "Gitar", true},
		{"gitar", "python", false},
		{"", "python", false},
		{"  ", "", false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s~%s", tt.a, tt.b), func(t *testing.T) {
			assert.Equal(t, tt.want, m.SkillsMatch(tt.a, tt.b))
		})
	}
}

func TestIsCompatible(t *testing.T) {
	t.Run("case insensitive exact match both ways", func(t *testing.T) {
		a := profile("a", []string{"Python"}, []string{"Gitar"})
		b := profile("b", []string{"gitar", "Piyano"}, []string{"python"})
		assert.True(t, IsCompatible(a, b))
		assert.True(t, IsCompatible(b, a))
	})

	t.Run("one direction only is not enough", func(t *testing.T) {
		a := profile("a", []string{"Yoga"}, []string{"Gitar"})
		b := profile("b", []string{"gitar"}, []string{"Python"})
		assert.False(t, IsCompatible(a, b))
		assert.False(t, IsCompatible(b, a))
	})

	t.Run("empty wanted list", func(t *testing.T) {
		a := profile("a", []string{"Gitar"}, nil)
		b := profile("b", []string{"Python"}, []string{"Gitar"})
		assert.False(t, IsCompatible(a, b))
		assert.Equal(t, 0, Score(a, b))
	})
}

func TestScore(t *testing.T) {
	t.Run("full mutual coverage", func(t *testing.T) {
		a := profile("a", []string{"Gitar"}, []string{"Programlama"})
		b := profile("b", []string{"Programlama", "Web Tasarım"}, []string{"Gitar"})
		require.True(t, IsCompatible(a, b))
		assert.Equal(t, 100, Score(a, b))
	})

	t.Run("partial coverage truncates each side", func(t *testing.T) {
		// a: 1 of 3 wanted covered -> 33; b: 1 of 1 -> 100; avg 66
		a := profile("a", []string{"Gitar"}, []string{"Python", "Dalış", "Satranç"})
		b := profile("b", []string{"kodlama"}, []string{"gitar"})
		assert.Equal(t, 66, Score(a, b))
		assert.Equal(t, 66, Score(b, a))
	})

	t.Run("incompatible scores zero", func(t *testing.T) {
		a := profile("a", []string{"Gitar"}, []string{"Dalış"})
		b := profile("b", []string{"Satranç"}, []string{"Gitar"})
		assert.Equal(t, 0, Score(a, b))
	})

	t.Run("compatible never scores zero", func(t *testing.T) {
		wanted := []string{"gitar"}
		for i := 0; i < 250; i++ {
			wanted = append(wanted, fmt.Sprintf("zz%03d", i))
		}
		a := profile("a", []string{"python"}, wanted)
		b := profile("b", []string{"gitar"}, append([]string{"python"}, wanted[1:]...))
		require.True(t, IsCompatible(a, b))
		s := Score(a, b)
		assert.Greater(t, s, 0)
		assert.LessOrEqual(t, s, 100)
	})
}

func TestScoreBoundsAndSymmetry(t *testing.T) {
	pool := []models.UserProfile{
		profile("1", []string{"Gitar", "Python"}, []string{"Yoga"}),
		profile("2", []string{"Yoga", "Dans"}, []string{"Müzik", "Java"}),
		profile("3", []string{"Photoshop"}, []string{"Tasarım"}),
		profile("4", []string{"Grafik"}, []string{"Photoshop", "Web"}),
		profile("5", nil, []string{"Gitar"}),
		profile("6", []string{"Kotlin"}, []string{"Android", "Meditasyon"}),
		profile("7", []string{"Mindfulness", "Android"}, []string{"kotlin"}),
	}
	for _, a := range pool {
		for _, b := range pool {
			ab := IsCompatible(a, b)
			assert.Equal(t, ab, IsCompatible(b, a), "symmetry %s/%s", a.ID, b.ID)
			s := Score(a, b)
			assert.GreaterOrEqual(t, s, 0)
			assert.LessOrEqual(t, s, 100)
			assert.Equal(t, ab, s > 0, "score/compatibility agreement %s/%s", a.ID, b.ID)
		}
	}
}

func TestFindCandidates(t *testing.T) {
	self := profile("me", []string{"Gitar"}, []string{"Python"})
	pool := []models.UserProfile{
		profile("c", []string{"Python"}, []string{"müzik"}),
		self,
		profile("x", []string{"Yoga"}, []string{"Gitar"}),
		profile("a", []string{"kodlama"}, []string{"GITAR"}),
	}

	got := FindCandidates(self, pool)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "a", got[1].ID)

	ranked := Default.Rank(self, pool)
	require.Len(t, ranked, 2)
	assert.Equal(t, "c", ranked[0].Profile.ID)
	assert.Equal(t, 100, ranked[0].Score)
}

func TestExtraSynonyms(t *testing.T) {
	extra, err := ParseSynonyms([]byte("synonyms:\n  rust:\n    - sistem programlama\n    - Systems\n"))
	require.NoError(t, err)

	m := NewMatcher(extra)
	assert.True(t, m.SkillsMatch("systems", "Rust"))
	assert.False(t, Default.SkillsMatch("systems", "Rust"))
	assert.True(t, m.SkillsMatch("gitar", "müzik"), "built-in table is kept")
}
