// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package skills

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// defaultSynonyms maps a skill to related terms. The relation is one-way as
// written; the matcher checks both directions.
var defaultSynonyms = map[string][]string{
	"programlama":   {"kodlama", "yazılım", "software", "development", "geliştirme"},
	"gitar":         {"müzik", "enstrüman", "çalgı"},
	"piyano":        {"müzik", "enstrüman", "çalgı", "klavye"},
	"fotoğrafçılık": {"fotoğraf", "görsel", "tasarım"},
	"tasarım":       {"design", "görsel", "grafik", "ui", "ux"},
	"yoga":          {"meditasyon", "spor", "fitness", "sağlık"},
	"dans":          {"müzik", "hareket", "ritim"},
	"android":       {"mobil", "uygulama", "app", "kotlin", "java"},
	"web":           {"html", "css", "javascript", "frontend", "backend"},
	"python":        {"programlama", "kodlama", "yazılım"},
	"java":          {"programlama", "kodlama", "yazılım"},
	"kotlin":        {"android", "mobil", "programlama"},
	"javascript":    {"web", "frontend", "programlama"},
	"photoshop":     {"tasarım", "görsel", "editing", "düzenleme"},
	"müzik":         {"gitar", "piyano", "enstrüman", "çalgı", "dans"},
	"spor":          {"fitness", "yoga", "egzersiz", "sağlık"},
	"sağlık":        {"yoga", "spor", "fitness", "meditasyon"},
	"meditasyon":    {"yoga", "sağlık", "spiritual", "mindfulness"},
}

// SynonymFile is the on-disk YAML layout for extra synonyms:
//
//	synonyms:
//	  rust: [programlama, systems]
type SynonymFile struct {
	Synonyms map[string][]string `yaml:"synonyms"`
}

// LoadSynonyms reads an extra synonym table from a YAML file.
func LoadSynonyms(path string) (map[string][]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read synonyms %s: %w", path, err)
	}
	return ParseSynonyms(raw)
}

// ParseSynonyms decodes a YAML synonym document.
func ParseSynonyms(raw []byte) (map[string][]string, error) {
	var f SynonymFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse synonyms: %w", err)
	}
	return f.Synonyms, nil
}

// buildTable normalises keys and terms of the default table merged with extra.
func buildTable(extra map[string][]string) map[string]map[string]struct{} {
	table := make(map[string]map[string]struct{}, len(defaultSynonyms)+len(extra))
	add := func(src map[string][]string) {
		for skill, related := range src {
			key := Normalize(skill)
			if key == "" {
				continue
			}
			set, ok := table[key]
			if !ok {
				set = make(map[string]struct{}, len(related))
				table[key] = set
			}
			for _, r := range related {
				if n := Normalize(r); n != "" {
					set[n] = struct{}{}
				}
			}
		}
	}
	add(defaultSynonyms)
	add(extra)
	return table
}
