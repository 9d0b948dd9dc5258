// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package notify

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLogOmitsBody(t *testing.T) {
	var buf bytes.Buffer
	NewLog(zerolog.New(&buf), "u1").Notify("New message", "gizli içerik")

	out := buf.String()
	assert.Contains(t, out, `"title":"New message"`)
	assert.Contains(t, out, `"user_id":"u1"`)
	assert.NotContains(t, out, "gizli")
}

func TestMulti(t *testing.T) {
	var got []string
	record := Func(func(title, body string) { got = append(got, title+":"+body) })

	Multi{record, nil, Nop, record}.Notify("t", "b")
	assert.Equal(t, []string{"t:b", "t:b"}, got)
}
