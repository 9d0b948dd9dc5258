// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/efchatnet/skillmatch/backend/storage"
	"github.com/efchatnet/skillmatch/backend/storage/storetest"
)

func TestPostgresStoreCompliance(t *testing.T) {
	dsn := os.Getenv("SKILLMATCH_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("SKILLMATCH_TEST_DATABASE_URL not set; skipping postgres store integration test")
	}

	storetest.Run(t, func(t *testing.T) storage.Store {
		s, err := Open(context.Background(), dsn)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
