// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package dynamo

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/skillmatch/backend/storage"
	"github.com/efchatnet/skillmatch/backend/storage/storetest"
)

func TestDynamoStoreCompliance(t *testing.T) {
	endpoint := os.Getenv("SKILLMATCH_TEST_DYNAMO_ENDPOINT")
	if endpoint == "" {
		t.Skip("SKILLMATCH_TEST_DYNAMO_ENDPOINT not set; skipping dynamodb store integration test")
	}

	prefix := "t" + uuid.NewString()[:8] + "-"
	storetest.Run(t, func(t *testing.T) storage.Store {
		s, err := NewFromConfig(context.Background(), Options{
			Region:      "us-east-1",
			Endpoint:    endpoint,
			TablePrefix: prefix,
		})
		require.NoError(t, err)
		return s
	})
}
