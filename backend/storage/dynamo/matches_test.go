// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package dynamo

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memTables is an in-memory stand-in for the item operations DeleteMatch
// needs on a malformed match. Other API methods panic through the nil
// embedded interface.
type memTables struct {
	API
	keys  map[string]string
	items map[string]map[string]map[string]types.AttributeValue
}

func newMemTables(tables Tables) *memTables {
	return &memTables{
		keys: map[string]string{tables.Matches: "matchId", tables.Locks: "lockId"},
		items: map[string]map[string]map[string]types.AttributeValue{
			tables.Matches: {},
			tables.Locks:   {},
		},
	}
}

func (m *memTables) put(table string, item map[string]types.AttributeValue) {
	m.items[table][attrString(item[m.keys[table]])] = item
}

func (m *memTables) has(table, key string) bool {
	_, ok := m.items[table][key]
	return ok
}

func (m *memTables) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	table := aws.ToString(in.TableName)
	return &dynamodb.GetItemOutput{Item: m.items[table][attrString(in.Key[m.keys[table]])]}, nil
}

func (m *memTables) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	table := aws.ToString(in.TableName)
	key := attrString(in.Key[m.keys[table]])
	if in.ConditionExpression != nil {
		item, ok := m.items[table][key]
		if !ok || attrString(item["ownerId"]) != attrString(in.ExpressionAttributeValues[":owner"]) {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("owner mismatch")}
		}
	}
	delete(m.items[table], key)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (m *memTables) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	owner := attrString(in.ExpressionAttributeValues[":owner"])
	var out []map[string]types.AttributeValue
	for _, item := range m.items[aws.ToString(in.TableName)] {
		if attrString(item["ownerId"]) == owner {
			out = append(out, item)
		}
	}
	return &dynamodb.ScanOutput{Items: out}, nil
}

func attrString(v types.AttributeValue) string {
	if s, ok := v.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func lockItem(lockID, owner string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"lockId": str(lockID), "ownerId": str(owner)}
}

func TestDeleteMalformedMatchReleasesPairLock(t *testing.T) {
	tables := TableNames("t_")
	mem := newMemTables(tables)
	s := New(mem, "t_")

	mem.put(tables.Matches, map[string]types.AttributeValue{
		"matchId":         str("m1"),
		"user1Id":         str("alice"),
		"user2Id":         str("bob"),
		"status":          str("ACTIVE"),
		"conversationKey": str("%%%not-base64"),
	})
	mem.put(tables.Locks, lockItem(activeLockID("alice", "bob"), "m1"))
	mem.put(tables.Locks, lockItem(activeLockID("carol", "dave"), "m2"))

	require.NoError(t, s.DeleteMatch(context.Background(), "m1"))
	assert.False(t, mem.has(tables.Matches, "m1"))
	assert.False(t, mem.has(tables.Locks, activeLockID("alice", "bob")))
	assert.True(t, mem.has(tables.Locks, activeLockID("carol", "dave")))
}

func TestDeleteMalformedMatchKeepsForeignLock(t *testing.T) {
	tables := TableNames("t_")
	mem := newMemTables(tables)
	s := New(mem, "t_")

	mem.put(tables.Matches, map[string]types.AttributeValue{
		"matchId":         str("m1"),
		"user1Id":         str("alice"),
		"user2Id":         str("bob"),
		"conversationKey": str("%%%not-base64"),
	})
	mem.put(tables.Locks, lockItem(activeLockID("alice", "bob"), "m9"))

	require.NoError(t, s.DeleteMatch(context.Background(), "m1"))
	assert.False(t, mem.has(tables.Matches, "m1"))
	assert.True(t, mem.has(tables.Locks, activeLockID("alice", "bob")))
}

func TestDeleteMalformedMatchScansWhenUsersUnreadable(t *testing.T) {
	tables := TableNames("t_")
	mem := newMemTables(tables)
	s := New(mem, "t_")

	mem.put(tables.Matches, map[string]types.AttributeValue{
		"matchId":         str("m1"),
		"user1Id":         &types.AttributeValueMemberN{Value: "7"},
		"conversationKey": str("%%%not-base64"),
	})
	mem.put(tables.Locks, lockItem(activeLockID("alice", "bob"), "m1"))
	mem.put(tables.Locks, lockItem(activeLockID("carol", "dave"), "m2"))

	require.NoError(t, s.DeleteMatch(context.Background(), "m1"))
	assert.False(t, mem.has(tables.Matches, "m1"))
	assert.False(t, mem.has(tables.Locks, activeLockID("alice", "bob")))
	assert.True(t, mem.has(tables.Locks, activeLockID("carol", "dave")))
}
