// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/efchatnet/skillmatch/backend/models"
	"github.com/efchatnet/skillmatch/backend/storage"
)

func (s *Store) CreatePendingRequest(ctx context.Context, r models.MatchRequest) error {
	r.Status = models.RequestPending
	r.Version = 0
	item, err := attributevalue.MarshalMap(requestToItem(r))
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			lockPut(s.tables.Locks, pendingLockID(r.FromUserID, r.ToUserID), r.ID),
			{Put: &types.Put{
				TableName:           aws.String(s.tables.Requests),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(requestId)"),
			}},
		},
	})
	if isRetryable(err) {
		return fmt.Errorf("pending request %s -> %s: %w", r.FromUserID, r.ToUserID, models.ErrConflict)
	}
	return err
}

func (s *Store) GetRequest(ctx context.Context, id string) (*models.MatchRequest, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tables.Requests),
		Key:            keyOf("requestId", id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get request %s: %w", id, err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("request %s: %w", id, models.ErrNotFound)
	}
	var it requestItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("%w: request %s: %v", models.ErrMalformed, id, err)
	}
	return it.model()
}

// UpdateRequest is an optimistic read-modify-write. The PENDING lock is
// released in the same transaction when the request leaves PENDING.
func (s *Store) UpdateRequest(ctx context.Context, id string, fn storage.RequestMutator) (*models.MatchRequest, error) {
	for attempt := 0; attempt < s.attempts; attempt++ {
		r, err := s.GetRequest(ctx, id)
		if err != nil {
			return nil, err
		}
		prevVersion, prevStatus := r.Version, r.Status
		if err := fn(r); err != nil {
			return nil, err
		}
		r.Version = prevVersion + 1

		item, err := attributevalue.MarshalMap(requestToItem(*r))
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		writes := []types.TransactWriteItem{{Put: &types.Put{
			TableName:                 aws.String(s.tables.Requests),
			Item:                      item,
			ConditionExpression:       aws.String("#version = :v"),
			ExpressionAttributeNames:  map[string]string{"#version": "version"},
			ExpressionAttributeValues: map[string]types.AttributeValue{":v": num(prevVersion)},
		}}}
		lockID := pendingLockID(r.FromUserID, r.ToUserID)
		switch {
		case prevStatus == models.RequestPending && r.Status != models.RequestPending:
			writes = append(writes, lockRelease(s.tables.Locks, lockID, r.ID))
		case prevStatus != models.RequestPending && r.Status == models.RequestPending:
			writes = append(writes, lockPut(s.tables.Locks, lockID, r.ID))
		}

		_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes})
		if err == nil {
			return r, nil
		}
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("request %s: %w", id, models.ErrConflict)
}

// ListRequests queries the most selective index available and applies the
// remaining filters in memory.
func (s *Store) ListRequests(ctx context.Context, q models.RequestQuery) ([]models.MatchRequest, error) {
	var (
		items []map[string]types.AttributeValue
		err   error
	)
	byIndex := func(index, attr, value string) ([]map[string]types.AttributeValue, error) {
		return s.queryAll(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.tables.Requests),
			IndexName:                 aws.String(index),
			KeyConditionExpression:    aws.String(attr + " = :v"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":v": str(value)},
		})
	}
	switch {
	case q.MatchID != "":
		items, err = byIndex(RequestsMatchIndex, "matchId", q.MatchID)
	case q.ToUserID != "":
		items, err = byIndex(RequestsToUserIndex, "toUserId", q.ToUserID)
	case q.FromUserID != "":
		items, err = byIndex(RequestsFromUserIndex, "fromUserId", q.FromUserID)
	default:
		items, err = s.scanAll(ctx, &dynamodb.ScanInput{TableName: aws.String(s.tables.Requests)})
	}
	if err != nil {
		return nil, err
	}

	var raw []requestItem
	if err := attributevalue.UnmarshalListOfMaps(items, &raw); err != nil {
		return nil, fmt.Errorf("%w: requests: %v", models.ErrMalformed, err)
	}
	var out []models.MatchRequest
	for _, it := range raw {
		r, err := it.model()
		if err != nil {
			return nil, err
		}
		if q.Matches(*r) {
			out = append(out, *r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) DeleteRequest(ctx context.Context, id string) error {
	r, err := s.GetRequest(ctx, id)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return nil
	case errors.Is(err, models.ErrMalformed):
		r = nil
	case err != nil:
		return err
	}
	writes := []types.TransactWriteItem{{Delete: &types.Delete{
		TableName: aws.String(s.tables.Requests),
		Key:       keyOf("requestId", id),
	}}}
	if r != nil && r.Status == models.RequestPending {
		writes = append(writes, lockRelease(s.tables.Locks, pendingLockID(r.FromUserID, r.ToUserID), id))
	}
	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes})
	return err
}
