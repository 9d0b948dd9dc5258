// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/efchatnet/skillmatch/backend/models"
)

const (
	maxBatchSize     = 25
	maxBatchAttempts = 5
)

func (s *Store) SaveMessage(ctx context.Context, msg models.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.Type == "" {
		msg.Type = models.MessageText
	}
	item, err := attributevalue.MarshalMap(messageToItem(msg))
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tables.Messages),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(messageKey)"),
	})
	if isConditionFailed(err) {
		return fmt.Errorf("message %s: %w", msg.ID, models.ErrConflict)
	}
	return err
}

func (s *Store) GetMessage(ctx context.Context, matchID, messageID string) (*models.Message, error) {
	items, err := s.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tables.Messages),
		KeyConditionExpression: aws.String("matchId = :m"),
		FilterExpression:       aws.String("messageId = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":m":  str(matchID),
			":id": str(messageID),
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	msgs, err := decodeMessages(items)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("message %s: %w", messageID, models.ErrNotFound)
	}
	return &msgs[0], nil
}

// ListMessages relies on messageKey sorting in timestamp order.
func (s *Store) ListMessages(ctx context.Context, matchID string) ([]models.Message, error) {
	items, err := s.queryAll(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tables.Messages),
		KeyConditionExpression:    aws.String("matchId = :m"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":m": str(matchID)},
		ScanIndexForward:          aws.Bool(true),
		ConsistentRead:            aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	return decodeMessages(items)
}

func (s *Store) DeleteMessagesForMatch(ctx context.Context, matchID string) (int, error) {
	items, err := s.queryAll(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tables.Messages),
		KeyConditionExpression:    aws.String("matchId = :m"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":m": str(matchID)},
		ProjectionExpression:      aws.String("matchId, messageKey"),
		ConsistentRead:            aws.Bool(true),
	})
	if err != nil {
		return 0, err
	}

	requests := make([]types.WriteRequest, 0, len(items))
	for _, it := range items {
		requests = append(requests, types.WriteRequest{DeleteRequest: &types.DeleteRequest{
			Key: map[string]types.AttributeValue{"matchId": it["matchId"], "messageKey": it["messageKey"]},
		}})
	}
	if err := s.batchWrite(ctx, s.tables.Messages, requests); err != nil {
		return 0, err
	}
	return len(requests), nil
}

// batchWrite sends requests in chunks of 25, resubmitting unprocessed items.
func (s *Store) batchWrite(ctx context.Context, table string, requests []types.WriteRequest) error {
	for i := 0; i < len(requests); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(requests) {
			end = len(requests)
		}
		pending := map[string][]types.WriteRequest{table: requests[i:end]}
		for attempt := 0; len(pending[table]) > 0; attempt++ {
			if attempt == maxBatchAttempts {
				return fmt.Errorf("batch write %s: %d items unprocessed", table, len(pending[table]))
			}
			out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return fmt.Errorf("batch write %s: %w", table, err)
			}
			pending = out.UnprocessedItems
		}
	}
	return nil
}

func decodeMessages(items []map[string]types.AttributeValue) ([]models.Message, error) {
	var raw []messageItem
	if err := attributevalue.UnmarshalListOfMaps(items, &raw); err != nil {
		return nil, fmt.Errorf("%w: messages: %v", models.ErrMalformed, err)
	}
	out := make([]models.Message, 0, len(raw))
	for _, it := range raw {
		m, err := it.model()
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, nil
}
