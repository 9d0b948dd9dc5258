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
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/efchatnet/skillmatch/backend/models"
)

func (s *Store) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tables.Users),
		Key:            keyOf("userId", userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", userID, err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("profile %s: %w", userID, models.ErrNotFound)
	}
	var it profileItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("%w: profile %s: %v", models.ErrMalformed, userID, err)
	}
	p := it.model()
	return &p, nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]models.UserProfile, error) {
	items, err := s.scanAll(ctx, &dynamodb.ScanInput{TableName: aws.String(s.tables.Users)})
	if err != nil {
		return nil, err
	}
	var raw []profileItem
	if err := attributevalue.UnmarshalListOfMaps(items, &raw); err != nil {
		return nil, fmt.Errorf("%w: profiles: %v", models.ErrMalformed, err)
	}
	out := make([]models.UserProfile, 0, len(raw))
	for _, it := range raw {
		out = append(out, it.model())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) SaveProfile(ctx context.Context, p models.UserProfile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	item, err := attributevalue.MarshalMap(profileToItem(p))
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tables.Users),
		Item:      item,
	})
	return err
}

func (s *Store) DeleteProfile(ctx context.Context, userID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tables.Users),
		Key:       keyOf("userId", userID),
	})
	return err
}
