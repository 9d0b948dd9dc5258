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

package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/efchatnet/skillmatch/backend/models"
	"github.com/efchatnet/skillmatch/backend/storage"
)

// CreateActiveMatch writes the match together with its pair lock. When the
// lock already exists the current owner is returned instead.
func (s *Store) CreateActiveMatch(ctx context.Context, m models.Match) (string, bool, error) {
	m.Status = models.MatchActive
	m.Version = 0
	item, err := attributevalue.MarshalMap(matchToItem(m))
	if err != nil {
		return "", false, fmt.Errorf("marshal match: %w", err)
	}
	lockID := activeLockID(m.User1ID, m.User2ID)

	for attempt := 0; attempt < s.attempts; attempt++ {
		_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: []types.TransactWriteItem{
				lockPut(s.tables.Locks, lockID, m.ID),
				{Put: &types.Put{
					TableName:           aws.String(s.tables.Matches),
					Item:                item,
					ConditionExpression: aws.String("attribute_not_exists(matchId)"),
				}},
			},
		})
		if err == nil {
			return m.ID, true, nil
		}
		if !isRetryable(err) {
			return "", false, err
		}

		owner, ok, err := s.lockOwner(ctx, lockID)
		if err != nil {
			return "", false, err
		}
		if ok {
			return owner, false, nil
		}
		// lock released between the two calls; try again
	}
	return "", false, fmt.Errorf("active match %s: %w", lockID, models.ErrConflict)
}

func (s *Store) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tables.Matches),
		Key:            keyOf("matchId", id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get match %s: %w", id, err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("match %s: %w", id, models.ErrNotFound)
	}
	var it matchItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("%w: match %s: %v", models.ErrMalformed, id, err)
	}
	return it.model()
}

func (s *Store) FindActiveMatch(ctx context.Context, userA, userB string) (*models.Match, error) {
	lockID := activeLockID(userA, userB)
	owner, ok, err := s.lockOwner(ctx, lockID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("active match %s: %w", lockID, models.ErrNotFound)
	}
	m, err := s.GetMatch(ctx, owner)
	if err != nil {
		return nil, err
	}
	if m.Status != models.MatchActive {
		return nil, fmt.Errorf("active match %s: %w", lockID, models.ErrNotFound)
	}
	return m, nil
}

// UpdateMatch is a compare-and-set on version. Leaving ACTIVE releases the
// pair lock in the same transaction.
func (s *Store) UpdateMatch(ctx context.Context, id string, fn storage.MatchMutator) (*models.Match, error) {
	for attempt := 0; attempt < s.attempts; attempt++ {
		m, err := s.GetMatch(ctx, id)
		if err != nil {
			return nil, err
		}
		prevVersion, prevStatus := m.Version, m.Status
		if err := fn(m); err != nil {
			return nil, err
		}
		m.Version = prevVersion + 1

		item, err := attributevalue.MarshalMap(matchToItem(*m))
		if err != nil {
			return nil, fmt.Errorf("marshal match: %w", err)
		}
		writes := []types.TransactWriteItem{{Put: &types.Put{
			TableName:                 aws.String(s.tables.Matches),
			Item:                      item,
			ConditionExpression:       aws.String("#version = :v"),
			ExpressionAttributeNames:  map[string]string{"#version": "version"},
			ExpressionAttributeValues: map[string]types.AttributeValue{":v": num(prevVersion)},
		}}}
		lockID := activeLockID(m.User1ID, m.User2ID)
		switch {
		case prevStatus == models.MatchActive && m.Status != models.MatchActive:
			writes = append(writes, lockRelease(s.tables.Locks, lockID, m.ID))
		case prevStatus != models.MatchActive && m.Status == models.MatchActive:
			writes = append(writes, lockPut(s.tables.Locks, lockID, m.ID))
		}

		_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes})
		if err == nil {
			return m, nil
		}
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("match %s: %w", id, models.ErrConflict)
}

func (s *Store) ListMatches(ctx context.Context, userID string, status models.MatchStatus) ([]models.Match, error) {
	seen := make(map[string]bool)
	var out []models.Match
	for _, idx := range []struct{ name, attr string }{
		{MatchesUser1Index, "user1Id"},
		{MatchesUser2Index, "user2Id"},
	} {
		items, err := s.queryAll(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.tables.Matches),
			IndexName:                 aws.String(idx.name),
			KeyConditionExpression:    aws.String(idx.attr + " = :u"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":u": str(userID)},
		})
		if err != nil {
			return nil, err
		}
		matches, err := decodeMatches(items)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if seen[m.ID] || (status != "" && m.Status != status) {
				continue
			}
			seen[m.ID] = true
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]models.Match, error) {
	if limit <= 0 {
		limit = 100
	}
	items, err := s.scanAll(ctx, &dynamodb.ScanInput{
		TableName:                aws.String(s.tables.Matches),
		FilterExpression:         aws.String("#status = :active AND expiresAt <= :now AND attribute_not_exists(lastMessageAt)"),
		ExpressionAttributeNames: map[string]string{"#status": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":active": str(string(models.MatchActive)),
			":now":    num(toNanos(now)),
		},
	})
	if err != nil {
		return nil, err
	}
	out, err := decodeMatches(items)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) DeleteMatch(ctx context.Context, id string) error {
	m, err := s.GetMatch(ctx, id)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return nil
	case errors.Is(err, models.ErrMalformed):
		return s.deleteMalformedMatch(ctx, id)
	case err != nil:
		return err
	}
	writes := []types.TransactWriteItem{{Delete: &types.Delete{
		TableName: aws.String(s.tables.Matches),
		Key:       keyOf("matchId", id),
	}}}
	if m.Status == models.MatchActive {
		writes = append(writes, lockRelease(s.tables.Locks, activeLockID(m.User1ID, m.User2ID), id))
	}
	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes})
	return err
}

// deleteMalformedMatch removes a match item that no longer decodes and frees
// every lock it still owns. The pair lock is found from the raw user
// attributes when they survive, otherwise by scanning the lock table.
func (s *Store) deleteMalformedMatch(ctx context.Context, id string) error {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tables.Matches),
		Key:            keyOf("matchId", id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("get match %s: %w", id, err)
	}
	var lockIDs []string
	u1, ok1 := out.Item["user1Id"].(*types.AttributeValueMemberS)
	u2, ok2 := out.Item["user2Id"].(*types.AttributeValueMemberS)
	if ok1 && ok2 {
		lockIDs = append(lockIDs, activeLockID(u1.Value, u2.Value))
	} else {
		items, err := s.scanAll(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(s.tables.Locks),
			FilterExpression:          aws.String("ownerId = :owner"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":owner": str(id)},
		})
		if err != nil {
			return err
		}
		for _, it := range items {
			if v, ok := it["lockId"].(*types.AttributeValueMemberS); ok {
				lockIDs = append(lockIDs, v.Value)
			}
		}
	}

	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tables.Matches),
		Key:       keyOf("matchId", id),
	}); err != nil {
		return fmt.Errorf("delete match %s: %w", id, err)
	}
	for _, lockID := range lockIDs {
		_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName:                 aws.String(s.tables.Locks),
			Key:                       keyOf("lockId", lockID),
			ConditionExpression:       aws.String("ownerId = :owner"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":owner": str(id)},
		})
		if err != nil && !isConditionFailed(err) {
			return fmt.Errorf("release lock %s: %w", lockID, err)
		}
	}
	return nil
}

func decodeMatches(items []map[string]types.AttributeValue) ([]models.Match, error) {
	var raw []matchItem
	if err := attributevalue.UnmarshalListOfMaps(items, &raw); err != nil {
		return nil, fmt.Errorf("%w: matches: %v", models.ErrMalformed, err)
	}
	out := make([]models.Match, 0, len(raw))
	for _, it := range raw {
		m, err := it.model()
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, nil
}
