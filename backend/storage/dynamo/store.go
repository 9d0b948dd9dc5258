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

// Package dynamo implements storage.Store on DynamoDB.
//
// Uniqueness rules that a relational store expresses as partial unique
// indexes are kept here as lock items in a separate table, written in the
// same TransactWriteItems call as the record they guard:
//
//	pending#<from>#<to>   one PENDING request per ordered pair
//	active#<low>#<high>   one ACTIVE match per unordered pair
//
// Records carry a version attribute; every update is a conditional put on
// the version read, retried a bounded number of times.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// API is the subset of *dynamodb.Client the store uses.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Table and index names, relative to the configured prefix.
const (
	UsersTable    = "Users"
	RequestsTable = "MatchRequests"
	MatchesTable  = "Matches"
	MessagesTable = "Messages"
	LocksTable    = "Locks"

	RequestsToUserIndex   = "toUserId-index"
	RequestsFromUserIndex = "fromUserId-index"
	RequestsMatchIndex    = "matchId-index"
	MatchesUser1Index     = "user1Id-index"
	MatchesUser2Index     = "user2Id-index"
)

// Tables holds fully qualified table names.
type Tables struct {
	Users    string
	Requests string
	Matches  string
	Messages string
	Locks    string
}

func TableNames(prefix string) Tables {
	return Tables{
		Users:    prefix + UsersTable,
		Requests: prefix + RequestsTable,
		Matches:  prefix + MatchesTable,
		Messages: prefix + MessagesTable,
		Locks:    prefix + LocksTable,
	}
}

// defaultAttempts bounds optimistic update retries.
const defaultAttempts = 8

type Store struct {
	client   API
	tables   Tables
	attempts int
}

func New(client API, tablePrefix string) *Store {
	return &Store{client: client, tables: TableNames(tablePrefix), attempts: defaultAttempts}
}

// Options configures NewFromConfig.
type Options struct {
	Region      string
	Endpoint    string // non-empty for DynamoDB Local
	TablePrefix string
}

// NewFromConfig loads the default AWS configuration and ensures the tables
// exist. A custom endpoint implies local static credentials.
func NewFromConfig(ctx context.Context, opts Options) (*Store, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.Endpoint != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})

	s := New(client, opts.TablePrefix)
	if err := s.EnsureTables(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.tables.Matches)})
	return err
}

func (s *Store) Close() error { return nil }

func stringAttr(name string) types.AttributeDefinition {
	return types.AttributeDefinition{AttributeName: aws.String(name), AttributeType: types.ScalarAttributeTypeS}
}

func hashKey(name string) []types.KeySchemaElement {
	return []types.KeySchemaElement{{AttributeName: aws.String(name), KeyType: types.KeyTypeHash}}
}

func gsi(index, attr string) types.GlobalSecondaryIndex {
	return types.GlobalSecondaryIndex{
		IndexName:  aws.String(index),
		KeySchema:  hashKey(attr),
		Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
	}
}

// EnsureTables creates any missing table and waits for it to become active.
func (s *Store) EnsureTables(ctx context.Context) error {
	defs := []*dynamodb.CreateTableInput{
		{
			TableName:            aws.String(s.tables.Users),
			AttributeDefinitions: []types.AttributeDefinition{stringAttr("userId")},
			KeySchema:            hashKey("userId"),
		},
		{
			TableName: aws.String(s.tables.Requests),
			AttributeDefinitions: []types.AttributeDefinition{
				stringAttr("requestId"), stringAttr("toUserId"), stringAttr("fromUserId"), stringAttr("matchId"),
			},
			KeySchema: hashKey("requestId"),
			GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
				gsi(RequestsToUserIndex, "toUserId"),
				gsi(RequestsFromUserIndex, "fromUserId"),
				gsi(RequestsMatchIndex, "matchId"),
			},
		},
		{
			TableName:            aws.String(s.tables.Matches),
			AttributeDefinitions: []types.AttributeDefinition{stringAttr("matchId"), stringAttr("user1Id"), stringAttr("user2Id")},
			KeySchema:            hashKey("matchId"),
			GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
				gsi(MatchesUser1Index, "user1Id"),
				gsi(MatchesUser2Index, "user2Id"),
			},
		},
		{
			TableName:            aws.String(s.tables.Messages),
			AttributeDefinitions: []types.AttributeDefinition{stringAttr("matchId"), stringAttr("messageKey")},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("matchId"), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String("messageKey"), KeyType: types.KeyTypeRange},
			},
		},
		{
			TableName:            aws.String(s.tables.Locks),
			AttributeDefinitions: []types.AttributeDefinition{stringAttr("lockId")},
			KeySchema:            hashKey("lockId"),
		},
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	for _, def := range defs {
		def.BillingMode = types.BillingModePayPerRequest
		_, err := s.client.CreateTable(ctx, def)
		var inUse *types.ResourceInUseException
		if err != nil && !errors.As(err, &inUse) {
			return fmt.Errorf("create table %s: %w", aws.ToString(def.TableName), err)
		}
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: def.TableName}, 2*time.Minute); err != nil {
			return fmt.Errorf("wait for table %s: %w", aws.ToString(def.TableName), err)
		}
	}
	return nil
}

// isRetryable reports whether a conditional write lost a race and may be
// retried after a fresh read.
func isRetryable(err error) bool {
	var (
		ccf      *types.ConditionalCheckFailedException
		conflict *types.TransactionConflictException
		canceled *types.TransactionCanceledException
	)
	if errors.As(err, &ccf) || errors.As(err, &conflict) {
		return true
	}
	if errors.As(err, &canceled) {
		for _, r := range canceled.CancellationReasons {
			switch aws.ToString(r.Code) {
			case "ConditionalCheckFailed", "TransactionConflict":
				return true
			}
		}
	}
	return false
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func keyOf(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{name: &types.AttributeValueMemberS{Value: value}}
}

func str(v string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v}
}

func num(v int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", v)}
}

func (s *Store) queryAll(ctx context.Context, in *dynamodb.QueryInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	p := dynamodb.NewQueryPaginator(s.client, in)
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", aws.ToString(in.TableName), err)
		}
		items = append(items, out.Items...)
	}
	return items, nil
}

func (s *Store) scanAll(ctx context.Context, in *dynamodb.ScanInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	p := dynamodb.NewScanPaginator(s.client, in)
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", aws.ToString(in.TableName), err)
		}
		items = append(items, out.Items...)
	}
	return items, nil
}

// lockOwner returns the id held by a lock item.
func (s *Store) lockOwner(ctx context.Context, lockID string) (string, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tables.Locks),
		Key:            keyOf("lockId", lockID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", false, err
	}
	if out.Item == nil {
		return "", false, nil
	}
	owner, ok := out.Item["ownerId"].(*types.AttributeValueMemberS)
	if !ok {
		return "", false, nil
	}
	return owner.Value, true, nil
}

func lockPut(table, lockID, owner string) types.TransactWriteItem {
	return types.TransactWriteItem{Put: &types.Put{
		TableName: aws.String(table),
		Item: map[string]types.AttributeValue{
			"lockId":  str(lockID),
			"ownerId": str(owner),
		},
		ConditionExpression: aws.String("attribute_not_exists(lockId)"),
	}}
}

func lockRelease(table, lockID, owner string) types.TransactWriteItem {
	return types.TransactWriteItem{Delete: &types.Delete{
		TableName:                 aws.String(table),
		Key:                       keyOf("lockId", lockID),
		ConditionExpression:       aws.String("attribute_not_exists(lockId) OR ownerId = :owner"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":owner": str(owner)},
	}}
}
