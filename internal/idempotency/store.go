// Package idempotency records Idempotency-Key claims so retried requests
// and redelivered messages are processed once.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/grocery-orderflow/internal/aws"
)

// ClaimCondition lets a key be claimed when it is new, when its previous
// attempt failed, or when the old record outlived its TTL but has not yet
// been swept.
const ClaimCondition = "attribute_not_exists(idempotency_key) OR #s = :failed OR expires_at < :now"

// Repository is the idempotency persistence contract shared by the
// DynamoDB and MongoDB stores. Get returns (nil, nil) for unknown or
// expired keys.
type Repository interface {
	CreateIfNotExists(ctx context.Context, key, orderID string) (bool, error)
	Get(ctx context.Context, key string) (*Record, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// Store encapsulates idempotency operations against DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // default TTL window when creating entries
	lease     time.Duration // expiry of an unfinished CreateIfNotExists claim, 0 = ttlWindow
	nowFunc   func() time.Time
}

var _ Repository = (*Store)(nil)

// NewStore returns a configured Store.
// ttlWindow is how long a claimed key is remembered (e.g., 48*time.Hour).
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// WithClock replaces the store's clock and returns s.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.nowFunc = now
	return s
}

// WithLease makes claims taken by CreateIfNotExists expire after lease
// unless MarkDone extends them to the full TTL window. A holder that dies
// mid-flight then blocks its key only until the lease runs out.
func (s *Store) WithLease(lease time.Duration) *Store {
	s.lease = lease
	return s
}

// NewRecord builds an IN_PROGRESS record claimed at now that expires after ttl.
func NewRecord(key, orderID, owner string, now time.Time, ttl time.Duration) Record {
	now = now.UTC()
	return Record{
		IdempotencyKey: key,
		Status:         StatusInProgress,
		OrderID:        orderID,
		Owner:          owner,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(ttl).Unix(),
	}
}

// ClaimItem returns a conditional Put of rec for use inside a caller-managed
// TransactWriteItems, so the claim commits or fails with the caller's writes.
func (s *Store) ClaimItem(rec Record) (types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal record: %w", err)
	}
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:                 &s.tableName,
			Item:                      item,
			ConditionExpression:       awsString(ClaimCondition),
			ExpressionAttributeNames:  claimNames(),
			ExpressionAttributeValues: claimValues(s.nowFunc()),
		},
	}, nil
}

// CreateIfNotExists creates an idempotency record with status IN_PROGRESS if the key does not exist.
// Returns (created=true, nil) if successfully created.
// Returns (created=false, nil) if the record already exists (caller should Get to inspect).
// Returns (created=false, err) on other errors.
func (s *Store) CreateIfNotExists(ctx context.Context, key, orderID string) (bool, error) {
	ttl := s.ttlWindow
	if s.lease > 0 {
		ttl = s.lease
	}
	rec := NewRecord(key, orderID, "", s.nowFunc(), ttl)
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:                 &s.tableName,
		Item:                      item,
		ConditionExpression:       awsString(ClaimCondition),
		ExpressionAttributeNames:  claimNames(),
		ExpressionAttributeValues: claimValues(s.nowFunc()),
	})
	if err != nil {
		var sc smithy.APIError
		if errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException" {
			return false, nil
		}
		return false, fmt.Errorf("put item: %w", err)
	}
	return true, nil
}

// Get retrieves an idempotency record by key. If not found or expired, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            keyAttr(key),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	if rec.Expired(s.nowFunc()) {
		return nil, nil
	}
	return &rec, nil
}

// MarkDone sets status to DONE, stores the response to replay, and keeps
// the key for a full TTL window from now.
func (s *Store) MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error {
	now := s.nowFunc()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              keyAttr(key),
		UpdateExpression: awsString("SET #s = :done, response_body = :rb, response_status = :rs, updated_at = :ua, expires_at = :exp"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":done": &types.AttributeValueMemberS{Value: StatusDone},
			":rb":   &types.AttributeValueMemberS{Value: responseBody},
			":rs":   &types.AttributeValueMemberN{Value: strconv.Itoa(responseStatus)},
			":ua":   &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
			":exp":  &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(s.ttlWindow).Unix(), 10)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return fmt.Errorf("update item (mark done): %w", err)
	}
	return nil
}

// MarkFailed marks the record FAILED with a note; ClaimCondition lets the
// next attempt reclaim the key.
func (s *Store) MarkFailed(ctx context.Context, key, note string) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              keyAttr(key),
		UpdateExpression: awsString("SET #s = :failed, note = :n, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed": &types.AttributeValueMemberS{Value: StatusFailed},
			":n":      &types.AttributeValueMemberS{Value: note},
			":ua":     &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return fmt.Errorf("update item (mark failed): %w", err)
	}
	return nil
}

func keyAttr(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"idempotency_key": &types.AttributeValueMemberS{Value: key},
	}
}

func claimNames() map[string]string {
	return map[string]string{"#s": "status"}
}

func claimValues(now time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		":failed": &types.AttributeValueMemberS{Value: StatusFailed},
		":now":    &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
	}
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool { return &b }
