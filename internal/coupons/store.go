package coupons

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/grocery-orderflow/internal/apperr"
	"github.com/imrishuroy/grocery-orderflow/internal/aws"
)

// Condition and filter expressions used against the coupons table.
const (
	condNotExists = "attribute_not_exists(code)"
	condExists    = "attribute_exists(code)"
	condRedeem    = "is_active = :true AND start_date <= :now AND end_date >= :now AND " +
		"(attribute_not_exists(usage_limit) OR used_count < usage_limit)"
	condRelease  = "used_count > :zero"
	filterActive = "is_active = :true AND start_date <= :now AND end_date >= :now"
)

// Store persists coupons in DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

var _ Repository = (*Store)(nil)

// NewStore creates a coupons Store bound to tableName.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Create inserts c, failing with ErrDuplicateCode if the code is taken.
func (s *Store) Create(ctx context.Context, c *Coupon) error {
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal coupon: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString(condNotExists),
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return ErrDuplicateCode
		}
		return fmt.Errorf("put coupon: %w", err)
	}
	return nil
}

// Get fetches a coupon by code. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, code string) (*Coupon, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       codeKey(code),
	})
	if err != nil {
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var c Coupon
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, fmt.Errorf("unmarshal coupon: %w", err)
	}
	return &c, nil
}

// List scans the table, newest first. A non-zero opts.LiveAt restricts the
// result to coupons that are active with LiveAt inside their window.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Coupon, error) {
	input := &dyn.ScanInput{TableName: &s.tableName}
	if !opts.LiveAt.IsZero() {
		input.FilterExpression = awsString(filterActive)
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":true": &types.AttributeValueMemberBOOL{Value: true},
			":now":  unixValue(opts.LiveAt),
		}
	}

	var out []Coupon
	for {
		page, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan coupons: %w", err)
		}
		var batch []Coupon
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal coupons: %w", err)
		}
		out = append(out, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// SetActive flips is_active and returns the updated coupon.
func (s *Store) SetActive(ctx context.Context, code string, active bool) (*Coupon, error) {
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              codeKey(code),
		UpdateExpression: awsString("SET is_active = :a"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":a": &types.AttributeValueMemberBOOL{Value: active},
		},
		ConditionExpression: awsString(condExists),
		ReturnValues:        types.ReturnValueAllNew,
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("update coupon: %w", err)
	}
	var c Coupon
	if err := attributevalue.UnmarshalMap(out.Attributes, &c); err != nil {
		return nil, fmt.Errorf("unmarshal coupon: %w", err)
	}
	return &c, nil
}

// Delete removes a coupon by code.
func (s *Store) Delete(ctx context.Context, code string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:           &s.tableName,
		Key:                 codeKey(code),
		ConditionExpression: awsString(condExists),
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return ErrCouponNotFound
		}
		return fmt.Errorf("delete coupon: %w", err)
	}
	return nil
}

// RedeemItem returns the transactional update that consumes one use of
// code. The condition fails unless the coupon is live at now and below its
// usage limit, so the increment cannot overshoot under concurrent checkouts.
func (s *Store) RedeemItem(code string, now time.Time) types.TransactWriteItem {
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:        &s.tableName,
			Key:              codeKey(code),
			UpdateExpression: awsString("ADD used_count :one"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":one":  &types.AttributeValueMemberN{Value: "1"},
				":true": &types.AttributeValueMemberBOOL{Value: true},
				":now":  unixValue(now),
			},
			ConditionExpression: awsString(condRedeem),
		},
	}
}

// Release gives back one use of code. It is a no-op error
// (apperr.ErrInvalidState) when used_count is already zero or the coupon
// no longer exists.
func (s *Store) Release(ctx context.Context, code string) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              codeKey(code),
		UpdateExpression: awsString("ADD used_count :neg"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":neg":  &types.AttributeValueMemberN{Value: "-1"},
			":zero": &types.AttributeValueMemberN{Value: "0"},
		},
		ConditionExpression: awsString(condRelease),
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return apperr.Newf(apperr.ErrInvalidState, "coupon %s has no recorded use to release", code)
		}
		return fmt.Errorf("release coupon: %w", err)
	}
	return nil
}

func codeKey(code string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"code": &types.AttributeValueMemberS{Value: code},
	}
}

func unixValue(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(t.Unix(), 10)}
}

func awsString(s string) *string { return &s }
