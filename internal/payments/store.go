package payments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/grocery-orderflow/internal/aws"
)

// OrderIndex is the GSI (order_id) used to find the payments of an order.
const OrderIndex = "order_id-index"

const (
	condCreate  = "attribute_not_exists(payment_id)"
	condExists  = "attribute_exists(payment_id)"
	condPending = "attribute_exists(payment_id) AND #s = :pending"
)

// ErrStatusMismatch is returned by Settle when the payment is missing or
// no longer Pending.
var ErrStatusMismatch = errors.New("payment status mismatch/conditional failed")

// Store persists payments in DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

var _ Repository = (*Store)(nil)

// NewStore creates a payments Store bound to tableName.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

func (s *Store) Create(ctx context.Context, p *Payment) error {
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal payment: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString(condCreate),
	})
	if err != nil {
		return fmt.Errorf("put payment: %w", err)
	}
	return nil
}

// Get fetches a payment by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, paymentID string) (*Payment, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       paymentKey(paymentID),
	})
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var p Payment
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal payment: %w", err)
	}
	return &p, nil
}

// List returns payments newest first. With opts.OrderID set it queries the
// order index instead of scanning the table.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Payment, error) {
	read := s.scanPage
	if opts.OrderID != "" {
		read = func(ctx context.Context, start attrs) ([]attrs, attrs, error) {
			return s.queryPage(ctx, opts.OrderID, start)
		}
	}

	var (
		out   []Payment
		start attrs
	)
	for {
		items, last, err := read(ctx, start)
		if err != nil {
			return nil, err
		}
		var batch []Payment
		if err := attributevalue.UnmarshalListOfMaps(items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal payments: %w", err)
		}
		out = append(out, batch...)
		if len(last) == 0 {
			break
		}
		start = last
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type attrs = map[string]types.AttributeValue

func (s *Store) scanPage(ctx context.Context, start attrs) ([]attrs, attrs, error) {
	page, err := s.client.Scan(ctx, &dyn.ScanInput{TableName: &s.tableName, ExclusiveStartKey: start})
	if err != nil {
		return nil, nil, fmt.Errorf("scan payments: %w", err)
	}
	return page.Items, page.LastEvaluatedKey, nil
}

func (s *Store) queryPage(ctx context.Context, orderID string, start attrs) ([]attrs, attrs, error) {
	page, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(OrderIndex),
		KeyConditionExpression: awsString("order_id = :o"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":o": &types.AttributeValueMemberS{Value: orderID},
		},
		ExclusiveStartKey: start,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("query payments: %w", err)
	}
	return page.Items, page.LastEvaluatedKey, nil
}

// Settle moves a Pending payment to status and records transactionID when
// it is non-empty. Returns ErrStatusMismatch if the payment is missing or
// already settled.
func (s *Store) Settle(ctx context.Context, paymentID string, to Status, transactionID string) (*Payment, error) {
	expr := "SET #s = :new, updated_at = :ua"
	vals := map[string]types.AttributeValue{
		":new":     &types.AttributeValueMemberS{Value: string(to)},
		":ua":      &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
		":pending": &types.AttributeValueMemberS{Value: string(StatusPending)},
	}
	if transactionID != "" {
		expr += ", transaction_id = :tx"
		vals[":tx"] = &types.AttributeValueMemberS{Value: transactionID}
	}

	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       paymentKey(paymentID),
		UpdateExpression:          awsString(expr),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: vals,
		ConditionExpression:       awsString(condPending),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return nil, ErrStatusMismatch
		}
		return nil, fmt.Errorf("update payment: %w", err)
	}
	var p Payment
	if err := attributevalue.UnmarshalMap(out.Attributes, &p); err != nil {
		return nil, fmt.Errorf("unmarshal payment: %w", err)
	}
	return &p, nil
}

// Delete removes a payment by id.
func (s *Store) Delete(ctx context.Context, paymentID string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:           &s.tableName,
		Key:                 paymentKey(paymentID),
		ConditionExpression: awsString(condExists),
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return ErrPaymentNotFound
		}
		return fmt.Errorf("delete payment: %w", err)
	}
	return nil
}

func paymentKey(paymentID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"payment_id": &types.AttributeValueMemberS{Value: paymentID},
	}
}

func awsString(s string) *string { return &s }
