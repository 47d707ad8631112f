package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/grocery-orderflow/internal/apperr"
	"github.com/imrishuroy/grocery-orderflow/internal/aws"
	"github.com/imrishuroy/grocery-orderflow/internal/coupons"
	"github.com/imrishuroy/grocery-orderflow/internal/idempotency"
)

// UserIndex is the GSI (user_email, created_at) used to list a buyer's orders.
const UserIndex = "user_email-created_at-index"

const (
	condCreate    = "attribute_not_exists(order_id)"
	condUpdatable = "attribute_exists(order_id) AND #s <> :cancelled AND #s <> :delivered"
	condPending   = "#s = :pending"
)

// ErrStatusMismatch is returned when a conditional status write fails
// because the order is missing or no longer in the expected state.
var ErrStatusMismatch = errors.New("status mismatch/conditional failed")

// ErrReplayedRequest reports an Idempotency-Key that was already claimed.
var ErrReplayedRequest = apperr.New(apperr.ErrDuplicateRequest, "A request with this Idempotency-Key was already received")

// Redeemer builds the conditional coupon increment joined to a checkout
// and reads the coupon back to explain a rejected increment.
type Redeemer interface {
	RedeemItem(code string, now time.Time) types.TransactWriteItem
	Get(ctx context.Context, code string) (*coupons.Coupon, error)
}

// Claimer builds the conditional Idempotency-Key claim joined to a checkout.
type Claimer interface {
	ClaimItem(rec idempotency.Record) (types.TransactWriteItem, error)
}

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	coupons   Redeemer
	claims    Claimer
	nowFunc   func() time.Time
}

var _ Repository = (*Store)(nil)

// NewStore creates a new orders Store. coupons and claims contribute the
// coupon redemption and idempotency claim to the checkout transaction.
func NewStore(client aws.DynamoDBAPI, tableName string, coupons Redeemer, claims Claimer) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		coupons:   coupons,
		claims:    claims,
		nowFunc:   time.Now,
	}
}

// Create writes the order, the coupon redemption (when opts.CouponCode is
// set) and the idempotency claim (when opts.Claim is set) in a single
// TransactWriteItems call, so either all of them commit or none does.
func (s *Store) Create(ctx context.Context, o *Order, opts CreateOptions) error {
	now := s.nowFunc().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = o.CreatedAt

	orderMap, err := attributevalue.MarshalMap(o)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}

	items := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:           &s.tableName,
			Item:                orderMap,
			ConditionExpression: awsString(condCreate),
		},
	}}

	couponIdx, claimIdx := -1, -1
	if opts.CouponCode != "" {
		couponIdx = len(items)
		items = append(items, s.coupons.RedeemItem(opts.CouponCode, now))
	}
	if opts.Claim != nil {
		claim, err := s.claims.ClaimItem(*opts.Claim)
		if err != nil {
			return err
		}
		claimIdx = len(items)
		items = append(items, claim)
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			switch {
			case conditionFailed(tce, claimIdx):
				return ErrReplayedRequest
			case conditionFailed(tce, couponIdx):
				return s.redeemFailure(ctx, opts.CouponCode, now)
			}
			return fmt.Errorf("transaction canceled: %w", err)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// redeemFailure reports why the coupon increment was rejected: the coupon
// may have been deactivated or run out of its window since validation.
func (s *Store) redeemFailure(ctx context.Context, code string, now time.Time) error {
	c, err := s.coupons.Get(ctx, code)
	if err != nil {
		return fmt.Errorf("reload coupon: %w", err)
	}
	return coupons.RedeemError(c, now)
}

func conditionFailed(tce *types.TransactionCanceledException, idx int) bool {
	if idx < 0 || idx >= len(tce.CancellationReasons) {
		return false
	}
	code := tce.CancellationReasons[idx].Code
	return code != nil && *code == "ConditionalCheckFailed"
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       orderKey(orderID),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// ListByUser queries the user index, newest first.
func (s *Store) ListByUser(ctx context.Context, email string) ([]Order, error) {
	input := &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(UserIndex),
		KeyConditionExpression: awsString("user_email = :e"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":e": &types.AttributeValueMemberS{Value: email},
		},
		ScanIndexForward: awsBool(false),
	}

	var out []Order
	for {
		page, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query orders: %w", err)
		}
		var batch []Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		out = append(out, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
	sortNewestFirst(out)
	return out, nil
}

// List scans every order, newest first.
func (s *Store) List(ctx context.Context) ([]Order, error) {
	input := &dyn.ScanInput{TableName: &s.tableName}

	var out []Order
	for {
		page, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan orders: %w", err)
		}
		var batch []Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		out = append(out, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
	sortNewestFirst(out)
	return out, nil
}

// UpdateStatus sets the status of an order that is not yet terminal.
// Returns ErrStatusMismatch if the order is missing, delivered or cancelled.
func (s *Store) UpdateStatus(ctx context.Context, orderID string, to Status) (*Order, error) {
	return s.update(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      orderKey(orderID),
		UpdateExpression:         awsString("SET #s = :new, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":       &types.AttributeValueMemberS{Value: string(to)},
			":ua":        s.timestamp(),
			":cancelled": &types.AttributeValueMemberS{Value: string(StatusCancelled)},
			":delivered": &types.AttributeValueMemberS{Value: string(StatusDelivered)},
		},
		ConditionExpression: awsString(condUpdatable),
		ReturnValues:        types.ReturnValueAllNew,
	})
}

// Cancel moves a Pending order to Cancelled and stores reason.
// Returns ErrStatusMismatch if the order is missing or not Pending.
func (s *Store) Cancel(ctx context.Context, orderID, reason string) (*Order, error) {
	return s.update(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      orderKey(orderID),
		UpdateExpression:         awsString("SET #s = :new, cancel_reason = :r, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":     &types.AttributeValueMemberS{Value: string(StatusCancelled)},
			":r":       &types.AttributeValueMemberS{Value: reason},
			":ua":      s.timestamp(),
			":pending": &types.AttributeValueMemberS{Value: string(StatusPending)},
		},
		ConditionExpression: awsString(condPending),
		ReturnValues:        types.ReturnValueAllNew,
	})
}

func (s *Store) update(ctx context.Context, input *dyn.UpdateItemInput) (*Order, error) {
	out, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return nil, ErrStatusMismatch
		}
		return nil, fmt.Errorf("update item: %w", err)
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Attributes, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

func (s *Store) timestamp() types.AttributeValue {
	return &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)}
}

func orderKey(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

func sortNewestFirst(list []Order) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool { return &b }
