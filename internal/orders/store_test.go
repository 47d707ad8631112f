package orders

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/grocery-orderflow/internal/apperr"
	"github.com/imrishuroy/grocery-orderflow/internal/coupons"
	"github.com/imrishuroy/grocery-orderflow/internal/idempotency"
)

// fakeRedeemer issues a simplified redemption the mock can evaluate and
// reads coupons straight from the mock table.
type fakeRedeemer struct {
	mock *mockDynamo
}

func (f fakeRedeemer) Get(ctx context.Context, code string) (*coupons.Coupon, error) {
	item := f.mock.item(couponsTable, code)
	if item == nil {
		return nil, nil
	}
	var c coupons.Coupon
	if err := attributevalue.UnmarshalMap(item, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (fakeRedeemer) RedeemItem(code string, now time.Time) types.TransactWriteItem {
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:           awsString(couponsTable),
			Key:                 map[string]types.AttributeValue{"code": &types.AttributeValueMemberS{Value: code}},
			UpdateExpression:    awsString("ADD used_count :one"),
			ConditionExpression: awsString(condTestRedeem),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":one": &types.AttributeValueMemberN{Value: "1"},
			},
		},
	}
}

var storeNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *mockDynamo) {
	t.Helper()
	mock := newMockDynamo()
	clock := func() time.Time { return storeNow }
	claims := idempotency.NewStore(mock, idempotencyTable, 48*time.Hour).WithClock(clock)
	s := NewStore(mock, ordersTable, fakeRedeemer{mock: mock}, claims)
	s.nowFunc = clock
	return s, mock
}

// seedCoupon stores a coupon that is live around storeNow.
func seedCoupon(mock *mockDynamo, code string, used, limit int) {
	unix := func(t time.Time) types.AttributeValue {
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(t.Unix(), 10)}
	}
	mock.seed(couponsTable, map[string]types.AttributeValue{
		"code":        &types.AttributeValueMemberS{Value: code},
		"is_active":   &types.AttributeValueMemberBOOL{Value: true},
		"start_date":  unix(storeNow.Add(-24 * time.Hour)),
		"end_date":    unix(storeNow.Add(24 * time.Hour)),
		"used_count":  &types.AttributeValueMemberN{Value: strconv.Itoa(used)},
		"usage_limit": &types.AttributeValueMemberN{Value: strconv.Itoa(limit)},
	})
}

func sampleOrder(id, email string, created time.Time) *Order {
	return &Order{
		OrderID:   id,
		UserEmail: email,
		Items: []LineItem{
			{ProductID: "p-1", Name: "Apples", Price: 10, Quantity: 2},
		},
		ShippingAddress: ShippingAddress{FullName: "Ann", Phone: "555", Address: "1 Main", City: "Springfield", ZipCode: "12345"},
		Status:          StatusPending,
		Subtotal:        20,
		DeliveryFee:     15,
		TaxAmount:       1.8,
		Total:           36.8,
		PaymentMethod:   "card",
		CreatedAt:       created,
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	o := sampleOrder("ord_1", "ann@example.com", storeNow)
	require.NoError(t, s.Create(ctx, o, CreateOptions{}))

	got, err := s.Get(ctx, "ord_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, "ann@example.com", got.UserEmail)
	assert.Equal(t, 36.8, got.Total)
	assert.Len(t, got.Items, 1)
	assert.True(t, got.CreatedAt.Equal(storeNow))

	missing, err := s.Get(ctx, "ord_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_CreateDuplicateOrderID(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.Create(ctx, sampleOrder("ord_1", "ann@example.com", storeNow), CreateOptions{}))
	err := s.Create(ctx, sampleOrder("ord_1", "ann@example.com", storeNow), CreateOptions{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, coupons.ErrUsageLimitReached))
	assert.False(t, errors.Is(err, apperr.ErrDuplicateRequest))
}

func TestStore_CreateRedeemsCoupon(t *testing.T) {
	ctx := context.Background()
	s, mock := newTestStore(t)
	seedCoupon(mock, "SAVE10", 0, 1)

	o := sampleOrder("ord_1", "ann@example.com", storeNow)
	o.Coupon = &AppliedCoupon{Code: "SAVE10", DiscountAmount: 2}
	require.NoError(t, s.Create(ctx, o, CreateOptions{CouponCode: "SAVE10"}))
	assert.Equal(t, int64(1), num(mock.item(couponsTable, "SAVE10"), "used_count"))

	// The last use is gone, so the second order must not be written.
	o2 := sampleOrder("ord_2", "bob@example.com", storeNow)
	err := s.Create(ctx, o2, CreateOptions{CouponCode: "SAVE10"})
	assert.ErrorIs(t, err, coupons.ErrUsageLimitReached)
	assert.Nil(t, mock.item(ordersTable, "ord_2"))
	assert.Equal(t, int64(1), num(mock.item(couponsTable, "SAVE10"), "used_count"))
}

func TestStore_CreateRejectsCouponDeactivatedAfterValidation(t *testing.T) {
	ctx := context.Background()
	s, mock := newTestStore(t)
	seedCoupon(mock, "SAVE10", 0, 10)
	mock.item(couponsTable, "SAVE10")["is_active"] = &types.AttributeValueMemberBOOL{Value: false}

	o := sampleOrder("ord_1", "ann@example.com", storeNow)
	err := s.Create(ctx, o, CreateOptions{CouponCode: "SAVE10"})
	assert.ErrorIs(t, err, coupons.ErrInvalidCoupon)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Nil(t, mock.item(ordersTable, "ord_1"))

	err = s.Create(ctx, o, CreateOptions{CouponCode: "GONE"})
	assert.ErrorIs(t, err, coupons.ErrInvalidCoupon)
}

func TestStore_CreateClaimsIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	s, mock := newTestStore(t)

	rec := idempotency.NewRecord("key-1", "ord_1", "ann@example.com", storeNow, time.Hour)
	require.NoError(t, s.Create(ctx, sampleOrder("ord_1", "ann@example.com", storeNow), CreateOptions{Claim: &rec}))
	assert.Equal(t, "ord_1", str(mock.item(idempotencyTable, "key-1"), "order_id"))

	replay := idempotency.NewRecord("key-1", "ord_2", "ann@example.com", storeNow, time.Hour)
	err := s.Create(ctx, sampleOrder("ord_2", "ann@example.com", storeNow), CreateOptions{Claim: &replay})
	assert.ErrorIs(t, err, apperr.ErrDuplicateRequest)
	assert.Nil(t, mock.item(ordersTable, "ord_2"))
}

func TestStore_CreateReclaimsFailedKey(t *testing.T) {
	ctx := context.Background()
	s, mock := newTestStore(t)
	mock.seed(idempotencyTable, map[string]types.AttributeValue{
		"idempotency_key": &types.AttributeValueMemberS{Value: "key-1"},
		"status":          &types.AttributeValueMemberS{Value: idempotency.StatusFailed},
		"expires_at":      &types.AttributeValueMemberN{Value: "4102444800"},
	})

	rec := idempotency.NewRecord("key-1", "ord_1", "ann@example.com", storeNow, time.Hour)
	require.NoError(t, s.Create(ctx, sampleOrder("ord_1", "ann@example.com", storeNow), CreateOptions{Claim: &rec}))
	assert.Equal(t, idempotency.StatusInProgress, str(mock.item(idempotencyTable, "key-1"), "status"))
}

func TestStore_ListByUserNewestFirst(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.Create(ctx, sampleOrder("ord_a", "ann@example.com", storeNow.Add(-2*time.Hour)), CreateOptions{}))
	require.NoError(t, s.Create(ctx, sampleOrder("ord_b", "ann@example.com", storeNow), CreateOptions{}))
	require.NoError(t, s.Create(ctx, sampleOrder("ord_c", "bob@example.com", storeNow), CreateOptions{}))

	got, err := s.ListByUser(ctx, "ann@example.com")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ord_b", got[0].OrderID)
	assert.Equal(t, "ord_a", got[1].OrderID)
}

func TestStore_ListPagesThroughScan(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	for i, id := range []string{"ord_a", "ord_b", "ord_c"} {
		created := storeNow.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.Create(ctx, sampleOrder(id, "ann@example.com", created), CreateOptions{}))
	}

	got, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"ord_c", "ord_b", "ord_a"}, []string{got[0].OrderID, got[1].OrderID, got[2].OrderID})
}

func TestStore_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.Create(ctx, sampleOrder("ord_1", "ann@example.com", storeNow), CreateOptions{}))

	s.nowFunc = func() time.Time { return storeNow.Add(time.Hour) }
	got, err := s.UpdateStatus(ctx, "ord_1", StatusShipped)
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, got.Status)
	assert.True(t, got.UpdatedAt.Equal(storeNow.Add(time.Hour)))

	_, err = s.UpdateStatus(ctx, "ord_1", StatusDelivered)
	require.NoError(t, err)

	_, err = s.UpdateStatus(ctx, "ord_1", StatusProcessing)
	assert.ErrorIs(t, err, ErrStatusMismatch)

	_, err = s.UpdateStatus(ctx, "ord_missing", StatusProcessing)
	assert.ErrorIs(t, err, ErrStatusMismatch)
}

func TestStore_CancelOnlyPending(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.Create(ctx, sampleOrder("ord_1", "ann@example.com", storeNow), CreateOptions{}))

	got, err := s.Cancel(ctx, "ord_1", ReasonChangedMind)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	require.NotNil(t, got.CancelReason)
	assert.Equal(t, ReasonChangedMind, *got.CancelReason)

	_, err = s.Cancel(ctx, "ord_1", ReasonChangedMind)
	assert.ErrorIs(t, err, ErrStatusMismatch)
}
