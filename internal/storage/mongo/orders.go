package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/imrishuroy/grocery-orderflow/internal/orders"
)

// OrderStore implements orders.Repository.
//
// Create does not use a multi-document transaction, which would require a
// replica set. It claims the idempotency key, redeems the coupon and
// inserts the order in that order, undoing the earlier steps when a later
// one fails.
type OrderStore struct {
	col     *mongo.Collection
	coupons *CouponStore
	claims  *IdempotencyStore
	nowFunc func() time.Time
}

var _ orders.Repository = (*OrderStore)(nil)

func (s *OrderStore) Create(ctx context.Context, o *orders.Order, opts orders.CreateOptions) error {
	now := s.nowFunc()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = o.CreatedAt

	var undo []func(context.Context) error
	rollback := func(cause error) error {
		for i := len(undo) - 1; i >= 0; i-- {
			if err := undo[i](ctx); err != nil {
				cause = errors.Join(cause, err)
			}
		}
		return cause
	}

	if opts.Claim != nil {
		claimed, err := s.claims.claim(ctx, opts.Claim)
		if err != nil {
			return err
		}
		if !claimed {
			return orders.ErrReplayedRequest
		}
		key := opts.Claim.IdempotencyKey
		undo = append(undo, func(ctx context.Context) error { return s.claims.release(ctx, key) })
	}

	if opts.CouponCode != "" {
		if err := s.coupons.redeem(ctx, opts.CouponCode, now); err != nil {
			return rollback(err)
		}
		code := opts.CouponCode
		undo = append(undo, func(ctx context.Context) error { return s.coupons.Release(ctx, code) })
	}

	if _, err := s.col.InsertOne(ctx, toOrderModel(o)); err != nil {
		return rollback(fmt.Errorf("orderflow/mongo: create order: %w", err))
	}
	return nil
}

// Get returns (nil, nil) when orderID is unknown.
func (s *OrderStore) Get(ctx context.Context, orderID string) (*orders.Order, error) {
	var m orderModel
	if err := s.col.FindOne(ctx, bson.M{"_id": orderID}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("orderflow/mongo: get order: %w", err)
	}
	return fromOrderModel(&m), nil
}

func (s *OrderStore) ListByUser(ctx context.Context, email string) ([]orders.Order, error) {
	return s.find(ctx, bson.M{"user_email": email})
}

func (s *OrderStore) List(ctx context.Context) ([]orders.Order, error) {
	return s.find(ctx, bson.M{})
}

func (s *OrderStore) find(ctx context.Context, filter bson.M) ([]orders.Order, error) {
	cur, err := s.col.Find(ctx, filter, options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, fmt.Errorf("orderflow/mongo: list orders: %w", err)
	}
	var models []orderModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("orderflow/mongo: decode orders: %w", err)
	}
	out := make([]orders.Order, len(models))
	for i := range models {
		out[i] = *fromOrderModel(&models[i])
	}
	return out, nil
}

// UpdateStatus returns orders.ErrStatusMismatch if the order is missing,
// delivered or cancelled.
func (s *OrderStore) UpdateStatus(ctx context.Context, orderID string, to orders.Status) (*orders.Order, error) {
	return s.transition(ctx, updatableFilter(orderID), bson.M{"status": string(to)})
}

// Cancel returns orders.ErrStatusMismatch if the order is missing or not Pending.
func (s *OrderStore) Cancel(ctx context.Context, orderID, reason string) (*orders.Order, error) {
	return s.transition(ctx,
		bson.M{"_id": orderID, "status": string(orders.StatusPending)},
		bson.M{"status": string(orders.StatusCancelled), "cancel_reason": reason},
	)
}

func (s *OrderStore) transition(ctx context.Context, filter, fields bson.M) (*orders.Order, error) {
	fields["updated_at"] = s.nowFunc().UTC()

	var m orderModel
	err := s.col.FindOneAndUpdate(ctx, filter,
		bson.M{"$set": fields},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, orders.ErrStatusMismatch
		}
		return nil, fmt.Errorf("orderflow/mongo: update order: %w", err)
	}
	return fromOrderModel(&m), nil
}

func updatableFilter(orderID string) bson.M {
	return bson.M{
		"_id":    orderID,
		"status": bson.M{"$nin": bson.A{
			string(orders.StatusCancelled),
			string(orders.StatusDelivered),
		}},
	}
}
