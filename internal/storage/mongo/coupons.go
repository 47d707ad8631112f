package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/imrishuroy/grocery-orderflow/internal/apperr"
	"github.com/imrishuroy/grocery-orderflow/internal/coupons"
)

// CouponStore implements coupons.Repository.
type CouponStore struct {
	col     *mongo.Collection
	nowFunc func() time.Time
}

var _ coupons.Repository = (*CouponStore)(nil)

func (s *CouponStore) Create(ctx context.Context, c *coupons.Coupon) error {
	if _, err := s.col.InsertOne(ctx, toCouponModel(c)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return coupons.ErrDuplicateCode
		}
		return fmt.Errorf("orderflow/mongo: create coupon: %w", err)
	}
	return nil
}

// Get returns (nil, nil) when code is unknown.
func (s *CouponStore) Get(ctx context.Context, code string) (*coupons.Coupon, error) {
	var m couponModel
	err := s.col.FindOne(ctx, bson.M{"code": code}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("orderflow/mongo: get coupon: %w", err)
	}
	return fromCouponModel(&m), nil
}

func (s *CouponStore) List(ctx context.Context, opts coupons.ListOptions) ([]coupons.Coupon, error) {
	filter := bson.M{}
	if !opts.LiveAt.IsZero() {
		filter = liveFilter(opts.LiveAt)
	}

	cur, err := s.col.Find(ctx, filter, options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, fmt.Errorf("orderflow/mongo: list coupons: %w", err)
	}
	var models []couponModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("orderflow/mongo: decode coupons: %w", err)
	}

	out := make([]coupons.Coupon, len(models))
	for i := range models {
		out[i] = *fromCouponModel(&models[i])
	}
	return out, nil
}

func (s *CouponStore) SetActive(ctx context.Context, code string, active bool) (*coupons.Coupon, error) {
	var m couponModel
	err := s.col.FindOneAndUpdate(ctx,
		bson.M{"code": code},
		bson.M{"$set": bson.M{"is_active": active}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, coupons.ErrCouponNotFound
		}
		return nil, fmt.Errorf("orderflow/mongo: set coupon active: %w", err)
	}
	return fromCouponModel(&m), nil
}

func (s *CouponStore) Delete(ctx context.Context, code string) error {
	res, err := s.col.DeleteOne(ctx, bson.M{"code": code})
	if err != nil {
		return fmt.Errorf("orderflow/mongo: delete coupon: %w", err)
	}
	if res.DeletedCount == 0 {
		return coupons.ErrCouponNotFound
	}
	return nil
}

// Release gives back one use. It never takes used_count below zero.
func (s *CouponStore) Release(ctx context.Context, code string) error {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"code": code, "used_count": bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{"used_count": -1}},
	)
	if err != nil {
		return fmt.Errorf("orderflow/mongo: release coupon: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperr.Newf(apperr.ErrInvalidState, "coupon %s has no recorded use to release", code)
	}
	return nil
}

// redeem takes one use of code if the coupon is live and under its limit.
// A rejected redemption is explained from the coupon as it is now.
func (s *CouponStore) redeem(ctx context.Context, code string, now time.Time) error {
	err := s.col.FindOneAndUpdate(ctx,
		redeemFilter(code, now),
		bson.M{"$inc": bson.M{"used_count": 1}},
	).Err()
	if err != nil {
		if isNoDocuments(err) {
			c, gerr := s.Get(ctx, code)
			if gerr != nil {
				return gerr
			}
			return coupons.RedeemError(c, now)
		}
		return fmt.Errorf("orderflow/mongo: redeem coupon: %w", err)
	}
	return nil
}

func liveFilter(at time.Time) bson.M {
	return bson.M{
		"is_active":  true,
		"start_date": bson.M{"$lte": at},
		"end_date":   bson.M{"$gte": at},
	}
}

// redeemFilter matches code only while it is live and has uses left. A
// null usage_limit means unlimited.
func redeemFilter(code string, at time.Time) bson.M {
	f := liveFilter(at)
	f["code"] = code
	f["$or"] = bson.A{
		bson.M{"usage_limit": nil},
		bson.M{"$expr": bson.M{"$lt": bson.A{"$used_count", "$usage_limit"}}},
	}
	return f
}
