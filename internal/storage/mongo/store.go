// Package mongo implements the coupon, order, payment and idempotency
// repositories on MongoDB. It is selected with storage.driver=mongo.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collection name constants.
const (
	colCoupons     = "coupons"
	colOrders      = "orders"
	colIdempotency = "idempotency"
	colPayments    = "payments"
)

// Store holds the database handle shared by the repositories.
type Store struct {
	client  *mongo.Client
	db      *mongo.Database
	nowFunc func() time.Time
}

// Connect dials uri and returns a Store on database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("orderflow/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("orderflow/mongo: ping: %w", err)
	}
	return New(client, database), nil
}

// New wraps an existing client.
func New(client *mongo.Client, database string) *Store {
	return &Store{
		client:  client,
		db:      client.Database(database),
		nowFunc: now,
	}
}

// Migrate creates indexes for all collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("orderflow/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Coupons returns the coupon repository.
func (s *Store) Coupons() *CouponStore {
	return &CouponStore{col: s.db.Collection(colCoupons), nowFunc: s.nowFunc}
}

// Idempotency returns the idempotency repository. ttl is how long a claimed
// key is remembered.
func (s *Store) Idempotency(ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{col: s.db.Collection(colIdempotency), ttl: ttl, nowFunc: s.nowFunc}
}

// Payments returns the payment repository.
func (s *Store) Payments() *PaymentStore {
	return &PaymentStore{col: s.db.Collection(colPayments), nowFunc: s.nowFunc}
}

// Orders returns the order repository. Checkout side effects go through
// the coupon and idempotency collections of the same database.
func (s *Store) Orders() *OrderStore {
	return &OrderStore{
		col:     s.db.Collection(colOrders),
		coupons: s.Coupons(),
		claims:  s.Idempotency(0),
		nowFunc: s.nowFunc,
	}
}

func now() time.Time {
	return time.Now().UTC()
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

var newestFirst = bson.D{{Key: "created_at", Value: -1}}

// hasTransactionID limits the transaction_id unique index to settled payments.
var hasTransactionID = bson.M{"transaction_id": bson.M{"$type": "string"}}

// migrationIndexes returns the index definitions for all collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colCoupons: {
			{
				Keys:    bson.D{{Key: "code", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "is_active", Value: 1}, {Key: "start_date", Value: 1}, {Key: "end_date", Value: 1}}},
		},
		colOrders: {
			{Keys: bson.D{{Key: "user_email", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		colPayments: {
			{Keys: bson.D{{Key: "order_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
			{
				Keys:    bson.D{{Key: "transaction_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(hasTransactionID),
			},
		},
		colIdempotency: {
			{
				Keys:    bson.D{{Key: "expire_at", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(0),
			},
		},
	}
}
