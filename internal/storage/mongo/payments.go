package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/imrishuroy/grocery-orderflow/internal/payments"
)

// PaymentStore implements payments.Repository. Transaction ids are unique
// across payments through a partial index on transaction_id.
type PaymentStore struct {
	col     *mongo.Collection
	nowFunc func() time.Time
}

var _ payments.Repository = (*PaymentStore)(nil)

func (s *PaymentStore) Create(ctx context.Context, p *payments.Payment) error {
	if _, err := s.col.InsertOne(ctx, toPaymentModel(p)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return payments.ErrDuplicateTransaction
		}
		return fmt.Errorf("orderflow/mongo: create payment: %w", err)
	}
	return nil
}

// Get returns (nil, nil) when paymentID is unknown.
func (s *PaymentStore) Get(ctx context.Context, paymentID string) (*payments.Payment, error) {
	var m paymentModel
	if err := s.col.FindOne(ctx, bson.M{"_id": paymentID}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("orderflow/mongo: get payment: %w", err)
	}
	return fromPaymentModel(&m), nil
}

func (s *PaymentStore) List(ctx context.Context, opts payments.ListOptions) ([]payments.Payment, error) {
	filter := bson.M{}
	if opts.OrderID != "" {
		filter["order_id"] = opts.OrderID
	}
	cur, err := s.col.Find(ctx, filter, options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, fmt.Errorf("orderflow/mongo: list payments: %w", err)
	}
	var models []paymentModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("orderflow/mongo: decode payments: %w", err)
	}
	out := make([]payments.Payment, len(models))
	for i := range models {
		out[i] = *fromPaymentModel(&models[i])
	}
	return out, nil
}

// Settle returns payments.ErrStatusMismatch if the payment is missing or
// no longer Pending, and payments.ErrDuplicateTransaction if another
// payment already carries transactionID.
func (s *PaymentStore) Settle(ctx context.Context, paymentID string, to payments.Status, transactionID string) (*payments.Payment, error) {
	set := bson.M{"status": string(to), "updated_at": s.nowFunc().UTC()}
	if transactionID != "" {
		set["transaction_id"] = transactionID
	}

	var m paymentModel
	err := s.col.FindOneAndUpdate(ctx,
		bson.M{"_id": paymentID, "status": string(payments.StatusPending)},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		switch {
		case isNoDocuments(err):
			return nil, payments.ErrStatusMismatch
		case mongo.IsDuplicateKeyError(err):
			return nil, payments.ErrDuplicateTransaction
		}
		return nil, fmt.Errorf("orderflow/mongo: settle payment: %w", err)
	}
	return fromPaymentModel(&m), nil
}

func (s *PaymentStore) Delete(ctx context.Context, paymentID string) error {
	res, err := s.col.DeleteOne(ctx, bson.M{"_id": paymentID})
	if err != nil {
		return fmt.Errorf("orderflow/mongo: delete payment: %w", err)
	}
	if res.DeletedCount == 0 {
		return payments.ErrPaymentNotFound
	}
	return nil
}
