package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/imrishuroy/grocery-orderflow/internal/idempotency"
)

// IdempotencyStore implements idempotency.Repository. Expired documents are
// removed by the TTL index on expire_at.
type IdempotencyStore struct {
	col     *mongo.Collection
	ttl     time.Duration
	lease   time.Duration
	nowFunc func() time.Time
}

var _ idempotency.Repository = (*IdempotencyStore)(nil)

// WithLease makes CreateIfNotExists claims expire after lease until
// MarkDone extends them to the full TTL.
func (s *IdempotencyStore) WithLease(lease time.Duration) *IdempotencyStore {
	s.lease = lease
	return s
}

// CreateIfNotExists claims key as IN_PROGRESS. It returns false when the
// key is held by a live, non-failed record.
func (s *IdempotencyStore) CreateIfNotExists(ctx context.Context, key, orderID string) (bool, error) {
	ttl := s.ttl
	if s.lease > 0 {
		ttl = s.lease
	}
	rec := idempotency.NewRecord(key, orderID, "", s.nowFunc(), ttl)
	return s.claim(ctx, &rec)
}

// claim inserts rec, or replaces a FAILED or expired record under the same
// key. The replace filter is evaluated atomically by the server.
func (s *IdempotencyStore) claim(ctx context.Context, rec *idempotency.Record) (bool, error) {
	m := toIdempotencyModel(rec)
	_, err := s.col.InsertOne(ctx, m)
	if err == nil {
		return true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return false, fmt.Errorf("orderflow/mongo: claim key: %w", err)
	}

	res, err := s.col.ReplaceOne(ctx, reclaimFilter(rec.IdempotencyKey, s.nowFunc()), m)
	if err != nil {
		return false, fmt.Errorf("orderflow/mongo: reclaim key: %w", err)
	}
	return res.MatchedCount == 1, nil
}

// release drops a claim that was taken for a checkout that did not commit.
func (s *IdempotencyStore) release(ctx context.Context, key string) error {
	_, err := s.col.DeleteOne(ctx, bson.M{"_id": key, "status": idempotency.StatusInProgress})
	if err != nil {
		return fmt.Errorf("orderflow/mongo: release key: %w", err)
	}
	return nil
}

// Get returns (nil, nil) for unknown or expired keys.
func (s *IdempotencyStore) Get(ctx context.Context, key string) (*idempotency.Record, error) {
	var m idempotencyModel
	if err := s.col.FindOne(ctx, bson.M{"_id": key}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("orderflow/mongo: get key: %w", err)
	}
	rec := fromIdempotencyModel(&m)
	if rec.Expired(s.nowFunc()) {
		return nil, nil
	}
	return rec, nil
}

// MarkDone sets status to DONE, stores the response to replay, and keeps
// the key for a full TTL from now.
func (s *IdempotencyStore) MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error {
	return s.set(ctx, key, bson.M{
		"status":          idempotency.StatusDone,
		"response_body":   responseBody,
		"response_status": responseStatus,
		"expire_at":       s.nowFunc().Add(s.ttl).UTC(),
	})
}

// MarkFailed marks the record FAILED so the next attempt can reclaim it.
func (s *IdempotencyStore) MarkFailed(ctx context.Context, key, note string) error {
	return s.set(ctx, key, bson.M{
		"status": idempotency.StatusFailed,
		"note":   note,
	})
}

func (s *IdempotencyStore) set(ctx context.Context, key string, fields bson.M) error {
	fields["updated_at"] = s.nowFunc().UTC()
	if _, err := s.col.UpdateOne(ctx, bson.M{"_id": key}, bson.M{"$set": fields}); err != nil {
		return fmt.Errorf("orderflow/mongo: update key: %w", err)
	}
	return nil
}

func reclaimFilter(key string, at time.Time) bson.M {
	return bson.M{
		"_id": key,
		"$or": bson.A{
			bson.M{"status": idempotency.StatusFailed},
			bson.M{"expire_at": bson.M{"$lte": at.UTC()}},
		},
	}
}
