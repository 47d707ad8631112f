// Package events defines order lifecycle events and the publishers that
// deliver them to the notification sink.
package events

import (
	"context"
	"time"

	"github.com/imrishuroy/grocery-orderflow/internal/id"
)

// Type names an order event and doubles as its routing key.
type Type string

const (
	OrderPlaced        Type = "order.placed"
	OrderCancelled     Type = "order.cancelled"
	OrderStatusChanged Type = "order.status_changed"
)

// Event is the message published after an order changes.
type Event struct {
	ID             string    `json:"id"`
	Type           Type      `json:"type"`
	OrderID        string    `json:"order_id"`
	UserEmail      string    `json:"user_email"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	Total          float64   `json:"total"`
	Discount       float64   `json:"discount,omitempty"`
	CouponCode     string    `json:"coupon_code,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// New returns an event of type t for orderID with a fresh id and timestamp.
func New(t Type, orderID string) Event {
	return Event{
		ID:         id.NewEventID(),
		Type:       t,
		OrderID:    orderID,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
