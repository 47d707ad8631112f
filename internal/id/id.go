// Package id defines TypeID-based identifiers for storefront entities.
//
// IDs are K-sortable (UUIDv7-based) and rendered as "prefix_suffix",
// e.g. "ord_01h2xcejqtf2nbrexx3vqjhp41".
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in an ID.
type Prefix string

const (
	PrefixOrder   Prefix = "ord"
	PrefixCoupon  Prefix = "cpn"
	PrefixEvent   Prefix = "evt"
	PrefixPayment Prefix = "pay"
)

// New generates a new ID string with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) string {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return tid.String()
}

// NewOrderID generates a new order ID.
func NewOrderID() string { return New(PrefixOrder) }

// NewCouponID generates a new coupon ID.
func NewCouponID() string { return New(PrefixCoupon) }

// NewEventID generates a new event ID.
func NewEventID() string { return New(PrefixEvent) }

// NewPaymentID generates a new payment ID.
func NewPaymentID() string { return New(PrefixPayment) }

// Validate parses s and checks that it carries the expected prefix.
func Validate(s string, expected Prefix) error {
	if s == "" {
		return fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return fmt.Errorf("id: parse %q: %w", s, err)
	}
	if Prefix(tid.Prefix()) != expected {
		return fmt.Errorf("id: expected prefix %q, got %q", expected, tid.Prefix())
	}
	return nil
}
