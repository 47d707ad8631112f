package coupons

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/grocery-orderflow/internal/apperr"
	"github.com/imrishuroy/grocery-orderflow/internal/pricing"
)

// DiscountType selects how DiscountValue is applied.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

// Coupon is the item stored in the coupons table, keyed by code.
type Coupon struct {
	Code              string       `dynamodbav:"code" json:"code"` // PK
	ID                string       `dynamodbav:"coupon_id" json:"id"`
	Description       string       `dynamodbav:"description" json:"description"`
	DiscountType      DiscountType `dynamodbav:"discount_type" json:"discountType"`
	DiscountValue     float64      `dynamodbav:"discount_value" json:"discountValue"`
	MinOrderAmount    float64      `dynamodbav:"min_order_amount" json:"minOrderAmount"`
	MaxDiscountAmount *float64     `dynamodbav:"max_discount_amount,omitempty" json:"maxDiscountAmount"`
	StartDate         time.Time    `dynamodbav:"start_date,unixtime" json:"startDate"`
	EndDate           time.Time    `dynamodbav:"end_date,unixtime" json:"endDate"`
	IsActive          bool         `dynamodbav:"is_active" json:"isActive"`
	// UsageLimit is nil for unlimited coupons. It must be omitted (not NULL)
	// in DynamoDB so the redeem condition can test attribute_not_exists.
	UsageLimit *int      `dynamodbav:"usage_limit,omitempty" json:"usageLimit"`
	UsedCount  int       `dynamodbav:"used_count" json:"usedCount"`
	CreatedBy  string    `dynamodbav:"created_by,omitempty" json:"createdBy,omitempty"`
	CreatedAt  time.Time `dynamodbav:"created_at" json:"createdAt"`
}

// NormalizeCode trims and uppercases a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Exhausted reports whether the usage limit has been reached.
func (c *Coupon) Exhausted() bool {
	return c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit
}

// Live reports whether the coupon is active and now falls in its window.
func (c *Coupon) Live(now time.Time) bool {
	return c.IsActive && !now.Before(c.StartDate) && !now.After(c.EndDate)
}

// Discount returns the amount taken off subtotal in cents. Percentage
// discounts are rounded down, so they never exceed subtotal*value/100, and
// are clamped to MaxDiscountAmount when it is set and positive. Fixed
// discounts are returned as-is; the order total caps them.
func (c *Coupon) Discount(subtotal decimal.Decimal) decimal.Decimal {
	switch c.DiscountType {
	case DiscountPercentage:
		d := subtotal.Mul(decimal.NewFromFloat(c.DiscountValue)).Div(decimal.NewFromInt(100))
		if c.MaxDiscountAmount != nil && *c.MaxDiscountAmount > 0 {
			if limit := decimal.NewFromFloat(*c.MaxDiscountAmount); d.GreaterThan(limit) {
				d = limit
			}
		}
		return d.Truncate(pricing.Scale)
	case DiscountFixed:
		return pricing.Round(decimal.NewFromFloat(c.DiscountValue))
	}
	return decimal.Zero
}

// Check applies the redemption rules for subtotal at now, in order:
// unknown/inactive/out of window, usage limit, minimum order amount.
// A nil coupon is reported as not found.
func (c *Coupon) Check(subtotal decimal.Decimal, now time.Time) error {
	if c == nil || !c.Live(now) {
		return ErrInvalidCoupon
	}
	if c.Exhausted() {
		return ErrUsageLimitReached
	}
	if minimum := decimal.NewFromFloat(c.MinOrderAmount); subtotal.LessThan(minimum) {
		return apperr.Newf(apperr.ErrMinimumNotMet,
			"Minimum order amount of $%s required for this coupon", minimum.StringFixed(2))
	}
	return nil
}

var (
	ErrInvalidCoupon     = apperr.New(apperr.ErrNotFound, "Invalid or expired coupon")
	ErrUsageLimitReached = apperr.New(apperr.ErrUsageLimitExceeded, "Coupon usage limit reached")
	ErrCouponNotFound    = apperr.New(apperr.ErrNotFound, "Coupon not found")
	ErrDuplicateCode     = apperr.New(apperr.ErrAlreadyExists, "Coupon code already exists")
)

// RedeemError explains why a conditional redemption of c at now was
// rejected. c is the coupon as re-read after the failure (nil if it is
// gone). The minimum order amount is not part of the redeem condition.
func RedeemError(c *Coupon, now time.Time) error {
	if c == nil || !c.Live(now) {
		return ErrInvalidCoupon
	}
	return ErrUsageLimitReached
}
