package validation

import (
	"strings"
	"time"

	"github.com/imrishuroy/grocery-orderflow/internal/coupons"
	"github.com/imrishuroy/grocery-orderflow/internal/orders"
)

// CartItem is one line of a cart. Only the product and quantity are
// accepted; prices come from the catalog.
type CartItem struct {
	ProductID string `json:"productId" validate:"required,max=64"`
	Quantity  int    `json:"quantity" validate:"min=1,max=999"`
}

// ShippingAddress fields are length-checked here. Presence is checked by
// the order service so the buyer sees the first missing field.
type ShippingAddress struct {
	FullName string `json:"fullName" validate:"max=100"`
	Phone    string `json:"phone" validate:"max=20"`
	Address  string `json:"address" validate:"max=200"`
	City     string `json:"city" validate:"max=100"`
	ZipCode  string `json:"zipCode" validate:"max=12"`
}

// CheckoutRequest is the payload for POST /orders
type CheckoutRequest struct {
	Items           []CartItem      `json:"items" validate:"dive"`
	PaymentMethod   string          `json:"paymentMethod" validate:"max=50"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	CouponCode      string          `json:"couponCode" validate:"max=32"`
}

// Checkout converts the request for the order service.
func (r CheckoutRequest) Checkout() orders.Checkout {
	return orders.Checkout{
		Items:           cartItems(r.Items),
		PaymentMethod:   r.PaymentMethod,
		ShippingAddress: orders.ShippingAddress(r.ShippingAddress),
		CouponCode:      r.CouponCode,
	}
}

// QuoteRequest is the payload for POST /orders/quote
type QuoteRequest struct {
	Items      []CartItem `json:"items" validate:"dive"`
	CouponCode string     `json:"couponCode" validate:"max=32"`
}

// CartItems converts the request lines for the order service.
func (r QuoteRequest) CartItems() []orders.CartItem {
	return cartItems(r.Items)
}

func cartItems(in []CartItem) []orders.CartItem {
	out := make([]orders.CartItem, len(in))
	for i, it := range in {
		out[i] = orders.CartItem{ProductID: strings.TrimSpace(it.ProductID), Quantity: it.Quantity}
	}
	return out
}

// CancelOrderRequest is the payload for PUT /orders/:id/cancel
type CancelOrderRequest struct {
	Reason       string `json:"reason" validate:"max=200"`
	CustomReason string `json:"customReason" validate:"max=500"`
}

// UpdateStatusRequest is the payload for PUT /admin/orders/:id/status
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// ValidateCouponRequest is the payload for POST /coupons/validate
type ValidateCouponRequest struct {
	Code     string  `json:"code" validate:"required,max=32"`
	Subtotal float64 `json:"subtotal" validate:"gte=0"`
}

// CreateCouponRequest is the payload for POST /admin/coupons
type CreateCouponRequest struct {
	Code              string     `json:"code" validate:"required,min=3,max=32"`
	Description       string     `json:"description" validate:"required,max=200"`
	DiscountType      string     `json:"discountType" validate:"required,oneof=percentage fixed"`
	DiscountValue     float64    `json:"discountValue" validate:"gt=0"`
	MinOrderAmount    float64    `json:"minOrderAmount" validate:"gte=0"`
	MaxDiscountAmount *float64   `json:"maxDiscountAmount" validate:"omitempty,gte=0"`
	StartDate         *time.Time `json:"startDate"`
	EndDate           time.Time  `json:"endDate" validate:"required"`
	IsActive          *bool      `json:"isActive"`
	UsageLimit        *int       `json:"usageLimit" validate:"omitempty,min=1"`
}

// Input converts the request for the coupon service.
func (r CreateCouponRequest) Input() coupons.CreateInput {
	return coupons.CreateInput{
		Code:              r.Code,
		Description:       strings.TrimSpace(r.Description),
		DiscountType:      coupons.DiscountType(r.DiscountType),
		DiscountValue:     r.DiscountValue,
		MinOrderAmount:    r.MinOrderAmount,
		MaxDiscountAmount: r.MaxDiscountAmount,
		StartDate:         r.StartDate,
		EndDate:           r.EndDate,
		IsActive:          r.IsActive,
		UsageLimit:        r.UsageLimit,
	}
}

// SetActiveRequest is the payload for PUT /admin/coupons/:code
type SetActiveRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

// UpdatePaymentStatusRequest is the payload for PUT /admin/payments/:id/status
type UpdatePaymentStatusRequest struct {
	Status        string `json:"status" validate:"required"`
	TransactionID string `json:"transactionId" validate:"max=100"`
}
