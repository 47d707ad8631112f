package orders

import (
	"strings"
	"time"
)

// Status is an order lifecycle state.
type Status string

// Order statuses
const (
	StatusPending        Status = "Pending"
	StatusProcessing     Status = "Processing"
	StatusShipped        Status = "Shipped"
	StatusOutForDelivery Status = "Out for Delivery"
	StatusDelivered      Status = "Delivered"
	StatusCancelled      Status = "Cancelled"
)

var allStatuses = []Status{
	StatusPending, StatusProcessing, StatusShipped,
	StatusOutForDelivery, StatusDelivered, StatusCancelled,
}

// ParseStatus matches s against the known statuses, ignoring case and
// surrounding space.
func ParseStatus(s string) (Status, bool) {
	s = strings.TrimSpace(s)
	for _, st := range allStatuses {
		if strings.EqualFold(string(st), s) {
			return st, true
		}
	}
	return "", false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// LineItem is a product snapshot taken at checkout.
type LineItem struct {
	ProductID string  `dynamodbav:"product_id" json:"productId"`
	Name      string  `dynamodbav:"product_name" json:"productName"`
	Price     float64 `dynamodbav:"price" json:"price"`
	Quantity  int     `dynamodbav:"quantity" json:"quantity"`
	Image     string  `dynamodbav:"image,omitempty" json:"image,omitempty"`
}

// ShippingAddress is where the order is delivered.
type ShippingAddress struct {
	FullName string `dynamodbav:"full_name" json:"fullName"`
	Phone    string `dynamodbav:"phone" json:"phone"`
	Address  string `dynamodbav:"address" json:"address"`
	City     string `dynamodbav:"city" json:"city"`
	ZipCode  string `dynamodbav:"zip_code" json:"zipCode"`
}

// AppliedCoupon snapshots the coupon used at checkout.
type AppliedCoupon struct {
	Code           string  `dynamodbav:"code" json:"code"`
	DiscountAmount float64 `dynamodbav:"discount_amount" json:"discountAmount"`
	Description    string  `dynamodbav:"description,omitempty" json:"description,omitempty"`
}

// Order represents the item stored in the Orders DynamoDB table.
// Money fields are cent-rounded by the pricing package before they are set.
type Order struct {
	OrderID         string          `dynamodbav:"order_id" json:"id"` // PK
	UserEmail       string          `dynamodbav:"user_email" json:"userEmail"`
	Items           []LineItem      `dynamodbav:"items" json:"items"`
	ShippingAddress ShippingAddress `dynamodbav:"shipping_address" json:"shippingAddress"`
	Status          Status          `dynamodbav:"status" json:"status"`
	Subtotal        float64         `dynamodbav:"subtotal" json:"subtotal"`
	DeliveryFee     float64         `dynamodbav:"delivery_fee" json:"deliveryFee"`
	TaxAmount       float64         `dynamodbav:"tax_amount" json:"taxAmount"`
	Total           float64         `dynamodbav:"total" json:"total"`
	PaymentMethod   string          `dynamodbav:"payment_method" json:"paymentMethod"`
	Coupon          *AppliedCoupon  `dynamodbav:"coupon,omitempty" json:"coupon"`
	CancelReason    *string         `dynamodbav:"cancel_reason,omitempty" json:"cancelReason"`
	CreatedAt       time.Time       `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `dynamodbav:"updated_at" json:"updatedAt"`
}

// CouponCode returns the applied coupon code, or "".
func (o *Order) CouponCode() string {
	if o.Coupon == nil {
		return ""
	}
	return o.Coupon.Code
}
