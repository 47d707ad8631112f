package mongo

import (
	"time"

	"github.com/imrishuroy/grocery-orderflow/internal/coupons"
	"github.com/imrishuroy/grocery-orderflow/internal/idempotency"
	"github.com/imrishuroy/grocery-orderflow/internal/orders"
	"github.com/imrishuroy/grocery-orderflow/internal/payments"
)

// ==================== Coupon models ====================

type couponModel struct {
	ID                string    `bson:"_id"`
	Code              string    `bson:"code"`
	Description       string    `bson:"description"`
	DiscountType      string    `bson:"discount_type"`
	DiscountValue     float64   `bson:"discount_value"`
	MinOrderAmount    float64   `bson:"min_order_amount"`
	MaxDiscountAmount *float64  `bson:"max_discount_amount,omitempty"`
	StartDate         time.Time `bson:"start_date"`
	EndDate           time.Time `bson:"end_date"`
	IsActive          bool      `bson:"is_active"`
	UsageLimit        *int      `bson:"usage_limit"`
	UsedCount         int       `bson:"used_count"`
	CreatedBy         string    `bson:"created_by,omitempty"`
	CreatedAt         time.Time `bson:"created_at"`
}

func toCouponModel(c *coupons.Coupon) *couponModel {
	return &couponModel{
		ID:                c.ID,
		Code:              c.Code,
		Description:       c.Description,
		DiscountType:      string(c.DiscountType),
		DiscountValue:     c.DiscountValue,
		MinOrderAmount:    c.MinOrderAmount,
		MaxDiscountAmount: c.MaxDiscountAmount,
		StartDate:         c.StartDate.UTC(),
		EndDate:           c.EndDate.UTC(),
		IsActive:          c.IsActive,
		UsageLimit:        c.UsageLimit,
		UsedCount:         c.UsedCount,
		CreatedBy:         c.CreatedBy,
		CreatedAt:         c.CreatedAt.UTC(),
	}
}

func fromCouponModel(m *couponModel) *coupons.Coupon {
	return &coupons.Coupon{
		Code:              m.Code,
		ID:                m.ID,
		Description:       m.Description,
		DiscountType:      coupons.DiscountType(m.DiscountType),
		DiscountValue:     m.DiscountValue,
		MinOrderAmount:    m.MinOrderAmount,
		MaxDiscountAmount: m.MaxDiscountAmount,
		StartDate:         m.StartDate,
		EndDate:           m.EndDate,
		IsActive:          m.IsActive,
		UsageLimit:        m.UsageLimit,
		UsedCount:         m.UsedCount,
		CreatedBy:         m.CreatedBy,
		CreatedAt:         m.CreatedAt,
	}
}

// ==================== Order models ====================

type orderModel struct {
	ID              string              `bson:"_id"`
	UserEmail       string              `bson:"user_email"`
	Items           []lineItemModel     `bson:"items"`
	ShippingAddress addressModel        `bson:"shipping_address"`
	Status          string              `bson:"status"`
	Subtotal        float64             `bson:"subtotal"`
	DeliveryFee     float64             `bson:"delivery_fee"`
	TaxAmount       float64             `bson:"tax_amount"`
	Total           float64             `bson:"total"`
	PaymentMethod   string              `bson:"payment_method"`
	Coupon          *appliedCouponModel `bson:"coupon,omitempty"`
	CancelReason    *string             `bson:"cancel_reason,omitempty"`
	CreatedAt       time.Time           `bson:"created_at"`
	UpdatedAt       time.Time           `bson:"updated_at"`
}

type lineItemModel struct {
	ProductID string  `bson:"product_id"`
	Name      string  `bson:"product_name"`
	Price     float64 `bson:"price"`
	Quantity  int     `bson:"quantity"`
	Image     string  `bson:"image,omitempty"`
}

type addressModel struct {
	FullName string `bson:"full_name"`
	Phone    string `bson:"phone"`
	Address  string `bson:"address"`
	City     string `bson:"city"`
	ZipCode  string `bson:"zip_code"`
}

type appliedCouponModel struct {
	Code           string  `bson:"code"`
	DiscountAmount float64 `bson:"discount_amount"`
	Description    string  `bson:"description,omitempty"`
}

func toOrderModel(o *orders.Order) *orderModel {
	items := make([]lineItemModel, len(o.Items))
	for i, it := range o.Items {
		items[i] = lineItemModel(it)
	}
	m := &orderModel{
		ID:              o.OrderID,
		UserEmail:       o.UserEmail,
		Items:           items,
		ShippingAddress: addressModel(o.ShippingAddress),
		Status:          string(o.Status),
		Subtotal:        o.Subtotal,
		DeliveryFee:     o.DeliveryFee,
		TaxAmount:       o.TaxAmount,
		Total:           o.Total,
		PaymentMethod:   o.PaymentMethod,
		CancelReason:    o.CancelReason,
		CreatedAt:       o.CreatedAt.UTC(),
		UpdatedAt:       o.UpdatedAt.UTC(),
	}
	if o.Coupon != nil {
		c := appliedCouponModel(*o.Coupon)
		m.Coupon = &c
	}
	return m
}

func fromOrderModel(m *orderModel) *orders.Order {
	items := make([]orders.LineItem, len(m.Items))
	for i, it := range m.Items {
		items[i] = orders.LineItem(it)
	}
	o := &orders.Order{
		OrderID:         m.ID,
		UserEmail:       m.UserEmail,
		Items:           items,
		ShippingAddress: orders.ShippingAddress(m.ShippingAddress),
		Status:          orders.Status(m.Status),
		Subtotal:        m.Subtotal,
		DeliveryFee:     m.DeliveryFee,
		TaxAmount:       m.TaxAmount,
		Total:           m.Total,
		PaymentMethod:   m.PaymentMethod,
		CancelReason:    m.CancelReason,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if m.Coupon != nil {
		c := orders.AppliedCoupon(*m.Coupon)
		o.Coupon = &c
	}
	return o
}

// ==================== Payment models ====================

// paymentModel omits an empty transaction_id so the partial unique index
// only sees settled payments.
type paymentModel struct {
	ID            string    `bson:"_id"`
	OrderID       string    `bson:"order_id"`
	UserEmail     string    `bson:"user_email"`
	Amount        float64   `bson:"amount"`
	Method        string    `bson:"payment_method"`
	Status        string    `bson:"status"`
	TransactionID string    `bson:"transaction_id,omitempty"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func toPaymentModel(p *payments.Payment) *paymentModel {
	return &paymentModel{
		ID:            p.PaymentID,
		OrderID:       p.OrderID,
		UserEmail:     p.UserEmail,
		Amount:        p.Amount,
		Method:        p.Method,
		Status:        string(p.Status),
		TransactionID: p.TransactionID,
		CreatedAt:     p.CreatedAt.UTC(),
		UpdatedAt:     p.UpdatedAt.UTC(),
	}
}

func fromPaymentModel(m *paymentModel) *payments.Payment {
	return &payments.Payment{
		PaymentID:     m.ID,
		OrderID:       m.OrderID,
		UserEmail:     m.UserEmail,
		Amount:        m.Amount,
		Method:        m.Method,
		Status:        payments.Status(m.Status),
		TransactionID: m.TransactionID,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// ==================== Idempotency models ====================

// idempotencyModel carries ExpireAt as a BSON date so the TTL index can
// sweep it; ExpiresAt mirrors the epoch seconds the record type exposes.
type idempotencyModel struct {
	Key            string    `bson:"_id"`
	Status         string    `bson:"status"`
	OrderID        string    `bson:"order_id,omitempty"`
	Owner          string    `bson:"owner,omitempty"`
	ResponseBody   string    `bson:"response_body,omitempty"`
	ResponseStatus int       `bson:"response_status,omitempty"`
	Note           string    `bson:"note,omitempty"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
	ExpireAt       time.Time `bson:"expire_at"`
}

func toIdempotencyModel(r *idempotency.Record) *idempotencyModel {
	return &idempotencyModel{
		Key:            r.IdempotencyKey,
		Status:         r.Status,
		OrderID:        r.OrderID,
		Owner:          r.Owner,
		ResponseBody:   r.ResponseBody,
		ResponseStatus: r.ResponseStatus,
		Note:           r.Note,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
		ExpireAt:       time.Unix(r.ExpiresAt, 0).UTC(),
	}
}

func fromIdempotencyModel(m *idempotencyModel) *idempotency.Record {
	return &idempotency.Record{
		IdempotencyKey: m.Key,
		Status:         m.Status,
		OrderID:        m.OrderID,
		Owner:          m.Owner,
		ResponseBody:   m.ResponseBody,
		ResponseStatus: m.ResponseStatus,
		Note:           m.Note,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		ExpiresAt:      m.ExpireAt.Unix(),
	}
}
