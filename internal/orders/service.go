// Package orders places grocery orders and drives their lifecycle from
// Pending through delivery or cancellation.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/grocery-orderflow/internal/apperr"
	"github.com/imrishuroy/grocery-orderflow/internal/auth"
	"github.com/imrishuroy/grocery-orderflow/internal/catalog"
	"github.com/imrishuroy/grocery-orderflow/internal/coupons"
	"github.com/imrishuroy/grocery-orderflow/internal/events"
	"github.com/imrishuroy/grocery-orderflow/internal/id"
	"github.com/imrishuroy/grocery-orderflow/internal/idempotency"
	"github.com/imrishuroy/grocery-orderflow/internal/payments"
	"github.com/imrishuroy/grocery-orderflow/internal/pricing"
)

// CreateOptions are the side effects committed together with a new order.
type CreateOptions struct {
	CouponCode string
	Claim      *idempotency.Record
}

// Repository persists orders. Create must commit the order, the coupon
// redemption and the idempotency claim atomically. UpdateStatus and Cancel
// return ErrStatusMismatch when their state precondition no longer holds.
type Repository interface {
	Create(ctx context.Context, o *Order, opts CreateOptions) error
	Get(ctx context.Context, orderID string) (*Order, error)
	ListByUser(ctx context.Context, email string) ([]Order, error)
	List(ctx context.Context) ([]Order, error)
	UpdateStatus(ctx context.Context, orderID string, to Status) (*Order, error)
	Cancel(ctx context.Context, orderID, reason string) (*Order, error)
}

// CouponValidator is the slice of the coupon service checkout relies on.
type CouponValidator interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*coupons.Application, error)
	Release(ctx context.Context, code string)
}

// PaymentOpener records the Pending payment of a placed order.
type PaymentOpener interface {
	Open(ctx context.Context, orderID, email string, amount float64, method string) (*payments.Payment, error)
}

type nopPayments struct{}

func (nopPayments) Open(context.Context, string, string, float64, string) (*payments.Payment, error) {
	return nil, nil
}

// Recorder receives order metrics.
type Recorder interface {
	OrderPlaced(total float64, couponCode string)
	OrderCancelled(byAdmin bool)
	StatusChanged(from, to string)
}

type nopRecorder struct{}

func (nopRecorder) OrderPlaced(float64, string) {}
func (nopRecorder) OrderCancelled(bool) {}
func (nopRecorder) StatusChanged(string, string) {}

// Config wires a Service.
type Config struct {
	Repo           Repository
	Catalog        catalog.Lookup
	Coupons        CouponValidator
	Pricing        *pricing.Calculator
	Payments       PaymentOpener
	Publisher      events.Publisher
	Recorder       Recorder
	Logger         *slog.Logger
	IdempotencyTTL time.Duration
}

// Service implements checkout and the order lifecycle.
type Service struct {
	repo      Repository
	catalog   catalog.Lookup
	coupons   CouponValidator
	calc      *pricing.Calculator
	payments  PaymentOpener
	publisher events.Publisher
	recorder  Recorder
	logger    *slog.Logger
	claimTTL  time.Duration
	nowFunc   func() time.Time
}

// NewService builds a Service. Payments, Publisher, Recorder, Logger and
// Pricing fall back to no-op or default implementations when nil.
func NewService(cfg Config) *Service {
	s := &Service{
		repo:      cfg.Repo,
		catalog:   cfg.Catalog,
		coupons:   cfg.Coupons,
		calc:      cfg.Pricing,
		payments:  cfg.Payments,
		publisher: cfg.Publisher,
		recorder:  cfg.Recorder,
		logger:    cfg.Logger,
		claimTTL:  cfg.IdempotencyTTL,
		nowFunc:   time.Now,
	}
	if s.calc == nil {
		s.calc = pricing.NewDefaultCalculator()
	}
	if s.payments == nil {
		s.payments = nopPayments{}
	}
	if s.publisher == nil {
		s.publisher = events.Discard{}
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.claimTTL <= 0 {
		s.claimTTL = 48 * time.Hour
	}
	return s
}

// Quote is a priced cart that has not been placed.
type Quote struct {
	Items     []LineItem
	Breakdown pricing.Breakdown
	Coupon    *AppliedCoupon
}

// Quote prices items with the optional coupon without persisting anything.
func (s *Service) Quote(ctx context.Context, p auth.Principal, items []CartItem, couponCode string) (*Quote, error) {
	if err := auth.RequireAuthenticated(p); err != nil {
		return nil, err
	}
	if err := validateCart(items); err != nil {
		return nil, err
	}
	return s.price(ctx, items, couponCode)
}

func (s *Service) price(ctx context.Context, items []CartItem, couponCode string) (*Quote, error) {
	lines, err := s.snapshot(ctx, items)
	if err != nil {
		return nil, err
	}

	priced := make([]pricing.LineItem, len(lines))
	for i, l := range lines {
		priced[i] = pricing.LineItem{UnitPrice: pricing.FromFloat(l.Price), Quantity: l.Quantity}
	}

	q := &Quote{Items: lines}
	discount := decimal.Zero
	if code := strings.TrimSpace(couponCode); code != "" {
		app, err := s.coupons.Validate(ctx, code, s.calc.Subtotal(priced))
		if err != nil {
			return nil, err
		}
		discount = app.Discount
		q.Coupon = &AppliedCoupon{Code: app.Coupon.Code, Description: app.Coupon.Description}
	}

	q.Breakdown = s.calc.Quote(priced, discount)
	if q.Coupon != nil {
		q.Coupon.DiscountAmount = pricing.ToFloat(q.Breakdown.Discount)
	}
	return q, nil
}

// snapshot resolves each cart line against the catalog so the order keeps
// the name and price that were current at checkout.
func (s *Service) snapshot(ctx context.Context, items []CartItem) ([]LineItem, error) {
	lines := make([]LineItem, 0, len(items))
	for _, it := range items {
		product, err := s.catalog.Product(ctx, strings.TrimSpace(it.ProductID))
		if err != nil {
			return nil, fmt.Errorf("lookup product %s: %w", it.ProductID, err)
		}
		if product == nil {
			return nil, apperr.Invalid("items", fmt.Sprintf("Product %s is no longer available", it.ProductID))
		}
		lines = append(lines, LineItem{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  it.Quantity,
			Image:     product.Image,
		})
	}
	return lines, nil
}

// Place validates the checkout, prices it, and stores a Pending order. When
// idemKey is set the key is claimed in the same write, so a replay of the
// same key fails with apperr.ErrDuplicateRequest instead of placing twice.
func (s *Service) Place(ctx context.Context, p auth.Principal, req Checkout, idemKey string) (*Order, error) {
	if err := auth.RequireAuthenticated(p); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	q, err := s.price(ctx, req.Items, req.CouponCode)
	if err != nil {
		return nil, err
	}

	now := s.nowFunc().UTC()
	o := &Order{
		OrderID:         id.NewOrderID(),
		UserEmail:       p.Email,
		Items:           q.Items,
		ShippingAddress: req.ShippingAddress,
		Status:          StatusPending,
		Subtotal:        pricing.ToFloat(q.Breakdown.Subtotal),
		DeliveryFee:     pricing.ToFloat(q.Breakdown.DeliveryFee),
		TaxAmount:       pricing.ToFloat(q.Breakdown.Tax),
		Total:           pricing.ToFloat(q.Breakdown.Total),
		PaymentMethod:   strings.TrimSpace(req.PaymentMethod),
		Coupon:          q.Coupon,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	opts := CreateOptions{CouponCode: o.CouponCode()}
	if idemKey != "" {
		rec := idempotency.NewRecord(idemKey, o.OrderID, p.Email, now, s.claimTTL)
		opts.Claim = &rec
	}
	if err := s.repo.Create(ctx, o, opts); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "order placed",
		"order_id", o.OrderID, "user", o.UserEmail, "total", o.Total, "coupon", o.CouponCode())
	s.recorder.OrderPlaced(o.Total, o.CouponCode())
	s.openPayment(ctx, o)

	e := s.event(events.OrderPlaced, o)
	if o.Coupon != nil {
		e.Discount = o.Coupon.DiscountAmount
	}
	s.publish(ctx, e)
	return o, nil
}

// Get returns an order visible to p: its owner or an admin.
func (s *Service) Get(ctx context.Context, p auth.Principal, orderID string) (*Order, error) {
	if err := auth.RequireAuthenticated(p); err != nil {
		return nil, err
	}
	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && o.UserEmail != p.Email {
		return nil, ErrNotOrderOwner
	}
	return o, nil
}

// ListByUser returns email's orders, newest first.
func (s *Service) ListByUser(ctx context.Context, p auth.Principal, email string) ([]Order, error) {
	if err := auth.RequireSelfOrAdmin(p, email); err != nil {
		return nil, err
	}
	return s.repo.ListByUser(ctx, auth.NormalizeEmail(email))
}

// ListAll returns every order, newest first. Admin only.
func (s *Service) ListAll(ctx context.Context, p auth.Principal) ([]Order, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return nil, err
	}
	return s.repo.List(ctx)
}

// UpdateStatus moves an order to status on behalf of an admin. Moving to
// Cancelled gives the coupon use back.
func (s *Service) UpdateStatus(ctx context.Context, p auth.Principal, orderID, status string) (*Order, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return nil, err
	}
	to, ok := ParseStatus(status)
	if !ok {
		return nil, apperr.Invalid("status", fmt.Sprintf("Unknown order status %q", status))
	}

	current, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := CheckAdminTransition(current.Status, to); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, orderID, to)
	if errors.Is(err, ErrStatusMismatch) {
		return nil, ErrOrderClosed
	}
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "order status updated",
		"order_id", orderID, "from", current.Status, "to", to, "by", p.Email)
	s.recorder.StatusChanged(string(current.Status), string(to))

	typ := events.OrderStatusChanged
	if to == StatusCancelled {
		s.releaseCoupon(ctx, updated)
		s.recorder.OrderCancelled(true)
		typ = events.OrderCancelled
	}
	e := s.event(typ, updated)
	e.PreviousStatus = string(current.Status)
	s.publish(ctx, e)
	return updated, nil
}

// Cancel cancels the caller's own Pending order. reason may be one of
// CancelReasons; ReasonOther takes custom as the stored text.
func (s *Service) Cancel(ctx context.Context, p auth.Principal, orderID, reason, custom string) (*Order, error) {
	if err := auth.RequireAuthenticated(p); err != nil {
		return nil, err
	}
	current, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if current.UserEmail != p.Email {
		return nil, ErrNotOrderOwner
	}
	if err := CheckCancel(current.Status); err != nil {
		return nil, err
	}
	text, err := ResolveCancelReason(reason, custom)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.Cancel(ctx, orderID, text)
	if errors.Is(err, ErrStatusMismatch) {
		return nil, ErrNotCancellable
	}
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "order cancelled", "order_id", orderID, "reason", text)
	s.releaseCoupon(ctx, updated)
	s.recorder.OrderCancelled(false)
	s.recorder.StatusChanged(string(current.Status), string(StatusCancelled))

	e := s.event(events.OrderCancelled, updated)
	e.PreviousStatus = string(current.Status)
	s.publish(ctx, e)
	return updated, nil
}

// openPayment is best-effort: the order has committed, and an admin can
// still reconcile it from the order list.
func (s *Service) openPayment(ctx context.Context, o *Order) {
	if _, err := s.payments.Open(ctx, o.OrderID, o.UserEmail, o.Total, o.PaymentMethod); err != nil {
		s.logger.ErrorContext(ctx, "open payment failed", "order_id", o.OrderID, "error", err)
	}
}

// releaseCoupon gives back the coupon use of a cancelled order, if any.
func (s *Service) releaseCoupon(ctx context.Context, o *Order) {
	if code := o.CouponCode(); code != "" {
		s.coupons.Release(ctx, code)
	}
}

// load fetches orderID. Strings that are not order IDs are reported as not
// found without a store round trip.
func (s *Service) load(ctx context.Context, orderID string) (*Order, error) {
	orderID = strings.TrimSpace(orderID)
	if err := id.Validate(orderID, id.PrefixOrder); err != nil {
		return nil, ErrOrderNotFound
	}
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (s *Service) event(t events.Type, o *Order) events.Event {
	e := events.New(t, o.OrderID)
	e.UserEmail = o.UserEmail
	e.Status = string(o.Status)
	e.Total = o.Total
	e.CouponCode = o.CouponCode()
	return e
}

// publish is best-effort: the order change has already committed.
func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.ErrorContext(ctx, "publish event failed",
			"event_id", e.ID, "type", e.Type, "order_id", e.OrderID, "error", err)
	}
}
