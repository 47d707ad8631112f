// Package payments records the payment opened for each placed order and
// lets admins settle, inspect and remove those records.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/imrishuroy/grocery-orderflow/internal/apperr"
	"github.com/imrishuroy/grocery-orderflow/internal/auth"
	"github.com/imrishuroy/grocery-orderflow/internal/id"
)

// ListOptions filters List results.
type ListOptions struct {
	// OrderID, when set, keeps only the payments of that order.
	OrderID string
}

// Repository is the payment persistence contract. Get returns (nil, nil)
// for an unknown id; Settle returns ErrStatusMismatch unless the payment
// is still Pending.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, paymentID string) (*Payment, error)
	List(ctx context.Context, opts ListOptions) ([]Payment, error)
	Settle(ctx context.Context, paymentID string, to Status, transactionID string) (*Payment, error)
	Delete(ctx context.Context, paymentID string) error
}

// Service implements payment recording and administration.
type Service struct {
	repo    Repository
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewService wires a Service over repo.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, nowFunc: time.Now}
}

// Open records a Pending payment of amount for a freshly placed order.
func (s *Service) Open(ctx context.Context, orderID, email string, amount float64, method string) (*Payment, error) {
	now := s.nowFunc().UTC()
	p := &Payment{
		PaymentID: id.NewPaymentID(),
		OrderID:   orderID,
		UserEmail: email,
		Amount:    amount,
		Method:    strings.TrimSpace(method),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "payment opened", "payment_id", p.PaymentID, "order_id", orderID, "amount", amount)
	return p, nil
}

// List returns payments newest first, optionally for one order. Admin only.
func (s *Service) List(ctx context.Context, p auth.Principal, orderID string) ([]Payment, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, ListOptions{OrderID: strings.TrimSpace(orderID)})
}

// Get returns one payment. Admin only.
func (s *Service) Get(ctx context.Context, p auth.Principal, paymentID string) (*Payment, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return nil, err
	}
	return s.load(ctx, paymentID)
}

// UpdateStatus settles a Pending payment as Success or Failed. A
// successful payment must carry the gateway's transaction id.
func (s *Service) UpdateStatus(ctx context.Context, p auth.Principal, paymentID, status, transactionID string) (*Payment, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return nil, err
	}
	to, ok := ParseStatus(status)
	if !ok || to == StatusPending {
		return nil, apperr.Invalid("status", fmt.Sprintf("Payment status must be Success or Failed, got %q", status))
	}
	transactionID = strings.TrimSpace(transactionID)
	if to == StatusSuccess && transactionID == "" {
		return nil, apperr.Invalid("transactionId", "Transaction id is required for a successful payment")
	}

	current, err := s.load(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusPending {
		return nil, ErrPaymentSettled
	}

	updated, err := s.repo.Settle(ctx, current.PaymentID, to, transactionID)
	if errors.Is(err, ErrStatusMismatch) {
		return nil, ErrPaymentSettled
	}
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "payment settled",
		"payment_id", updated.PaymentID, "order_id", updated.OrderID, "status", to, "by", p.Email)
	return updated, nil
}

// Delete removes a payment record. Admin only.
func (s *Service) Delete(ctx context.Context, p auth.Principal, paymentID string) error {
	if err := auth.RequireAdmin(p); err != nil {
		return err
	}
	paymentID = strings.TrimSpace(paymentID)
	if id.Validate(paymentID, id.PrefixPayment) != nil {
		return ErrPaymentNotFound
	}
	if err := s.repo.Delete(ctx, paymentID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "payment deleted", "payment_id", paymentID, "by", p.Email)
	return nil
}

func (s *Service) load(ctx context.Context, paymentID string) (*Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if id.Validate(paymentID, id.PrefixPayment) != nil {
		return nil, ErrPaymentNotFound
	}
	pay, err := s.repo.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if pay == nil {
		return nil, ErrPaymentNotFound
	}
	return pay, nil
}
