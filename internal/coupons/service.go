// Package coupons validates, prices and manages discount coupons.
package coupons

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/grocery-orderflow/internal/apperr"
	"github.com/imrishuroy/grocery-orderflow/internal/auth"
	"github.com/imrishuroy/grocery-orderflow/internal/id"
)

// ListOptions filters List results.
type ListOptions struct {
	// LiveAt, when non-zero, keeps only active coupons whose window contains it.
	LiveAt time.Time
}

// Repository is the coupon persistence contract. Get returns (nil, nil)
// for an unknown code.
type Repository interface {
	Create(ctx context.Context, c *Coupon) error
	Get(ctx context.Context, code string) (*Coupon, error)
	List(ctx context.Context, opts ListOptions) ([]Coupon, error)
	SetActive(ctx context.Context, code string, active bool) (*Coupon, error)
	Delete(ctx context.Context, code string) error
	Release(ctx context.Context, code string) error
}

// Application is a coupon that passed validation for a given subtotal.
type Application struct {
	Coupon   *Coupon
	Discount decimal.Decimal
}

// CreateInput is the admin payload for a new coupon.
type CreateInput struct {
	Code              string
	Description       string
	DiscountType      DiscountType
	DiscountValue     float64
	MinOrderAmount    float64
	MaxDiscountAmount *float64
	StartDate         *time.Time
	EndDate           time.Time
	IsActive          *bool
	UsageLimit        *int
}

// Service implements coupon validation and administration.
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

// Validate checks code against subtotal without side effects and returns
// the discount it would grant.
func (s *Service) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*Application, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, apperr.Invalid("code", "Coupon code is required")
	}
	if subtotal.IsNegative() {
		return nil, apperr.Invalid("subtotal", "Subtotal must not be negative")
	}

	c, err := s.repo.Get(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("lookup coupon: %w", err)
	}
	if err := c.Check(subtotal, s.nowFunc()); err != nil {
		return nil, err
	}
	return &Application{Coupon: c, Discount: c.Discount(subtotal)}, nil
}

// Create validates in and stores a new coupon on behalf of admin p.
func (s *Service) Create(ctx context.Context, p auth.Principal, in CreateInput) (*Coupon, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return nil, err
	}

	now := s.nowFunc()
	c, err := in.build(now)
	if err != nil {
		return nil, err
	}
	c.ID = id.NewCouponID()
	c.CreatedBy = p.Email
	c.CreatedAt = now

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("coupon created", "code", c.Code, "type", c.DiscountType, "by", p.Email)
	return c, nil
}

func (in CreateInput) build(now time.Time) (*Coupon, error) {
	code := NormalizeCode(in.Code)
	switch {
	case code == "":
		return nil, apperr.Invalid("code", "Coupon code is required")
	case in.Description == "":
		return nil, apperr.Invalid("description", "Description is required")
	case !in.DiscountType.Valid():
		return nil, apperr.Invalid("discountType", "Discount type must be percentage or fixed")
	case in.DiscountValue < 0:
		return nil, apperr.Invalid("discountValue", "Discount value must not be negative")
	case in.DiscountType == DiscountPercentage && in.DiscountValue > 100:
		return nil, apperr.Invalid("discountValue", "Percentage discount cannot exceed 100")
	case in.MinOrderAmount < 0:
		return nil, apperr.Invalid("minOrderAmount", "Minimum order amount must not be negative")
	case in.UsageLimit != nil && *in.UsageLimit < 0:
		return nil, apperr.Invalid("usageLimit", "Usage limit must not be negative")
	}

	maxDiscount := in.MaxDiscountAmount
	if maxDiscount != nil {
		switch {
		case *maxDiscount < 0:
			return nil, apperr.Invalid("maxDiscountAmount", "Maximum discount must not be negative")
		case in.DiscountType == DiscountFixed:
			return nil, apperr.Invalid("maxDiscountAmount", "Maximum discount applies to percentage coupons only")
		case *maxDiscount == 0:
			maxDiscount = nil
		}
	}

	start := now
	if in.StartDate != nil && !in.StartDate.IsZero() {
		start = *in.StartDate
	}
	if !in.EndDate.After(start) {
		return nil, apperr.Invalid("endDate", "End date must be after start date")
	}
	if !in.EndDate.After(now) {
		return nil, apperr.Invalid("endDate", "End date must be in the future")
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	return &Coupon{
		Code:              code,
		Description:       in.Description,
		DiscountType:      in.DiscountType,
		DiscountValue:     in.DiscountValue,
		MinOrderAmount:    in.MinOrderAmount,
		MaxDiscountAmount: maxDiscount,
		StartDate:         start,
		EndDate:           in.EndDate,
		IsActive:          active,
		UsageLimit:        in.UsageLimit,
	}, nil
}

// List returns every coupon, newest first. Admin only.
func (s *Service) List(ctx context.Context, p auth.Principal) ([]Coupon, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, ListOptions{})
}

// ListActive returns the coupons a shopper can currently redeem.
func (s *Service) ListActive(ctx context.Context) ([]Coupon, error) {
	all, err := s.repo.List(ctx, ListOptions{LiveAt: s.nowFunc()})
	if err != nil {
		return nil, err
	}
	out := make([]Coupon, 0, len(all))
	for _, c := range all {
		if !c.Exhausted() {
			out = append(out, c)
		}
	}
	return out, nil
}

// SetActive activates or deactivates a coupon. Admin only.
func (s *Service) SetActive(ctx context.Context, p auth.Principal, code string, active bool) (*Coupon, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return nil, err
	}
	c, err := s.repo.SetActive(ctx, NormalizeCode(code), active)
	if err != nil {
		return nil, err
	}
	s.logger.Info("coupon status changed", "code", c.Code, "active", active, "by", p.Email)
	return c, nil
}

// Delete removes a coupon. Admin only.
func (s *Service) Delete(ctx context.Context, p auth.Principal, code string) error {
	if err := auth.RequireAdmin(p); err != nil {
		return err
	}
	code = NormalizeCode(code)
	if err := s.repo.Delete(ctx, code); err != nil {
		return err
	}
	s.logger.Info("coupon deleted", "code", code, "by", p.Email)
	return nil
}

// Release gives back one use of code after a cancellation. Failures are
// logged and swallowed; the cancellation has already committed.
func (s *Service) Release(ctx context.Context, code string) {
	if code == "" {
		return
	}
	if err := s.repo.Release(ctx, code); err != nil {
		level := slog.LevelError
		if errors.Is(err, apperr.ErrInvalidState) {
			level = slog.LevelWarn
		}
		s.logger.Log(ctx, level, "coupon release failed", "code", code, "error", err)
	}
}
