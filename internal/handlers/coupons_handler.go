package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/grocery-orderflow/internal/auth"
	"github.com/imrishuroy/grocery-orderflow/internal/coupons"
	"github.com/imrishuroy/grocery-orderflow/internal/pricing"
	"github.com/imrishuroy/grocery-orderflow/internal/validation"
)

// CouponService is the coupon behaviour the routes need.
type CouponService interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*coupons.Application, error)
	Create(ctx context.Context, p auth.Principal, in coupons.CreateInput) (*coupons.Coupon, error)
	List(ctx context.Context, p auth.Principal) ([]coupons.Coupon, error)
	ListActive(ctx context.Context) ([]coupons.Coupon, error)
	SetActive(ctx context.Context, p auth.Principal, code string, active bool) (*coupons.Coupon, error)
	Delete(ctx context.Context, p auth.Principal, code string) error
}

// CouponConfig groups dependencies for the coupons handler.
type CouponConfig struct {
	Coupons   CouponService
	Validator *validatorv10.Validate
	Logger    *slog.Logger
}

type couponsHandler struct {
	svc    CouponService
	v      *validatorv10.Validate
	logger *slog.Logger
}

// RegisterCouponRoutes registers the public, buyer and admin coupon routes.
func RegisterCouponRoutes(r gin.IRouter, cfg CouponConfig) {
	h := &couponsHandler{svc: cfg.Coupons, v: cfg.Validator, logger: cfg.Logger}
	if h.v == nil {
		h.v = validation.New()
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}

	r.GET("/coupons/active", h.listActive)
	r.POST("/coupons/validate", h.validate)
	r.POST("/admin/coupons", h.create)
	r.GET("/admin/coupons", h.list)
	r.PUT("/admin/coupons/:code", h.setActive)
	r.DELETE("/admin/coupons/:code", h.delete)
}

func (h *couponsHandler) listActive(c *gin.Context) {
	list, err := h.svc.ListActive(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coupons": nonNil(list)})
}

func (h *couponsHandler) validate(c *gin.Context) {
	if err := auth.RequireAuthenticated(principal(c)); err != nil {
		writeError(c, h.logger, err)
		return
	}
	var req validation.ValidateCouponRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}

	app, err := h.svc.Validate(c.Request.Context(), req.Code, pricing.FromFloat(req.Subtotal))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":          true,
		"discountAmount": pricing.ToFloat(app.Discount),
		"coupon": gin.H{
			"code":          app.Coupon.Code,
			"description":   app.Coupon.Description,
			"discountType":  app.Coupon.DiscountType,
			"discountValue": app.Coupon.DiscountValue,
		},
	})
}

func (h *couponsHandler) create(c *gin.Context) {
	var req validation.CreateCouponRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	cp, err := h.svc.Create(c.Request.Context(), principal(c), req.Input())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Coupon created successfully", "coupon": cp})
}

func (h *couponsHandler) list(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context(), principal(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coupons": nonNil(list)})
}

func (h *couponsHandler) setActive(c *gin.Context) {
	var req validation.SetActiveRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	cp, err := h.svc.SetActive(c.Request.Context(), principal(c), c.Param("code"), *req.IsActive)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coupon": cp})
}

func (h *couponsHandler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), principal(c), c.Param("code")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
