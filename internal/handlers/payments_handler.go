package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/grocery-orderflow/internal/auth"
	"github.com/imrishuroy/grocery-orderflow/internal/payments"
	"github.com/imrishuroy/grocery-orderflow/internal/validation"
)

// PaymentService is the payment behaviour the admin routes need.
type PaymentService interface {
	List(ctx context.Context, p auth.Principal, orderID string) ([]payments.Payment, error)
	Get(ctx context.Context, p auth.Principal, paymentID string) (*payments.Payment, error)
	UpdateStatus(ctx context.Context, p auth.Principal, paymentID, status, transactionID string) (*payments.Payment, error)
	Delete(ctx context.Context, p auth.Principal, paymentID string) error
}

// PaymentConfig groups dependencies for the payments handler.
type PaymentConfig struct {
	Payments  PaymentService
	Validator *validatorv10.Validate
	Logger    *slog.Logger
}

type paymentsHandler struct {
	svc    PaymentService
	v      *validatorv10.Validate
	logger *slog.Logger
}

// RegisterPaymentRoutes registers the admin payment routes.
func RegisterPaymentRoutes(r gin.IRouter, cfg PaymentConfig) {
	h := &paymentsHandler{svc: cfg.Payments, v: cfg.Validator, logger: cfg.Logger}
	if h.v == nil {
		h.v = validation.New()
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}

	r.GET("/admin/payments", h.list)
	r.GET("/admin/payments/:id", h.get)
	r.PUT("/admin/payments/:id/status", h.updateStatus)
	r.DELETE("/admin/payments/:id", h.delete)
}

func (h *paymentsHandler) list(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context(), principal(c), c.Query("orderId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": nonNil(list)})
}

func (h *paymentsHandler) get(c *gin.Context) {
	p, err := h.svc.Get(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": p})
}

func (h *paymentsHandler) updateStatus(c *gin.Context) {
	var req validation.UpdatePaymentStatusRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	p, err := h.svc.UpdateStatus(c.Request.Context(), principal(c), c.Param("id"), req.Status, req.TransactionID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Payment updated successfully", "payment": p})
}

func (h *paymentsHandler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), principal(c), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
