package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/grocery-orderflow/internal/apperr"
	"github.com/imrishuroy/grocery-orderflow/internal/auth"
	"github.com/imrishuroy/grocery-orderflow/internal/idempotency"
	"github.com/imrishuroy/grocery-orderflow/internal/orders"
	"github.com/imrishuroy/grocery-orderflow/internal/pricing"
	"github.com/imrishuroy/grocery-orderflow/internal/validation"
)

// IdempotencyHeader lets a client retry checkout without placing twice.
const IdempotencyHeader = "Idempotency-Key"

const maxIdempotencyKeyLen = 128

// OrderService is the order behaviour the routes need.
type OrderService interface {
	Quote(ctx context.Context, p auth.Principal, items []orders.CartItem, couponCode string) (*orders.Quote, error)
	Place(ctx context.Context, p auth.Principal, req orders.Checkout, idemKey string) (*orders.Order, error)
	Get(ctx context.Context, p auth.Principal, orderID string) (*orders.Order, error)
	ListByUser(ctx context.Context, p auth.Principal, email string) ([]orders.Order, error)
	ListAll(ctx context.Context, p auth.Principal) ([]orders.Order, error)
	UpdateStatus(ctx context.Context, p auth.Principal, orderID, status string) (*orders.Order, error)
	Cancel(ctx context.Context, p auth.Principal, orderID, reason, custom string) (*orders.Order, error)
}

// HandlerConfig groups dependencies for the orders handler.
type HandlerConfig struct {
	Orders      OrderService
	Idempotency idempotency.Repository
	Validator   *validatorv10.Validate
	Logger      *slog.Logger
}

type ordersHandler struct {
	svc    OrderService
	idem   idempotency.Repository
	v      *validatorv10.Validate
	logger *slog.Logger
}

// RegisterOrdersRoutes registers routes for order API.
func RegisterOrdersRoutes(r gin.IRouter, cfg HandlerConfig) {
	h := &ordersHandler{svc: cfg.Orders, idem: cfg.Idempotency, v: cfg.Validator, logger: cfg.Logger}
	if h.v == nil {
		h.v = validation.New()
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}

	r.POST("/orders/quote", h.quote)
	r.POST("/orders", h.place)
	r.GET("/orders/:id", h.get)
	r.PUT("/orders/:id/cancel", h.cancel)
	r.GET("/users/:email/orders", h.listByUser)
	r.GET("/admin/orders", h.listAll)
	r.PUT("/admin/orders/:id/status", h.updateStatus)
}

func principal(c *gin.Context) auth.Principal {
	return auth.FromContext(c.Request.Context())
}

func (h *ordersHandler) quote(c *gin.Context) {
	var req validation.QuoteRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	q, err := h.svc.Quote(c.Request.Context(), principal(c), req.CartItems(), req.CouponCode)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":       q.Items,
		"subtotal":    pricing.ToFloat(q.Breakdown.Subtotal),
		"deliveryFee": pricing.ToFloat(q.Breakdown.DeliveryFee),
		"taxAmount":   pricing.ToFloat(q.Breakdown.Tax),
		"discount":    pricing.ToFloat(q.Breakdown.Discount),
		"total":       pricing.ToFloat(q.Breakdown.Total),
		"coupon":      q.Coupon,
	})
}

// place creates an order. With an Idempotency-Key, the key is claimed in the
// same write as the order; a retry with the same key gets the stored
// response back instead of a second order.
func (h *ordersHandler) place(c *gin.Context) {
	ctx := c.Request.Context()
	p := principal(c)

	key := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
	if len(key) > maxIdempotencyKeyLen {
		writeError(c, h.logger, apperr.Invalid(IdempotencyHeader, fmt.Sprintf("Idempotency-Key must be at most %d characters", maxIdempotencyKeyLen)))
		return
	}

	var req validation.CheckoutRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}

	o, err := h.svc.Place(ctx, p, req.Checkout(), key)
	if err != nil {
		if key != "" && errors.Is(err, apperr.ErrDuplicateRequest) {
			h.replay(c, p, key)
			return
		}
		writeError(c, h.logger, err)
		return
	}

	body, err := json.Marshal(o)
	if err != nil {
		writeError(c, h.logger, fmt.Errorf("marshal order: %w", err))
		return
	}
	if key != "" {
		if err := h.idem.MarkDone(ctx, key, string(body), http.StatusCreated); err != nil {
			// The order exists; a retry will see IN_PROGRESS instead of a replay.
			h.logger.WarnContext(ctx, "mark idempotency key done failed", "key", key, "order_id", o.OrderID, "error", err)
		}
	}

	c.Header("Location", "/orders/"+o.OrderID)
	c.Data(http.StatusCreated, "application/json; charset=utf-8", body)
}

func (h *ordersHandler) replay(c *gin.Context, p auth.Principal, key string) {
	rec, err := h.idem.Get(c.Request.Context(), key)
	if err != nil {
		writeError(c, h.logger, fmt.Errorf("idempotency lookup: %w", err))
		return
	}
	if rec == nil {
		writeError(c, h.logger, orders.ErrReplayedRequest)
		return
	}
	if rec.Owner != "" && rec.Owner != p.Email {
		c.JSON(http.StatusConflict, gin.H{"error": "idempotency_key_conflict", "message": "Idempotency-Key is already in use"})
		return
	}

	switch rec.Status {
	case idempotency.StatusDone:
		status := rec.ResponseStatus
		if status == 0 {
			status = http.StatusCreated
		}
		c.Header("Idempotent-Replayed", "true")
		c.Data(status, "application/json; charset=utf-8", []byte(rec.ResponseBody))
	case idempotency.StatusInProgress:
		c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress", "orderId": rec.OrderID})
	default:
		writeError(c, h.logger, orders.ErrReplayedRequest)
	}
}

func (h *ordersHandler) get(c *gin.Context) {
	o, err := h.svc.Get(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *ordersHandler) cancel(c *gin.Context) {
	var req validation.CancelOrderRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	o, err := h.svc.Cancel(c.Request.Context(), principal(c), c.Param("id"), req.Reason, req.CustomReason)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order cancelled successfully", "order": o})
}

func (h *ordersHandler) listByUser(c *gin.Context) {
	list, err := h.svc.ListByUser(c.Request.Context(), principal(c), c.Param("email"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": nonNil(list)})
}

func (h *ordersHandler) listAll(c *gin.Context) {
	list, err := h.svc.ListAll(c.Request.Context(), principal(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": nonNil(list)})
}

func (h *ordersHandler) updateStatus(c *gin.Context) {
	var req validation.UpdateStatusRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	o, err := h.svc.UpdateStatus(c.Request.Context(), principal(c), c.Param("id"), req.Status)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
