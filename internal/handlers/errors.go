package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/grocery-orderflow/internal/apperr"
)

// statusFor maps an error kind to an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	switch {
	case apperr.IsValidation(err):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, apperr.ErrMinimumNotMet):
		return http.StatusBadRequest, "minimum_not_met"
	case errors.Is(err, apperr.ErrUsageLimitExceeded):
		return http.StatusConflict, "usage_limit_reached"
	case errors.Is(err, apperr.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperr.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, apperr.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, apperr.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate_request"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError renders err as {"error", "message"}. Unclassified errors are
// logged and their detail is not sent to the client.
func writeError(c *gin.Context, logger *slog.Logger, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.FullPath(), "request_id", c.GetString(requestIDKey), "error", err)
		c.JSON(status, gin.H{"error": code, "message": "Internal server error"})
		return
	}

	body := gin.H{"error": code, "message": apperr.Message(err)}
	var ve *apperr.ValidationError
	if errors.As(err, &ve) && ve.Field != "" {
		body["field"] = ve.Field
	}
	c.JSON(status, body)
}
