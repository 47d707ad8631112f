package validation

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
)

// BindAndValidate binds JSON body into `out` and runs validation.
// If validation fails, it writes a 400 response and returns an error for the handler to short-circuit.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request_body",
			"message": "Request body is not valid JSON for this endpoint",
		})
		return err
	}

	if err := v.Struct(out); err != nil {
		fields := FieldMessages(err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": firstMessage(fields),
			"fields":  fields,
		})
		return err
	}
	return nil
}

// FieldMessages maps each failing field (by JSON path) to a readable message.
func FieldMessages(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		out["error"] = err.Error()
		return out
	}
	for _, fe := range ve {
		out[fieldPath(fe)] = message(fe)
	}
	return out
}

// fieldPath drops the root struct name: "CheckoutRequest.items[0].quantity"
// becomes "items[0].quantity".
func fieldPath(fe validatorv10.FieldError) string {
	ns := fe.Namespace()
	for i := 0; i < len(ns); i++ {
		if ns[i] == '.' {
			return ns[i+1:]
		}
	}
	return ns
}

func message(fe validatorv10.FieldError) string {
	f := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", f)
	case "min":
		return fmt.Sprintf("%s must be at least %s", f, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", f, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", f, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be %s or more", f, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", f, fe.Param())
	case "percentage_max":
		return "Percentage discount cannot exceed 100"
	case "percentage_only":
		return "Maximum discount applies to percentage coupons only"
	case "after_start":
		return "End date must be after start date"
	}
	return fmt.Sprintf("%s is invalid", f)
}

// firstMessage picks a stable message for the top-level "message" field.
func firstMessage(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return "Validation failed"
	}
	return fields[keys[0]]
}
