package validation

import (
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator. Field errors are reported under
// their JSON names, and struct-level rules are registered for payloads
// whose fields depend on each other.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterStructValidation(createCouponStructValidation, CreateCouponRequest{})

	return v
}

// createCouponStructValidation checks the rules that span fields: a
// percentage cannot exceed 100, a cap only makes sense on a percentage, and
// the window must end after it starts.
func createCouponStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateCouponRequest)

	if req.DiscountType == "percentage" && req.DiscountValue > 100 {
		sl.ReportError(req.DiscountValue, "discountValue", "DiscountValue", "percentage_max", "100")
	}
	if req.DiscountType == "fixed" && req.MaxDiscountAmount != nil && *req.MaxDiscountAmount > 0 {
		sl.ReportError(req.MaxDiscountAmount, "maxDiscountAmount", "MaxDiscountAmount", "percentage_only", "")
	}
	if req.StartDate != nil && !req.EndDate.After(*req.StartDate) {
		sl.ReportError(req.EndDate, "endDate", "EndDate", "after_start", "")
	}
}
