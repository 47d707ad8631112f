package orders

import (
	"strings"

	"github.com/imrishuroy/grocery-orderflow/internal/apperr"
)

// Cancellation reasons offered to buyers. ReasonOther requires custom text.
const (
	ReasonChangedMind = "Changed my mind"
	ReasonBetterPrice = "Found a better price"
	ReasonNotNeeded   = "Product not needed"
	ReasonOther       = "Other"
)

// CancelReasons lists the predefined reasons in display order.
var CancelReasons = []string{ReasonChangedMind, ReasonBetterPrice, ReasonNotNeeded, ReasonOther}

var (
	ErrOrderNotFound  = apperr.New(apperr.ErrNotFound, "Order not found")
	ErrNotCancellable = apperr.New(apperr.ErrInvalidState, "Only pending orders can be cancelled")
	ErrOrderClosed    = apperr.New(apperr.ErrInvalidState, "Order is already delivered or cancelled")
	ErrNotOrderOwner  = apperr.New(apperr.ErrForbidden, "Unauthorized access to order")
)

// CheckAdminTransition validates an administrative move from -> to. Any
// non-terminal state may move to any state but Pending; ordering between
// the intermediate states is not enforced.
func CheckAdminTransition(from, to Status) error {
	if to == "" || to == StatusPending {
		return apperr.Invalid("status", "Status must be one of Processing, Shipped, Out for Delivery, Delivered, Cancelled")
	}
	if _, ok := ParseStatus(string(to)); !ok {
		return apperr.Invalid("status", "Unknown order status "+string(to))
	}
	if from.Terminal() {
		return ErrOrderClosed
	}
	return nil
}

// CheckCancel validates a buyer cancellation from the current state.
func CheckCancel(from Status) error {
	if from != StatusPending {
		return ErrNotCancellable
	}
	return nil
}

// ResolveCancelReason returns the reason to store. A predefined reason is
// kept as-is, ReasonOther is replaced by the custom text, and any other
// non-empty text is accepted verbatim.
func ResolveCancelReason(reason, custom string) (string, error) {
	reason = strings.TrimSpace(reason)
	custom = strings.TrimSpace(custom)

	switch {
	case reason == "" && custom == "":
		return "", apperr.Invalid("reason", "Please select or provide a reason for cancellation.")
	case reason == "":
		return custom, nil
	case strings.EqualFold(reason, ReasonOther):
		if custom == "" {
			return "", apperr.Invalid("customReason", "Please provide your reason")
		}
		return custom, nil
	}
	return reason, nil
}
