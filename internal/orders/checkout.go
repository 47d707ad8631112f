package orders

import (
	"fmt"
	"strings"

	"github.com/imrishuroy/grocery-orderflow/internal/apperr"
)

// CartItem is one cart line submitted at checkout. Prices are never taken
// from the client; they are resolved from the catalog.
type CartItem struct {
	ProductID string
	Quantity  int
}

// Checkout is a buyer's request to place an order.
type Checkout struct {
	Items           []CartItem
	PaymentMethod   string
	ShippingAddress ShippingAddress
	CouponCode      string
}

// Validate reports the first problem with the request. An empty cart wins
// over missing fields, and missing fields are reported in the order the
// checkout form presents them.
func (c Checkout) Validate() error {
	if len(c.Items) == 0 {
		return apperr.Invalid("items", "Your cart is empty")
	}

	required := []struct {
		field, label, value string
	}{
		{"paymentMethod", "payment method", c.PaymentMethod},
		{"fullName", "full name", c.ShippingAddress.FullName},
		{"phone", "phone number", c.ShippingAddress.Phone},
		{"zipCode", "zip code", c.ShippingAddress.ZipCode},
		{"address", "address", c.ShippingAddress.Address},
		{"city", "city", c.ShippingAddress.City},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return apperr.Invalid(r.field, "Please provide your "+r.label)
		}
	}

	return validateCart(c.Items)
}

func validateCart(items []CartItem) error {
	if len(items) == 0 {
		return apperr.Invalid("items", "Your cart is empty")
	}
	for i, it := range items {
		if strings.TrimSpace(it.ProductID) == "" {
			return apperr.Invalid("items", fmt.Sprintf("Item %d is missing a product id", i+1))
		}
		if it.Quantity < 1 {
			return apperr.Invalid("items", fmt.Sprintf("Item %d must have a quantity of at least 1", i+1))
		}
	}
	return nil
}
