// Package pricing computes order totals with decimal arithmetic.
//
// Every component (subtotal, tax, delivery fee, discount) is rounded to
// cents before it is combined, so the identity
//
//	total = subtotal + deliveryFee + tax - discount
//
// holds exactly for the values shown to the buyer and the values persisted
// on the order.
package pricing

import (
	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places kept for money values.
const Scale = 2

// Defaults used when configuration leaves the values unset.
var (
	DefaultDeliveryFee = decimal.NewFromInt(15)
	DefaultTaxRate     = decimal.RequireFromString("0.09")
)

// LineItem is the pricing view of an order line.
type LineItem struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Breakdown is the priced result for a cart.
type Breakdown struct {
	Subtotal    decimal.Decimal
	DeliveryFee decimal.Decimal
	Tax         decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal
}

// Calculator holds the store-wide pricing constants.
type Calculator struct {
	deliveryFee decimal.Decimal
	taxRate     decimal.Decimal
}

// NewCalculator returns a Calculator. Negative inputs fall back to the defaults.
func NewCalculator(deliveryFee, taxRate float64) *Calculator {
	c := &Calculator{
		deliveryFee: Round(decimal.NewFromFloat(deliveryFee)),
		taxRate:     decimal.NewFromFloat(taxRate),
	}
	if c.deliveryFee.IsNegative() {
		c.deliveryFee = DefaultDeliveryFee
	}
	if c.taxRate.IsNegative() {
		c.taxRate = DefaultTaxRate
	}
	return c
}

// NewDefaultCalculator returns a Calculator with the default fee and rate.
func NewDefaultCalculator() *Calculator {
	return &Calculator{deliveryFee: DefaultDeliveryFee, taxRate: DefaultTaxRate}
}

// DeliveryFee returns the flat delivery fee.
func (c *Calculator) DeliveryFee() decimal.Decimal { return c.deliveryFee }

// TaxRate returns the tax rate applied to the subtotal.
func (c *Calculator) TaxRate() decimal.Decimal { return c.taxRate }

// Subtotal sums unit price times quantity, rounded to cents.
func (c *Calculator) Subtotal(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return Round(sum)
}

// Tax returns subtotal times the tax rate, rounded to cents.
func (c *Calculator) Tax(subtotal decimal.Decimal) decimal.Decimal {
	return Round(subtotal.Mul(c.taxRate))
}

// Quote prices items with an optional discount. The discount is rounded
// and then capped at subtotal + fee + tax, so the total is never negative.
// The capped value is reported in Breakdown.Discount.
func (c *Calculator) Quote(items []LineItem, discount decimal.Decimal) Breakdown {
	subtotal := c.Subtotal(items)
	tax := c.Tax(subtotal)
	gross := subtotal.Add(c.deliveryFee).Add(tax)

	discount = Round(discount)
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(gross) {
		discount = gross
	}

	return Breakdown{
		Subtotal:    subtotal,
		DeliveryFee: c.deliveryFee,
		Tax:         tax,
		Discount:    discount,
		Total:       gross.Sub(discount),
	}
}

// Round rounds half away from zero to cents.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// FromFloat converts a stored float amount to a cent-rounded decimal.
func FromFloat(f float64) decimal.Decimal {
	return Round(decimal.NewFromFloat(f))
}

// ToFloat converts a decimal to the float64 used by persisted records.
func ToFloat(d decimal.Decimal) float64 {
	return Round(d).InexactFloat64()
}
