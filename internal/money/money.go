// Package money holds the fixed-point arithmetic shared by the order
// settlement path. All amounts are quantized to 2 decimal places with
// half-up rounding so totals are reproducible.
package money

import "github.com/shopspring/decimal"

// TaxRate is fixed at 18%. Not configurable for now.
var TaxRate = decimal.New(18, -2)

// Quantize rounds to 2 decimal places, half away from zero.
func Quantize(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Tax returns the quantized tax on a subtotal.
func Tax(subtotal decimal.Decimal) decimal.Decimal {
	return Quantize(subtotal.Mul(TaxRate))
}

// Totals computes tax and grand total from a subtotal and discount.
// grand_total = subtotal + tax - discount.
func Totals(subtotal, discount decimal.Decimal) (tax, grandTotal decimal.Decimal) {
	tax = Tax(subtotal)
	grandTotal = Quantize(subtotal.Add(tax).Sub(discount))
	return tax, grandTotal
}

// LineTotal is unit_price * quantity, quantized.
func LineTotal(unitPrice decimal.Decimal, qty int) decimal.Decimal {
	return Quantize(unitPrice.Mul(decimal.NewFromInt(int64(qty))))
}
