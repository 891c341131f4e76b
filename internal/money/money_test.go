package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestQuantizeHalfUp(t *testing.T) {
	cases := map[string]string{
		"1.005":  "1.01",
		"1.004":  "1.00",
		"1.015":  "1.02",
		"0.1":    "0.1",
		"99.999": "100",
	}
	for in, want := range cases {
		assert.True(t, dec(want).Equal(Quantize(dec(in))), "quantize(%s)", in)
	}
}

func TestTax(t *testing.T) {
	// 18% of 100.00
	assert.True(t, dec("18.00").Equal(Tax(dec("100.00"))))
	// 18% of 33.33 = 5.9994 -> 6.00
	assert.True(t, dec("6.00").Equal(Tax(dec("33.33"))))
}

func TestTotals(t *testing.T) {
	tax, grand := Totals(dec("150.00"), decimal.Zero)
	assert.True(t, dec("27.00").Equal(tax))
	assert.True(t, dec("177.00").Equal(grand))

	// grand_total = subtotal * 1.18 when discount is zero
	sub := dec("49.99")
	tax, grand = Totals(sub, decimal.Zero)
	assert.True(t, grand.Equal(Quantize(sub.Add(tax))))

	// discount is subtracted after tax
	_, grand = Totals(dec("100.00"), dec("10.00"))
	assert.True(t, dec("108.00").Equal(grand))
}

func TestLineTotal(t *testing.T) {
	assert.True(t, dec("29.97").Equal(LineTotal(dec("9.99"), 3)))
}
