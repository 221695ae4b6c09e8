// Package money does the order arithmetic in decimal so that every stored
// amount is rounded to two places from exact intermediate values.
package money

import "github.com/shopspring/decimal"

const places = 2

// Tolerance is the largest difference treated as float noise when comparing
// client supplied prices with catalog prices.
const Tolerance = 0.01

func d(x float64) decimal.Decimal { return decimal.NewFromFloat(x) }

func out(v decimal.Decimal) float64 {
	return v.Round(places).InexactFloat64()
}

// Round rounds x to two decimals, half away from zero.
func Round(x float64) float64 {
	return out(d(x))
}

// Sum adds xs exactly and rounds once.
func Sum(xs ...float64) float64 {
	total := decimal.Zero
	for _, x := range xs {
		total = total.Add(d(x))
	}
	return out(total)
}

// Sub returns a - b rounded.
func Sub(a, b float64) float64 {
	return out(d(a).Sub(d(b)))
}

// Mul returns price * qty rounded.
func Mul(price float64, qty int) float64 {
	return out(d(price).Mul(decimal.NewFromInt(int64(qty))))
}

// Percent returns pct percent of amount, rounded.
func Percent(amount, pct float64) float64 {
	return out(d(amount).Mul(d(pct)).Div(decimal.NewFromInt(100)))
}

// ApplyDiscount returns price reduced by pct percent, rounded.
func ApplyDiscount(price, pct float64) float64 {
	if pct <= 0 {
		return Round(price)
	}
	return Sub(price, Percent(price, pct))
}

// Differs reports whether a and b differ by more than Tolerance.
func Differs(a, b float64) bool {
	return d(a).Sub(d(b)).Abs().GreaterThan(d(Tolerance))
}

// String formats an amount with two decimals, the wire format used for
// payment requests.
func String(x float64) string {
	return d(x).StringFixed(places)
}

// Minor converts an amount to integer minor units (paisa, cents).
func Minor(x float64) int64 {
	return d(x).Round(places).Shift(places).IntPart()
}
