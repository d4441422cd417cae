package tradingutils

import (
	"github.com/shopspring/decimal"
)

// Quantize rounds value down to the nearest exact multiple of unit.
// For unit <= 0 the value is returned unchanged.
func Quantize(value, unit decimal.Decimal) decimal.Decimal {
	if !unit.IsPositive() {
		return value
	}
	return value.Div(unit).Floor().Mul(unit)
}

// PriceDecimals derives the number of decimal places implied by a tick or
// step unit, e.g. 0.01 -> 2. Units >= 1 yield 0.
func PriceDecimals(unit decimal.Decimal) int {
	if exp := unit.Exponent(); exp < 0 {
		return int(-exp)
	}
	return 0
}
