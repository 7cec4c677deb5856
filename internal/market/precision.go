package market

import (
	"math"

	"github.com/shopspring/decimal"
)

// DefaultPrecision is used before any ticker price is known.
const DefaultPrecision = 5

// PricePrecision picks display digits from the last traded price:
// >=10 -> 2, >=1 -> 3, >=0.1 -> 4, otherwise 5.
func PricePrecision(last float64) int {
	switch {
	case math.IsNaN(last) || math.IsInf(last, 0):
		return DefaultPrecision
	case last >= 10:
		return 2
	case last >= 1:
		return 3
	case last >= 0.1:
		return 4
	default:
		return DefaultPrecision
	}
}

// FormatPrice renders v with a fixed number of digits after the point.
func FormatPrice(v float64, precision int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	if precision < 0 {
		precision = 0
	}
	return decimal.NewFromFloat(v).StringFixed(int32(precision))
}

// FormatLegacy is the older numeric display: two digits from 1000 up,
// otherwise eight digits with trailing zeros trimmed.
func FormatLegacy(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	d := decimal.NewFromFloat(v)
	if v >= 1000 {
		return d.StringFixed(2)
	}
	return d.Round(8).String()
}
