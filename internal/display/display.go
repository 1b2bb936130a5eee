// Package display formats derived metrics the way the dashboard shows them:
// money-scale values in crore and ratios with two decimals.
package display

import (
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/rewired-gh/strikewatch/internal/models"
)

// Missing is shown for values that cannot be formatted.
const Missing = "-"

var crore = decimal.NewFromInt(10_000_000)

// Crore formats v divided by 1e7 with two decimals and thousands separators.
func Crore(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Missing
	}
	return grouped(decimal.NewFromFloat(v).Div(crore))
}

// Fixed formats v with two decimals and thousands separators.
func Fixed(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Missing
	}
	return grouped(decimal.NewFromFloat(v))
}

// Field formats the value of f in row with the scale that column uses.
func Field(row models.DerivedRow, f models.Field) string {
	switch f {
	case models.FieldStrike:
		return row.Strike
	case models.FieldAvgRatio, models.FieldVwapSum, models.FieldVwapDiff:
		return Fixed(row.Value(f))
	default:
		return Crore(row.Value(f))
	}
}

// grouped rounds d to two places and adds thousands separators to the integer part.
func grouped(d decimal.Decimal) string {
	d = d.Round(2)
	sign := ""
	if d.IsNegative() {
		sign, d = "-", d.Neg()
	}
	fixed := d.StringFixed(2)
	return sign + humanize.BigComma(d.Truncate(0).BigInt()) + fixed[strings.IndexByte(fixed, '.'):]
}
