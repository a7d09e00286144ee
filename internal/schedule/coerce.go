package schedule

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Protocol rows arrive from spreadsheet-shaped sources where numeric cells
// may be blank, quoted, fractional or plain junk. The policy is fail-soft:
// a malformed cell never aborts an import, it coerces to zero. These parsers
// make the coercion explicit and observable instead of silently swallowed.

// ParsedInt is the result of coercing a loosely-typed cell to a day count.
// Defaulted is true when the returned value is not a clean integer reading of
// the input.
type ParsedInt struct {
	Value     int
	Defaulted bool
}

// ParseDayCount coerces a tolerance/day-count cell to a non-negative integer.
// Blank or non-numeric input defaults to 0; fractional input truncates;
// negative input clamps to 0. All three mark the result as defaulted.
func ParseDayCount(raw string) ParsedInt {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedInt{Value: 0, Defaulted: true}
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return ParsedInt{Value: 0, Defaulted: true}
		}
		return ParsedInt{Value: n}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return ParsedInt{Value: 0, Defaulted: true}
	}
	if f < 0 {
		return ParsedInt{Value: 0, Defaulted: true}
	}
	n := int(f)
	return ParsedInt{Value: n, Defaulted: float64(n) != f}
}

// ParsedAmount is the result of coercing a loosely-typed money cell.
type ParsedAmount struct {
	Value     decimal.Decimal
	Defaulted bool
}

// ParseAmount coerces a payment cell to a non-negative decimal amount.
// Currency symbols and thousands separators are tolerated; blank,
// non-numeric or negative input defaults to zero and marks the result.
func ParseAmount(raw string) ParsedAmount {
	s := strings.TrimSpace(raw)
	for _, sym := range []string{"£", "$", "€"} {
		s = strings.TrimPrefix(s, sym)
	}
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return ParsedAmount{Value: decimal.Zero, Defaulted: true}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ParsedAmount{Value: decimal.Zero, Defaulted: true}
	}
	if d.IsNegative() {
		return ParsedAmount{Value: decimal.Zero, Defaulted: true}
	}
	return ParsedAmount{Value: d}
}
