package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts the stored text amount to a decimal value for
// aggregation. Malformed or negative input contributes zero: a bad record
// must never break the totals.
func ParseAmount(raw string) decimal.Decimal {
	d, err := ParseAmountStrict(raw)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// ParseAmountStrict parses an amount and reports malformed input, for the
// validation path where a bad value should be rejected instead of zeroed.
func ParseAmountStrict(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// AmountParses reports whether raw holds a usable numeric amount. The
// analytics completeness filter drops records where this is false.
func AmountParses(raw string) bool {
	_, err := ParseAmountStrict(raw)
	return err == nil
}
