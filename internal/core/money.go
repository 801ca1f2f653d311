// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from form input
// and formatting them for display. Amounts are kept as decimals rounded to
// cents so that totals never drift.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// DefaultIncome is used until the backend reports a monthly income.
var DefaultIncome = decimal.NewFromInt(3000)

// ParseAmount converts a decimal string to an amount rounded to cents.
//
// Both dot (12.34) and comma (12,34) separators are accepted and the third
// decimal place is rounded half-up. Zero is accepted; signs are not.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,345") -> 12.35, nil
//	ParseAmount("-1")     -> 0, ErrNegativeAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrNegativeAmount
	}
	if strings.HasPrefix(s, "+") {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d.Round(2), nil
}

// CoerceAmount is ParseAmount for edits: anything unparseable or negative
// becomes zero.
func CoerceAmount(s string) decimal.Decimal {
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// FormatMoney formats an amount for display, e.g. "$1,234.50" or "-$3.00".
func FormatMoney(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := "$" + b.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}
