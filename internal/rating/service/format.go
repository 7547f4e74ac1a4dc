package service

import "github.com/shopspring/decimal"

// FormatDollars renders minor units as a dollar string, e.g. -1234 as "-$12.34".
func FormatDollars(cents int64) string {
	amount := decimal.New(cents, -2)
	if amount.IsNegative() {
		return "-$" + amount.Neg().StringFixed(2)
	}
	return "$" + amount.StringFixed(2)
}
