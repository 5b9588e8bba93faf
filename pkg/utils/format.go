// Package utils provides shared utility functions.
package utils

import (
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// FormatGBP formats an amount in pounds, e.g. £12,345.68.
func FormatGBP(amount decimal.Decimal) string {
	pence := amount.Round(2).Shift(2).IntPart()
	return money.New(pence, money.GBP).Display()
}

// FormatPnL formats P&L with an explicit sign for gains.
func FormatPnL(pnl decimal.Decimal) string {
	formatted := FormatGBP(pnl)
	if pnl.Round(2).IsPositive() {
		return "+" + formatted
	}
	return formatted
}

// FormatRatio formats a fraction as a percentage, e.g. 0.0525 as 5.25%.
func FormatRatio(ratio decimal.Decimal) string {
	return ratio.Shift(2).StringFixed(2) + "%"
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatQuantity formats a possibly fractional share count without trailing zeros.
func FormatQuantity(qty decimal.Decimal) string {
	return qty.String()
}
