// Package models provides domain models for the trading application.
package models

import (
	"strings"
)

// Currency is the single settlement currency of the ledger.
const Currency = "GBP"

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// ParseOrderSide normalises a raw side value. ok is false for anything other
// than BUY or SELL.
func ParseOrderSide(s string) (OrderSide, bool) {
	switch OrderSide(strings.ToUpper(strings.TrimSpace(s))) {
	case OrderSideBuy:
		return OrderSideBuy, true
	case OrderSideSell:
		return OrderSideSell, true
	}
	return "", false
}

// QuoteUnit is the unit a provider quotes prices in.
type QuoteUnit string

const (
	QuotePounds QuoteUnit = "GBP"
	QuotePence  QuoteUnit = "GBp" // LSE equities are usually quoted in pence
)

// PriceBar represents one daily OHLCV bar.
type PriceBar struct {
	Date   Date    `csv:"date" json:"date"`
	Open   float64 `csv:"open" json:"open"`
	High   float64 `csv:"high" json:"high"`
	Low    float64 `csv:"low" json:"low"`
	Close  float64 `csv:"close" json:"close"`
	Volume int64   `csv:"volume" json:"volume"`
}

// Scale returns the bar with all prices divided by div. Volume is unchanged.
func (b PriceBar) Scale(div float64) PriceBar {
	if div == 0 || div == 1 {
		return b
	}
	b.Open /= div
	b.High /= div
	b.Low /= div
	b.Close /= div
	return b
}

// TickerMeta is the static, read-only description of a tradeable ticker.
type TickerMeta struct {
	Ticker         string    `csv:"ticker" json:"ticker"`
	Name           string    `csv:"name" json:"name,omitempty"`
	Sector         string    `csv:"sector" json:"sector"`
	InstrumentType string    `csv:"instrument_type" json:"instrument_type"`
	DomesticEquity Flag      `csv:"uk_equity_flag" json:"uk_equity_flag"`
	QuoteUnit      QuoteUnit `csv:"quote_unit" json:"quote_unit,omitempty"`
	Status         string    `csv:"status" json:"status"`
}

// IsActive reports whether the ticker is part of the tradeable universe.
// An empty status counts as active.
func (m TickerMeta) IsActive() bool {
	return m.Status == "" || strings.EqualFold(m.Status, "ACTIVE")
}

// PriceDivisor returns the factor that converts quoted prices into pounds.
func (m TickerMeta) PriceDivisor() float64 {
	if m.QuoteUnit == QuotePence {
		return 100
	}
	return 1
}

// RunStatus is the status code reported by a trading cycle.
type RunStatus string

const (
	RunStatusOK       RunStatus = "OK"
	RunStatusNoTrades RunStatus = "NO_TRADES"
	RunStatusBlocked  RunStatus = "BLOCKED"
)
