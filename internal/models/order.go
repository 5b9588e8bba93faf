package models

import "github.com/shopspring/decimal"

// Order is a paper order produced by the decision engine. Only Ticker, Side
// and Quantity drive execution; the remaining fields are advisory.
type Order struct {
	ID          string              `json:"order_id,omitempty"`
	Ticker      string              `json:"ticker"`
	Side        OrderSide           `json:"side"`
	Type        string              `json:"order_type,omitempty"`
	Quantity    decimal.Decimal     `json:"quantity"`
	LimitPrice  decimal.NullDecimal `json:"limit_price_gbp"`
	StopPrice   decimal.NullDecimal `json:"stop_price_gbp"`
	TimeInForce string              `json:"time_in_force,omitempty"`
	Reason      string              `json:"reason,omitempty"`
}

// Fill records an executed paper order.
type Fill struct {
	ID         string          `json:"id"`
	Date       Date            `json:"date"`
	OrderID    string          `json:"order_id,omitempty"`
	Ticker     string          `json:"ticker"`
	Side       OrderSide       `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	FillPrice  decimal.Decimal `json:"fill_price_gbp"`
	Notional   decimal.Decimal `json:"notional_gbp"`
	Fee        decimal.Decimal `json:"fee_gbp"`
	StampDuty  decimal.Decimal `json:"stamp_duty_gbp"`
	CashImpact decimal.Decimal `json:"cash_impact_gbp"` // negative for buys, proceeds for sells
}

// Rejection records an order that was skipped.
type Rejection struct {
	Order  Order  `json:"order"`
	Reason string `json:"reason"`
}
