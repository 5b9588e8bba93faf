package models

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// PositionStatus represents the lifecycle state of a position.
type PositionStatus string

const (
	PositionActive PositionStatus = "ACTIVE"
)

// Position represents an open holding in a single ticker.
type Position struct {
	Ticker        string              `json:"ticker"`
	Quantity      decimal.Decimal     `json:"quantity"`
	AvgCost       decimal.Decimal     `json:"avg_cost_gbp"`
	MarketValue   decimal.Decimal     `json:"market_value_gbp"`
	UnrealisedPnL decimal.Decimal     `json:"unrealised_pnl_gbp"`
	Sector        string              `json:"sector"`
	EntryDate     Date                `json:"entry_date"`
	DaysHeld      int                 `json:"days_held"`
	StopPrice     decimal.NullDecimal `json:"current_stop_gbp"`
	Status        PositionStatus      `json:"status"`
}

// CostBasis returns avg_cost × quantity.
func (p *Position) CostBasis() decimal.Decimal {
	return p.AvgCost.Mul(p.Quantity)
}

// Ledger is the single persisted account record. Positions keep insertion
// order; lookups by ticker go through an index rebuilt on load.
type Ledger struct {
	AsOfDate              Date            `json:"as_of_date"`
	CashBalance           decimal.Decimal `json:"cash_balance_gbp"`
	UnsettledSellProceeds decimal.Decimal `json:"unsettled_sell_proceeds_gbp"`
	SettlementDueDate     Date            `json:"settlement_due_date"`
	EquityValue           decimal.Decimal `json:"equity_value_gbp"`
	PortfolioPeakEquity   decimal.Decimal `json:"portfolio_peak_equity_gbp"`
	Positions             []*Position     `json:"positions"`

	index map[string]int
}

// NewLedger returns an empty ledger funded with cash.
func NewLedger(asOf Date, cash decimal.Decimal) *Ledger {
	cash = RoundMoney(cash)
	return &Ledger{
		AsOfDate:            asOf,
		CashBalance:         cash,
		EquityValue:         cash,
		PortfolioPeakEquity: cash,
		Positions:           []*Position{},
		index:               map[string]int{},
	}
}

func (l *Ledger) reindex() {
	l.index = make(map[string]int, len(l.Positions))
	for i, p := range l.Positions {
		l.index[p.Ticker] = i
	}
}

// Position returns the open position for ticker.
func (l *Ledger) Position(ticker string) (*Position, bool) {
	if l.index == nil || len(l.index) != len(l.Positions) {
		l.reindex()
	}
	i, ok := l.index[ticker]
	if !ok {
		return nil, false
	}
	return l.Positions[i], true
}

// AddPosition appends a new position. It fails if the ticker is already held.
func (l *Ledger) AddPosition(p *Position) error {
	if _, exists := l.Position(p.Ticker); exists {
		return fmt.Errorf("position already open for %s", p.Ticker)
	}
	l.Positions = append(l.Positions, p)
	l.index[p.Ticker] = len(l.Positions) - 1
	return nil
}

// RemovePosition deletes the position for ticker, preserving the order of the
// others. It reports whether a position was removed.
func (l *Ledger) RemovePosition(ticker string) bool {
	if _, ok := l.Position(ticker); !ok {
		return false
	}
	i := l.index[ticker]
	l.Positions = append(l.Positions[:i], l.Positions[i+1:]...)
	l.reindex()
	return true
}

// PositionsValue returns Σ market_value over open positions.
func (l *Ledger) PositionsValue() decimal.Decimal {
	total := decimal.Zero
	for _, p := range l.Positions {
		total = total.Add(p.MarketValue)
	}
	return total
}

// Clone returns a deep copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	c := *l
	c.Positions = make([]*Position, len(l.Positions))
	for i, p := range l.Positions {
		cp := *p
		c.Positions[i] = &cp
	}
	c.reindex()
	return &c
}

// UnmarshalJSON decodes the persisted record and rebuilds the ticker index.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	type plain Ledger
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*l = Ledger(p)
	if l.Positions == nil {
		l.Positions = []*Position{}
	}
	l.reindex()
	return nil
}
