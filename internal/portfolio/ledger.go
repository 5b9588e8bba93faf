// Package portfolio provides the state transitions of the paper ledger:
// settlement, mark-to-market, equity and peak tracking.
package portfolio

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"daily-equity-trader/internal/errors"
	"daily-equity-trader/internal/logging"
	"daily-equity-trader/internal/models"
)

// PriceSource supplies the latest close for a ticker.
type PriceSource interface {
	Close(ticker string) (float64, bool)
}

// Bootstrap creates a fresh ledger funded with cash.
func Bootstrap(cash decimal.Decimal, asOf models.Date) (*models.Ledger, error) {
	if cash.IsNegative() {
		return nil, errors.NewValidationError("cash", cash.String(), "must be non-negative")
	}
	return models.NewLedger(asOf, cash), nil
}

// Settle moves unsettled sell proceeds into cash once asOf reaches the due
// date. Settlement is all-or-nothing. It returns the amount settled, zero when
// nothing was due.
func Settle(l *models.Ledger, asOf models.Date) decimal.Decimal {
	if !l.UnsettledSellProceeds.IsPositive() || l.SettlementDueDate.IsZero() {
		return decimal.Zero
	}
	if asOf.Before(l.SettlementDueDate) {
		return decimal.Zero
	}
	amount := l.UnsettledSellProceeds
	l.CashBalance = models.RoundMoney(l.CashBalance.Add(amount))
	l.UnsettledSellProceeds = decimal.Zero
	l.SettlementDueDate = models.Date{}
	return amount
}

// MarkToMarket revalues every position at its latest close. Positions without
// a close keep their previous values; their tickers are returned.
func MarkToMarket(l *models.Ledger, prices PriceSource) []string {
	var stale []string
	for _, p := range l.Positions {
		c, ok := prices.Close(p.Ticker)
		if !ok || c <= 0 {
			stale = append(stale, p.Ticker)
			continue
		}
		Revalue(p, decimal.NewFromFloat(c))
	}
	return stale
}

// Revalue sets market value and unrealised P&L from price.
func Revalue(p *models.Position, price decimal.Decimal) {
	p.MarketValue = models.RoundMoney(price.Mul(p.Quantity))
	p.UnrealisedPnL = models.RoundMoney(p.MarketValue.Sub(p.CostBasis()))
}

// RecomputeEquity sets equity to cash + unsettled + Σ market value and
// raises the peak when equity exceeds it. The peak never falls.
func RecomputeEquity(l *models.Ledger) {
	equity := l.CashBalance.Add(l.UnsettledSellProceeds).Add(l.PositionsValue())
	l.EquityValue = models.RoundMoney(equity)
	if l.EquityValue.GreaterThan(l.PortfolioPeakEquity) {
		l.PortfolioPeakEquity = l.EquityValue
	}
}

// UpdateDaysHeld derives days_held from entry_date and the ledger date.
func UpdateDaysHeld(l *models.Ledger) {
	for _, p := range l.Positions {
		if p.EntryDate.IsZero() {
			continue
		}
		days := l.AsOfDate.DaysSince(p.EntryDate)
		if days < 0 {
			days = 0
		}
		p.DaysHeld = days
	}
}

// Drawdown returns (peak - equity) / peak, or zero without a peak.
func Drawdown(l *models.Ledger) decimal.Decimal {
	if !l.PortfolioPeakEquity.IsPositive() {
		return decimal.Zero
	}
	return l.PortfolioPeakEquity.Sub(l.EquityValue).
		Div(l.PortfolioPeakEquity).
		Round(models.RatioPlaces)
}

// ApplyStops records stop prices for held tickers. Stops for tickers not held
// are ignored. It returns the tickers updated.
func ApplyStops(l *models.Ledger, stops map[string]decimal.Decimal) []string {
	var applied []string
	for _, p := range l.Positions {
		stop, ok := stops[p.Ticker]
		if !ok || !stop.IsPositive() {
			continue
		}
		p.StopPrice = decimal.NewNullDecimal(models.RoundPrice(stop))
		applied = append(applied, p.Ticker)
	}
	return applied
}

// RollReport summarises the start-of-cycle transitions.
type RollReport struct {
	AsOf    models.Date     `json:"as_of_date"`
	Settled decimal.Decimal `json:"settled_gbp"`
	Stale   []string        `json:"stale_positions,omitempty"`
	Equity  decimal.Decimal `json:"equity_value_gbp"`
	Peak    decimal.Decimal `json:"portfolio_peak_equity_gbp"`
}

// Roll advances the ledger to asOf: settle, mark to market, recompute equity
// and update holding periods, in that order.
func Roll(l *models.Ledger, asOf models.Date, prices PriceSource, logger zerolog.Logger) RollReport {
	logger = logging.WithOperation(logger, "roll")
	due := l.SettlementDueDate

	l.AsOfDate = asOf

	settled := Settle(l, asOf)
	if settled.IsPositive() {
		logging.LogSettlement(logger, settled.StringFixed(models.MoneyPlaces), due.String(), asOf.String())
	}

	stale := MarkToMarket(l, prices)
	for _, t := range stale {
		tl := logging.WithTicker(logger, t)
		tl.Warn().Msg("No market data for position, keeping last values")
	}

	RecomputeEquity(l)
	UpdateDaysHeld(l)

	logger.Info().
		Str("equity", l.EquityValue.StringFixed(models.MoneyPlaces)).
		Str("peak", l.PortfolioPeakEquity.StringFixed(models.MoneyPlaces)).
		Int("positions", len(l.Positions)).
		Msg("Ledger rolled forward")

	return RollReport{
		AsOf:    asOf,
		Settled: settled,
		Stale:   stale,
		Equity:  l.EquityValue,
		Peak:    l.PortfolioPeakEquity,
	}
}

var tolerance = decimal.New(1, -6)

// CheckInvariants verifies the ledger's structural invariants and returns an
// error wrapping ErrInvariant for the first one violated.
func CheckInvariants(l *models.Ledger) error {
	violation := func(format string, args ...interface{}) error {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), errors.ErrInvariant)
	}

	sum := l.CashBalance.Add(l.UnsettledSellProceeds).Add(l.PositionsValue())
	if l.EquityValue.Sub(sum).Abs().GreaterThan(tolerance) {
		return violation("equity %s != cash + unsettled + positions %s", l.EquityValue, sum)
	}
	if l.PortfolioPeakEquity.LessThan(l.EquityValue) {
		return violation("peak %s below equity %s", l.PortfolioPeakEquity, l.EquityValue)
	}
	if l.CashBalance.IsNegative() {
		return violation("negative cash %s", l.CashBalance)
	}
	if l.UnsettledSellProceeds.IsNegative() {
		return violation("negative unsettled proceeds %s", l.UnsettledSellProceeds)
	}
	if l.UnsettledSellProceeds.IsPositive() && l.SettlementDueDate.IsZero() {
		return violation("unsettled proceeds %s without a due date", l.UnsettledSellProceeds)
	}
	if l.UnsettledSellProceeds.IsZero() && !l.SettlementDueDate.IsZero() {
		return violation("due date %s with nothing unsettled", l.SettlementDueDate)
	}

	seen := make(map[string]bool, len(l.Positions))
	for _, p := range l.Positions {
		if seen[p.Ticker] {
			return violation("duplicate position %s", p.Ticker)
		}
		seen[p.Ticker] = true
		if !p.Quantity.IsPositive() {
			return violation("position %s has quantity %s", p.Ticker, p.Quantity)
		}
		if p.DaysHeld < 0 {
			return violation("position %s has negative days held", p.Ticker)
		}
	}
	return nil
}
