// Package trading applies paper orders to the ledger and orchestrates the
// daily cycle.
package trading

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"daily-equity-trader/internal/config"
	"daily-equity-trader/internal/errors"
	"daily-equity-trader/internal/logging"
	"daily-equity-trader/internal/models"
	"daily-equity-trader/internal/portfolio"
	"daily-equity-trader/pkg/id"
)

// PricingConfig is the paper execution cost model.
type PricingConfig = config.PricingConfig

// SnapshotLookup resolves the current snapshot of a ticker.
type SnapshotLookup interface {
	Get(ticker string) (*models.Snapshot, bool)
}

// Rejection reasons.
const (
	ReasonNoMarketData      = "no market data"
	ReasonInsufficientFunds = "insufficient cash"
	ReasonNoPosition        = "no position to sell"
	ReasonInvalidQuantity   = "quantity must be positive"
	ReasonUnknownSide       = "unknown side"
)

// ExecutionReport lists what happened to each order of a batch.
type ExecutionReport struct {
	Date              models.Date        `json:"date"`
	Fills             []models.Fill      `json:"fills"`
	Rejections        []models.Rejection `json:"rejections"`
	SellProceeds      decimal.Decimal    `json:"sell_proceeds_gbp"`
	SettlementDueDate models.Date        `json:"settlement_due_date"`
	CashBefore        decimal.Decimal    `json:"cash_before_gbp"`
	CashAfter         decimal.Decimal    `json:"cash_after_gbp"`
	EquityAfter       decimal.Decimal    `json:"equity_after_gbp"`
}

// Executor applies orders to a ledger under a pricing model.
type Executor struct {
	pricing PricingConfig
	logger  zerolog.Logger
}

// NewExecutor creates an executor. The pricing model is validated up front.
func NewExecutor(pricing PricingConfig, logger zerolog.Logger) (*Executor, error) {
	if err := pricing.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, errors.ErrConfigInvalid)
	}
	return &Executor{
		pricing: pricing,
		logger:  logging.WithOperation(logger, "execute"),
	}, nil
}

// Fee returns the fee charged on a notional under the fee model.
func Fee(p PricingConfig, notional decimal.Decimal) decimal.Decimal {
	switch p.FeeModel.Type {
	case config.FeePerTrade:
		return decimal.NewFromFloat(p.FeeModel.Value)
	case config.FeeBps:
		return notional.Mul(models.BpsFraction(p.FeeModel.Value))
	}
	return decimal.Zero
}

// Apply executes orders against l strictly in input order, using the ledger's
// as_of_date as the trade date. Per-order problems are recorded as
// rejections; they never abort the batch. Sell proceeds are added to the
// unsettled balance after the batch and equity is recomputed.
func (e *Executor) Apply(l *models.Ledger, orders []models.Order, snapshots SnapshotLookup) *ExecutionReport {
	report := &ExecutionReport{
		Date:       l.AsOfDate,
		Fills:      []models.Fill{},
		Rejections: []models.Rejection{},
		CashBefore: l.CashBalance,
	}

	proceeds := decimal.Zero
	for _, o := range orders {
		fill, err := e.applyOne(l, o, snapshots)
		if err != nil {
			var oe *errors.OrderError
			reason := err.Error()
			if errors.As(err, &oe) {
				reason = oe.Reason
			}
			report.Rejections = append(report.Rejections, models.Rejection{Order: o, Reason: reason})
			logging.LogRejection(e.logger, o.Ticker, string(o.Side), reason)
			continue
		}
		if fill.Side == models.OrderSideSell {
			proceeds = proceeds.Add(fill.CashImpact)
		}
		report.Fills = append(report.Fills, *fill)
		logging.LogFill(e.logger, fill.Ticker, string(fill.Side),
			fill.Quantity.String(), fill.FillPrice.String(), fill.CashImpact.StringFixed(models.MoneyPlaces))
	}

	if proceeds.IsPositive() {
		l.UnsettledSellProceeds = models.RoundMoney(l.UnsettledSellProceeds.Add(proceeds))
		// One settlement cohort: a later sale moves the due date for all
		// outstanding proceeds.
		l.SettlementDueDate = l.AsOfDate.AddDays(e.pricing.SettlementDays)
		e.logger.Info().
			Str("proceeds", proceeds.StringFixed(models.MoneyPlaces)).
			Str("due", l.SettlementDueDate.String()).
			Msg("Sell proceeds pending settlement")
	}

	portfolio.RecomputeEquity(l)

	report.SellProceeds = proceeds
	report.SettlementDueDate = l.SettlementDueDate
	report.CashAfter = l.CashBalance
	report.EquityAfter = l.EquityValue
	return report
}

func (e *Executor) applyOne(l *models.Ledger, o models.Order, snapshots SnapshotLookup) (*models.Fill, error) {
	reject := func(reason string, err error) error {
		return errors.NewOrderError(o.ID, o.Ticker, string(o.Side), reason, err)
	}

	qty := models.RoundQuantity(o.Quantity)
	if !qty.IsPositive() {
		return nil, reject(ReasonInvalidQuantity, errors.ErrInvalidOrder)
	}

	snap, _ := snapshots.Get(o.Ticker)
	closePrice, ok := snap.ClosePrice()
	if !ok {
		return nil, reject(ReasonNoMarketData, errors.ErrNoPrice)
	}

	slip := models.BpsFraction(e.pricing.SlippageBps)

	switch o.Side {
	case models.OrderSideBuy:
		fillPrice := models.RoundPrice(closePrice.Mul(decimal.NewFromInt(1).Add(slip)))
		notional := models.RoundMoney(fillPrice.Mul(qty))
		fee := models.RoundMoney(Fee(e.pricing, notional))
		stamp := decimal.Zero
		if snap.DomesticEquity {
			stamp = models.RoundMoney(notional.Mul(models.BpsFraction(e.pricing.StampDutyBps)))
		}
		total := notional.Add(fee).Add(stamp)
		if total.GreaterThan(l.CashBalance) {
			e.logger.Warn().
				Str("ticker", o.Ticker).
				Str("need", total.StringFixed(models.MoneyPlaces)).
				Str("have", l.CashBalance.StringFixed(models.MoneyPlaces)).
				Msg("Insufficient cash for buy")
			return nil, reject(ReasonInsufficientFunds, errors.ErrInsufficientFunds)
		}

		l.CashBalance = models.RoundMoney(l.CashBalance.Sub(total))
		if err := addToPosition(l, o.Ticker, qty, fillPrice, snap.Sector); err != nil {
			return nil, reject(err.Error(), err)
		}

		return &models.Fill{
			ID:         id.New(),
			Date:       l.AsOfDate,
			OrderID:    o.ID,
			Ticker:     o.Ticker,
			Side:       models.OrderSideBuy,
			Quantity:   qty,
			FillPrice:  fillPrice,
			Notional:   notional,
			Fee:        fee,
			StampDuty:  stamp,
			CashImpact: total.Neg(),
		}, nil

	case models.OrderSideSell:
		pos, held := l.Position(o.Ticker)
		if !held {
			return nil, reject(ReasonNoPosition, errors.ErrPositionNotFound)
		}
		// Selling more than is held closes the position; proceeds cover the
		// shares actually held.
		if qty.GreaterThan(pos.Quantity) {
			qty = pos.Quantity
		}
		fillPrice := models.RoundPrice(closePrice.Mul(decimal.NewFromInt(1).Sub(slip)))
		notional := models.RoundMoney(fillPrice.Mul(qty))
		fee := models.RoundMoney(Fee(e.pricing, notional))
		net := notional.Sub(fee)

		reduceOrClose(l, pos, qty)

		return &models.Fill{
			ID:         id.New(),
			Date:       l.AsOfDate,
			OrderID:    o.ID,
			Ticker:     o.Ticker,
			Side:       models.OrderSideSell,
			Quantity:   qty,
			FillPrice:  fillPrice,
			Notional:   notional,
			Fee:        fee,
			StampDuty:  decimal.Zero,
			CashImpact: net,
		}, nil
	}

	return nil, reject(ReasonUnknownSide, errors.ErrInvalidOrder)
}

// addToPosition opens a position or blends a new lot into the existing one
// at a quantity-weighted average cost.
func addToPosition(l *models.Ledger, ticker string, qty, fillPrice decimal.Decimal, sector string) error {
	if pos, ok := l.Position(ticker); ok {
		newQty := models.RoundQuantity(pos.Quantity.Add(qty))
		cost := pos.CostBasis().Add(fillPrice.Mul(qty))
		pos.AvgCost = models.RoundPrice(cost.Div(newQty))
		pos.Quantity = newQty
		portfolio.Revalue(pos, fillPrice)
		return nil
	}

	pos := &models.Position{
		Ticker:    ticker,
		Quantity:  qty,
		AvgCost:   fillPrice,
		Sector:    sector,
		EntryDate: l.AsOfDate,
		DaysHeld:  0,
		Status:    models.PositionActive,
	}
	portfolio.Revalue(pos, fillPrice)
	return l.AddPosition(pos)
}

// reduceOrClose removes qty from pos, dropping the position when nothing is
// left. A reduced position is carried at cost.
func reduceOrClose(l *models.Ledger, pos *models.Position, qty decimal.Decimal) {
	remaining := models.RoundQuantity(pos.Quantity.Sub(qty))
	if !remaining.IsPositive() {
		l.RemovePosition(pos.Ticker)
		return
	}
	pos.Quantity = remaining
	portfolio.Revalue(pos, pos.AvgCost)
}
