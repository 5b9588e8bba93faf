package trading

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daily-equity-trader/internal/analysis/indicators"
	"daily-equity-trader/internal/config"
	"daily-equity-trader/internal/models"
	"daily-equity-trader/internal/portfolio"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var tradeDate = models.MustParseDate("2025-06-02")

// quotes builds a snapshot table from ticker → close. Tickers ending in ".L"
// are flagged as domestic equities.
func quotes(closes map[string]float64) *indicators.SnapshotTable {
	table := indicators.NewSnapshotTable()
	for ticker, c := range closes {
		table.Add(&models.Snapshot{
			Date:           tradeDate,
			Ticker:         ticker,
			Close:          models.Some(c),
			Sector:         "Test",
			DomesticEquity: models.Flag(len(ticker) > 2 && ticker[len(ticker)-2:] == ".L"),
		})
	}
	return table
}

func frictionless() PricingConfig {
	return PricingConfig{FeeModel: config.FeeModel{Type: config.FeePerTrade}, SettlementDays: 1}
}

func newExecutor(t *testing.T, p PricingConfig) *Executor {
	t.Helper()
	e, err := NewExecutor(p, zerolog.Nop())
	require.NoError(t, err)
	return e
}

func buy(ticker, qty string) models.Order {
	return models.Order{Ticker: ticker, Side: models.OrderSideBuy, Quantity: d(qty)}
}

func sell(ticker, qty string) models.Order {
	return models.Order{Ticker: ticker, Side: models.OrderSideSell, Quantity: d(qty)}
}

func TestApply_WeightedAverageCost(t *testing.T) {
	e := newExecutor(t, frictionless())
	l := models.NewLedger(tradeDate, d("10000"))

	e.Apply(l, []models.Order{buy("VOD.L", "10")}, quotes(map[string]float64{"VOD.L": 100}))
	report := e.Apply(l, []models.Order{buy("VOD.L", "10")}, quotes(map[string]float64{"VOD.L": 120}))

	require.Len(t, report.Fills, 1)
	pos, ok := l.Position("VOD.L")
	require.True(t, ok)
	assert.True(t, pos.Quantity.Equal(d("20")))
	assert.True(t, pos.AvgCost.Equal(d("110")), "avg cost %s", pos.AvgCost)
	assert.True(t, pos.MarketValue.Equal(d("2400")))
	assert.True(t, pos.UnrealisedPnL.Equal(d("200")))
	assert.Equal(t, tradeDate, pos.EntryDate)
	assert.Equal(t, models.PositionActive, pos.Status)
	assert.Equal(t, "Test", pos.Sector)
	assert.False(t, pos.StopPrice.Valid)

	assert.True(t, l.CashBalance.Equal(d("7800")))
	assert.True(t, l.EquityValue.Equal(d("10200")))
	assert.NoError(t, portfolio.CheckInvariants(l))
}

func holding(t *testing.T, qty, avg string) *models.Ledger {
	t.Helper()
	l := models.NewLedger(tradeDate, d("1000"))
	p := &models.Position{Ticker: "VOD.L", Quantity: d(qty), AvgCost: d(avg), EntryDate: tradeDate, Status: models.PositionActive}
	portfolio.Revalue(p, d(avg))
	require.NoError(t, l.AddPosition(p))
	portfolio.RecomputeEquity(l)
	return l
}

func TestApply_PartialSellKeepsAverageCost(t *testing.T) {
	e := newExecutor(t, frictionless())
	l := holding(t, "20", "110")

	report := e.Apply(l, []models.Order{sell("VOD.L", "5")}, quotes(map[string]float64{"VOD.L": 130}))
	require.Len(t, report.Fills, 1)

	pos, ok := l.Position("VOD.L")
	require.True(t, ok)
	assert.True(t, pos.Quantity.Equal(d("15")))
	assert.True(t, pos.AvgCost.Equal(d("110")))
	assert.True(t, pos.MarketValue.Equal(d("1650")), "reduced position carried at cost")

	// Proceeds wait for settlement; cash is untouched.
	assert.True(t, l.CashBalance.Equal(d("1000")))
	assert.True(t, l.UnsettledSellProceeds.Equal(d("650")))
	assert.Equal(t, tradeDate.AddDays(1), l.SettlementDueDate)
	assert.True(t, l.EquityValue.Equal(d("3300")))
	assert.NoError(t, portfolio.CheckInvariants(l))
}

func TestApply_FullSellRemovesPosition(t *testing.T) {
	for _, qty := range []string{"15", "40"} {
		t.Run(qty, func(t *testing.T) {
			e := newExecutor(t, frictionless())
			l := holding(t, "15", "110")

			report := e.Apply(l, []models.Order{sell("VOD.L", qty)}, quotes(map[string]float64{"VOD.L": 100}))

			_, ok := l.Position("VOD.L")
			assert.False(t, ok)
			assert.Empty(t, l.Positions)
			require.Len(t, report.Fills, 1)
			assert.True(t, report.Fills[0].Quantity.Equal(d("15")), "fill capped at the held quantity")
			assert.True(t, l.UnsettledSellProceeds.Equal(d("1500")))
			assert.NoError(t, portfolio.CheckInvariants(l))
		})
	}
}

func TestApply_InsufficientCash(t *testing.T) {
	e := newExecutor(t, frictionless())
	l := models.NewLedger(tradeDate, d("100"))

	report := e.Apply(l, []models.Order{buy("VOD.L", "1")}, quotes(map[string]float64{"VOD.L": 150}))

	assert.Empty(t, report.Fills)
	require.Len(t, report.Rejections, 1)
	assert.Equal(t, ReasonInsufficientFunds, report.Rejections[0].Reason)
	assert.True(t, l.CashBalance.Equal(d("100")))
	assert.Empty(t, l.Positions)
}

func TestApply_StampDutyOnlyForDomesticEquity(t *testing.T) {
	e := newExecutor(t, config.DefaultPricing())
	prices := quotes(map[string]float64{"VOD.L": 100, "AAPL": 100})

	domestic := models.NewLedger(tradeDate, d("5000"))
	foreign := models.NewLedger(tradeDate, d("5000"))
	dr := e.Apply(domestic, []models.Order{buy("VOD.L", "10")}, prices)
	fr := e.Apply(foreign, []models.Order{buy("AAPL", "10")}, prices)

	require.Len(t, dr.Fills, 1)
	require.Len(t, fr.Fills, 1)

	// 10 bps of slippage on a 100 close.
	assert.True(t, dr.Fills[0].FillPrice.Equal(d("100.1")))
	assert.True(t, dr.Fills[0].Notional.Equal(d("1001")))
	assert.True(t, dr.Fills[0].StampDuty.Equal(d("5.01")))
	assert.True(t, fr.Fills[0].StampDuty.IsZero())

	assert.True(t, domestic.CashBalance.LessThan(foreign.CashBalance))
	assert.True(t, domestic.CashBalance.Equal(d("3993.99")))
	assert.True(t, foreign.CashBalance.Equal(d("3999")))
}

func TestApply_SellSlippageAndFees(t *testing.T) {
	p := config.DefaultPricing()
	p.FeeModel = config.FeeModel{Type: config.FeeBps, Value: 10}
	e := newExecutor(t, p)
	l := holding(t, "10", "90")

	report := e.Apply(l, []models.Order{sell("VOD.L", "10")}, quotes(map[string]float64{"VOD.L": 100}))
	require.Len(t, report.Fills, 1)
	f := report.Fills[0]
	assert.True(t, f.FillPrice.Equal(d("99.9")))
	assert.True(t, f.Notional.Equal(d("999")))
	assert.True(t, f.Fee.Equal(d("1")))
	assert.True(t, f.StampDuty.IsZero(), "no stamp duty on sells")
	assert.True(t, f.CashImpact.Equal(d("998")))
	assert.True(t, l.UnsettledSellProceeds.Equal(d("998")))
}

func TestApply_PerTradeFee(t *testing.T) {
	p := frictionless()
	p.FeeModel = config.FeeModel{Type: config.FeePerTrade, Value: 2.5}
	e := newExecutor(t, p)
	l := models.NewLedger(tradeDate, d("1000"))

	report := e.Apply(l, []models.Order{buy("AAPL", "1")}, quotes(map[string]float64{"AAPL": 100}))
	require.Len(t, report.Fills, 1)
	assert.True(t, report.Fills[0].Fee.Equal(d("2.5")))
	assert.True(t, l.CashBalance.Equal(d("897.5")))
}

func TestApply_RejectionsDoNotStopTheBatch(t *testing.T) {
	e := newExecutor(t, frictionless())
	l := models.NewLedger(tradeDate, d("1000"))

	orders := []models.Order{
		buy("NODATA.L", "1"),
		sell("BP.L", "1"),
		buy("BP.L", "0"),
		{Ticker: "BP.L", Side: "HOLD", Quantity: d("1")},
		buy("BP.L", "2"),
	}
	report := e.Apply(l, orders, quotes(map[string]float64{"BP.L": 5}))

	require.Len(t, report.Fills, 1)
	assert.Equal(t, "BP.L", report.Fills[0].Ticker)
	require.Len(t, report.Rejections, 4)
	assert.Equal(t, ReasonNoMarketData, report.Rejections[0].Reason)
	assert.Equal(t, ReasonNoPosition, report.Rejections[1].Reason)
	assert.Equal(t, ReasonInvalidQuantity, report.Rejections[2].Reason)
	assert.Equal(t, ReasonUnknownSide, report.Rejections[3].Reason)
	assert.True(t, l.CashBalance.Equal(d("990")))
}

func TestApply_OrdersRunInSequence(t *testing.T) {
	e := newExecutor(t, frictionless())
	l := models.NewLedger(tradeDate, d("1000"))

	// The sell only succeeds because the buy before it opened the position.
	report := e.Apply(l, []models.Order{buy("BP.L", "10"), sell("BP.L", "4")}, quotes(map[string]float64{"BP.L": 5}))
	require.Len(t, report.Fills, 2)
	pos, ok := l.Position("BP.L")
	require.True(t, ok)
	assert.True(t, pos.Quantity.Equal(d("6")))
	assert.True(t, l.UnsettledSellProceeds.Equal(d("20")))
}

func TestApply_SettlementDueDateOverwritten(t *testing.T) {
	p := frictionless()
	p.SettlementDays = 2
	e := newExecutor(t, p)
	l := holding(t, "10", "10")
	l.CashBalance = l.CashBalance.Sub(d("50"))
	l.UnsettledSellProceeds = d("50")
	l.SettlementDueDate = tradeDate
	portfolio.RecomputeEquity(l)

	e.Apply(l, []models.Order{sell("VOD.L", "1")}, quotes(map[string]float64{"VOD.L": 10}))

	assert.True(t, l.UnsettledSellProceeds.Equal(d("60")))
	assert.Equal(t, tradeDate.AddDays(2), l.SettlementDueDate)
}

func TestNewExecutor_InvalidPricing(t *testing.T) {
	p := frictionless()
	p.FeeModel.Type = "flat"
	_, err := NewExecutor(p, zerolog.Nop())
	assert.Error(t, err)
}
