package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daily-equity-trader/internal/errors"
	"daily-equity-trader/internal/models"
)

func sampleLedger() *models.Ledger {
	l := models.NewLedger(models.MustParseDate("2025-06-02"), decimal.NewFromInt(10000))
	_ = l.AddPosition(&models.Position{
		Ticker:      "VOD.L",
		Quantity:    decimal.NewFromInt(100),
		AvgCost:     decimal.RequireFromString("0.7512"),
		MarketValue: decimal.RequireFromString("75.12"),
		Sector:      "Telecoms",
		EntryDate:   models.MustParseDate("2025-05-30"),
		DaysHeld:    3,
		StopPrice:   decimal.NewNullDecimal(decimal.RequireFromString("0.70")),
		Status:      models.PositionActive,
	})
	l.CashBalance = decimal.RequireFromString("9924.88")
	l.UnsettledSellProceeds = decimal.RequireFromString("12.50")
	l.SettlementDueDate = models.MustParseDate("2025-06-04")
	l.EquityValue = decimal.RequireFromString("10012.50")
	l.PortfolioPeakEquity = decimal.RequireFromString("10012.50")
	return l
}

func assertLedgerEqual(t *testing.T, want, got *models.Ledger) {
	t.Helper()
	assert.Equal(t, want.AsOfDate, got.AsOfDate)
	assert.True(t, want.CashBalance.Equal(got.CashBalance), "cash %s vs %s", want.CashBalance, got.CashBalance)
	assert.True(t, want.UnsettledSellProceeds.Equal(got.UnsettledSellProceeds))
	assert.Equal(t, want.SettlementDueDate, got.SettlementDueDate)
	assert.True(t, want.EquityValue.Equal(got.EquityValue))
	assert.True(t, want.PortfolioPeakEquity.Equal(got.PortfolioPeakEquity))
	require.Len(t, got.Positions, len(want.Positions))
	for i, p := range want.Positions {
		g := got.Positions[i]
		assert.Equal(t, p.Ticker, g.Ticker)
		assert.True(t, p.Quantity.Equal(g.Quantity))
		assert.True(t, p.AvgCost.Equal(g.AvgCost))
		assert.Equal(t, p.StopPrice.Valid, g.StopPrice.Valid)
		assert.Equal(t, p.EntryDate, g.EntryDate)
	}
	_, ok := got.Position("VOD.L")
	assert.True(t, ok, "index rebuilt on load")
}

func TestJSONFileStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewJSONFileStore(filepath.Join(dir, "state", "positions.json"))
	ctx := context.Background()

	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, errors.ErrLedgerNotFound)

	want := sampleLedger()
	require.NoError(t, s.Save(ctx, want))
	got, err := s.Load(ctx)
	require.NoError(t, err)
	assertLedgerEqual(t, want, got)

	// Only the target remains after the rename.
	entries, err := os.ReadDir(filepath.Join(dir, "state"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "positions.json", entries[0].Name())
}

func TestJSONFileStore_FieldNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	require.NoError(t, NewJSONFileStore(path).Save(context.Background(), sampleLedger()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, key := range []string{"as_of_date", "cash_balance_gbp", "unsettled_sell_proceeds_gbp",
		"settlement_due_date", "equity_value_gbp", "portfolio_peak_equity_gbp", "avg_cost_gbp", "current_stop_gbp"} {
		assert.Contains(t, string(data), `"`+key+`"`)
	}
}

func TestJSONFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	_, err := NewJSONFileStore(path).Load(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, errors.ErrLedgerNotFound)
}

func TestNewLedgerStore(t *testing.T) {
	s, err := NewLedgerStore(BackendJSON, "positions.json", nil)
	require.NoError(t, err)
	assert.IsType(t, &JSONFileStore{}, s)

	_, err = NewLedgerStore(BackendSQLite, "", nil)
	assert.Error(t, err)

	_, err = NewLedgerStore("csv", "", nil)
	assert.Error(t, err)
}
