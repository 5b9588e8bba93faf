package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daily-equity-trader/internal/models"
)

var start = models.NewDate(2025, 1, 1)

// makeBars builds one bar per close, a day apart, with a 2-point range.
func makeBars(closes ...float64) []models.PriceBar {
	bars := make([]models.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = models.PriceBar{
			Date:   start.AddDays(i),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000,
		}
	}
	return bars
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func rising(from float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = from + float64(i)
	}
	return out
}

func TestComputeSnapshot_TooFewRows(t *testing.T) {
	assert.Nil(t, ComputeSnapshot("VOD.L", makeBars(repeat(50, 19)...), 20))
	assert.Nil(t, ComputeSnapshot("VOD.L", nil, 20))
}

func TestComputeSnapshot_FlatTwentyBars(t *testing.T) {
	snap := ComputeSnapshot("VOD.L", makeBars(repeat(50, 20)...), 20)
	require.NotNil(t, snap)

	assert.Equal(t, "VOD.L", snap.Ticker)
	assert.Equal(t, start.AddDays(19), snap.Date)
	assert.Equal(t, 50.0, snap.Close.Float64)
	assert.False(t, snap.SMA50.Valid, "sma50 needs 50 bars")
	assert.False(t, snap.SMA200.Valid)
	assert.False(t, snap.CloseVsSMA50Pct.Valid)
	assert.Equal(t, models.SlopeFlat, snap.SMA50Slope)
	assert.Equal(t, 0, snap.ConsecutiveDaysBelowSMA50)

	require.True(t, snap.ATR14.Valid)
	assert.Equal(t, 2.0, snap.ATR14.Float64)
	assert.Equal(t, 51.0, snap.High20D.Float64)
	assert.Equal(t, 49.0, snap.Low20D.Float64)
	assert.Equal(t, 1000.0, snap.AvgVolume20D.Float64)
	assert.Equal(t, 50000.0, snap.AvgNotional20D.Float64)
	assert.Equal(t, 1.0, snap.VolumeRatio20D.Float64)

	assert.False(t, snap.Qualifies())
}

func TestComputeSnapshot_RisingSeries(t *testing.T) {
	// Exactly 50 bars define a single sma50 value, too few for a slope.
	snap := ComputeSnapshot("BARC.L", makeBars(rising(100, 50)...), 20)
	require.NotNil(t, snap)
	assert.True(t, snap.SMA50.Valid)
	assert.Equal(t, 124.5, snap.SMA50.Float64)
	assert.Equal(t, models.SlopeFlat, snap.SMA50Slope)

	snap = ComputeSnapshot("BARC.L", makeBars(rising(100, 55)...), 20)
	require.NotNil(t, snap)
	assert.Equal(t, models.SlopePositive, snap.SMA50Slope)
	assert.True(t, snap.Qualifies())
	assert.Equal(t, 0, snap.ConsecutiveDaysBelowSMA50)
}

func TestComputeSnapshot_FallingSeries(t *testing.T) {
	closes := rising(100, 60)
	for i, j := 0, len(closes)-1; i < j; i, j = i+1, j-1 {
		closes[i], closes[j] = closes[j], closes[i]
	}
	snap := ComputeSnapshot("LLOY.L", makeBars(closes...), 20)
	require.NotNil(t, snap)
	assert.Equal(t, models.SlopeNegative, snap.SMA50Slope)
	// Every bar with a defined sma50 closes below it.
	assert.Equal(t, 11, snap.ConsecutiveDaysBelowSMA50)
}

func TestComputeSnapshot_ConsecutiveDaysBelow(t *testing.T) {
	closes := append(repeat(100, 55), repeat(90, 5)...)
	snap := ComputeSnapshot("BP.L", makeBars(closes...), 20)
	require.NotNil(t, snap)
	assert.Equal(t, 5, snap.ConsecutiveDaysBelowSMA50)
	assert.Equal(t, 99.0, snap.SMA50.Float64)
	assert.InDelta(t, (90.0-99.0)/99.0, snap.CloseVsSMA50Pct.Float64, 1e-6)

	closes = append(closes, 200)
	snap = ComputeSnapshot("BP.L", makeBars(closes...), 20)
	require.NotNil(t, snap)
	assert.Equal(t, 0, snap.ConsecutiveDaysBelowSMA50)
}

func TestComputeSnapshot_ATRUsesPreviousClose(t *testing.T) {
	closes := repeat(10, 20)
	bars := makeBars(closes...)
	// A gap up: high-low is 2 but the distance from the previous close is 11.
	bars[19] = models.PriceBar{Date: bars[19].Date, Open: 20, High: 21, Low: 19, Close: 20, Volume: 1000}

	snap := ComputeSnapshot("GAP.L", bars, 20)
	require.NotNil(t, snap)
	// 13 bars of TR 2 and one of TR 11 over 14.
	assert.InDelta(t, (13*2.0+11)/14, snap.ATR14.Float64, 1e-4)
}

func TestComputeSnapshot_DrawdownAndVolumeRatio(t *testing.T) {
	bars := makeBars(repeat(100, 20)...)
	bars[5].High = 110
	bars[19].Close = 99
	bars[19].Volume = 2000

	snap := ComputeSnapshot("SHEL.L", bars, 20)
	require.NotNil(t, snap)
	assert.Equal(t, 110.0, snap.High20D.Float64)
	assert.Equal(t, 0.1, snap.DrawdownFrom20DHighPct.Float64)
	assert.Equal(t, 1050.0, snap.AvgVolume20D.Float64)
	assert.Equal(t, 1.9048, snap.VolumeRatio20D.Float64)
}

func TestComputeSnapshot_SortsAndRounds(t *testing.T) {
	closes := append(repeat(10, 19), 12.345678)
	bars := makeBars(closes...)
	reversed := make([]models.PriceBar, len(bars))
	for i := range bars {
		reversed[len(bars)-1-i] = bars[i]
	}

	snap := ComputeSnapshot("AZN.L", reversed, 20)
	require.NotNil(t, snap)
	assert.Equal(t, start.AddDays(19), snap.Date)
	assert.Equal(t, 12.3457, snap.Close.Float64)
	// The caller's slice is left untouched.
	assert.Equal(t, 12.345678, reversed[0].Close)
}

func TestComputeSnapshot_SMA200(t *testing.T) {
	snap := ComputeSnapshot("ULVR.L", makeBars(repeat(40, 199)...), 20)
	require.NotNil(t, snap)
	assert.False(t, snap.SMA200.Valid)

	snap = ComputeSnapshot("ULVR.L", makeBars(repeat(40, 200)...), 20)
	require.NotNil(t, snap)
	assert.True(t, snap.SMA200.Valid)
	assert.Equal(t, 40.0, snap.SMA200.Float64)
}

func TestSMASlope(t *testing.T) {
	assert.Equal(t, models.SlopeFlat, smaSlope(nil))
	assert.Equal(t, models.SlopeFlat, smaSlope([]float64{0, 0, 5}))
	assert.Equal(t, models.SlopePositive, smaSlope([]float64{100, 100.2}))
	assert.Equal(t, models.SlopeFlat, smaSlope([]float64{100, 100.05}))
	assert.Equal(t, models.SlopeNegative, smaSlope([]float64{100, 99.8}))
}
