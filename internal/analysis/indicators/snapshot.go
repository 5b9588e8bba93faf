package indicators

import (
	"math"
	"sort"

	"daily-equity-trader/internal/models"
)

// Window lengths and thresholds used by the snapshot.
const (
	DefaultMinRows = 20

	smaShortPeriod = 50
	smaLongPeriod  = 200
	atrPeriod      = 14
	rangePeriod    = 20
	slopeLookback  = 5
	slopeThreshold = 0.001
)

// ComputeSnapshot derives the technical snapshot for the latest bar of a
// ticker's history. It returns nil when fewer than minRows usable bars exist
// or the latest close is missing. Fields whose window exceeds the history are
// left null.
func ComputeSnapshot(ticker string, bars []models.PriceBar, minRows int) *models.Snapshot {
	if minRows <= 0 {
		minRows = DefaultMinRows
	}

	bars = prepare(bars)
	if len(bars) < minRows {
		return nil
	}

	closes := closePrices(bars)
	vols := volumes(bars)

	sma50 := rollingMean(closes, smaShortPeriod)
	sma200 := rollingMean(closes, smaLongPeriod)
	atr14 := rollingMean(trueRanges(bars), atrPeriod)
	high20 := rollingMax(highPrices(bars), rangePeriod)
	low20 := rollingMin(lowPrices(bars), rangePeriod)
	avgVol20 := rollingMean(vols, rangePeriod)
	avgNotional20 := rollingMean(notionals(bars), rangePeriod)

	latest := bars[len(bars)-1]
	c := latest.Close
	h20 := last(high20)
	s50 := last(sma50)
	av20 := last(avgVol20)

	snap := &models.Snapshot{
		Date:   latest.Date,
		Ticker: ticker,
		Close:  models.Some(c).Round(models.PricePlaces),
		High:   models.Some(latest.High).Round(models.PricePlaces),
		Low:    models.Some(latest.Low).Round(models.PricePlaces),
		Open:   models.Some(latest.Open).Round(models.PricePlaces),
		Volume: latest.Volume,

		SMA50:      models.Some(s50).Round(models.PricePlaces),
		SMA200:     models.Some(last(sma200)).Round(models.PricePlaces),
		SMA50Slope: smaSlope(sma50),
		ATR14:      models.Some(last(atr14)).Round(models.PricePlaces),

		High20D:        models.Some(h20).Round(models.PricePlaces),
		Low20D:         models.Some(last(low20)).Round(models.PricePlaces),
		AvgVolume20D:   models.Some(av20).Round(models.PricePlaces),
		AvgNotional20D: models.Some(last(avgNotional20)).Round(models.PricePlaces),

		DrawdownFrom20DHighPct:    models.Some((h20 - c) / h20).Round(models.RatioPlaces),
		VolumeRatio20D:            models.Some(float64(latest.Volume) / av20).Round(volumeRatioPlaces),
		CloseVsSMA50Pct:           models.Some((c - s50) / s50).Round(models.RatioPlaces),
		ConsecutiveDaysBelowSMA50: consecutiveBelow(closes, sma50),
	}
	if !snap.Close.Valid {
		return nil
	}
	return snap
}

const volumeRatioPlaces int32 = 4

// prepare returns the bars sorted by date with unusable closes removed. The
// input slice is not modified.
func prepare(bars []models.PriceBar) []models.PriceBar {
	out := make([]models.PriceBar, 0, len(bars))
	for _, b := range bars {
		if math.IsNaN(b.Close) || math.IsInf(b.Close, 0) {
			continue
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// smaSlope classifies the relative change across the last few defined values
// of a moving average.
func smaSlope(sma []float64) models.Slope {
	recent := tailValid(sma, slopeLookback)
	if len(recent) < 2 {
		return models.SlopeFlat
	}
	first, lastV := recent[0], recent[len(recent)-1]
	if first == 0 {
		return models.SlopeFlat
	}
	change := (lastV - first) / first
	switch {
	case change > slopeThreshold:
		return models.SlopePositive
	case change < -slopeThreshold:
		return models.SlopeNegative
	default:
		return models.SlopeFlat
	}
}

// consecutiveBelow counts the most recent run of closes strictly below the
// moving average. An undefined average ends the run.
func consecutiveBelow(closes, sma []float64) int {
	count := 0
	for i := len(closes) - 1; i >= 0; i-- {
		if math.IsNaN(sma[i]) || !(closes[i] < sma[i]) {
			break
		}
		count++
	}
	return count
}
