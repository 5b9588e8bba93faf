package indicators

import (
	"math"

	"daily-equity-trader/internal/models"
)

// Series values are float64 with NaN marking "not enough data yet". A rolling
// window containing any NaN yields NaN, and a window is only computed once it
// is full.

// abs returns the absolute value of a float64.
func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// nan returns a slice of n NaN values.
func nan(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// rolling applies fn to every full window of values.
func rolling(values []float64, window int, fn func([]float64) float64) []float64 {
	out := nan(len(values))
	if window <= 0 {
		return out
	}
	for i := window - 1; i < len(values); i++ {
		w := values[i-window+1 : i+1]
		if hasNaN(w) {
			continue
		}
		out[i] = fn(w)
	}
	return out
}

func hasNaN(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// sum calculates the sum of a slice of float64.
func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

// mean calculates the arithmetic mean of a slice of float64.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return sum(values) / float64(len(values))
}

// highest returns the highest value in a slice.
func highest(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	h := values[0]
	for _, v := range values[1:] {
		if v > h {
			h = v
		}
	}
	return h
}

// lowest returns the lowest value in a slice.
func lowest(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	l := values[0]
	for _, v := range values[1:] {
		if v < l {
			l = v
		}
	}
	return l
}

func rollingMean(values []float64, window int) []float64 {
	return rolling(values, window, mean)
}

func rollingMax(values []float64, window int) []float64 {
	return rolling(values, window, highest)
}

func rollingMin(values []float64, window int) []float64 {
	return rolling(values, window, lowest)
}

// trueRange calculates the true range for a bar. The first bar of a series has
// no previous close and uses high - low.
func trueRange(current models.PriceBar, previous *models.PriceBar) float64 {
	highLow := current.High - current.Low
	if previous == nil {
		return highLow
	}
	highClose := abs(current.High - previous.Close)
	lowClose := abs(current.Low - previous.Close)
	return math.Max(highLow, math.Max(highClose, lowClose))
}

// trueRanges returns the true range series for bars.
func trueRanges(bars []models.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		var prev *models.PriceBar
		if i > 0 {
			prev = &bars[i-1]
		}
		out[i] = trueRange(bars[i], prev)
	}
	return out
}

// closePrices extracts close prices from bars.
func closePrices(bars []models.PriceBar) []float64 {
	prices := make([]float64, len(bars))
	for i, b := range bars {
		prices[i] = b.Close
	}
	return prices
}

// highPrices extracts high prices from bars.
func highPrices(bars []models.PriceBar) []float64 {
	prices := make([]float64, len(bars))
	for i, b := range bars {
		prices[i] = b.High
	}
	return prices
}

// lowPrices extracts low prices from bars.
func lowPrices(bars []models.PriceBar) []float64 {
	prices := make([]float64, len(bars))
	for i, b := range bars {
		prices[i] = b.Low
	}
	return prices
}

// volumes extracts volumes from bars as floats.
func volumes(bars []models.PriceBar) []float64 {
	vols := make([]float64, len(bars))
	for i, b := range bars {
		vols[i] = float64(b.Volume)
	}
	return vols
}

// notionals returns close × volume per bar.
func notionals(bars []models.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close * float64(b.Volume)
	}
	return out
}

// last returns the final element of values, or NaN when empty.
func last(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}

// tailValid returns up to n trailing non-NaN values in order.
func tailValid(values []float64, n int) []float64 {
	out := make([]float64, 0, n)
	for i := len(values) - 1; i >= 0 && len(out) < n; i-- {
		if !math.IsNaN(values[i]) {
			out = append(out, values[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
