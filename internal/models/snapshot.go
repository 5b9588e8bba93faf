package models

import "github.com/shopspring/decimal"

// Slope is the direction of a moving average over a short lookback.
type Slope string

const (
	SlopePositive Slope = "positive"
	SlopeNegative Slope = "negative"
	SlopeFlat     Slope = "flat"
)

// Snapshot is the per-ticker set of technical fields derived from the latest
// bar of a price history. Column names match the market_data.csv exchange
// format consumed by the decision engine.
type Snapshot struct {
	Date   Date      `csv:"date" json:"date"`
	Ticker string    `csv:"ticker" json:"ticker"`
	Close  NullFloat `csv:"close_gbp" json:"close_gbp"`
	High   NullFloat `csv:"high_gbp" json:"high_gbp"`
	Low    NullFloat `csv:"low_gbp" json:"low_gbp"`
	Open   NullFloat `csv:"open_gbp" json:"open_gbp"`
	Volume int64     `csv:"volume" json:"volume"`

	SMA50      NullFloat `csv:"sma50_gbp" json:"sma50_gbp"`
	SMA200     NullFloat `csv:"sma200_gbp" json:"sma200_gbp"`
	SMA50Slope Slope     `csv:"sma50_slope" json:"sma50_slope"`
	ATR14      NullFloat `csv:"atr14_gbp" json:"atr14_gbp"`

	High20D        NullFloat `csv:"high_20d_gbp" json:"high_20d_gbp"`
	Low20D         NullFloat `csv:"low_20d_gbp" json:"low_20d_gbp"`
	AvgVolume20D   NullFloat `csv:"avg_volume_20d" json:"avg_volume_20d"`
	AvgNotional20D NullFloat `csv:"avg_gbp_volume_20d" json:"avg_gbp_volume_20d"`

	DrawdownFrom20DHighPct    NullFloat `csv:"drawdown_from_20d_high_pct" json:"drawdown_from_20d_high_pct"`
	VolumeRatio20D            NullFloat `csv:"volume_ratio_20d" json:"volume_ratio_20d"`
	CloseVsSMA50Pct           NullFloat `csv:"close_vs_sma50_pct" json:"close_vs_sma50_pct"`
	ConsecutiveDaysBelowSMA50 int       `csv:"consecutive_days_below_sma50" json:"consecutive_days_below_sma50"`

	Sector         string `csv:"sector" json:"sector"`
	InstrumentType string `csv:"instrument_type" json:"instrument_type"`
	DomesticEquity Flag   `csv:"uk_equity_flag" json:"uk_equity_flag"`
}

// Enrich copies static ticker metadata onto the snapshot.
func (s *Snapshot) Enrich(meta TickerMeta) {
	s.Sector = meta.Sector
	s.InstrumentType = meta.InstrumentType
	if s.InstrumentType == "" {
		s.InstrumentType = "EQUITY"
	}
	s.DomesticEquity = meta.DomesticEquity
}

// Qualifies reports whether the fields the decision engine cannot do without
// (close, ATR14, SMA50) are present.
func (s *Snapshot) Qualifies() bool {
	return s.Close.Valid && s.ATR14.Valid && s.SMA50.Valid
}

// ClosePrice returns the latest close as a decimal; ok is false when the close
// is missing or not positive.
func (s *Snapshot) ClosePrice() (decimal.Decimal, bool) {
	if s == nil {
		return decimal.Zero, false
	}
	d, ok := s.Close.Decimal()
	if !ok || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}
