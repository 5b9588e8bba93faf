package calendar

import (
	"encoding/json"
	"os"
	"path/filepath"

	"daily-equity-trader/internal/models"
)

const (
	lookaheadDays = 5
	// maxClosedRun bounds the search for the next trading day.
	maxClosedRun = 30
)

// Info is the calendar context handed to the decision engine.
type Info struct {
	AsOfDate              models.Date `json:"as_of_date"`
	IsTradingDay          bool        `json:"is_trading_day"`
	IsHalfDay             bool        `json:"is_half_day"`
	NextTradingDay        models.Date `json:"next_trading_day"`
	BankHolidaysNext5Days []string    `json:"bank_holidays_next_5_days"`
}

// Calendar combines weekends with a holiday source.
type Calendar struct {
	source HolidaySource
}

// New creates a calendar backed by source.
func New(source HolidaySource) *Calendar {
	return &Calendar{source: source}
}

// IsTradingDay reports whether the market opens on d.
func (c *Calendar) IsTradingDay(d models.Date) bool {
	return !d.IsWeekend() && !c.source.IsHoliday(d)
}

// NextTradingDay returns the first trading day strictly after d. It returns
// the zero Date when the market stays closed for more than 30 days.
func (c *Calendar) NextTradingDay(d models.Date) models.Date {
	for i := 1; i <= maxClosedRun; i++ {
		if next := d.AddDays(i); c.IsTradingDay(next) {
			return next
		}
	}
	return models.Date{}
}

// Info describes d for the decision engine.
func (c *Calendar) Info(d models.Date) Info {
	upcoming := []string{}
	for i := 1; i <= lookaheadDays; i++ {
		day := d.AddDays(i)
		if c.source.IsHoliday(day) {
			upcoming = append(upcoming, day.String())
		}
	}
	return Info{
		AsOfDate:              d,
		IsTradingDay:          c.IsTradingDay(d),
		IsHalfDay:             c.source.IsHalfDay(d),
		NextTradingDay:        c.NextTradingDay(d),
		BankHolidaysNext5Days: upcoming,
	}
}

// WriteJSON writes info to path as trading_calendar.json.
func WriteJSON(path string, info Info) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
