package calendar

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daily-equity-trader/internal/models"
)

func defaultCalendar(t *testing.T) *Calendar {
	t.Helper()
	src, err := ParseHolidays([]byte(DefaultHolidaysYAML))
	require.NoError(t, err)
	require.Equal(t, 24, src.Len())
	return New(src)
}

func day(s string) models.Date { return models.MustParseDate(s) }

func TestCalendar_TradingDays(t *testing.T) {
	cal := defaultCalendar(t)

	assert.True(t, cal.IsTradingDay(day("2025-06-02")), "Monday")
	assert.False(t, cal.IsTradingDay(day("2025-06-07")), "Saturday")
	assert.False(t, cal.IsTradingDay(day("2025-06-08")), "Sunday")
	assert.False(t, cal.IsTradingDay(day("2025-12-25")), "Christmas")
	assert.True(t, cal.IsTradingDay(day("2025-12-24")), "half days still trade")
}

func TestCalendar_Info(t *testing.T) {
	cal := defaultCalendar(t)

	info := cal.Info(day("2025-04-17"))
	assert.True(t, info.IsTradingDay)
	assert.False(t, info.IsHalfDay)
	// Good Friday, the weekend and Easter Monday are skipped.
	assert.Equal(t, day("2025-04-22"), info.NextTradingDay)
	assert.Equal(t, []string{"2025-04-18", "2025-04-21"}, info.BankHolidaysNext5Days)

	info = cal.Info(day("2025-12-24"))
	assert.True(t, info.IsHalfDay)
	assert.Equal(t, day("2025-12-29"), info.NextTradingDay)

	info = cal.Info(day("2025-06-06"))
	assert.Equal(t, day("2025-06-09"), info.NextTradingDay)
	assert.Empty(t, info.BankHolidaysNext5Days)
}

type closedSource struct{}

func (closedSource) IsHoliday(models.Date) bool { return true }
func (closedSource) IsHalfDay(models.Date) bool { return false }

func TestCalendar_NextTradingDayBounded(t *testing.T) {
	info := New(closedSource{}).Info(day("2025-06-02"))
	assert.False(t, info.IsTradingDay)
	assert.True(t, info.NextTradingDay.IsZero())
}

func TestWriteJSON(t *testing.T) {
	cal := defaultCalendar(t)
	path := filepath.Join(t.TempDir(), "out", "trading_calendar.json")

	require.NoError(t, WriteJSON(path, cal.Info(day("2025-12-24"))))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "2025-12-24", got["as_of_date"])
	assert.Equal(t, true, got["is_half_day"])
	assert.Equal(t, "2025-12-29", got["next_trading_day"])
	assert.Equal(t, []interface{}{"2025-12-25", "2025-12-26"}, got["bank_holidays_next_5_days"])
}

func TestLoadHolidayFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "holidays.yaml")
	require.NoError(t, WriteDefaultHolidays(path))

	// A second write leaves an edited file alone.
	require.NoError(t, os.WriteFile(path, []byte("bank_holidays:\n  - date: \"2030-01-01\"\n    name: Test\n"), 0644))
	require.NoError(t, WriteDefaultHolidays(path))

	src, err := LoadHolidayFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, src.Len())
	assert.True(t, src.IsHoliday(day("2030-01-01")))
	assert.Equal(t, "Test", src.HolidayName(day("2030-01-01")))
	assert.False(t, src.IsHalfDay(day("2030-01-01")))
}

func TestParseHolidays_BadDate(t *testing.T) {
	_, err := ParseHolidays([]byte("bank_holidays:\n  - date: \"not a date\"\n"))
	assert.Error(t, err)
}
