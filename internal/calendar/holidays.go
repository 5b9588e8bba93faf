// Package calendar answers trading-day questions for the London market from a
// swappable holiday source.
package calendar

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"daily-equity-trader/internal/models"
)

// HolidaySource reports market closures and shortened sessions.
type HolidaySource interface {
	IsHoliday(d models.Date) bool
	IsHalfDay(d models.Date) bool
}

// Holiday is a named calendar entry.
type Holiday struct {
	Date string `yaml:"date"`
	Name string `yaml:"name,omitempty"`
}

// holidayFile is the on-disk layout of holidays.yaml.
type holidayFile struct {
	BankHolidays []Holiday `yaml:"bank_holidays"`
	HalfDays     []Holiday `yaml:"half_days"`
}

// SetSource is an in-memory HolidaySource.
type SetSource struct {
	holidays map[models.Date]string
	halfDays map[models.Date]string
}

// NewSetSource builds a source from explicit date lists.
func NewSetSource(holidays, halfDays []models.Date) *SetSource {
	s := &SetSource{
		holidays: make(map[models.Date]string, len(holidays)),
		halfDays: make(map[models.Date]string, len(halfDays)),
	}
	for _, d := range holidays {
		s.holidays[d] = ""
	}
	for _, d := range halfDays {
		s.halfDays[d] = ""
	}
	return s
}

func (s *SetSource) IsHoliday(d models.Date) bool {
	_, ok := s.holidays[d]
	return ok
}

func (s *SetSource) IsHalfDay(d models.Date) bool {
	_, ok := s.halfDays[d]
	return ok
}

// HolidayName returns the name recorded for a bank holiday.
func (s *SetSource) HolidayName(d models.Date) string {
	return s.holidays[d]
}

// Len returns the number of bank holidays loaded.
func (s *SetSource) Len() int {
	return len(s.holidays)
}

// ParseHolidays reads the holidays.yaml layout.
func ParseHolidays(data []byte) (*SetSource, error) {
	var f holidayFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing holidays: %w", err)
	}

	s := NewSetSource(nil, nil)
	for _, h := range f.BankHolidays {
		d, err := models.ParseDate(h.Date)
		if err != nil {
			return nil, fmt.Errorf("bank holiday %q: %w", h.Date, err)
		}
		s.holidays[d] = h.Name
	}
	for _, h := range f.HalfDays {
		d, err := models.ParseDate(h.Date)
		if err != nil {
			return nil, fmt.Errorf("half day %q: %w", h.Date, err)
		}
		s.halfDays[d] = h.Name
	}
	return s, nil
}

// LoadHolidayFile reads a holidays.yaml file.
func LoadHolidayFile(path string) (*SetSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseHolidays(data)
}

// WriteDefaultHolidays writes the bundled holiday list to path unless a file
// already exists there.
func WriteDefaultHolidays(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(DefaultHolidaysYAML), 0644)
}

// DefaultHolidaysYAML lists England and Wales bank holidays and LSE
// half-day sessions for 2025 to 2027.
const DefaultHolidaysYAML = `# London Stock Exchange closures. Edit yearly.
bank_holidays:
  - {date: "2025-01-01", name: "New Year's Day"}
  - {date: "2025-04-18", name: "Good Friday"}
  - {date: "2025-04-21", name: "Easter Monday"}
  - {date: "2025-05-05", name: "Early May bank holiday"}
  - {date: "2025-05-26", name: "Spring bank holiday"}
  - {date: "2025-08-25", name: "Summer bank holiday"}
  - {date: "2025-12-25", name: "Christmas Day"}
  - {date: "2025-12-26", name: "Boxing Day"}
  - {date: "2026-01-01", name: "New Year's Day"}
  - {date: "2026-04-03", name: "Good Friday"}
  - {date: "2026-04-06", name: "Easter Monday"}
  - {date: "2026-05-04", name: "Early May bank holiday"}
  - {date: "2026-05-25", name: "Spring bank holiday"}
  - {date: "2026-08-31", name: "Summer bank holiday"}
  - {date: "2026-12-25", name: "Christmas Day"}
  - {date: "2026-12-28", name: "Boxing Day (substitute day)"}
  - {date: "2027-01-01", name: "New Year's Day"}
  - {date: "2027-03-26", name: "Good Friday"}
  - {date: "2027-03-29", name: "Easter Monday"}
  - {date: "2027-05-03", name: "Early May bank holiday"}
  - {date: "2027-05-31", name: "Spring bank holiday"}
  - {date: "2027-08-30", name: "Summer bank holiday"}
  - {date: "2027-12-27", name: "Christmas Day (substitute day)"}
  - {date: "2027-12-28", name: "Boxing Day (substitute day)"}
half_days:
  - {date: "2025-12-24"}
  - {date: "2025-12-31"}
  - {date: "2026-12-24"}
  - {date: "2026-12-31"}
  - {date: "2027-12-24"}
  - {date: "2027-12-31"}
`
