package utils

import (
	"time"

	"daily-equity-trader/internal/models"
)

// LondonLocation is the timezone of the London Stock Exchange.
var LondonLocation *time.Location

func init() {
	var err error
	LondonLocation, err = time.LoadLocation("Europe/London")
	if err != nil {
		// No tzdata available; GMT is right for half the year.
		LondonLocation = time.FixedZone("GMT", 0)
	}
}

// Session times in London local time, as minutes after midnight.
const (
	sessionOpen           = 8 * 60
	sessionClose          = 16*60 + 30
	halfDayClose          = 12*60 + 30
	closingAuctionMinutes = 5
)

// LondonToday returns the current calendar day in London.
func LondonToday() models.Date {
	return models.DateOf(time.Now().In(LondonLocation))
}

// SessionClose returns when the continuous session of d ends. Half days
// close at 12:30.
func SessionClose(d models.Date, halfDay bool) time.Time {
	minutes := sessionClose
	if halfDay {
		minutes = halfDayClose
	}
	t := d.Time()
	return time.Date(t.Year(), t.Month(), t.Day(), minutes/60, minutes%60, 0, 0, LondonLocation)
}

// ClosingPriceFinal reports whether the closing auction for d has finished
// at now, so the day's close is available.
func ClosingPriceFinal(now time.Time, d models.Date, halfDay bool) bool {
	return !now.Before(SessionClose(d, halfDay).Add(closingAuctionMinutes * time.Minute))
}

// IsMarketOpen reports whether the continuous session is running at now.
// Holidays are not considered here.
func IsMarketOpen(now time.Time, halfDay bool) bool {
	local := now.In(LondonLocation)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	m := local.Hour()*60 + local.Minute()
	end := sessionClose
	if halfDay {
		end = halfDayClose
	}
	return m >= sessionOpen && m < end
}
