package util

import (
	"time"
	_ "time/tzdata" // New York session times without a system zoneinfo.

	"forexsim/internal/domain"
)

// Session boundaries in New York local time.
const (
	forexRollHour = 17

	usOpenMinute  = 9*60 + 30
	usCloseMinute = 16 * 60
)

// TradingCalendar provides market-hours awareness for a specific market.
//
// Forex trades around the clock from Sunday 17:00 to Friday 17:00 New York
// time. US equities trade 9:30 to 16:00 New York time on weekdays; exchange
// holidays are not modelled.
type TradingCalendar struct {
	market domain.Market
	loc    *time.Location
}

// NewTradingCalendar creates a TradingCalendar for the given market.
func NewTradingCalendar(market domain.Market) *TradingCalendar {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("EST", -5*60*60)
	}
	return &TradingCalendar{market: market, loc: loc}
}

// Market returns the calendar's market.
func (tc *TradingCalendar) Market() domain.Market {
	return tc.market
}

// IsMarketOpen returns whether the market is open at time t.
func (tc *TradingCalendar) IsMarketOpen(t time.Time) bool {
	ny := t.In(tc.loc)
	if tc.market == domain.MarketForex {
		switch ny.Weekday() {
		case time.Saturday:
			return false
		case time.Friday:
			return ny.Hour() < forexRollHour
		case time.Sunday:
			return ny.Hour() >= forexRollHour
		default:
			return true
		}
	}

	if ny.Weekday() == time.Saturday || ny.Weekday() == time.Sunday {
		return false
	}
	m := ny.Hour()*60 + ny.Minute()
	return m >= usOpenMinute && m < usCloseMinute
}

// NextOpen returns the next market open time at or after t. If the market is
// open at t, t is returned.
func (tc *TradingCalendar) NextOpen(t time.Time) time.Time {
	if tc.IsMarketOpen(t) {
		return t
	}
	ny := t.In(tc.loc)
	for d := 0; d <= 7; d++ {
		day := ny.AddDate(0, 0, d)
		var open time.Time
		if tc.market == domain.MarketForex {
			if day.Weekday() != time.Sunday {
				continue
			}
			open = tc.at(day, forexRollHour*60)
		} else {
			if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
				continue
			}
			open = tc.at(day, usOpenMinute)
		}
		if !open.Before(t) {
			return open
		}
	}
	return time.Time{}
}

// NextClose returns the next market close time at or after t.
func (tc *TradingCalendar) NextClose(t time.Time) time.Time {
	ny := t.In(tc.loc)
	for d := 0; d <= 7; d++ {
		day := ny.AddDate(0, 0, d)
		var closeAt time.Time
		if tc.market == domain.MarketForex {
			if day.Weekday() != time.Friday {
				continue
			}
			closeAt = tc.at(day, forexRollHour*60)
		} else {
			if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
				continue
			}
			closeAt = tc.at(day, usCloseMinute)
		}
		if !closeAt.Before(t) {
			return closeAt
		}
	}
	return time.Time{}
}

// Filter returns the bars whose timestamps fall inside a session.
func (tc *TradingCalendar) Filter(bars []domain.Bar) []domain.Bar {
	out := bars[:0:0]
	for _, b := range bars {
		if tc.IsMarketOpen(b.Timestamp) {
			out = append(out, b)
		}
	}
	return out
}

func (tc *TradingCalendar) at(day time.Time, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minute/60, minute%60, 0, 0, tc.loc)
}
