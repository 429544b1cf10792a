package models

import (
	"regexp"
	"strconv"
	"time"
)

const DateLayout = "2006-01-02"

// DateRange is an inclusive window. Windows produced by LastNDays always
// start at 00:00:00.000 UTC and end at 23:59:59.999 UTC.
type DateRange struct {
	Start time.Time `json:"startDate"`
	End   time.Time `json:"endDate"`
}

// Contains reports whether t falls inside the window, bounds included.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Days returns the UTC calendar days covered by the window, in order.
func (r DateRange) Days() []time.Time {
	var out []time.Time
	for d := DayUTC(r.Start); !d.After(r.End); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// Span is the window length; one millisecond is added back because End is
// the last instant included.
func (r DateRange) Span() time.Duration {
	return r.End.Sub(r.Start) + time.Millisecond
}

// DayUTC truncates t to midnight of its UTC calendar day.
func DayUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EndOfDayUTC is the last millisecond of t's UTC calendar day.
func EndOfDayUTC(t time.Time) time.Time {
	return DayUTC(t).Add(24*time.Hour - time.Millisecond)
}

// LastNDays is the trailing window ending today (UTC): it starts N days
// before today at midnight and ends at today's last millisecond.
func LastNDays(now time.Time, days int) DateRange {
	if days < 0 {
		days = 0
	}
	return DateRange{
		Start: DayUTC(now).AddDate(0, 0, -days),
		End:   EndOfDayUTC(now),
	}
}

// PreviousPeriod is the window of the same length as LastNDays(days) that
// ends one millisecond before currentStart.
func PreviousPeriod(currentStart time.Time, days int) DateRange {
	start := DayUTC(currentStart)
	return DateRange{
		Start: start.AddDate(0, 0, -(days + 1)),
		End:   start.Add(-time.Millisecond),
	}
}

var periodRe = regexp.MustCompile(`^(\d+)d$`)

// ParsePeriodDays turns "7d", "30d" into a day count; anything else is 7.
func ParsePeriodDays(period string) int {
	if m := periodRe.FindStringSubmatch(period); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n
		}
	}
	return 7
}

// ParseDay parses a YYYY-MM-DD value as a UTC day.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
