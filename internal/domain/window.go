package domain

import (
	"fmt"
	"time"
)

// AnchorWindow is one configured intraday opening-range window.
type AnchorWindow struct {
	ID          string        // anchor identifier, e.g. "0930"
	StartHour   int           // window start hour, exchange time
	StartMinute int           // window start minute, exchange time
	Duration    time.Duration // window length
	Horizon     time.Duration // breakout validity after window close
}

// Validate checks the anchor window fields.
func (a AnchorWindow) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: anchor id is required", ErrInvalidParams)
	}
	if a.StartHour < 0 || a.StartHour > 23 || a.StartMinute < 0 || a.StartMinute > 59 {
		return fmt.Errorf("%w: anchor %s start %02d:%02d out of range", ErrInvalidParams, a.ID, a.StartHour, a.StartMinute)
	}
	if a.Duration <= 0 {
		return fmt.Errorf("%w: anchor %s duration must be positive", ErrInvalidParams, a.ID)
	}
	if a.Horizon <= 0 {
		return fmt.Errorf("%w: anchor %s horizon must be positive", ErrInvalidParams, a.ID)
	}
	return nil
}

// Bounds returns the window [start, end) and the breakout horizon end
// for the trading date in loc.
func (a AnchorWindow) Bounds(date time.Time, loc *time.Location) (start, end, validUntil time.Time) {
	y, m, d := date.In(loc).Date()
	start = time.Date(y, m, d, a.StartHour, a.StartMinute, 0, 0, loc)
	end = start.Add(a.Duration)
	validUntil = end.Add(a.Horizon)
	return start, end, validUntil
}

// DateRange is a half-open calendar range [Start, End).
type DateRange struct {
	Start time.Time // first date, inclusive
	End   time.Time // last date, exclusive
}

// Empty reports whether the range covers no time.
func (r DateRange) Empty() bool {
	return !r.Start.Before(r.End)
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Overlaps reports whether two ranges share any instant.
func (r DateRange) Overlaps(o DateRange) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return r.Start.Before(o.End) && o.Start.Before(r.End)
}

// String formats the range as dates.
func (r DateRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start.Format(DateLayout), r.End.Format(DateLayout))
}

// DateLayout is the canonical trading-date format.
const DateLayout = "2006-01-02"

// TradingDate truncates t to midnight of its calendar date in loc.
func TradingDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// In aligns the range to whole trading dates in loc. A partial end date
// is included.
func (r DateRange) In(loc *time.Location) DateRange {
	start := TradingDate(r.Start, loc)
	end := TradingDate(r.End, loc)
	if !end.Equal(r.End.In(loc)) {
		end = end.AddDate(0, 0, 1)
	}
	return DateRange{Start: start, End: end}
}
