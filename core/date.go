package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar date (the unit of inventory accounting)
// =============================================================================

// DateLayout is the wire and storage format for dates.
const DateLayout = "2006-01-02"

// Date is a calendar date with no time-of-day and no zone. It is comparable
// and safe to use as a map key.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate normalizes overflowing components (e.g. Jan 32 -> Feb 1).
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC), time.UTC)
}

// DateOf returns the calendar date of t as observed in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t, time.UTC), nil
}

// MustParseDate panics on malformed input. Intended for fixtures.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) midnight() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// At returns the instant at hour:00 on d in loc.
func (d Date) At(hour int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, hour, 0, 0, 0, loc)
}

func (d Date) AddDays(n int) Date { return DateOf(d.midnight().AddDate(0, 0, n), time.UTC) }
func (d Date) Before(other Date) bool { return d.midnight().Before(other.midnight()) }
func (d Date) After(other Date) bool { return d.midnight().After(other.midnight()) }
func (d Date) Equal(other Date) bool { return d == other }
func (d Date) IsZero() bool { return d == Date{} }
func (d Date) Weekday() time.Weekday { return d.midnight().Weekday() }

// IsWeekend reports Friday and Saturday nights, which price as weekend nights.
func (d Date) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Friday || wd == time.Saturday
}

// DaysUntil counts calendar days from d to other. It works on day numbers,
// not time.Duration, so it stays exact across any span of years.
func (d Date) DaysUntil(other Date) int { return int(other.dayNumber() - d.dayNumber()) }

// dayNumber is the number of days since 1970-01-01.
func (d Date) dayNumber() int64 { return d.midnight().Unix() / secondsPerDay }

const secondsPerDay = 24 * 60 * 60

func (d Date) String() string { return d.midnight().Format(DateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// DATE RANGE - Half-open stay interval [Start, End)
// =============================================================================

// DateRange is a half-open interval of nights. End is the departure date and
// is never occupied.
type DateRange struct {
	Start Date `json:"check_in"`
	End   Date `json:"check_out"`
}

// NewDateRange validates that end is strictly after start.
func NewDateRange(start, end Date) (DateRange, error) {
	r := DateRange{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return &ValidationError{Field: "stay", Message: "check-in and check-out dates are required"}
	}
	if !r.End.After(r.Start) {
		return &ValidationError{Field: "stay", Message: fmt.Sprintf("check-out %s must be after check-in %s", r.End, r.Start)}
	}
	return nil
}

// ValidateMaxNights is Validate plus an upper bound on the number of nights.
func (r DateRange) ValidateMaxNights(maxNights int) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if maxNights > 0 && r.Nights() > maxNights {
		return &ValidationError{Field: "stay", Message: fmt.Sprintf("%s spans %d nights, at most %d allowed", r, r.Nights(), maxNights)}
	}
	return nil
}

// Nights is the number of occupied dates.
func (r DateRange) Nights() int {
	return r.Start.DaysUntil(r.End)
}

// Dates returns every occupied date in ascending order.
func (r DateRange) Dates() []Date {
	n := r.Nights()
	if n <= 0 {
		return nil
	}
	out := make([]Date, 0, n)
	for d := r.Start; d.Before(r.End); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

// Contains reports whether d is an occupied night of the range.
func (r DateRange) Contains(d Date) bool {
	return !d.Before(r.Start) && d.Before(r.End)
}

// Overlaps reports whether the two ranges share at least one night.
func (r DateRange) Overlaps(other DateRange) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

func (r DateRange) String() string {
	return "[" + r.Start.String() + ", " + r.End.String() + ")"
}
