package schema

import (
	"fmt"
	"time"
)

// CivilDate is a calendar date without a time zone (native Date column value).
type CivilDate struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the date part of t in t's location.
func DateOf(t time.Time) CivilDate {
	y, m, d := t.Date()
	return CivilDate{Year: y, Month: m, Day: d}
}

// ParseDate parses an ISO-8601 calendar date (YYYY-MM-DD).
func ParseDate(s string) (CivilDate, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return CivilDate{}, fmt.Errorf("invalid date %q", s)
	}
	return DateOf(t), nil
}

func (d CivilDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Time returns midnight UTC of the date.
func (d CivilDate) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Compare returns -1, 0 or 1.
func (d CivilDate) Compare(o CivilDate) int {
	return d.Time().Compare(o.Time())
}

// TimeOfDay is a wall clock time without a date (native Time column value).
type TimeOfDay struct {
	Hour       int
	Minute     int
	Second     int
	Nanosecond int
}

// TimeOfDayOf returns the clock part of t.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second(), Nanosecond: t.Nanosecond()}
}

// Duration returns the time elapsed since midnight.
func (t TimeOfDay) Duration() time.Duration {
	return time.Duration(t.Hour)*time.Hour +
		time.Duration(t.Minute)*time.Minute +
		time.Duration(t.Second)*time.Second +
		time.Duration(t.Nanosecond)
}

// Format renders HH:MM:SS with exactly digits fractional second digits.
func (t TimeOfDay) Format(digits int) string {
	s := fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
	if digits > 0 {
		s += "." + FormatFraction(t.Nanosecond, digits)
	}
	return s
}

func (t TimeOfDay) String() string {
	return t.Format(fractionDigits(t.Nanosecond))
}

// Compare returns -1, 0 or 1.
func (t TimeOfDay) Compare(o TimeOfDay) int {
	a, b := t.Duration(), o.Duration()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Truncate drops sub-second precision below unit.
func (t TimeOfDay) Truncate(unit TimeUnit) TimeOfDay {
	t.Nanosecond = TruncateNanos(t.Nanosecond, unit)
	return t
}

// FormatFraction renders nanos as exactly digits fractional digits (digits <= 9).
func FormatFraction(nanos, digits int) string {
	if digits > 9 {
		digits = 9
	}
	s := fmt.Sprintf("%09d", nanos)
	return s[:digits]
}

// TruncateNanos drops precision finer than unit.
func TruncateNanos(nanos int, unit TimeUnit) int {
	switch unit {
	case Second:
		return 0
	case Millisecond:
		return nanos - nanos%1_000_000
	case Microsecond:
		return nanos - nanos%1_000
	}
	return nanos
}

func fractionDigits(nanos int) int {
	if nanos == 0 {
		return 0
	}
	digits := 9
	for nanos%10 == 0 {
		nanos /= 10
		digits--
	}
	return digits
}
