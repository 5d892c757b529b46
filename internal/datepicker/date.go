package datepicker

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02T15:04"
)

var (
	ErrInvalidDate = errors.New("invalid date")
	ErrInvalidTime = errors.New("invalid time of day")
)

// Date is a calendar day with no time-of-day or location.
// The zero value means "no date selected".
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// NewDate normalizes out-of-range values the way time.Date does (June 31 -> July 1).
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// Time returns midnight of d in loc.
func (d Date) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.Time(time.UTC).AddDate(0, 0, n))
}

func (d Date) AddMonths(n int) Date {
	return DateOf(time.Date(d.Year, d.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC))
}

// FirstOfMonth returns the first day of d's month.
func (d Date) FirstOfMonth() Date {
	return Date{Year: d.Year, Month: d.Month, Day: 1}
}

// Compare returns -1, 0 or +1.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return sign(d.Year - o.Year)
	case d.Month != o.Month:
		return sign(int(d.Month) - int(o.Month))
	default:
		return sign(d.Day - o.Day)
	}
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }
func (d Date) Equal(o Date) bool  { return d.Compare(o) == 0 }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}

// ParseDate parses a YYYY-MM-DD day. Empty input yields the zero Date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

// TimeOfDay is an hour/minute pair tracked separately from the date grid.
type TimeOfDay struct {
	Hour   int
	Minute int
}

var (
	DefaultStartTime = TimeOfDay{Hour: 9}
	DefaultEndTime   = TimeOfDay{Hour: 17}
)

// ParseTimeOfDay parses "HH:mm".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On combines t with day d in loc.
func (t TimeOfDay) On(d Date, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, t.Hour, t.Minute, 0, 0, loc)
}

// Value is a parsed picker value: a day and, when present, a time-of-day.
type Value struct {
	Date    Date
	Time    TimeOfDay
	HasTime bool
}

// ParseValue accepts the strings the picker emits: "YYYY-MM-DD" or
// "YYYY-MM-DDTHH:mm". Seconds and RFC 3339 offsets are tolerated so values
// stored by other clients still seed the picker. Empty input is the zero Value.
func ParseValue(s string) (Value, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Value{}, nil
	}
	if !strings.Contains(s, "T") {
		d, err := ParseDate(s)
		if err != nil {
			return Value{}, err
		}
		return Value{Date: d}, nil
	}
	for _, layout := range []string{dateTimeLayout, "2006-01-02T15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return Value{
				Date:    DateOf(t),
				Time:    TimeOfDay{Hour: t.Hour(), Minute: t.Minute()},
				HasTime: true,
			}, nil
		}
	}
	return Value{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// FormatValue renders d (and t when showTime) using the emission contract.
// A zero date renders as the empty string.
func FormatValue(d Date, t TimeOfDay, showTime bool) string {
	if d.IsZero() {
		return ""
	}
	if !showTime {
		return d.String()
	}
	return d.String() + "T" + t.String()
}

// In converts v to an instant in loc. Values without a time use fallback.
func (v Value) In(loc *time.Location, fallback TimeOfDay) time.Time {
	tod := fallback
	if v.HasTime {
		tod = v.Time
	}
	return tod.On(v.Date, loc)
}
