package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clubsite/server/internal/datepicker"
	"github.com/markusmobius/go-dateparser"
)

var ErrInvalidFrom = errors.New("unrecognized date")

var fromParser = &dateparser.Parser{}

// ParseFrom resolves the calendar's ?from= value to a day. It accepts the
// picker formats ("2025-06-15", "2025-06-15T10:00"), a bare month
// ("2025-06") and free text such as "15 Haziran", "next friday" or
// "Temmuz 2025". An empty value means today.
func ParseFrom(raw string, now time.Time, loc *time.Location) (datepicker.Date, error) {
	if loc == nil {
		loc = time.UTC
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return datepicker.DateOf(now.In(loc)), nil
	}

	if v, err := datepicker.ParseValue(raw); err == nil {
		return v.Date, nil
	}
	if t, err := time.Parse("2006-01", raw); err == nil {
		return datepicker.NewDate(t.Year(), t.Month(), 1), nil
	}

	cfg := &dateparser.Configuration{
		Languages:           []string{"tr", "en"},
		CurrentTime:         now.In(loc),
		DefaultTimezone:     loc,
		PreferredDayOfMonth: dateparser.First,
	}
	dt, err := fromParser.Parse(cfg, raw)
	if err != nil || dt.Time.IsZero() {
		return datepicker.Date{}, fmt.Errorf("%w: %q", ErrInvalidFrom, raw)
	}
	return datepicker.DateOf(dt.Time.In(loc)), nil
}
