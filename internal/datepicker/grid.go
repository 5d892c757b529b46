package datepicker

import (
	"strconv"
	"time"

	"github.com/go-playground/locales"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/tr"
)

const (
	gridWeeks = 6
	gridDays  = 7
)

// Labels are the fixed strings of the popover in the picker's locale.
type Labels struct {
	Placeholder string
	Today       string
	Tomorrow    string
	Clear       string
	Done        string
	Start       string
	End         string
	Time        string
	PrevMonth   string
	NextMonth   string
}

var labelsByLocale = map[string]Labels{
	"tr": {
		Placeholder: "Tarih seçin",
		Today:       "Bugün",
		Tomorrow:    "Yarın",
		Clear:       "Temizle",
		Done:        "Tamam",
		Start:       "Başlangıç",
		End:         "Bitiş",
		Time:        "Saat",
		PrevMonth:   "Önceki ay",
		NextMonth:   "Sonraki ay",
	},
	"en": {
		Placeholder: "Select date",
		Today:       "Today",
		Tomorrow:    "Tomorrow",
		Clear:       "Clear",
		Done:        "Done",
		Start:       "Start",
		End:         "End",
		Time:        "Time",
		PrevMonth:   "Previous month",
		NextMonth:   "Next month",
	},
}

func normalizeLocale(locale string) string {
	if locale == "en" {
		return "en"
	}
	return "tr"
}

func translator(locale string) locales.Translator {
	if normalizeLocale(locale) == "en" {
		return en.New()
	}
	return tr.New()
}

// Labels returns the popover strings for the picker's locale.
func (p *Picker) Labels() Labels {
	l := labelsByLocale[normalizeLocale(p.props.Locale)]
	if p.props.Placeholder != "" {
		l.Placeholder = p.props.Placeholder
	}
	return l
}

// Cell is one day of the month grid.
type Cell struct {
	Date       Date
	Label      string
	InMonth    bool
	Today      bool
	Disabled   bool
	Selected   bool
	RangeStart bool
	RangeEnd   bool
	InRange    bool
	Preview    bool
}

// MonthView is the rendered grid for the visible month.
type MonthView struct {
	Month    Date
	Title    string
	Weekdays []string
	Weeks    [][]Cell
}

// Grid lays out the visible month as 6 Monday-first weeks, padded with days
// of the neighbouring months.
func (p *Picker) Grid() MonthView {
	first := p.month.FirstOfMonth()
	day := GridStart(first)
	today := p.Today()

	weeks := make([][]Cell, gridWeeks)
	for w := range weeks {
		week := make([]Cell, gridDays)
		for i := range week {
			week[i] = p.cell(day, today)
			day = day.AddDays(1)
		}
		weeks[w] = week
	}

	return MonthView{
		Month:    first,
		Title:    monthTitle(p.tr, first),
		Weekdays: weekdayHeaders(p.tr),
		Weeks:    weeks,
	}
}

func (p *Picker) cell(d, today Date) Cell {
	c := Cell{
		Date:     d,
		Label:    strconv.Itoa(d.Day),
		InMonth:  d.Year == p.month.Year && d.Month == p.month.Month,
		Today:    d.Equal(today),
		Disabled: p.IsDisabled(d),
		Preview:  p.inPreview(d),
	}
	switch p.mode {
	case ModeSingle:
		c.Selected = !p.value.IsZero() && d.Equal(p.value)
	case ModeRange:
		c.RangeStart = !p.start.IsZero() && d.Equal(p.start)
		c.RangeEnd = !p.end.IsZero() && d.Equal(p.end)
		c.Selected = c.RangeStart || c.RangeEnd
		c.InRange = !p.start.IsZero() && !p.end.IsZero() && d.After(p.start) && d.Before(p.end)
	}
	return c
}

// GridStart is the Monday on or before the first day of month's month.
// A six-week grid starting there always covers the whole month.
func GridStart(month Date) Date {
	first := month.FirstOfMonth()
	offset := (int(first.Time(time.UTC).Weekday()) + 6) % 7
	return first.AddDays(-offset)
}

// GridDays is the number of days shown in a month grid.
const GridDays = gridWeeks * gridDays

// MonthTitle is the localized "Month YYYY" heading.
func MonthTitle(month Date, locale string) string {
	return monthTitle(translator(locale), month)
}

// WeekdayHeaders are the abbreviated weekday names, Monday first.
func WeekdayHeaders(locale string) []string {
	return weekdayHeaders(translator(locale))
}

func monthTitle(tr locales.Translator, month Date) string {
	return tr.MonthWide(month.Month) + " " + strconv.Itoa(month.Year)
}

func weekdayHeaders(tr locales.Translator) []string {
	out := make([]string, 0, gridDays)
	for i := 1; i <= gridDays; i++ {
		out = append(out, tr.WeekdayAbbreviated(time.Weekday(i%gridDays)))
	}
	return out
}

// DisplayText is the trigger button's label: the localized long date (plus
// time when ShowTime) or the placeholder when nothing is selected.
func (p *Picker) DisplayText() string {
	placeholder := p.Labels().Placeholder
	switch p.mode {
	case ModeRange:
		if p.start.IsZero() && p.end.IsZero() {
			return placeholder
		}
		return p.formatLong(p.start, p.startTime) + " - " + p.formatLong(p.end, p.endTime)
	default:
		if p.value.IsZero() {
			return placeholder
		}
		return p.formatLong(p.value, p.valueTime)
	}
}

func (p *Picker) formatLong(d Date, t TimeOfDay) string {
	if d.IsZero() {
		return "..."
	}
	s := p.tr.FmtDateLong(d.Time(time.UTC))
	if p.props.ShowTime {
		s += " " + t.String()
	}
	return s
}

// FormatLong renders t as a long localized date, with "HH:mm" appended
// when withTime is set. t is formatted in its own location.
func FormatLong(t time.Time, locale string, withTime bool) string {
	s := translator(locale).FmtDateLong(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC))
	if withTime {
		s += " " + TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}.String()
	}
	return s
}
