// Package calendar assembles the public calendar: Monday-first month
// grids, the iCalendar feed and lenient parsing of the requested date.
package calendar

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/clubsite/server/internal/cache"
	"github.com/clubsite/server/internal/datepicker"
	"github.com/clubsite/server/internal/domain/events"
)

// OccurrenceSource is implemented by events.Service.
type OccurrenceSource interface {
	Occurrences(ctx context.Context, from, to time.Time) ([]events.Occurrence, error)
}

// Day is one cell of the month grid.
type Day struct {
	Date    datepicker.Date
	InMonth bool
	Today   bool
	Entries []Entry
}

// Entry is an occurrence as shown on one day. Continues is set on the
// second and later days of a multi-day occurrence.
type Entry struct {
	events.Occurrence
	Continues bool
}

type Month struct {
	Month    datepicker.Date
	Title    string
	Weekdays []string
	Weeks    [][]Day
	Prev     datepicker.Date
	Next     datepicker.Date
	// Total is the number of distinct occurrences within the month itself.
	Total int
}

type Service struct {
	source OccurrenceSource
	cache  *cache.Store
	loc    *time.Location
	locale string
	now    func() time.Time
}

func NewService(source OccurrenceSource, store *cache.Store, loc *time.Location, locale string) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{source: source, cache: store, loc: loc, locale: locale, now: time.Now}
}

// Today is the current date in the club's time zone.
func (s *Service) Today() datepicker.Date {
	return datepicker.DateOf(s.now().In(s.loc))
}

// Month builds the six-week grid around month. Grids are cached per month
// and dropped whenever an event changes.
func (s *Service) Month(ctx context.Context, month datepicker.Date) (Month, error) {
	if month.IsZero() {
		return Month{}, fmt.Errorf("calendar month is required")
	}
	first := month.FirstOfMonth()
	key := cache.Events().Month(first.Year, int(first.Month))
	grid, err := cache.GetOrLoad(ctx, s.cache, key, func(ctx context.Context) (Month, error) {
		return s.build(ctx, first)
	})
	if err != nil {
		return Month{}, err
	}

	// Today moves independently of the cached grid.
	today := s.Today()
	weeks := make([][]Day, len(grid.Weeks))
	for w, week := range grid.Weeks {
		weeks[w] = make([]Day, len(week))
		for i, d := range week {
			d.Today = d.Date.Equal(today)
			weeks[w][i] = d
		}
	}
	grid.Weeks = weeks
	return grid, nil
}

func (s *Service) build(ctx context.Context, first datepicker.Date) (Month, error) {
	start := datepicker.GridStart(first)
	from := start.Time(s.loc)
	to := start.AddDays(datepicker.GridDays).Time(s.loc)

	occ, err := s.source.Occurrences(ctx, from, to)
	if err != nil {
		return Month{}, fmt.Errorf("load occurrences: %w", err)
	}

	byDay := make(map[datepicker.Date][]Entry)
	monthStart, monthEnd := first.Time(s.loc), first.AddMonths(1).Time(s.loc)
	total := 0
	for _, o := range occ {
		if o.Start.Before(monthEnd) && o.End.After(monthStart) {
			total++
		}
		for i, d := range s.spannedDays(o) {
			byDay[d] = append(byDay[d], Entry{Occurrence: o, Continues: i > 0})
		}
	}

	weeks := make([][]Day, 0, datepicker.GridDays/7)
	day := start
	for w := 0; w < datepicker.GridDays/7; w++ {
		week := make([]Day, 7)
		for i := range week {
			entries := byDay[day]
			sort.SliceStable(entries, func(a, b int) bool {
				if entries[a].Event.AllDay != entries[b].Event.AllDay {
					return entries[a].Event.AllDay
				}
				return entries[a].Start.Before(entries[b].Start)
			})
			week[i] = Day{
				Date:    day,
				InMonth: day.Year == first.Year && day.Month == first.Month,
				Entries: entries,
			}
			day = day.AddDays(1)
		}
		weeks = append(weeks, week)
	}

	return Month{
		Month:    first,
		Title:    datepicker.MonthTitle(first, s.locale),
		Weekdays: datepicker.WeekdayHeaders(s.locale),
		Weeks:    weeks,
		Prev:     first.AddMonths(-1),
		Next:     first.AddMonths(1),
		Total:    total,
	}, nil
}

// spannedDays lists the local dates an occurrence touches. The end is
// exclusive, so an event ending at midnight does not spill into the next day.
func (s *Service) spannedDays(o events.Occurrence) []datepicker.Date {
	first := datepicker.DateOf(o.Start.In(s.loc))
	last := first
	if o.End.After(o.Start) {
		last = datepicker.DateOf(o.End.Add(-time.Nanosecond).In(s.loc))
	}
	var days []datepicker.Date
	for d := first; !d.After(last); d = d.AddDays(1) {
		days = append(days, d)
		if len(days) > datepicker.GridDays {
			break
		}
	}
	return days
}
