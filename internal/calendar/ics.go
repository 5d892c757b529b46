package calendar

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/clubsite/server/internal/domain/events"
	"github.com/clubsite/server/internal/sanitize"
)

const (
	// FeedPast and FeedAhead bound the window exported in the iCalendar feed.
	FeedPast  = 30 * 24 * time.Hour
	FeedAhead = 365 * 24 * time.Hour
)

// FeedOptions describe the calendar as a whole.
type FeedOptions struct {
	Name    string
	BaseURL string
	// Domain qualifies event UIDs, e.g. "kulup.example.org".
	Domain string
}

// Feed renders the published events around now as an iCalendar document.
// Recurring events are emitted once with their RRULE rather than expanded.
func (s *Service) Feed(ctx context.Context, w io.Writer, opts FeedOptions) error {
	now := s.now()
	occ, err := s.source.Occurrences(ctx, now.Add(-FeedPast), now.Add(FeedAhead))
	if err != nil {
		return fmt.Errorf("load occurrences: %w", err)
	}
	cal := BuildICS(occ, opts, s.loc, now)
	if err := cal.SerializeTo(w); err != nil {
		return fmt.Errorf("write calendar: %w", err)
	}
	return nil
}

// BuildICS converts occurrences into a VCALENDAR with one VEVENT per event.
func BuildICS(occ []events.Occurrence, opts FeedOptions, loc *time.Location, stamp time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//clubsite//calendar//TR")
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}
	if loc != nil {
		cal.SetXWRTimezone(loc.String())
	}

	seen := make(map[string]bool, len(occ))
	for _, o := range occ {
		e := o.Event
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		addEvent(cal, e, opts, loc, stamp)
	}
	return cal
}

func addEvent(cal *ical.Calendar, e events.Event, opts FeedOptions, loc *time.Location, stamp time.Time) {
	domain := opts.Domain
	if domain == "" {
		domain = "clubsite"
	}
	ev := cal.AddEvent(e.ID + "@" + domain)
	ev.SetDtStampTime(stamp.UTC())
	ev.SetCreatedTime(e.CreatedAt.UTC())
	ev.SetModifiedAt(e.UpdatedAt.UTC())
	ev.SetSummary(e.Title)

	if e.AllDay {
		start := e.StartsAt
		if loc != nil {
			start = start.In(loc)
		}
		ev.SetAllDayStartAt(start)
		ev.SetAllDayEndAt(e.End().In(start.Location()))
	} else {
		ev.SetStartAt(e.StartsAt.UTC())
		ev.SetEndAt(e.End().UTC())
	}

	if e.Location != "" {
		ev.SetLocation(e.Location)
	}
	if text := sanitize.Excerpt(e.DescriptionHTML, 0); text != "" {
		ev.SetDescription(text)
	}
	if opts.BaseURL != "" {
		ev.SetURL(strings.TrimRight(opts.BaseURL, "/") + "/events/" + e.ID)
	}
	ev.SetProperty(ical.ComponentPropertyCategories, e.Category.Label())
	if e.IsRecurring() {
		ev.SetProperty(ical.ComponentPropertyRrule, strings.TrimPrefix(e.RRule, "RRULE:"))
	}
}
