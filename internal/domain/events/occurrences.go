package events

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"
)

// MaxOccurrencesPerEvent caps the expansion of one recurring event.
const MaxOccurrencesPerEvent = 500

// Occurrence is one concrete instance of an event.
type Occurrence struct {
	Event Event     `json:"event"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ParseRRule validates a recurrence rule such as
// "FREQ=WEEKLY;BYDAY=TU;COUNT=10".
func ParseRRule(s string) (*rrule.ROption, error) {
	opt, err := rrule.StrToROption(s)
	if err != nil {
		return nil, fmt.Errorf("invalid recurrence rule: %w", err)
	}
	if _, err := rrule.NewRRule(*opt); err != nil {
		return nil, fmt.Errorf("invalid recurrence rule: %w", err)
	}
	return opt, nil
}

// Expand returns the occurrences of e that overlap [from, to), sorted by
// start. A non-recurring event yields at most one occurrence.
func Expand(e Event, from, to time.Time) ([]Occurrence, error) {
	duration := e.End().Sub(e.StartsAt)
	if !e.IsRecurring() {
		if e.StartsAt.Before(to) && e.End().After(from) {
			return []Occurrence{{Event: e, Start: e.StartsAt, End: e.End()}}, nil
		}
		return nil, nil
	}

	opt, err := ParseRRule(e.RRule)
	if err != nil {
		return nil, err
	}
	opt.Dtstart = e.StartsAt
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("build recurrence: %w", err)
	}

	loc := e.StartsAt.Location()
	starts := r.Between(from.Add(-duration).In(loc), to.In(loc), true)
	if len(starts) > MaxOccurrencesPerEvent {
		starts = starts[:MaxOccurrencesPerEvent]
	}

	out := make([]Occurrence, 0, len(starts))
	for _, s := range starts {
		end := s.Add(duration)
		if !s.Before(to) || !end.After(from) {
			continue
		}
		out = append(out, Occurrence{Event: e, Start: s, End: end})
	}
	return out, nil
}

func sortOccurrences(occ []Occurrence) {
	sort.SliceStable(occ, func(i, j int) bool {
		if occ[i].Start.Equal(occ[j].Start) {
			return occ[i].Event.Title < occ[j].Event.Title
		}
		return occ[i].Start.Before(occ[j].Start)
	})
}
