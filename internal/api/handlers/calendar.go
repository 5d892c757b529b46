package handlers

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/clubsite/server/internal/calendar"
)

type CalendarService interface {
	CalendarMonths
	Feed(ctx context.Context, w io.Writer, opts calendar.FeedOptions) error
}

type CalendarHandler struct {
	service CalendarService
	feed    calendar.FeedOptions
	loc     *time.Location
	now     func() time.Time
	env     string
}

func NewCalendarHandler(service CalendarService, feed calendar.FeedOptions, loc *time.Location, env string) *CalendarHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &CalendarHandler{service: service, feed: feed, loc: loc, now: time.Now, env: env}
}

// ICS serves GET /calendar.ics. The document is buffered so a failed
// query still produces a proper error response.
func (h *CalendarHandler) ICS(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.service.Feed(r.Context(), &buf, h.feed); err != nil {
		writeError(w, r, err, h.env)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="calendar.ics"`)
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

type monthEntry struct {
	EventID   string    `json:"event_id"`
	Title     string    `json:"title"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	AllDay    bool      `json:"all_day"`
	Continues bool      `json:"continues,omitempty"`
}

type monthDay struct {
	Date    string       `json:"date"`
	InMonth bool         `json:"in_month"`
	Today   bool         `json:"today,omitempty"`
	Entries []monthEntry `json:"entries"`
}

type monthResponse struct {
	Month    string       `json:"month"`
	Title    string       `json:"title"`
	Weekdays []string     `json:"weekdays"`
	Weeks    [][]monthDay `json:"weeks"`
	Prev     string       `json:"prev"`
	Next     string       `json:"next"`
	Total    int          `json:"total"`
}

// Month handles GET /api/v1/calendar[?from=], the JSON form of the public
// month grid.
func (h *CalendarHandler) Month(w http.ResponseWriter, r *http.Request) {
	from, err := calendar.ParseFrom(r.URL.Query().Get("from"), h.now(), h.loc)
	if err != nil {
		badRequest(w, r, err, h.env)
		return
	}
	m, err := h.service.Month(r.Context(), from)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, monthJSON(m))
}

func monthJSON(m calendar.Month) monthResponse {
	resp := monthResponse{
		Month:    m.Month.String(),
		Title:    m.Title,
		Weekdays: m.Weekdays,
		Weeks:    make([][]monthDay, 0, len(m.Weeks)),
		Prev:     m.Prev.String(),
		Next:     m.Next.String(),
		Total:    m.Total,
	}
	for _, week := range m.Weeks {
		days := make([]monthDay, 0, len(week))
		for _, d := range week {
			day := monthDay{Date: d.Date.String(), InMonth: d.InMonth, Today: d.Today, Entries: []monthEntry{}}
			for _, e := range d.Entries {
				day.Entries = append(day.Entries, monthEntry{
					EventID:   e.Event.ID,
					Title:     e.Event.Title,
					Start:     e.Start,
					End:       e.End,
					AllDay:    e.Event.AllDay,
					Continues: e.Continues,
				})
			}
			days = append(days, day)
		}
		resp.Weeks = append(resp.Weeks, days)
	}
	return resp
}
