package render

import (
	"encoding/json"
	"html/template"
	"strings"
	"time"

	"github.com/clubsite/server/internal/domain/events"
	"github.com/clubsite/server/internal/sanitize"
)

// EventJSONLD describes e as a schema.org Event for search engines.
// json.Marshal escapes <, > and &, so the result is safe inside a script tag.
func EventJSONLD(e events.Event, site Site, loc *time.Location) (template.JS, error) {
	if loc == nil {
		loc = time.UTC
	}
	base := strings.TrimRight(site.BaseURL, "/")
	doc := map[string]any{
		"@context":            "https://schema.org",
		"@type":               "Event",
		"@id":                 base + "/events/" + e.ID,
		"url":                 base + "/events/" + e.ID,
		"name":                e.Title,
		"eventStatus":         "https://schema.org/EventScheduled",
		"eventAttendanceMode": "https://schema.org/OfflineEventAttendanceMode",
		"organizer": map[string]any{
			"@type": "Organization",
			"name":  site.Name,
			"url":   base + "/",
		},
	}
	if e.AllDay {
		doc["startDate"] = e.StartsAt.In(loc).Format(time.DateOnly)
		doc["endDate"] = e.End().In(loc).AddDate(0, 0, -1).Format(time.DateOnly)
	} else {
		doc["startDate"] = e.StartsAt.In(loc).Format(time.RFC3339)
		doc["endDate"] = e.End().In(loc).Format(time.RFC3339)
	}
	if text := sanitize.Excerpt(e.DescriptionHTML, 300); text != "" {
		doc["description"] = text
	}
	if e.Location != "" {
		doc["location"] = map[string]any{"@type": "Place", "name": e.Location}
	}
	if e.ImageURL != "" {
		doc["image"] = e.ImageURL
	}
	if e.Capacity > 0 {
		doc["maximumAttendeeCapacity"] = e.Capacity
		doc["remainingAttendeeCapacity"] = e.SeatsLeft()
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return template.JS(out), nil
}
