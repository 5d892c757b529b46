package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandSingleEvent(t *testing.T) {
	start := time.Date(2025, time.June, 30, 23, 0, 0, 0, time.UTC)
	e := Event{ID: "a", StartsAt: start}

	from := time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	occ, err := Expand(e, from, to)
	require.NoError(t, err)
	require.Len(t, occ, 1, "an event spilling into the range overlaps it")
	assert.Equal(t, start.Add(defaultDuration), occ[0].End)

	occ, err = Expand(e, to, to.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Empty(t, occ)
}

func TestExpandCapsOccurrences(t *testing.T) {
	e := Event{
		ID:       "daily",
		StartsAt: time.Date(2020, time.January, 1, 8, 0, 0, 0, time.UTC),
		RRule:    "FREQ=HOURLY",
	}
	occ, err := Expand(e, e.StartsAt, e.StartsAt.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Len(t, occ, MaxOccurrencesPerEvent)
}

func TestExpandHonoursUntil(t *testing.T) {
	e := Event{
		StartsAt: time.Date(2025, time.June, 2, 18, 0, 0, 0, time.UTC),
		RRule:    "FREQ=DAILY;UNTIL=20250605T235959Z",
	}
	occ, err := Expand(e, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, occ, 4)
}

func TestParseRRule(t *testing.T) {
	_, err := ParseRRule("FREQ=MONTHLY;BYMONTHDAY=1")
	require.NoError(t, err)

	_, err = ParseRRule("not a rule")
	assert.Error(t, err)
}

func TestSeatsLeft(t *testing.T) {
	assert.Equal(t, -1, Event{}.SeatsLeft())
	assert.Equal(t, 3, Event{Capacity: 5, RegisteredCount: 2}.SeatsLeft())
	assert.Equal(t, 0, Event{Capacity: 5, RegisteredCount: 7}.SeatsLeft())
}
