package events

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clubsite/server/internal/auth"
	"github.com/clubsite/server/internal/cache"
	"github.com/clubsite/server/internal/validation"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu     sync.Mutex
	events map[string]Event
	regs   map[string]Registration
	lists  int
}

func newMemRepo() *memRepo {
	return &memRepo{events: map[string]Event{}, regs: map[string]Registration{}}
}

func (m *memRepo) List(_ context.Context, f Filter) ([]Event, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	var out []Event
	for _, e := range m.events {
		if f.Published != nil && e.Published != *f.Published {
			continue
		}
		if f.From != nil && e.End().Before(*f.From) {
			continue
		}
		if f.To != nil && !e.StartsAt.Before(*f.To) {
			continue
		}
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if f.Query != "" && !strings.Contains(strings.ToLower(e.Title), strings.ToLower(f.Query)) {
			continue
		}
		e.RegisteredCount = m.countLocked(e.ID)
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	total := len(out)
	if f.Offset < len(out) {
		out = out[f.Offset:]
	} else {
		out = nil
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *memRepo) countLocked(eventID string) int {
	n := 0
	for _, r := range m.regs {
		if r.EventID == eventID && r.Status == StatusConfirmed {
			n++
		}
	}
	return n
}

func (m *memRepo) Get(_ context.Context, id string) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return Event{}, ErrNotFound
	}
	e.RegisteredCount = m.countLocked(id)
	return e, nil
}

func (m *memRepo) Create(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ID] = e
	return nil
}

func (m *memRepo) Update(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[e.ID]; !ok {
		return ErrNotFound
	}
	m.events[e.ID] = e
	return nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return ErrNotFound
	}
	delete(m.events, id)
	return nil
}

func (m *memRepo) ListRecurring(_ context.Context, before time.Time) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.Published && e.IsRecurring() && e.StartsAt.Before(before) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memRepo) Register(_ context.Context, r Registration) (Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[r.EventID]
	if !ok {
		return Registration{}, ErrNotFound
	}
	for _, existing := range m.regs {
		if existing.EventID == r.EventID && existing.Email == r.Email && existing.Status == StatusConfirmed {
			return Registration{}, ErrAlreadyRegistered
		}
	}
	if e.Capacity > 0 && m.countLocked(e.ID) >= e.Capacity {
		return Registration{}, ErrEventFull
	}
	m.regs[r.ID] = r
	return r, nil
}

func (m *memRepo) GetRegistration(_ context.Context, id string) (Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regs[id]
	if !ok {
		return Registration{}, ErrRegistrationNotFound
	}
	return r, nil
}

func (m *memRepo) CancelRegistration(_ context.Context, eventID, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regs[id]
	if !ok || r.EventID != eventID || r.Status != StatusConfirmed {
		return ErrRegistrationNotFound
	}
	r.Status = StatusCancelled
	r.CancelledAt = &at
	m.regs[id] = r
	return nil
}

func (m *memRepo) ListRegistrations(_ context.Context, eventID string) ([]Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Registration
	for _, r := range m.regs {
		if r.EventID == eventID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) ListReminderDue(_ context.Context, from, to time.Time) ([]Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Reminder
	for _, r := range m.regs {
		e := m.events[r.EventID]
		if r.Status != StatusConfirmed || r.ReminderSentAt != nil {
			continue
		}
		if e.StartsAt.Before(from) || !e.StartsAt.Before(to) {
			continue
		}
		out = append(out, Reminder{Registration: r, Event: e})
	}
	return out, nil
}

func (m *memRepo) MarkReminderSent(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regs[id]
	if !ok {
		return ErrRegistrationNotFound
	}
	r.ReminderSentAt = &at
	m.regs[id] = r
	return nil
}

type mockNotifier struct {
	mock.Mock
}

func (n *mockNotifier) RegistrationCreated(ctx context.Context, r Registration) error {
	return n.Called(ctx, r).Error(0)
}

var (
	istanbul = time.FixedZone("TRT", 3*60*60)
	editor   = auth.Actor{UserID: "01JXEDITOR000000000000000E", Username: "editor", Role: auth.RoleEditor}
	// Sunday 1 June 2025, 10:00 local time.
	clock = func() time.Time { return time.Date(2025, time.June, 1, 10, 0, 0, 0, istanbul) }
)

func newService(t *testing.T, opts ...Option) (*Service, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	opts = append([]Option{WithClock(clock)}, opts...)
	return NewService(repo, auth.ClaimsAuthorizer, cache.New(time.Minute), nil, istanbul, zerolog.Nop(), opts...), repo
}

func concertInput() Input {
	return Input{
		Title:            "Bahar Konseri",
		Description:      `<p>Koro ve orkestra</p><script>alert(1)</script>`,
		Category:         "concert",
		Location:         "Kültür Merkezi",
		Start:            "2025-06-15T19:30",
		End:              "2025-06-15T21:00",
		Capacity:         2,
		RegistrationOpen: true,
		Published:        true,
	}
}

func TestCreateParsesPickerValues(t *testing.T) {
	svc, _ := newService(t)

	e, err := svc.Create(context.Background(), editor, concertInput())
	require.NoError(t, err)

	assert.Len(t, e.ID, 26)
	assert.Equal(t, CategoryConcert, e.Category)
	assert.Equal(t, "<p>Koro ve orkestra</p>", e.DescriptionHTML)
	assert.True(t, e.StartsAt.Equal(time.Date(2025, time.June, 15, 19, 30, 0, 0, istanbul)))
	require.NotNil(t, e.EndsAt)
	assert.True(t, e.EndsAt.Equal(time.Date(2025, time.June, 15, 21, 0, 0, 0, istanbul)))
	assert.Equal(t, editor.UserID, e.CreatedBy)
}

func TestCreateAllDaySpansWholeDays(t *testing.T) {
	svc, _ := newService(t)
	in := concertInput()
	in.AllDay = true
	in.Start = "2025-06-20"
	in.End = "2025-06-22"

	e, err := svc.Create(context.Background(), editor, in)
	require.NoError(t, err)

	assert.True(t, e.StartsAt.Equal(time.Date(2025, time.June, 20, 0, 0, 0, 0, istanbul)))
	require.NotNil(t, e.EndsAt)
	assert.True(t, e.EndsAt.Equal(time.Date(2025, time.June, 23, 0, 0, 0, 0, istanbul)))
}

func TestCreateDateOnlyUsesDefaultTimes(t *testing.T) {
	svc, _ := newService(t)
	in := concertInput()
	in.Start = "2025-06-15"
	in.End = "2025-06-15"

	e, err := svc.Create(context.Background(), editor, in)
	require.NoError(t, err)
	assert.Equal(t, 9, e.StartsAt.Hour())
	assert.Equal(t, 17, e.EndsAt.Hour())
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Input)
		field string
	}{
		{name: "end before start", edit: func(in *Input) { in.End = "2025-06-14T10:00" }, field: "end"},
		{name: "bad start", edit: func(in *Input) { in.Start = "15.06.2025" }, field: "start"},
		{name: "missing start", edit: func(in *Input) { in.Start = "" }, field: "start"},
		{name: "blank title", edit: func(in *Input) { in.Title = "  " }, field: "title"},
		{name: "unknown category", edit: func(in *Input) { in.Category = "party" }, field: "category"},
		{name: "bad rrule", edit: func(in *Input) { in.RRule = "FREQ=SOMETIMES" }, field: "rrule"},
		{name: "bad image url", edit: func(in *Input) { in.ImageURL = "javascript:alert(1)" }, field: "image_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newService(t)
			in := concertInput()
			tt.edit(&in)

			_, err := svc.Create(context.Background(), editor, in)
			verrs, ok := validation.AsErrors(err)
			require.True(t, ok, "got %v", err)
			assert.Contains(t, verrs, tt.field)
			assert.Empty(t, repo.events)
		})
	}
}

func TestMemberCannotCreate(t *testing.T) {
	svc, _ := newService(t)
	member := auth.Actor{UserID: "01JXMEMBER000000000000000M", Role: auth.RoleMember}

	_, err := svc.Create(context.Background(), member, concertInput())
	assert.ErrorIs(t, err, auth.ErrForbidden)
}

func TestPublicGetHidesDrafts(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	in := concertInput()
	in.Published = false
	e, err := svc.Create(ctx, editor, in)
	require.NoError(t, err)

	_, err = svc.Get(ctx, e.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := svc.GetAdmin(ctx, editor, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)

	items, total, err := svc.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, total)
}

func TestListIsCachedUntilMutation(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	_, _, err := svc.List(ctx, Filter{})
	require.NoError(t, err)
	_, _, err = svc.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.lists)

	_, err = svc.Create(ctx, editor, concertInput())
	require.NoError(t, err)

	items, total, err := svc.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.lists)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, total)
}

func TestUpcomingUsesOneCacheEntryPerLimit(t *testing.T) {
	now := clock()
	svc, repo := newService(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	in := concertInput()
	in.Start = "2025-06-01T10:30"
	in.End = "2025-06-01T11:00"
	_, err := svc.Create(ctx, editor, in)
	require.NoError(t, err)
	later := concertInput()
	_, err = svc.Create(ctx, editor, later)
	require.NoError(t, err)

	items, err := svc.Upcoming(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	now = now.Add(45 * time.Second)
	items, err = svc.Upcoming(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 1, repo.lists)

	now = clock().Add(90 * time.Minute)
	items, err = svc.Upcoming(ctx, 5)
	require.NoError(t, err)
	require.Len(t, items, 1, "events that ended since the load are dropped")
	assert.Equal(t, "2025-06-15", items[0].StartsAt.Format(time.DateOnly))
	assert.Equal(t, 1, repo.lists)
}

func TestRegisterEnforcesCapacity(t *testing.T) {
	n := &mockNotifier{}
	n.On("RegistrationCreated", mock.Anything, mock.AnythingOfType("events.Registration")).Return(nil).Twice()
	svc, _ := newService(t, WithNotifier(n))
	ctx := context.Background()
	e, err := svc.Create(ctx, editor, concertInput())
	require.NoError(t, err)

	first, err := svc.Register(ctx, e.ID, RegistrationInput{Name: "Ayşe Yılmaz", Email: "Ayse@Example.com"})
	require.NoError(t, err)
	assert.Equal(t, "ayse@example.com", first.Email)
	assert.Equal(t, StatusConfirmed, first.Status)

	_, err = svc.Register(ctx, e.ID, RegistrationInput{Name: "Ayşe Yılmaz", Email: "ayse@example.com"})
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	_, err = svc.Register(ctx, e.ID, RegistrationInput{Name: "Mehmet Demir", Email: "mehmet@example.com"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, e.ID, RegistrationInput{Name: "Can Kaya", Email: "can@example.com"})
	assert.ErrorIs(t, err, ErrEventFull)

	got, err := svc.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.SeatsLeft())
	n.AssertExpectations(t)
}

func TestRegisterClosed(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	in := concertInput()
	in.RegistrationOpen = false
	closed, err := svc.Create(ctx, editor, in)
	require.NoError(t, err)
	_, err = svc.Register(ctx, closed.ID, RegistrationInput{Name: "Ali", Email: "ali@example.com"})
	assert.ErrorIs(t, err, ErrRegistrationClosed)

	in = concertInput()
	in.Start = "2025-05-20T19:00"
	in.End = ""
	past, err := svc.Create(ctx, editor, in)
	require.NoError(t, err)
	_, err = svc.Register(ctx, past.ID, RegistrationInput{Name: "Ali", Email: "ali@example.com"})
	assert.ErrorIs(t, err, ErrRegistrationClosed)

	_, err = svc.Register(ctx, closed.ID, RegistrationInput{Name: "Ali", Email: "not-an-email"})
	_, ok := validation.AsErrors(err)
	assert.True(t, ok)
}

func TestCancelOwnRegistrationFreesSeat(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	in := concertInput()
	in.Capacity = 1
	e, err := svc.Create(ctx, editor, in)
	require.NoError(t, err)

	reg, err := svc.Register(ctx, e.ID, RegistrationInput{Name: "Zeynep", Email: "zeynep@example.com"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.CancelOwnRegistration(ctx, e.ID, reg.ID, "someone@example.com"), ErrRegistrationNotFound)
	require.NoError(t, svc.CancelOwnRegistration(ctx, e.ID, reg.ID, "ZEYNEP@example.com"))

	_, err = svc.Register(ctx, e.ID, RegistrationInput{Name: "Emre", Email: "emre@example.com"})
	require.NoError(t, err)

	regs, err := svc.ListRegistrations(ctx, editor, e.ID)
	require.NoError(t, err)
	assert.Len(t, regs, 2)
}

func TestOccurrencesExpandsWeeklyRule(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	in := concertInput()
	in.Title = "Koro Provası"
	in.Start = "2025-06-03T19:00"
	in.End = "2025-06-03T21:00"
	in.RRule = "FREQ=WEEKLY;BYDAY=TU;COUNT=10"
	_, err := svc.Create(ctx, editor, in)
	require.NoError(t, err)

	single := concertInput()
	_, err = svc.Create(ctx, editor, single)
	require.NoError(t, err)

	from := time.Date(2025, time.June, 1, 0, 0, 0, 0, istanbul)
	to := time.Date(2025, time.July, 1, 0, 0, 0, 0, istanbul)
	occ, err := svc.Occurrences(ctx, from, to)
	require.NoError(t, err)

	var days []int
	for _, o := range occ {
		days = append(days, o.Start.In(istanbul).Day())
	}
	assert.Equal(t, []int{3, 10, 15, 17, 24}, days)
	assert.Equal(t, 2*time.Hour, occ[0].End.Sub(occ[0].Start))
	assert.Equal(t, "Bahar Konseri", occ[2].Event.Title)
}

func TestRemindersDue(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	in := concertInput()
	in.Start = "2025-06-02T09:30"
	in.End = ""
	soon, err := svc.Create(ctx, editor, in)
	require.NoError(t, err)
	_, err = svc.Create(ctx, editor, concertInput())
	require.NoError(t, err)

	reg, err := svc.Register(ctx, soon.ID, RegistrationInput{Name: "Deniz", Email: "deniz@example.com"})
	require.NoError(t, err)

	due, err := svc.RemindersDue(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, reg.ID, due[0].Registration.ID)

	require.NoError(t, svc.MarkReminderSent(ctx, reg.ID))
	due, err = svc.RemindersDue(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, due)
}
