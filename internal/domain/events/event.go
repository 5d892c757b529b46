package events

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotFound             = errors.New("event not found")
	ErrInvalidCategory      = errors.New("invalid event category")
	ErrUnknownDepartment    = errors.New("department does not exist")
	ErrRegistrationClosed   = errors.New("registration is closed for this event")
	ErrEventFull            = errors.New("event is full")
	ErrAlreadyRegistered    = errors.New("already registered for this event")
	ErrRegistrationNotFound = errors.New("registration not found")
)

type Category string

const (
	CategoryConcert    Category = "concert"
	CategoryWorkshop   Category = "workshop"
	CategoryMeeting    Category = "meeting"
	CategoryTrip       Category = "trip"
	CategoryExhibition Category = "exhibition"
	CategorySocial     Category = "social"
	CategorySports     Category = "sports"
	CategoryOther      Category = "other"
)

var Categories = []Category{
	CategoryConcert, CategoryWorkshop, CategoryMeeting, CategoryTrip,
	CategoryExhibition, CategorySocial, CategorySports, CategoryOther,
}

func ParseCategory(value string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(value)))
	switch c {
	case CategoryConcert, CategoryWorkshop, CategoryMeeting, CategoryTrip,
		CategoryExhibition, CategorySocial, CategorySports, CategoryOther:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, value)
	}
}

func (c Category) Label() string {
	switch c {
	case CategoryConcert:
		return "Konser"
	case CategoryWorkshop:
		return "Atölye"
	case CategoryMeeting:
		return "Toplantı"
	case CategoryTrip:
		return "Gezi"
	case CategoryExhibition:
		return "Sergi"
	case CategorySocial:
		return "Sosyal"
	case CategorySports:
		return "Spor"
	case CategoryOther:
		return "Diğer"
	}
	return string(c)
}

// defaultDuration is assumed for timed events without an end.
const defaultDuration = 2 * time.Hour

type Event struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	DescriptionHTML  string     `json:"description_html"`
	Category         Category   `json:"category"`
	DepartmentID     string     `json:"department_id,omitempty"`
	DepartmentName   string     `json:"department_name,omitempty"`
	Location         string     `json:"location,omitempty"`
	StartsAt         time.Time  `json:"starts_at"`
	EndsAt           *time.Time `json:"ends_at,omitempty"`
	AllDay           bool       `json:"all_day"`
	Capacity         int        `json:"capacity"`
	RegistrationOpen bool       `json:"registration_open"`
	RegisteredCount  int        `json:"registered_count"`
	ImageURL         string     `json:"image_url,omitempty"`
	RRule            string     `json:"rrule,omitempty"`
	Published        bool       `json:"published"`
	CreatedBy        string     `json:"created_by,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// End is EndsAt, or the start plus a default duration (one day for
// all-day events).
func (e Event) End() time.Time {
	if e.EndsAt != nil {
		return *e.EndsAt
	}
	if e.AllDay {
		return e.StartsAt.AddDate(0, 0, 1)
	}
	return e.StartsAt.Add(defaultDuration)
}

// SeatsLeft is -1 for events without a capacity.
func (e Event) SeatsLeft() int {
	if e.Capacity <= 0 {
		return -1
	}
	left := e.Capacity - e.RegisteredCount
	if left < 0 {
		return 0
	}
	return left
}

func (e Event) IsRecurring() bool { return e.RRule != "" }

type Filter struct {
	From         *time.Time
	To           *time.Time
	DepartmentID string
	Category     Category
	Published    *bool
	Query        string
	Limit        int
	Offset       int
}

// Values encodes f for cache keys and pagination links.
func (f Filter) Values() url.Values {
	v := url.Values{}
	if f.From != nil {
		v.Set("from", f.From.UTC().Format(time.RFC3339))
	}
	if f.To != nil {
		v.Set("to", f.To.UTC().Format(time.RFC3339))
	}
	if f.DepartmentID != "" {
		v.Set("department", f.DepartmentID)
	}
	if f.Category != "" {
		v.Set("category", string(f.Category))
	}
	if f.Published != nil {
		v.Set("published", strconv.FormatBool(*f.Published))
	}
	if f.Query != "" {
		v.Set("q", f.Query)
	}
	v.Set("limit", strconv.Itoa(f.Limit))
	v.Set("offset", strconv.Itoa(f.Offset))
	return v
}

type RegistrationStatus string

const (
	StatusConfirmed RegistrationStatus = "confirmed"
	StatusCancelled RegistrationStatus = "cancelled"
)

type Registration struct {
	ID             string             `json:"id"`
	EventID        string             `json:"event_id"`
	Name           string             `json:"name"`
	Email          string             `json:"email"`
	Phone          string             `json:"phone,omitempty"`
	Note           string             `json:"note,omitempty"`
	Status         RegistrationStatus `json:"status"`
	ReminderSentAt *time.Time         `json:"reminder_sent_at,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	CancelledAt    *time.Time         `json:"cancelled_at,omitempty"`
}

// Reminder pairs a confirmed registration with its event.
type Reminder struct {
	Registration Registration
	Event        Event
}

type Repository interface {
	List(ctx context.Context, f Filter) ([]Event, int, error)
	Get(ctx context.Context, id string) (Event, error)
	Create(ctx context.Context, e Event) error
	Update(ctx context.Context, e Event) error
	Delete(ctx context.Context, id string) error
	// ListRecurring returns published recurring events whose first
	// occurrence starts before the given time.
	ListRecurring(ctx context.Context, before time.Time) ([]Event, error)

	// Register inserts a confirmed registration, enforcing capacity and
	// one active registration per email in a single transaction.
	Register(ctx context.Context, r Registration) (Registration, error)
	GetRegistration(ctx context.Context, id string) (Registration, error)
	CancelRegistration(ctx context.Context, eventID, registrationID string, at time.Time) error
	ListRegistrations(ctx context.Context, eventID string) ([]Registration, error)
	ListReminderDue(ctx context.Context, from, to time.Time) ([]Reminder, error)
	MarkReminderSent(ctx context.Context, registrationID string, at time.Time) error
}

// Notifier is told about new registrations, typically to queue a
// confirmation email.
type Notifier interface {
	RegistrationCreated(ctx context.Context, r Registration) error
}
