package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clubsite/server/internal/domain/events"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EventRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

var _ events.Repository = (*EventRepository)(nil)

func (r *EventRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

const eventSelect = `
SELECT e.id, e.title, e.description_html, e.category, e.department_id, COALESCE(d.name, ''),
       e.location, e.starts_at, e.ends_at, e.all_day, e.capacity, e.registration_open,
       (SELECT count(*) FROM event_registrations er WHERE er.event_id = e.id AND er.status = 'confirmed'),
       e.image_url, e.rrule, e.published, e.created_by, e.created_at, e.updated_at
  FROM events e
  LEFT JOIN departments d ON d.id = e.department_id`

func scanEvent(row pgx.Row) (events.Event, error) {
	var (
		e          events.Event
		category   string
		department *string
		createdBy  *string
	)
	err := row.Scan(
		&e.ID, &e.Title, &e.DescriptionHTML, &category, &department, &e.DepartmentName,
		&e.Location, &e.StartsAt, &e.EndsAt, &e.AllDay, &e.Capacity, &e.RegistrationOpen,
		&e.RegisteredCount,
		&e.ImageURL, &e.RRule, &e.Published, &createdBy, &e.CreatedAt, &e.UpdatedAt,
	)
	e.Category = events.Category(category)
	e.DepartmentID = derefString(department)
	e.CreatedBy = derefString(createdBy)
	return e, err
}

// escapeLike escapes LIKE wildcards in user search input.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// eventConditions builds the WHERE clause for f. The range filter keeps
// events overlapping [From, To); open-ended events end where Event.End
// says: a day after the start when all-day, otherwise two hours.
func eventConditions(f events.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.From != nil {
		add("COALESCE(e.ends_at, e.starts_at + CASE WHEN e.all_day THEN interval '1 day' ELSE interval '2 hours' END) > $%d", *f.From)
	}
	if f.To != nil {
		add("e.starts_at < $%d", *f.To)
	}
	if f.DepartmentID != "" {
		add("e.department_id = $%d", f.DepartmentID)
	}
	if f.Category != "" {
		add("e.category = $%d", string(f.Category))
	}
	if f.Published != nil {
		add("e.published = $%d", *f.Published)
	}
	if f.Query != "" {
		pattern := "%" + escapeLike(f.Query) + "%"
		args = append(args, pattern)
		n := len(args)
		conds = append(conds, fmt.Sprintf("(e.title ILIKE $%d OR e.location ILIKE $%d)", n, n))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *EventRepository) List(ctx context.Context, f events.Filter) (list []events.Event, total int, err error) {
	defer observe("events.list", time.Now(), &err)
	where, args := eventConditions(f)

	if err = r.queryer().QueryRow(ctx, `SELECT count(*) FROM events e`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := r.queryer().Query(ctx, fmt.Sprintf(`%s%s ORDER BY e.starts_at, e.id LIMIT $%d OFFSET $%d`,
		eventSelect, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan event: %w", err)
		}
		list = append(list, e)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate events: %w", err)
	}
	return list, total, nil
}

func (r *EventRepository) Get(ctx context.Context, id string) (e events.Event, err error) {
	defer observe("events.get", time.Now(), &err)
	e, err = scanEvent(r.queryer().QueryRow(ctx, eventSelect+` WHERE e.id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return events.Event{}, events.ErrNotFound
		}
		return events.Event{}, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func mapEventWriteError(op string, err error) error {
	if name, ok := constraintViolation(err, codeForeignKeyViolation); ok && name == "events_department_id_fkey" {
		return events.ErrUnknownDepartment
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (r *EventRepository) Create(ctx context.Context, e events.Event) (err error) {
	defer observe("events.create", time.Now(), &err)
	_, err = r.queryer().Exec(ctx, `
INSERT INTO events (id, title, description_html, category, department_id, location, starts_at, ends_at,
                    all_day, capacity, registration_open, image_url, rrule, published, created_by,
                    created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
`, e.ID, e.Title, e.DescriptionHTML, string(e.Category), nullString(e.DepartmentID), e.Location, e.StartsAt, e.EndsAt,
		e.AllDay, e.Capacity, e.RegistrationOpen, e.ImageURL, e.RRule, e.Published, nullString(e.CreatedBy),
		e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return mapEventWriteError("create event", err)
	}
	return nil
}

func (r *EventRepository) Update(ctx context.Context, e events.Event) (err error) {
	defer observe("events.update", time.Now(), &err)
	tag, err := r.queryer().Exec(ctx, `
UPDATE events
   SET title = $2, description_html = $3, category = $4, department_id = $5, location = $6,
       starts_at = $7, ends_at = $8, all_day = $9, capacity = $10, registration_open = $11,
       image_url = $12, rrule = $13, published = $14, updated_at = $15
 WHERE id = $1
`, e.ID, e.Title, e.DescriptionHTML, string(e.Category), nullString(e.DepartmentID), e.Location,
		e.StartsAt, e.EndsAt, e.AllDay, e.Capacity, e.RegistrationOpen,
		e.ImageURL, e.RRule, e.Published, e.UpdatedAt)
	if err != nil {
		return mapEventWriteError("update event", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrNotFound
	}
	return nil
}

func (r *EventRepository) Delete(ctx context.Context, id string) (err error) {
	defer observe("events.delete", time.Now(), &err)
	tag, err := r.queryer().Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrNotFound
	}
	return nil
}

func (r *EventRepository) ListRecurring(ctx context.Context, before time.Time) (list []events.Event, err error) {
	defer observe("events.list_recurring", time.Now(), &err)
	rows, err := r.queryer().Query(ctx, eventSelect+`
 WHERE e.rrule <> '' AND e.published AND e.starts_at < $1
 ORDER BY e.starts_at`, before)
	if err != nil {
		return nil, fmt.Errorf("list recurring events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		list = append(list, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recurring events: %w", err)
	}
	return list, nil
}

const registrationColumns = `id, event_id, name, email, phone, note, status, reminder_sent_at, created_at, cancelled_at`

func scanRegistration(row pgx.Row) (events.Registration, error) {
	var (
		reg    events.Registration
		status string
	)
	err := row.Scan(&reg.ID, &reg.EventID, &reg.Name, &reg.Email, &reg.Phone, &reg.Note, &status, &reg.ReminderSentAt, &reg.CreatedAt, &reg.CancelledAt)
	reg.Status = events.RegistrationStatus(status)
	return reg, err
}

// Register locks the event row so concurrent sign-ups cannot exceed the
// capacity.
func (r *EventRepository) Register(ctx context.Context, reg events.Registration) (out events.Registration, err error) {
	defer observe("events.register", time.Now(), &err)
	err = withTx(ctx, r.pool, func(tx pgx.Tx) error {
		var capacity int
		err := tx.QueryRow(ctx, `SELECT capacity FROM events WHERE id = $1 FOR UPDATE`, reg.EventID).Scan(&capacity)
		if err != nil {
			if isNoRows(err) {
				return events.ErrNotFound
			}
			return fmt.Errorf("lock event: %w", err)
		}
		if capacity > 0 {
			var taken int
			err := tx.QueryRow(ctx, `
SELECT count(*) FROM event_registrations WHERE event_id = $1 AND status = 'confirmed'
`, reg.EventID).Scan(&taken)
			if err != nil {
				return fmt.Errorf("count registrations: %w", err)
			}
			if taken >= capacity {
				return events.ErrEventFull
			}
		}
		out, err = scanRegistration(tx.QueryRow(ctx, `
INSERT INTO event_registrations (id, event_id, name, email, phone, note, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+registrationColumns,
			reg.ID, reg.EventID, reg.Name, reg.Email, reg.Phone, reg.Note, string(reg.Status), reg.CreatedAt))
		if err != nil {
			if name, ok := constraintViolation(err, codeUniqueViolation); ok && name == "event_registrations_active_email_key" {
				return events.ErrAlreadyRegistered
			}
			return fmt.Errorf("insert registration: %w", err)
		}
		return nil
	})
	if err != nil {
		return events.Registration{}, err
	}
	return out, nil
}

func (r *EventRepository) GetRegistration(ctx context.Context, id string) (reg events.Registration, err error) {
	defer observe("events.get_registration", time.Now(), &err)
	reg, err = scanRegistration(r.queryer().QueryRow(ctx, `SELECT `+registrationColumns+` FROM event_registrations WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return events.Registration{}, events.ErrRegistrationNotFound
		}
		return events.Registration{}, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

func (r *EventRepository) CancelRegistration(ctx context.Context, eventID, registrationID string, at time.Time) (err error) {
	defer observe("events.cancel_registration", time.Now(), &err)
	tag, err := r.queryer().Exec(ctx, `
UPDATE event_registrations
   SET status = 'cancelled', cancelled_at = $3
 WHERE id = $1 AND event_id = $2 AND status = 'confirmed'
`, registrationID, eventID, at)
	if err != nil {
		return fmt.Errorf("cancel registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrRegistrationNotFound
	}
	return nil
}

func (r *EventRepository) ListRegistrations(ctx context.Context, eventID string) (list []events.Registration, err error) {
	defer observe("events.list_registrations", time.Now(), &err)
	rows, err := r.queryer().Query(ctx, `
SELECT `+registrationColumns+`
  FROM event_registrations
 WHERE event_id = $1
 ORDER BY created_at, id
`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		list = append(list, reg)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrations: %w", err)
	}
	return list, nil
}

func (r *EventRepository) ListReminderDue(ctx context.Context, from, to time.Time) (list []events.Reminder, err error) {
	defer observe("events.list_reminder_due", time.Now(), &err)
	rows, err := r.queryer().Query(ctx, `
SELECT er.id
  FROM event_registrations er
  JOIN events e ON e.id = er.event_id
 WHERE er.status = 'confirmed'
   AND er.reminder_sent_at IS NULL
   AND e.published
   AND e.starts_at >= $1 AND e.starts_at < $2
 ORDER BY e.starts_at, er.id
`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect due reminders: %w", err)
	}

	byEvent := map[string]events.Event{}
	for _, id := range ids {
		reg, err := r.GetRegistration(ctx, id)
		if err != nil {
			return nil, err
		}
		e, ok := byEvent[reg.EventID]
		if !ok {
			if e, err = r.Get(ctx, reg.EventID); err != nil {
				return nil, err
			}
			byEvent[reg.EventID] = e
		}
		list = append(list, events.Reminder{Registration: reg, Event: e})
	}
	return list, nil
}

func (r *EventRepository) MarkReminderSent(ctx context.Context, registrationID string, at time.Time) (err error) {
	defer observe("events.mark_reminder_sent", time.Now(), &err)
	tag, err := r.queryer().Exec(ctx, `UPDATE event_registrations SET reminder_sent_at = $2 WHERE id = $1`, registrationID, at)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrRegistrationNotFound
	}
	return nil
}
