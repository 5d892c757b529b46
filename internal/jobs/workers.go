package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/clubsite/server/internal/domain/events"
	"github.com/clubsite/server/internal/email"
	"github.com/riverqueue/river"
)

// RegistrationSource is the slice of events.Service the email workers use.
type RegistrationSource interface {
	GetRegistration(ctx context.Context, id string) (events.Registration, events.Event, error)
	RemindersDue(ctx context.Context, lead time.Duration) ([]events.Reminder, error)
	MarkReminderSent(ctx context.Context, registrationID string) error
}

// RegistrationMailer is implemented by email.Service.
type RegistrationMailer interface {
	SendRegistrationConfirmation(ctx context.Context, r email.Registration) error
	SendEventReminder(ctx context.Context, r email.Registration) error
}

// InvitationCleaner is implemented by users.Service.
type InvitationCleaner interface {
	CleanupInvitations(ctx context.Context) (int64, error)
}

// Links builds absolute public URLs placed in emails.
type Links struct {
	BaseURL string
}

func (l Links) Event(eventID string) string {
	return strings.TrimRight(l.BaseURL, "/") + "/events/" + url.PathEscape(eventID)
}

// Cancel points at the public form where attendees confirm cancellation
// with their email address.
func (l Links) Cancel(eventID, registrationID string) string {
	return l.Event(eventID) + "/cancel?registration=" + url.QueryEscape(registrationID)
}

func (l Links) message(r events.Registration, e events.Event) email.Registration {
	return email.Registration{
		To:         r.Email,
		Name:       r.Name,
		EventTitle: e.Title,
		StartsAt:   e.StartsAt,
		AllDay:     e.AllDay,
		Location:   e.Location,
		EventLink:  l.Event(e.ID),
		CancelLink: l.Cancel(e.ID, r.ID),
	}
}

// RegistrationConfirmationArgs queues the confirmation email for one registration.
type RegistrationConfirmationArgs struct {
	RegistrationID string `json:"registration_id"`
}

func (RegistrationConfirmationArgs) Kind() string { return JobKindRegistrationConfirmation }

type RegistrationConfirmationWorker struct {
	river.WorkerDefaults[RegistrationConfirmationArgs]
	Registrations RegistrationSource
	Mailer        RegistrationMailer
	Links         Links
	Logger        *slog.Logger
}

func (RegistrationConfirmationWorker) Kind() string { return JobKindRegistrationConfirmation }

func (w RegistrationConfirmationWorker) Work(ctx context.Context, job *river.Job[RegistrationConfirmationArgs]) error {
	if job == nil {
		return fmt.Errorf("registration confirmation job missing")
	}
	if w.Registrations == nil || w.Mailer == nil {
		return fmt.Errorf("registration confirmation worker not configured")
	}

	reg, event, err := w.Registrations.GetRegistration(ctx, job.Args.RegistrationID)
	if errors.Is(err, events.ErrRegistrationNotFound) || errors.Is(err, events.ErrNotFound) {
		// The registration or its event was deleted after the job was queued.
		return river.JobCancel(fmt.Errorf("registration %s: %w", job.Args.RegistrationID, err))
	}
	if err != nil {
		return fmt.Errorf("load registration %s: %w", job.Args.RegistrationID, err)
	}
	if reg.Status != events.StatusConfirmed {
		if w.Logger != nil {
			w.Logger.Info("skipping confirmation for cancelled registration", "registration_id", reg.ID)
		}
		return nil
	}

	if err := w.Mailer.SendRegistrationConfirmation(ctx, w.Links.message(reg, event)); err != nil {
		return fmt.Errorf("send confirmation for %s: %w", reg.ID, err)
	}
	return nil
}

// EventReminderArgs triggers one reminder sweep. LeadTime is how far ahead
// events are considered.
type EventReminderArgs struct {
	LeadTime time.Duration `json:"lead_time"`
}

func (EventReminderArgs) Kind() string { return JobKindEventReminder }

type EventReminderWorker struct {
	river.WorkerDefaults[EventReminderArgs]
	Registrations RegistrationSource
	Mailer        RegistrationMailer
	Links         Links
	Logger        *slog.Logger
}

func (EventReminderWorker) Kind() string { return JobKindEventReminder }

// Work sends every due reminder. A failed send leaves that registration
// unmarked so the next attempt (or sweep) picks it up again.
func (w EventReminderWorker) Work(ctx context.Context, job *river.Job[EventReminderArgs]) error {
	if job == nil {
		return fmt.Errorf("event reminder job missing")
	}
	if w.Registrations == nil || w.Mailer == nil {
		return fmt.Errorf("event reminder worker not configured")
	}

	lead := job.Args.LeadTime
	if lead <= 0 {
		lead = 24 * time.Hour
	}

	due, err := w.Registrations.RemindersDue(ctx, lead)
	if err != nil {
		return fmt.Errorf("list due reminders: %w", err)
	}

	var sent, failed int
	var errs []error
	for _, rem := range due {
		if err := w.Mailer.SendEventReminder(ctx, w.Links.message(rem.Registration, rem.Event)); err != nil {
			failed++
			errs = append(errs, fmt.Errorf("registration %s: %w", rem.Registration.ID, err))
			continue
		}
		if err := w.Registrations.MarkReminderSent(ctx, rem.Registration.ID); err != nil {
			failed++
			errs = append(errs, fmt.Errorf("mark reminder %s: %w", rem.Registration.ID, err))
			continue
		}
		sent++
	}

	if w.Logger != nil {
		w.Logger.Info("event reminders processed", "due", len(due), "sent", sent, "failed", failed)
	}
	return errors.Join(errs...)
}

// InvitationCleanupArgs removes expired, unaccepted invitations.
type InvitationCleanupArgs struct{}

func (InvitationCleanupArgs) Kind() string { return JobKindInvitationCleanup }

type InvitationCleanupWorker struct {
	river.WorkerDefaults[InvitationCleanupArgs]
	Invitations InvitationCleaner
	Logger      *slog.Logger
}

func (InvitationCleanupWorker) Kind() string { return JobKindInvitationCleanup }

func (w InvitationCleanupWorker) Work(ctx context.Context, job *river.Job[InvitationCleanupArgs]) error {
	if w.Invitations == nil {
		return fmt.Errorf("invitation cleanup worker not configured")
	}
	deleted, err := w.Invitations.CleanupInvitations(ctx)
	if err != nil {
		return fmt.Errorf("cleanup invitations: %w", err)
	}
	if w.Logger != nil && deleted > 0 {
		w.Logger.Info("expired invitations removed", "count", deleted)
	}
	return nil
}

// Dependencies wires the workers to the domain services.
type Dependencies struct {
	Registrations RegistrationSource
	Mailer        RegistrationMailer
	Invitations   InvitationCleaner
	Links         Links
	Logger        *slog.Logger
}

// NewWorkers registers every club job worker.
func NewWorkers(deps Dependencies) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker(workers, &RegistrationConfirmationWorker{
		Registrations: deps.Registrations,
		Mailer:        deps.Mailer,
		Links:         deps.Links,
		Logger:        deps.Logger,
	})
	river.AddWorker(workers, &EventReminderWorker{
		Registrations: deps.Registrations,
		Mailer:        deps.Mailer,
		Links:         deps.Links,
		Logger:        deps.Logger,
	})
	river.AddWorker(workers, &InvitationCleanupWorker{
		Invitations: deps.Invitations,
		Logger:      deps.Logger,
	})
	return workers
}
