// Package email renders and delivers the site's transactional mail:
// editor invitations, registration confirmations and event reminders.
package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/clubsite/server/internal/config"
	"github.com/clubsite/server/internal/datepicker"
	"github.com/clubsite/server/internal/metrics"
	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	templateInvitation   = "invitation.html"
	templateConfirmation = "registration_confirmation.html"
	templateReminder     = "event_reminder.html"
)

// Service handles email sending with SMTP or Resend.
type Service struct {
	config       config.EmailConfig
	provider     string
	siteName     string
	resendClient *resend.Client
	templates    *template.Template
	logger       zerolog.Logger
	now          func() time.Time
	// transport replaces the provider in tests.
	transport func(ctx context.Context, to, subject, htmlBody string) error
}

// NewService parses the embedded templates and prepares the provider.
func NewService(cfg config.EmailConfig, siteName string, logger zerolog.Logger) (*Service, error) {
	if cfg.Enabled {
		if err := validateEmailAddress(cfg.From); err != nil {
			return nil, fmt.Errorf("invalid sender email in config: %w", err)
		}
	}

	templates, err := template.New("").Funcs(template.FuncMap{
		"longDate": func(t time.Time, withTime bool) string { return datepicker.FormatLong(t, "tr", withTime) },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "smtp"
	}

	s := &Service{
		config:    cfg,
		provider:  provider,
		siteName:  siteName,
		templates: templates,
		logger:    logger.With().Str("component", "email").Logger(),
		now:       time.Now,
	}
	switch provider {
	case "resend":
		if cfg.Enabled && cfg.ResendAPIKey == "" {
			return nil, fmt.Errorf("resend provider requires an API key")
		}
		s.resendClient = resend.NewClient(cfg.ResendAPIKey)
	case "smtp":
	default:
		return nil, fmt.Errorf("unsupported email provider %q", cfg.Provider)
	}
	return s, nil
}

type InvitationData struct {
	SiteName    string
	InvitedBy   string
	InviteLink  string
	CurrentYear int
}

// SendInvitation sends an invitation email to a new editor.
func (s *Service) SendInvitation(ctx context.Context, to, inviteLink, invitedBy string) error {
	if err := validateLink(inviteLink); err != nil {
		return fmt.Errorf("invalid invite link: %w", err)
	}
	data := InvitationData{
		SiteName:    s.siteName,
		InvitedBy:   invitedBy,
		InviteLink:  inviteLink,
		CurrentYear: s.now().Year(),
	}
	return s.deliver(ctx, templateInvitation, to, s.siteName+" yönetim paneline davet edildiniz", data)
}

// Registration describes an event sign-up for confirmation and reminder
// emails.
type Registration struct {
	To         string
	Name       string
	EventTitle string
	StartsAt   time.Time
	AllDay     bool
	Location   string
	EventLink  string
	CancelLink string
}

type registrationData struct {
	Registration
	SiteName    string
	CurrentYear int
}

func (s *Service) SendRegistrationConfirmation(ctx context.Context, r Registration) error {
	if err := validateLink(r.CancelLink); err != nil {
		return fmt.Errorf("invalid cancel link: %w", err)
	}
	subject := "Kaydınız alındı: " + r.EventTitle
	return s.deliver(ctx, templateConfirmation, r.To, subject, registrationData{r, s.siteName, s.now().Year()})
}

func (s *Service) SendEventReminder(ctx context.Context, r Registration) error {
	if err := validateLink(r.EventLink); err != nil {
		return fmt.Errorf("invalid event link: %w", err)
	}
	subject := "Hatırlatma: " + r.EventTitle
	return s.deliver(ctx, templateReminder, r.To, subject, registrationData{r, s.siteName, s.now().Year()})
}

func (s *Service) deliver(ctx context.Context, name, to, subject string, data any) error {
	if err := validateEmailAddress(to); err != nil {
		return fmt.Errorf("invalid recipient email: %w", err)
	}

	if !s.config.Enabled && s.transport == nil {
		s.logger.Info().
			Str("to", to).
			Str("template", name).
			Msg("email service disabled, skipping email")
		metrics.EmailsSent.WithLabelValues(name, s.provider, "skipped").Inc()
		return nil
	}

	htmlBody, err := s.renderTemplate(name, data)
	if err != nil {
		return err
	}

	send := s.transport
	if send == nil {
		switch s.provider {
		case "resend":
			send = s.sendViaResend
		default:
			send = s.sendViaSMTP
		}
	}
	if err := send(ctx, to, subject, htmlBody); err != nil {
		metrics.EmailsSent.WithLabelValues(name, s.provider, "error").Inc()
		return fmt.Errorf("send %s: %w", name, err)
	}

	metrics.EmailsSent.WithLabelValues(name, s.provider, "ok").Inc()
	s.logger.Info().
		Str("to", to).
		Str("template", name).
		Msg("email sent")
	return nil
}

// validateEmailAddress validates an email address for format and header injection attempts
func validateEmailAddress(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}
	if strings.ContainsAny(addr.Address, "\r\n") {
		return fmt.Errorf("invalid email address: contains newline characters")
	}
	return nil
}

// validateLink accepts absolute http(s) URLs only, so a link in a mail
// body can never carry javascript: or data: payloads.
func validateLink(link string) error {
	u, err := url.Parse(link)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (must be http or https)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

func (s *Service) renderTemplate(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}
	return buf.String(), nil
}
