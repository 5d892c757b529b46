package email

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clubsite/server/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	to, subject, body string
}

func newTestService(t *testing.T) (*Service, *[]sentMail) {
	t.Helper()
	svc, err := NewService(config.EmailConfig{Enabled: true, Provider: "smtp", From: "Kulüp <noreply@kulup.org>"}, "Kültür Kulübü", zerolog.Nop())
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC) }

	var sent []sentMail
	svc.transport = func(_ context.Context, to, subject, body string) error {
		sent = append(sent, sentMail{to, subject, body})
		return nil
	}
	return svc, &sent
}

func TestSendInvitation(t *testing.T) {
	svc, sent := newTestService(t)

	err := svc.SendInvitation(context.Background(), "editor@example.com", "https://kulup.org/accept-invitation?token=abc", "yonetici")
	require.NoError(t, err)

	require.Len(t, *sent, 1)
	mail := (*sent)[0]
	assert.Equal(t, "editor@example.com", mail.to)
	assert.Contains(t, mail.subject, "Kültür Kulübü")
	assert.Contains(t, mail.body, "<strong>yonetici</strong>")
	assert.Contains(t, mail.body, `href="https://kulup.org/accept-invitation?token=abc"`)
	assert.Contains(t, mail.body, "&copy; 2025 Kültür Kulübü")
}

func TestSendRegistrationConfirmation(t *testing.T) {
	svc, sent := newTestService(t)
	loc := time.FixedZone("TRT", 3*60*60)

	err := svc.SendRegistrationConfirmation(context.Background(), Registration{
		To:         "ayse@example.com",
		Name:       "Ayşe <script>",
		EventTitle: "Bahar Konseri",
		StartsAt:   time.Date(2025, time.June, 15, 19, 30, 0, 0, loc),
		Location:   "Kültür Merkezi",
		EventLink:  "https://kulup.org/events/01JX",
		CancelLink: "https://kulup.org/events/01JX/registrations/01JY/cancel?email=ayse%40example.com",
	})
	require.NoError(t, err)

	require.Len(t, *sent, 1)
	body := (*sent)[0].body
	assert.Equal(t, "Kaydınız alındı: Bahar Konseri", (*sent)[0].subject)
	assert.Contains(t, body, "15 Haziran 2025 19:30")
	assert.Contains(t, body, "Ayşe &lt;script&gt;")
	assert.Contains(t, body, "Kültür Merkezi")
}

func TestSendEventReminderAllDay(t *testing.T) {
	svc, sent := newTestService(t)

	err := svc.SendEventReminder(context.Background(), Registration{
		To:         "ali@example.com",
		Name:       "Ali",
		EventTitle: "Doğa Yürüyüşü",
		StartsAt:   time.Date(2025, time.June, 20, 0, 0, 0, 0, time.UTC),
		AllDay:     true,
		EventLink:  "https://kulup.org/events/01JX",
	})
	require.NoError(t, err)

	body := (*sent)[0].body
	assert.Contains(t, body, "20 Haziran 2025<")
	assert.NotContains(t, body, "kaydımı iptal et")
}

func TestRejectsUnsafeInput(t *testing.T) {
	svc, sent := newTestService(t)
	ctx := context.Background()

	assert.Error(t, svc.SendInvitation(ctx, "editor@example.com", "javascript:alert(1)", "x"))
	assert.Error(t, svc.SendInvitation(ctx, "victim@example.com\r\nBcc: attacker@evil.com", "https://kulup.org/x", "x"))
	assert.Error(t, svc.SendRegistrationConfirmation(ctx, Registration{To: "a@example.com", CancelLink: "/relative"}))
	assert.Empty(t, *sent)
}

func TestTransportErrorIsWrapped(t *testing.T) {
	svc, _ := newTestService(t)
	boom := errors.New("connection refused")
	svc.transport = func(context.Context, string, string, string) error { return boom }

	err := svc.SendInvitation(context.Background(), "editor@example.com", "https://kulup.org/x", "x")
	assert.ErrorIs(t, err, boom)
}

func TestDisabledServiceSkips(t *testing.T) {
	svc, err := NewService(config.EmailConfig{Enabled: false}, "Kulüp", zerolog.Nop())
	require.NoError(t, err)

	assert.NoError(t, svc.SendInvitation(context.Background(), "editor@example.com", "https://kulup.org/x", "x"))
}

func TestNewServiceValidatesConfig(t *testing.T) {
	_, err := NewService(config.EmailConfig{Enabled: true, From: "not-an-email"}, "Kulüp", zerolog.Nop())
	assert.Error(t, err)

	_, err = NewService(config.EmailConfig{Enabled: true, From: "a@example.com", Provider: "resend"}, "Kulüp", zerolog.Nop())
	assert.Error(t, err)

	_, err = NewService(config.EmailConfig{Enabled: true, From: "a@example.com", Provider: "carrier-pigeon"}, "Kulüp", zerolog.Nop())
	assert.Error(t, err)
}

func TestValidateEmailAddress(t *testing.T) {
	tests := []struct {
		email string
		valid bool
	}{
		{"user@example.com", true},
		{"user+tag@example.co.uk", true},
		{"User Name <user@example.com>", true},
		{"", false},
		{"notanemail", false},
		{"user@", false},
		{"user@@example.com", false},
		{"test@example.com\nCc: hacker@evil.com", false},
		{"user@domain.com\r\nSubject: Phishing", false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			err := validateEmailAddress(tt.email)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateLink(t *testing.T) {
	for _, link := range []string{
		"https://example.com/invite?token=abc123",
		"http://example.com:8080/invite",
		"https://[::1]/invite",
	} {
		assert.NoError(t, validateLink(link), link)
	}
	for _, link := range []string{
		"javascript:alert('xss')",
		"data:text/html,<script>alert('xss')</script>",
		"//example.com/invite",
		"/path/to/invite",
		"https://",
		"",
	} {
		assert.Error(t, validateLink(link), link)
	}
}
