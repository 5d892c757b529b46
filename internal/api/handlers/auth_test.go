package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/clubsite/server/internal/api/middleware"
	"github.com/clubsite/server/internal/audit"
	"github.com/clubsite/server/internal/auth"
	"github.com/clubsite/server/internal/domain/departments"
	"github.com/clubsite/server/internal/domain/events"
	"github.com/clubsite/server/internal/domain/users"
	"github.com/clubsite/server/internal/validation"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newAuthHandler(creds Credentials) (*AuthHandler, *auth.JWTManager) {
	tokens := auth.NewJWTManager("0123456789abcdef0123456789abcdef", time.Hour, "clubsite")
	return NewAuthHandler(creds, tokens, audit.NewLoggerWithZerolog(zerolog.Nop()), true, "test"), tokens
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			return c
		}
	}
	return nil
}

func TestLoginIssuesTokenAndCookie(t *testing.T) {
	svc := &mockUsers{}
	svc.On("Authenticate", mock.Anything, "selin", "doğru-parola").
		Return(users.User{ID: userID, Username: "selin", Email: "selin@example.org", Role: auth.RoleAdmin}, nil)
	h, tokens := newAuthHandler(svc)

	rec := httptest.NewRecorder()
	h.Login(rec, jsonRequest(t, http.MethodPost, "/api/v1/auth/login", loginRequest{Username: "selin", Password: "doğru-parola"}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[loginResponse](t, rec)
	assert.Equal(t, auth.RoleAdmin, resp.User.Role)

	claims, err := tokens.Validate(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.Subject)

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.Equal(t, resp.Token, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
}

func TestLoginFailures(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		user       users.User
		err        error
		wantStatus int
	}{
		{"missing fields", loginRequest{Username: "selin"}, users.User{}, nil, http.StatusBadRequest},
		{"bad credentials", loginRequest{Username: "selin", Password: "yanlış"}, users.User{}, users.ErrInvalidCredentials, http.StatusUnauthorized},
		{"member role", loginRequest{Username: "ali", Password: "parola"}, users.User{ID: userID, Username: "ali", Role: auth.RoleMember}, nil, http.StatusForbidden},
		{"malformed", "{", users.User{}, nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockUsers{}
			svc.On("Authenticate", mock.Anything, mock.Anything, mock.Anything).Return(tt.user, tt.err).Maybe()
			h, _ := newAuthHandler(svc)

			rec := httptest.NewRecorder()
			h.Login(rec, jsonRequest(t, http.MethodPost, "/api/v1/auth/login", tt.body))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Nil(t, sessionCookie(rec))
		})
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	h, _ := newAuthHandler(&mockUsers{})

	rec := httptest.NewRecorder()
	h.Logout(rec, asActor(jsonRequest(t, http.MethodPost, "/api/v1/auth/logout", nil), adminActor))

	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.Equal(t, -1, cookie.MaxAge)
}

func TestAcceptInvitation(t *testing.T) {
	svc := &mockUsers{}
	svc.On("AcceptInvitation", mock.Anything, "tok", "uzun-ve-güçlü-parola").Return(nil)
	svc.On("AcceptInvitation", mock.Anything, "old", mock.Anything).Return(users.ErrInvalidToken)
	h, _ := newAuthHandler(svc)

	rec := httptest.NewRecorder()
	h.AcceptInvitation(rec, jsonRequest(t, http.MethodPost, "/api/v1/invitations/accept", acceptInvitationRequest{Token: "tok", Password: "uzun-ve-güçlü-parola"}))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.AcceptInvitation(rec, jsonRequest(t, http.MethodPost, "/api/v1/invitations/accept", acceptInvitationRequest{Token: "old", Password: "x"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminLoginPageRedirectsToNext(t *testing.T) {
	svc := &mockUsers{}
	svc.On("Authenticate", mock.Anything, "selin", "parola").Return(users.User{ID: userID, Username: "selin", Role: auth.RoleEditor}, nil)
	authHandler, _ := newAuthHandler(svc)
	pages := NewAdminPages(newTestRenderer(t), authHandler, &mockEvents{}, &mockDepartments{}, istanbul)

	tests := []struct {
		next         string
		wantLocation string
	}{
		{"/admin/events/new", "/admin/events/new"},
		{"https://evil.example.com/", "/admin"},
		{"//evil.example.com", "/admin"},
	}
	for _, tt := range tests {
		t.Run(tt.next, func(t *testing.T) {
			form := url.Values{"username": {"selin"}, "password": {"parola"}, "next": {tt.next}}
			req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			pages.Login(rec, req)

			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			assert.NotNil(t, sessionCookie(rec))
		})
	}
}

func TestAdminLoginPageShowsError(t *testing.T) {
	svc := &mockUsers{}
	svc.On("Authenticate", mock.Anything, "selin", "yanlış").Return(users.User{}, users.ErrInvalidCredentials)
	authHandler, _ := newAuthHandler(svc)
	pages := NewAdminPages(newTestRenderer(t), authHandler, &mockEvents{}, &mockDepartments{}, istanbul)

	form := url.Values{"username": {"selin"}, "password": {"yanlış"}}
	req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	pages.Login(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Kullanıcı adı veya parola hatalı.")
	assert.Contains(t, rec.Body.String(), `value="selin"`)
}

func newAdminPages(t *testing.T, evs *mockEvents, depts *mockDepartments) *AdminPages {
	t.Helper()
	authHandler, _ := newAuthHandler(&mockUsers{})
	pages := NewAdminPages(newTestRenderer(t), authHandler, evs, depts, istanbul)
	pages.now = fixedNow
	return pages
}

func postForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return asActor(req, editorActor)
}

func TestCreateEventRedirectsToDashboard(t *testing.T) {
	evs := &mockEvents{}
	evs.On("Create", mock.Anything, editorActor, mock.MatchedBy(func(in events.Input) bool {
		return in.Title == "Bahar konseri" && in.Start == "2026-04-02T19:00" && in.Capacity == 120 && in.Published
	})).Return(events.Event{ID: eventID}, nil)
	pages := newAdminPages(t, evs, &mockDepartments{})

	rec := httptest.NewRecorder()
	pages.CreateEvent(rec, postForm("/admin/events", url.Values{
		"title":     {"Bahar konseri"},
		"category":  {"concert"},
		"start":     {"2026-04-02T19:00"},
		"end":       {"2026-04-02T21:00"},
		"capacity":  {"120"},
		"published": {"on"},
	}))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin?created="+eventID, rec.Header().Get("Location"))
	evs.AssertExpectations(t)
}

func TestCreateEventRerendersWithErrors(t *testing.T) {
	depts := &mockDepartments{}
	depts.On("List", mock.Anything).Return([]departments.Department{{ID: deptID, Name: "Fotoğraf"}}, nil)
	evs := &mockEvents{}
	evs.On("Create", mock.Anything, mock.Anything, mock.Anything).
		Return(events.Event{}, validation.Errors{"title": "Başlık gerekli."})
	pages := newAdminPages(t, evs, depts)

	t.Run("form encoding", func(t *testing.T) {
		rec := httptest.NewRecorder()
		pages.CreateEvent(rec, postForm("/admin/events", url.Values{"title": {"Konser"}, "capacity": {"çok"}}))

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "Kontenjan bir sayı olmalı.")
		assert.Contains(t, rec.Body.String(), `value="Konser"`)
		evs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("service validation", func(t *testing.T) {
		rec := httptest.NewRecorder()
		pages.CreateEvent(rec, postForm("/admin/events", url.Values{"start": {"2026-04-02T19:00"}}))

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "Başlık gerekli.")
		assert.Contains(t, rec.Body.String(), "Fotoğraf")
	})
}

func TestNewEventKeepsPickerStateAcrossRoundTrips(t *testing.T) {
	depts := &mockDepartments{}
	depts.On("List", mock.Anything).Return([]departments.Department{}, nil)
	pages := newAdminPages(t, &mockEvents{}, depts)

	req := httptest.NewRequest(http.MethodGet, "/admin/events/new?title=Konser&dp_action=select:2026-03-20", nil)
	rec := httptest.NewRecorder()
	pages.NewEvent(rec, asActor(req, editorActor))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `value="Konser"`)
	assert.Contains(t, body, "2026-03-20")
}

func TestNewEventPostedPickerActionKeepsFormFields(t *testing.T) {
	depts := &mockDepartments{}
	depts.On("List", mock.Anything).Return([]departments.Department{}, nil)
	pages := newAdminPages(t, &mockEvents{}, depts)

	description := strings.Repeat("<p>Program</p>", 4000)
	form := url.Values{
		"title":            {"Bahar konseri"},
		"description_html": {description},
		"location":         {"Kültür Merkezi"},
		"capacity":         {"120"},
		"dp_open":          {"1"},
		"dp_month":         {"2026-03-01"},
		"dp_action":        {"select:2026-03-20"},
	}
	rec := httptest.NewRecorder()
	pages.NewEvent(rec, postForm("/admin/events/new", form))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `value="Bahar konseri"`)
	assert.Contains(t, body, `value="Kültür Merkezi"`)
	assert.Contains(t, body, `value="120"`)
	assert.Contains(t, body, "&lt;p&gt;Program&lt;/p&gt;")
	assert.Contains(t, body, `name="start" value="2026-03-20`)
	assert.Contains(t, body, `formmethod="post"`)
	assert.NotContains(t, body, `formmethod="get"`)
}

func TestDashboardShowsCreatedNotice(t *testing.T) {
	evs := &mockEvents{}
	evs.On("ListAdmin", mock.Anything, editorActor, events.Filter{Limit: dashboardEvents}).
		Return([]events.Event{{ID: eventID, Title: "Bahar konseri"}}, 1, nil)
	pages := newAdminPages(t, evs, &mockDepartments{})

	req := httptest.NewRequest(http.MethodGet, "/admin?created="+eventID, nil)
	rec := httptest.NewRecorder()
	pages.Dashboard(rec, asActor(req, editorActor))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Etkinlik oluşturuldu")
	assert.Contains(t, rec.Body.String(), "Bahar konseri")
}
