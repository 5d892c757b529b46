package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/clubsite/server/internal/api/middleware"
	"github.com/clubsite/server/internal/api/render"
	"github.com/clubsite/server/internal/auth"
	"github.com/clubsite/server/internal/datepicker"
	"github.com/clubsite/server/internal/domain/departments"
	"github.com/clubsite/server/internal/domain/events"
	"github.com/clubsite/server/internal/domain/ids"
	"github.com/clubsite/server/internal/domain/users"
	"github.com/clubsite/server/internal/validation"
)

const dashboardEvents = 50

// AdminEventWriter is the slice of events.Service the back office pages use.
type AdminEventWriter interface {
	ListAdmin(ctx context.Context, actor auth.Actor, f events.Filter) ([]events.Event, int, error)
	Create(ctx context.Context, actor auth.Actor, in events.Input) (events.Event, error)
}

// AdminPages serves the HTML back office.
type AdminPages struct {
	renderer    *render.Renderer
	auth        *AuthHandler
	events      AdminEventWriter
	departments DepartmentReader
	loc         *time.Location
	now         func() time.Time
}

func NewAdminPages(renderer *render.Renderer, authHandler *AuthHandler, evs AdminEventWriter, depts DepartmentReader, loc *time.Location) *AdminPages {
	if loc == nil {
		loc = time.UTC
	}
	return &AdminPages{renderer: renderer, auth: authHandler, events: evs, departments: depts, loc: loc, now: time.Now}
}

func (h *AdminPages) page(r *http.Request, title string, data any) render.Page {
	return render.Page{
		Title:     title,
		Admin:     true,
		Actor:     middleware.ActorFrom(r.Context()),
		CSRFField: middleware.CSRFFieldName,
		CSRFToken: middleware.CSRFToken(r),
		Data:      data,
	}
}

type loginView struct {
	Next     string
	Username string
	Error    string
}

// LoginForm serves GET /admin/login. Signed-in users go straight on.
func (h *AdminPages) LoginForm(w http.ResponseWriter, r *http.Request) {
	next := localRedirect(r.URL.Query().Get("next"), "/admin")
	if actor := middleware.ActorFrom(r.Context()); !actor.IsZero() && actor.Role.Can(auth.PermViewAdmin) {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	h.renderer.HTML(w, r, http.StatusOK, "admin_login", h.page(r, "Giriş", loginView{Next: next}))
}

// Login serves POST /admin/login.
func (h *AdminPages) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.HTML(w, r, http.StatusBadRequest, "admin_login", h.page(r, "Giriş", loginView{Error: "Form okunamadı."}))
		return
	}
	view := loginView{
		Next:     localRedirect(r.PostForm.Get("next"), "/admin"),
		Username: strings.TrimSpace(r.PostForm.Get("username")),
	}

	s, err := h.auth.signIn(r, view.Username, r.PostForm.Get("password"))
	switch {
	case err == nil:
		middleware.SetSessionCookie(w, s.token, h.auth.tokens.Expiry(), h.auth.secure)
		http.Redirect(w, r, view.Next, http.StatusSeeOther)
	case errors.Is(err, users.ErrInvalidCredentials):
		view.Error = "Kullanıcı adı veya parola hatalı."
		h.renderer.HTML(w, r, http.StatusUnauthorized, "admin_login", h.page(r, "Giriş", view))
	case errors.Is(err, errNoAdminAccess):
		view.Error = "Yönetim paneline erişim yetkiniz yok."
		h.renderer.HTML(w, r, http.StatusForbidden, "admin_login", h.page(r, "Giriş", view))
	default:
		renderErrorPage(h.renderer, w, r, err, true)
	}
}

// Logout serves POST /admin/logout.
func (h *AdminPages) Logout(w http.ResponseWriter, r *http.Request) {
	h.auth.signOut(w, r)
	http.Redirect(w, r, middleware.LoginPath, http.StatusSeeOther)
}

type dashboardView struct {
	Events  []events.Event
	Total   int
	Created string
}

// Dashboard serves GET /admin.
func (h *AdminPages) Dashboard(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFrom(r.Context())
	list, total, err := h.events.ListAdmin(r.Context(), actor, events.Filter{Limit: dashboardEvents})
	if err != nil {
		renderErrorPage(h.renderer, w, r, err, true)
		return
	}
	view := dashboardView{Events: list, Total: total}
	if created, err := ids.NormalizeULID(r.URL.Query().Get("created")); err == nil {
		view.Created = created
	}
	h.renderer.HTML(w, r, http.StatusOK, "admin_dashboard", h.page(r, "Panel", view))
}

type eventFormView struct {
	Form        events.Input
	Errors      validation.Errors
	Message     string
	Categories  []events.Category
	Departments []departments.Department
	Picker      pickerView
}

const eventFormPath = "/admin/events/new"

// NewEvent serves GET and POST /admin/events/new. The date picker's
// buttons post the whole form back here with dp_action set, so every field
// survives the round trip without leaving the request body.
func (h *AdminPages) NewEvent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			renderErrorPage(h.renderer, w, r, err, true)
			return
		}
		q = r.PostForm
	}
	// Field errors of a half-filled form are only reported on submit.
	in, _ := eventInputFromForm(q)
	if len(q) == 0 {
		in.Category = string(events.CategoryOther)
	}

	session, err := restorePicker(h.eventPickerProps(in, nil), q)
	if err == nil {
		err = session.apply(q.Get(paramAction), q)
	}
	if err != nil {
		renderErrorPage(h.renderer, w, r, err, true)
		return
	}
	h.renderEventForm(w, r, http.StatusOK, in, nil, "", session)
}

// CreateEvent serves POST /admin/events.
func (h *AdminPages) CreateEvent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		renderErrorPage(h.renderer, w, r, err, true)
		return
	}
	in, errs := eventInputFromForm(r.PostForm)

	var createErr error
	if len(errs) > 0 {
		createErr = errs
	} else {
		var e events.Event
		e, createErr = h.events.Create(r.Context(), middleware.ActorFrom(r.Context()), in)
		if createErr == nil {
			http.Redirect(w, r, "/admin?created="+url.QueryEscape(e.ID), http.StatusSeeOther)
			return
		}
	}

	status := http.StatusUnprocessableEntity
	message := "Lütfen işaretli alanları düzeltin."
	fieldErrs, ok := validation.AsErrors(createErr)
	switch {
	case ok:
	case errors.Is(createErr, events.ErrUnknownDepartment):
		fieldErrs = validation.Errors{"department_id": "Birim bulunamadı."}
	case errors.Is(createErr, events.ErrInvalidCategory):
		fieldErrs = validation.Errors{"category": "Kategori geçersiz."}
	default:
		renderErrorPage(h.renderer, w, r, createErr, true)
		return
	}

	session, err := restorePicker(h.eventPickerProps(in, fieldErrs), r.PostForm)
	if err != nil {
		renderErrorPage(h.renderer, w, r, err, true)
		return
	}
	h.renderEventForm(w, r, status, in, fieldErrs, message, session)
}

func (h *AdminPages) renderEventForm(w http.ResponseWriter, r *http.Request, status int, in events.Input, errs validation.Errors, message string, session *pickerSession) {
	depts, err := h.departments.List(r.Context())
	if err != nil {
		renderErrorPage(h.renderer, w, r, err, true)
		return
	}
	view := eventFormView{
		Form:        in,
		Errors:      errs,
		Message:     message,
		Categories:  events.Categories,
		Departments: depts,
		Picker:      session.view(eventFormPath, false),
	}
	view.Picker.Method = "post"
	h.renderer.HTML(w, r, status, "admin_event_form", h.page(r, "Yeni etkinlik", view))
}

// eventPickerProps configures the start/end range picker of the event form.
// Timed events pick a time of day; all-day events pick dates only.
func (h *AdminPages) eventPickerProps(in events.Input, errs validation.Errors) datepicker.Props {
	props := datepicker.Props{
		Mode:            datepicker.ModeRange,
		ShowTime:        !in.AllDay,
		AutoFillEndDate: true,
		Required:        true,
		Label:           "Tarih",
		Locale:          h.renderer.Site().Locale,
		Location:        h.loc,
		Now:             h.now,
	}
	if msg := errs["start"]; msg != "" {
		props.Error = msg
	} else if msg := errs["end"]; msg != "" {
		props.Error = msg
	}
	return props
}

// eventInputFromForm maps form values onto events.Input. Only values the
// form encoding itself cannot express, such as a non-numeric capacity,
// are reported here; everything else is validated by the service.
func eventInputFromForm(v url.Values) (events.Input, validation.Errors) {
	in := events.Input{
		Title:            v.Get("title"),
		Description:      v.Get("description_html"),
		Category:         v.Get("category"),
		DepartmentID:     strings.TrimSpace(v.Get("department_id")),
		Location:         v.Get("location"),
		Start:            v.Get("start"),
		End:              v.Get("end"),
		AllDay:           flag(v.Get("all_day")),
		RegistrationOpen: flag(v.Get("registration_open")),
		ImageURL:         strings.TrimSpace(v.Get("image_url")),
		RRule:            strings.TrimSpace(v.Get("rrule")),
		Published:        flag(v.Get("published")),
	}
	errs := validation.Errors{}
	if raw := strings.TrimSpace(v.Get("capacity")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			errs.Add("capacity", "Kontenjan bir sayı olmalı.")
		}
		in.Capacity = n
	}
	return in, errs
}
