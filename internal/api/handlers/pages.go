package handlers

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clubsite/server/internal/api/middleware"
	"github.com/clubsite/server/internal/api/render"
	"github.com/clubsite/server/internal/calendar"
	"github.com/clubsite/server/internal/cms"
	"github.com/clubsite/server/internal/datepicker"
	"github.com/clubsite/server/internal/domain/departments"
	"github.com/clubsite/server/internal/domain/events"
	"github.com/clubsite/server/internal/domain/faqs"
	"github.com/clubsite/server/internal/domain/gallery"
	"github.com/clubsite/server/internal/domain/ids"
	"github.com/clubsite/server/internal/validation"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	homeUpcoming       = 6
	homeAnnouncements  = 3
	departmentUpcoming = 20
)

// PublicEvents is the slice of events.Service the public pages use.
type PublicEvents interface {
	List(ctx context.Context, f events.Filter) ([]events.Event, int, error)
	Upcoming(ctx context.Context, limit int) ([]events.Event, error)
	Get(ctx context.Context, id string) (events.Event, error)
	Register(ctx context.Context, eventID string, in events.RegistrationInput) (events.Registration, error)
	CancelOwnRegistration(ctx context.Context, eventID, registrationID, email string) error
}

// Content is the slice of cms.Service the public pages use.
type Content interface {
	HomePage(ctx context.Context) (cms.HomePage, error)
	Announcements(ctx context.Context, limit int) ([]cms.Announcement, error)
	Albums(ctx context.Context) ([]cms.GalleryAlbum, error)
	Album(ctx context.Context, slug string) (cms.GalleryAlbum, error)
}

type DepartmentReader interface {
	List(ctx context.Context) ([]departments.Department, error)
	GetBySlug(ctx context.Context, slug string) (departments.Department, error)
}

type FAQReader interface {
	ListPublished(ctx context.Context) ([]faqs.Group, error)
}

type MediaReader interface {
	List(ctx context.Context, album string) ([]gallery.MediaItem, error)
}

type CalendarMonths interface {
	Month(ctx context.Context, month datepicker.Date) (calendar.Month, error)
}

// PublicPages serves the server-rendered public site.
type PublicPages struct {
	renderer    *render.Renderer
	events      PublicEvents
	content     Content
	departments DepartmentReader
	faqs        FAQReader
	media       MediaReader
	calendar    CalendarMonths
	loc         *time.Location
	now         func() time.Time
}

type PublicPagesDeps struct {
	Renderer    *render.Renderer
	Events      PublicEvents
	Content     Content
	Departments DepartmentReader
	FAQs        FAQReader
	Media       MediaReader
	Calendar    CalendarMonths
	Location    *time.Location
}

func NewPublicPages(deps PublicPagesDeps) *PublicPages {
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	return &PublicPages{
		renderer:    deps.Renderer,
		events:      deps.Events,
		content:     deps.Content,
		departments: deps.Departments,
		faqs:        deps.FAQs,
		media:       deps.Media,
		calendar:    deps.Calendar,
		loc:         loc,
		now:         time.Now,
	}
}

func (h *PublicPages) page(r *http.Request, title string, data any) render.Page {
	return render.Page{
		Title:     title,
		Actor:     middleware.ActorFrom(r.Context()),
		CSRFField: middleware.CSRFFieldName,
		CSRFToken: middleware.CSRFToken(r),
		Data:      data,
	}
}

type homeView struct {
	HasHome       bool
	Home          cms.HomePage
	Announcements []cms.Announcement
	Upcoming      []events.Event
}

// Home serves GET /{$}. CMS content is optional; the page still renders
// the upcoming events when the CMS is down or not configured. The three
// lookups run concurrently.
func (h *PublicPages) Home(w http.ResponseWriter, r *http.Request) {
	var view homeView
	g, ctx := errgroup.WithContext(r.Context())

	g.Go(func() error {
		upcoming, err := h.events.Upcoming(ctx, homeUpcoming)
		view.Upcoming = upcoming
		return err
	})
	if h.content != nil {
		g.Go(func() error {
			if home, err := h.content.HomePage(ctx); err == nil {
				view.HasHome, view.Home = true, home
			} else {
				logContentError(ctx, err, "home page")
			}
			return nil
		})
		g.Go(func() error {
			if items, err := h.content.Announcements(ctx, homeAnnouncements); err == nil {
				view.Announcements = items
			} else {
				logContentError(ctx, err, "announcements")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		h.renderError(w, r, err)
		return
	}

	title := ""
	if view.HasHome {
		title = view.Home.HeroTitle
	}
	h.renderer.HTML(w, r, http.StatusOK, "home", h.page(r, title, view))
}

// logContentError records a CMS failure that the page degrades around.
func logContentError(ctx context.Context, err error, what string) {
	if errors.Is(err, cms.ErrNotConfigured) || errors.Is(err, cms.ErrNotFound) {
		return
	}
	zerolog.Ctx(ctx).Warn().Err(err).Str("content", what).Msg("cms unavailable, rendering without it")
}

func (h *PublicPages) FAQ(w http.ResponseWriter, r *http.Request) {
	groups, err := h.faqs.ListPublished(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.renderer.HTML(w, r, http.StatusOK, "faq", h.page(r, "SSS", groups))
}

func (h *PublicPages) Departments(w http.ResponseWriter, r *http.Request) {
	list, err := h.departments.List(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.renderer.HTML(w, r, http.StatusOK, "departments", h.page(r, "Birimler", list))
}

type departmentView struct {
	Department departments.Department
	Events     []events.Event
}

func (h *PublicPages) Department(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d, err := h.departments.GetBySlug(ctx, r.PathValue("slug"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	from := h.now()
	list, _, err := h.events.List(ctx, events.Filter{DepartmentID: d.ID, From: &from, Limit: departmentUpcoming})
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.renderer.HTML(w, r, http.StatusOK, "department", h.page(r, d.Name, departmentView{Department: d, Events: list}))
}

type galleryView struct {
	Albums           []cms.GalleryAlbum
	Album            string
	AlbumTitle       string
	AlbumDescription string
	Items            []gallery.MediaItem
}

// Gallery serves GET /gallery?album=slug. Album titles come from the CMS
// and fall back to the slug.
func (h *PublicPages) Gallery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view := galleryView{Album: strings.TrimSpace(r.URL.Query().Get("album"))}
	if view.Album != "" && !validation.IsSlug(view.Album) {
		h.renderStatus(w, r, http.StatusNotFound, "Albüm bulunamadı.")
		return
	}

	if h.content != nil {
		if albums, err := h.content.Albums(ctx); err == nil {
			view.Albums = albums
		} else {
			logContentError(ctx, err, "albums")
		}
		if view.Album != "" {
			if album, err := h.content.Album(ctx, view.Album); err == nil {
				view.AlbumTitle, view.AlbumDescription = album.Title, album.Description
			} else {
				logContentError(ctx, err, "album")
			}
		}
	}
	if view.Album != "" && view.AlbumTitle == "" {
		view.AlbumTitle = view.Album
	}

	items, err := h.media.List(ctx, view.Album)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	view.Items = items
	h.renderer.HTML(w, r, http.StatusOK, "gallery", h.page(r, "Galeri", view))
}

type calendarView struct {
	Month calendar.Month
	Error string
}

// Calendar serves GET /calendar?from=. An unreadable from falls back to
// the current month with a 400.
func (h *PublicPages) Calendar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := http.StatusOK
	var view calendarView

	now := h.now()
	day, err := calendar.ParseFrom(r.URL.Query().Get("from"), now, h.loc)
	if err != nil {
		status = http.StatusBadRequest
		view.Error = "Tarih anlaşılamadı. Örnek: 2025-06 veya 15 Haziran 2025."
		day = datepicker.DateOf(now.In(h.loc))
	}

	month, err := h.calendar.Month(ctx, day)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	view.Month = month
	h.renderer.HTML(w, r, status, "calendar", h.page(r, month.Title, view))
}

type eventView struct {
	Event         events.Event
	JSONLD        template.JS
	Registered    bool
	Message       string
	Form          events.RegistrationInput
	Errors        validation.Errors
	CalendarMonth string
}

func (h *PublicPages) eventView(r *http.Request, e events.Event) eventView {
	view := eventView{
		Event:         e,
		CalendarMonth: datepicker.DateOf(e.StartsAt.In(h.loc)).FirstOfMonth().String(),
	}
	ld, err := render.EventJSONLD(e, h.renderer.Site(), h.loc)
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Str("event_id", e.ID).Msg("json-ld encoding failed")
	} else {
		view.JSONLD = ld
	}
	return view
}

// Event serves GET /events/{id}.
func (h *PublicPages) Event(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.renderStatus(w, r, http.StatusNotFound, "Etkinlik bulunamadı.")
		return
	}
	e, err := h.events.Get(r.Context(), id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	view := h.eventView(r, e)
	view.Registered = r.URL.Query().Get("registered") == "1"
	h.renderer.HTML(w, r, http.StatusOK, "event", h.page(r, e.Title, view))
}

// Register serves POST /events/{id}/register and redirects back to the
// event page on success.
func (h *PublicPages) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r, "id")
	if err != nil {
		h.renderStatus(w, r, http.StatusNotFound, "Etkinlik bulunamadı.")
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderStatus(w, r, http.StatusBadRequest, "Form okunamadı.")
		return
	}
	in := events.RegistrationInput{
		Name:  r.PostForm.Get("name"),
		Email: r.PostForm.Get("email"),
		Phone: r.PostForm.Get("phone"),
		Note:  r.PostForm.Get("note"),
	}

	_, regErr := h.events.Register(ctx, id, in)
	if regErr == nil {
		http.Redirect(w, r, "/events/"+id+"?registered=1", http.StatusSeeOther)
		return
	}

	e, err := h.events.Get(ctx, id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	view := h.eventView(r, e)
	view.Form = in

	var status int
	if verrs, ok := validation.AsErrors(regErr); ok {
		status = http.StatusUnprocessableEntity
		view.Errors = verrs
		view.Message = "Lütfen işaretli alanları düzeltin."
	} else {
		switch {
		case errors.Is(regErr, events.ErrEventFull):
			status, view.Message = http.StatusConflict, "Kontenjan doldu."
		case errors.Is(regErr, events.ErrAlreadyRegistered):
			status, view.Message = http.StatusConflict, "Bu e-posta ile zaten kayıt yapılmış."
		case errors.Is(regErr, events.ErrRegistrationClosed):
			status, view.Message = http.StatusConflict, "Bu etkinlik için kayıt kapandı."
		default:
			h.renderError(w, r, regErr)
			return
		}
	}
	h.renderer.HTML(w, r, status, "event", h.page(r, e.Title, view))
}

type cancelView struct {
	Event          events.Event
	RegistrationID string
	Email          string
	Done           bool
	Error          string
}

// CancelForm serves GET /events/{id}/cancel?registration=, the link sent
// in the confirmation email.
func (h *PublicPages) CancelForm(w http.ResponseWriter, r *http.Request) {
	e, regID, ok := h.cancelTarget(w, r, r.URL.Query().Get("registration"))
	if !ok {
		return
	}
	h.renderer.HTML(w, r, http.StatusOK, "event_cancel", h.page(r, "Kaydı iptal et", cancelView{Event: e, RegistrationID: regID}))
}

// Cancel serves POST /events/{id}/cancel.
func (h *PublicPages) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderStatus(w, r, http.StatusBadRequest, "Form okunamadı.")
		return
	}
	e, regID, ok := h.cancelTarget(w, r, r.PostForm.Get("registration"))
	if !ok {
		return
	}
	view := cancelView{Event: e, RegistrationID: regID, Email: strings.TrimSpace(r.PostForm.Get("email"))}

	err := h.events.CancelOwnRegistration(r.Context(), e.ID, regID, view.Email)
	switch {
	case err == nil:
		view.Done = true
		h.renderer.HTML(w, r, http.StatusOK, "event_cancel", h.page(r, "Kaydı iptal et", view))
	case errors.Is(err, events.ErrRegistrationNotFound):
		view.Error = "Bu e-posta ile eşleşen bir kayıt bulunamadı."
		h.renderer.HTML(w, r, http.StatusNotFound, "event_cancel", h.page(r, "Kaydı iptal et", view))
	default:
		h.renderError(w, r, err)
	}
}

func (h *PublicPages) cancelTarget(w http.ResponseWriter, r *http.Request, rawRegID string) (events.Event, string, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		h.renderStatus(w, r, http.StatusNotFound, "Etkinlik bulunamadı.")
		return events.Event{}, "", false
	}
	regID, err := ids.NormalizeULID(strings.TrimSpace(rawRegID))
	if err != nil {
		h.renderStatus(w, r, http.StatusNotFound, "Kayıt bulunamadı.")
		return events.Event{}, "", false
	}
	e, err := h.events.Get(r.Context(), id)
	if err != nil {
		h.renderError(w, r, err)
		return events.Event{}, "", false
	}
	return e, regID, true
}

type errorView struct {
	Status  int
	Message string
}

// NotFound renders the HTML 404 for unmatched paths.
func (h *PublicPages) NotFound(w http.ResponseWriter, r *http.Request) {
	h.renderStatus(w, r, http.StatusNotFound, "Aradığınız sayfa bulunamadı.")
}

func (h *PublicPages) renderError(w http.ResponseWriter, r *http.Request, err error) {
	renderErrorPage(h.renderer, w, r, err, false)
}

func (h *PublicPages) renderStatus(w http.ResponseWriter, r *http.Request, status int, msg string) {
	page := h.page(r, http.StatusText(status), errorView{Status: status, Message: msg})
	h.renderer.HTML(w, r, status, "error", page)
}

// renderErrorPage maps err to a status and renders the HTML error page.
// Server errors are logged; the visitor only sees a generic message.
func renderErrorPage(renderer *render.Renderer, w http.ResponseWriter, r *http.Request, err error, admin bool) {
	status, _, _ := classify(err)
	msg := "Bir hata oluştu. Lütfen daha sonra tekrar deneyin."
	switch {
	case status == http.StatusNotFound:
		msg = "Aradığınız sayfa bulunamadı."
	case status == http.StatusForbidden:
		msg = "Bu sayfaya erişim yetkiniz yok."
	case status < http.StatusInternalServerError:
		msg = "İstek işlenemedi."
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("page failed")
	}
	page := render.Page{
		Title:     http.StatusText(status),
		Admin:     admin,
		Actor:     middleware.ActorFrom(r.Context()),
		CSRFField: middleware.CSRFFieldName,
		CSRFToken: middleware.CSRFToken(r),
		Data:      errorView{Status: status, Message: msg},
	}
	renderer.HTML(w, r, status, "error", page)
}

// localRedirect accepts only same-site paths, so a crafted ?next= cannot
// send a user elsewhere after login.
func localRedirect(raw, fallback string) string {
	if raw == "" {
		return fallback
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, `\`) {
		return fallback
	}
	return u.RequestURI()
}
