// Package render executes the site's HTML templates.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/clubsite/server/internal/auth"
	"github.com/clubsite/server/internal/datepicker"
	"github.com/clubsite/server/internal/sanitize"
	"github.com/rs/zerolog"
)

// Site carries the values every page shows.
type Site struct {
	Name    string
	Tagline string
	Locale  string
	BaseURL string
}

// Page is the data passed to every template. Handlers set Data to the
// page-specific view.
type Page struct {
	Title     string
	Site      Site
	Admin     bool
	Actor     auth.Actor
	CSRFField string
	CSRFToken string
	Data      any
}

type Options struct {
	Site     Site
	Location *time.Location
}

// Renderer holds one template set per page: the shared layout, the
// partials and the page itself.
type Renderer struct {
	pages map[string]*template.Template
	site  Site
}

// New parses layout.html, partials/*.html and every pages/*.html found in fsys.
func New(fsys fs.FS, opts Options) (*Renderer, error) {
	funcs := Funcs(opts.Location, opts.Site.Locale)
	pages, err := fs.Glob(fsys, "pages/*.html")
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no page templates found")
	}
	partials, err := fs.Glob(fsys, "partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("list partials: %w", err)
	}

	r := &Renderer{pages: make(map[string]*template.Template, len(pages)), site: opts.Site}
	for _, p := range pages {
		name := strings.TrimSuffix(path.Base(p), ".html")
		files := append([]string{"layout.html"}, partials...)
		files = append(files, p)
		t, err := template.New(name).Funcs(funcs).ParseFS(fsys, files...)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

func (r *Renderer) Site() Site { return r.site }

// HTML renders page name inside the layout. The output is buffered so a
// template error still produces a clean 500.
func (r *Renderer) HTML(w http.ResponseWriter, req *http.Request, status int, name string, page Page) {
	r.execute(w, req, status, name, "layout", page)
}

// Fragment renders a single named block of page name without the layout.
func (r *Renderer) Fragment(w http.ResponseWriter, req *http.Request, status int, name, block string, page Page) {
	r.execute(w, req, status, name, block, page)
}

func (r *Renderer) execute(w http.ResponseWriter, req *http.Request, status int, name, block string, page Page) {
	t, ok := r.pages[name]
	if !ok {
		zerolog.Ctx(req.Context()).Error().Str("template", name).Msg("unknown template")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if page.Site.Name == "" {
		page.Site = r.site
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, block, page); err != nil {
		zerolog.Ctx(req.Context()).Error().Err(err).Str("template", name).Msg("render failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// Funcs are the helpers available to every template.
func Funcs(loc *time.Location, locale string) template.FuncMap {
	if loc == nil {
		loc = time.UTC
	}
	return template.FuncMap{
		"longDate": func(t time.Time, withTime bool) string {
			return datepicker.FormatLong(t.In(loc), locale, withTime)
		},
		"clock": func(t time.Time) string {
			return t.In(loc).Format("15:04")
		},
		"isoTime": func(t time.Time) string {
			return t.UTC().Format(time.RFC3339)
		},
		"richText": func(s string) template.HTML {
			return template.HTML(sanitize.HTML(s))
		},
		"excerpt":   sanitize.Excerpt,
		"cellClass": cellClass,
		"add":       func(a, b int) int { return a + b },
	}
}

func cellClass(c datepicker.Cell) string {
	classes := []string{"day"}
	flags := []struct {
		on   bool
		name string
	}{
		{!c.InMonth, "outside"},
		{c.Today, "today"},
		{c.Disabled, "disabled"},
		{c.Selected, "selected"},
		{c.RangeStart, "range-start"},
		{c.RangeEnd, "range-end"},
		{c.InRange, "in-range"},
		{c.Preview, "preview"},
	}
	for _, f := range flags {
		if f.on {
			classes = append(classes, f.name)
		}
	}
	return strings.Join(classes, " ")
}
