// Package web embeds the site's templates and static assets.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed robots.txt
var robotsTxt []byte

//go:embed templates
var templateFiles embed.FS

//go:embed static
var staticFiles embed.FS

// Templates is rooted at the templates directory: layout.html,
// partials/ and pages/.
func Templates() fs.FS {
	sub, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("web: templates directory missing: " + err.Error())
	}
	return sub
}

// StaticHandler serves /static/* from the embedded assets.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic("web: static directory missing: " + err.Error())
	}
	files := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=86400")
		files.ServeHTTP(w, r)
	})
}

// RobotsTxtHandler serves robots.txt, keeping crawlers out of the back office.
func RobotsTxtHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		_, _ = w.Write(robotsTxt)
	})
}
