package api

import (
	_ "embed"
	"net/http"
	"strings"
	"sync"

	"sigs.k8s.io/yaml"
)

//go:embed openapi.yaml
var openAPIYAML []byte

// openAPIJSON converts the embedded YAML document once.
var openAPIJSON = sync.OnceValues(func() ([]byte, error) {
	return yaml.YAMLToJSON(openAPIYAML)
})

// OpenAPIHandler serves the API description. Paths ending in .yaml get the
// document as written; everything else gets JSON.
func OpenAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, contentType := openAPIYAML, "application/yaml"
		if !strings.HasSuffix(r.URL.Path, ".yaml") {
			doc, err := openAPIJSON()
			if err != nil {
				http.Error(w, "openapi unavailable", http.StatusInternalServerError)
				return
			}
			body, contentType = doc, "application/json"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_, _ = w.Write(body)
	}
}
