package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// URLError describes why a URL was rejected.
type URLError struct {
	Field   string
	Message string
	URL     string
}

func (e URLError) Error() string {
	return fmt.Sprintf("%s: %s (url: %s)", e.Field, e.Message, e.URL)
}

// ValidateURL accepts absolute http(s) URLs. Empty input is allowed;
// use the required tag for mandatory fields.
func ValidateURL(raw, field string, requireHTTPS bool) error {
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return URLError{Field: field, Message: "invalid URL format", URL: raw}
	}
	if u.Scheme == "" {
		return URLError{Field: field, Message: "URL must include a scheme (http:// or https://)", URL: raw}
	}
	if u.Host == "" {
		return URLError{Field: field, Message: "URL must include a host", URL: raw}
	}

	scheme := strings.ToLower(u.Scheme)
	if requireHTTPS && scheme != "https" {
		return URLError{Field: field, Message: "URL must use HTTPS", URL: raw}
	}
	if scheme != "http" && scheme != "https" {
		return URLError{Field: field, Message: "URL scheme must be http or https", URL: raw}
	}
	return nil
}

// ValidateBaseURL additionally rejects paths other than "/", queries and
// fragments.
func ValidateBaseURL(raw, field string, requireHTTPS bool) error {
	if err := ValidateURL(raw, field, requireHTTPS); err != nil || raw == "" {
		return err
	}
	u, _ := url.Parse(raw)
	if u.Path != "" && u.Path != "/" {
		return URLError{Field: field, Message: "base URL must not contain a path", URL: raw}
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return URLError{Field: field, Message: "base URL must not contain a query or fragment", URL: raw}
	}
	return nil
}

// ValidateMediaURL accepts absolute http(s) URLs and site-relative paths
// such as /media/gallery/x.jpg.
func ValidateMediaURL(raw, field string) error {
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") {
		if _, err := url.Parse(raw); err != nil {
			return URLError{Field: field, Message: "invalid path", URL: raw}
		}
		return nil
	}
	return ValidateURL(raw, field, false)
}
