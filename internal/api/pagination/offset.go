// Package pagination reads offset/limit windows from query strings.
package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var ErrInvalidPage = errors.New("invalid pagination parameter")

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Page is a window into an ordered list.
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Parse reads "limit" and "offset", applying DefaultLimit and clamping the
// limit to MaxLimit. Non-numeric or negative values are rejected.
func Parse(q url.Values) (Page, error) {
	p := Page{Limit: DefaultLimit}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Page{}, fmt.Errorf("%w: limit=%q", ErrInvalidPage, raw)
		}
		p.Limit = min(n, MaxLimit)
	}
	if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Page{}, fmt.Errorf("%w: offset=%q", ErrInvalidPage, raw)
		}
		p.Offset = n
	}
	return p, nil
}

// Next is the following page, or nil when [Offset, Offset+Limit) reaches total.
func (p Page) Next(total int) *Page {
	if p.Offset+p.Limit >= total {
		return nil
	}
	return &Page{Limit: p.Limit, Offset: p.Offset + p.Limit}
}

// Prev is the preceding page, or nil on the first page.
func (p Page) Prev() *Page {
	if p.Offset == 0 {
		return nil
	}
	return &Page{Limit: p.Limit, Offset: max(0, p.Offset-p.Limit)}
}

// Query returns q with this page's limit and offset set.
func (p Page) Query(q url.Values) string {
	out := url.Values{}
	for k, v := range q {
		out[k] = v
	}
	out.Set("limit", strconv.Itoa(p.Limit))
	out.Set("offset", strconv.Itoa(p.Offset))
	return out.Encode()
}
