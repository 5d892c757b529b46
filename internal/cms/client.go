package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clubsite/server/internal/metrics"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout = 5 * time.Second
	// DefaultRateLimit keeps well under the hosted API's per-token quota.
	DefaultRateLimit = rate.Limit(25)
	maxResponseBytes = 4 << 20
)

var (
	ErrNotConfigured = errors.New("cms not configured")
	ErrNotFound      = errors.New("cms document not found")
	ErrUnknownType   = errors.New("unknown cms document type")
)

// QueryError is returned for non-2xx responses.
type QueryError struct {
	Status      int
	Description string
}

func (e *QueryError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("cms query failed with status %d", e.Status)
	}
	return fmt.Sprintf("cms query failed with status %d: %s", e.Status, e.Description)
}

// Client issues read queries against a hosted document store exposing
// GET {base}/data/query/{dataset}?query=...&$param=<json>.
type Client struct {
	httpClient *http.Client
	baseURL    string
	dataset    string
	token      string
	limiter    *rate.Limiter
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

func NewClient(baseURL, dataset string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		dataset:    dataset,
		limiter:    rate.NewLimiter(DefaultRateLimit, 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type queryResponse struct {
	Result json.RawMessage `json:"result"`
}

type errorResponse struct {
	Error struct {
		Description string `json:"description"`
	} `json:"error"`
}

// Query runs one query and returns the raw "result" member. document
// names the query for metrics. Parameter values are JSON encoded as the
// query language expects.
func (c *Client) Query(ctx context.Context, document, query string, params map[string]any) (result json.RawMessage, err error) {
	if c == nil || c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.CMSRequests.WithLabelValues(document, outcome).Inc()
		metrics.CMSLatency.WithLabelValues(document).Observe(time.Since(start).Seconds())
	}()

	values := url.Values{}
	values.Set("query", query)
	for name, v := range params {
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode param %s: %w", name, err)
		}
		values.Set("$"+name, string(encoded))
	}
	requestURL := fmt.Sprintf("%s/data/query/%s?%s", c.baseURL, url.PathEscape(c.dataset), values.Encode())

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr errorResponse
		_ = json.Unmarshal(body, &apiErr)
		return nil, &QueryError{Status: resp.StatusCode, Description: apiErr.Error.Description}
	}

	var decoded queryResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return decoded.Result, nil
}
