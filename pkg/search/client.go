// Package search wraps the Google Custom Search JSON API. The pipeline
// treats it as a quota-limited collaborator: it may return fewer results
// than requested, and empty results are never an error.
package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/compintel/internal/quota"
)

const defaultBaseURL = "https://www.googleapis.com/customsearch/v1"

// ErrQuotaExhausted is returned once the daily API budget is spent.
var ErrQuotaExhausted = eris.New("search: daily quota exhausted")

// Hit is one search result.
type Hit struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Client performs web searches.
type Client interface {
	Search(ctx context.Context, query string, num int) ([]Hit, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithCountry sets the gl country parameter on every query.
func WithCountry(code string) Option {
	return func(c *httpClient) { c.country = code }
}

// WithDailyQuota caps API calls per UTC day. Once the budget is spent,
// Search returns ErrQuotaExhausted without sending a request. A limit
// <= 0 disables the cap.
func WithDailyQuota(limit int64) Option {
	return func(c *httpClient) { c.quotaLimit = limit }
}

type httpClient struct {
	apiKey     string
	engineID   string
	baseURL    string
	country    string
	quotaLimit int64
	quota      *quota.Counter
	http       *http.Client
}

// NewClient creates a Custom Search client.
func NewClient(apiKey, engineID string, opts ...Option) Client {
	c := &httpClient{
		apiKey:   apiKey,
		engineID: engineID,
		baseURL:  defaultBaseURL,
		quota:    quota.NewCounter(),
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ForCountry derives a client localized to the given country code. Clients
// that do not support localization are returned unchanged.
func ForCountry(c Client, code string) Client {
	if l, ok := c.(interface{ ForCountry(string) Client }); ok && code != "" {
		return l.ForCountry(code)
	}
	return c
}

// ForCountry returns a copy of the client with the gl parameter set. The
// copy shares the daily quota budget with its parent.
func (c *httpClient) ForCountry(code string) Client {
	derived := *c
	derived.country = code
	return &derived
}

type searchResponse struct {
	Items []Hit `json:"items"`
}

func (c *httpClient) Search(ctx context.Context, query string, num int) ([]Hit, error) {
	if !c.quota.TryAcquire(time.Now().UTC().Format("2006-01-02"), c.quotaLimit) {
		return nil, ErrQuotaExhausted
	}

	if num <= 0 || num > 10 {
		num = 10 // API maximum per request
	}

	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("cx", c.engineID)
	q.Set("q", query)
	q.Set("num", strconv.Itoa(num))
	if c.country != "" {
		q.Set("gl", c.country)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "search: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "search: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "search: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("search: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "search: unmarshal response")
	}

	// No items is a valid outcome, not an error.
	return result.Items, nil
}
