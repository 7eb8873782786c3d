// Package serp provides a client for the SerpAPI local business search.
package serp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the directory search operations.
type Client interface {
	// SearchLocal queries the business directory for a category in a
	// location, following pagination up to the configured page limit.
	SearchLocal(ctx context.Context, query, location string) ([]Result, error)
}

// Result is one business listing as returned by the directory.
type Result struct {
	Title    string  `json:"title"`
	Address  string  `json:"address"`
	Phone    string  `json:"phone"`
	Website  string  `json:"website"`
	Rating   float64 `json:"rating"`
	Category string  `json:"type"`
}

// searchResponse is the parsed SerpAPI response envelope.
type searchResponse struct {
	LocalResults []Result `json:"local_results"`
	Error        string   `json:"error"`
}

// Option configures the serp client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithEngine selects the directory engine (default google_maps).
func WithEngine(engine string) Option {
	return func(c *httpClient) {
		c.engine = engine
	}
}

// WithMaxPages caps pagination depth per query (default 3).
func WithMaxPages(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// WithRateLimit caps request throughput (default 2 req/s).
func WithRateLimit(perSec int) Option {
	return func(c *httpClient) {
		if perSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

const pageSize = 20

type httpClient struct {
	apiKey   string
	baseURL  string
	engine   string
	maxPages int
	limiter  *rate.Limiter
	http     *http.Client
}

// NewClient creates a new directory search client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:   apiKey,
		baseURL:  "https://serpapi.com",
		engine:   "google_maps",
		maxPages: 3,
		limiter:  rate.NewLimiter(rate.Limit(2), 1),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes an HTTP request with exponential backoff retries on
// transient failures (429, 500, 502, 503).
func (c *httpClient) retryDo(ctx context.Context, req *http.Request) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retryReq := req.Clone(ctx)

		resp, err := c.http.Do(retryReq)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "serp: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("serp: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

func (c *httpClient) SearchLocal(ctx context.Context, query, location string) ([]Result, error) {
	var all []Result

	for page := 0; page < c.maxPages; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "serp: rate limit wait")
		}

		results, err := c.fetchPage(ctx, query, location, page)
		if err != nil {
			return nil, err
		}
		all = append(all, results...)

		// A short page means the directory ran out of listings.
		if len(results) < pageSize {
			break
		}
	}

	return all, nil
}

func (c *httpClient) fetchPage(ctx context.Context, query, location string, page int) ([]Result, error) {
	params := url.Values{}
	params.Set("engine", c.engine)
	params.Set("q", query)
	params.Set("location", location)
	params.Set("api_key", c.apiKey)
	if page > 0 {
		params.Set("start", strconv.Itoa(page*pageSize))
	}

	reqURL := fmt.Sprintf("%s/search.json?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "serp: create request")
	}
	req.Header.Set("Accept", "application/json")

	body, statusCode, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "serp: request failed")
	}
	if statusCode != http.StatusOK {
		return nil, eris.Errorf("serp: unexpected status %d: %s", statusCode, string(body))
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "serp: unmarshal response")
	}
	// SerpAPI reports "no results" inside a 200 envelope.
	if result.Error != "" {
		return nil, nil
	}

	return result.LocalResults, nil
}
