package fecapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fecview/internal/downloads"
	"golang.org/x/time/rate"
)

const (
	// DefaultLocation is the root of the public FEC API
	DefaultLocation = "https://api.open.fec.gov"

	// DefaultVersion is the path segment prepended to every table path
	DefaultVersion = "v1"

	// DefaultTimeout is the default HTTP timeout
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second)
	DefaultRateLimit = 10

	// DefaultRetryAttempts is the number of retries after the first table request
	DefaultRetryAttempts = 2

	// DefaultRetryBackoff is the initial retry delay, doubled on each attempt
	DefaultRetryBackoff = 500 * time.Millisecond

	maxRetryBackoff = 10 * time.Second
)

// Observer receives one call per HTTP round trip
type Observer interface {
	ObserveRequest(endpoint string, outcome string, elapsed time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveRequest(string, string, time.Duration) {}

// Client talks to the table data endpoints and the download status endpoint
type Client struct {
	location      string
	version       string
	apiKey        string
	httpClient    *http.Client
	logger        arbor.ILogger
	limiter       *rate.Limiter
	observer      Observer
	retryAttempts int
	retryBackoff  time.Duration
}

// ClientOption configures the Client
type ClientOption func(*Client)

// WithLocation sets the API root and version segment
func WithLocation(location, version string) ClientOption {
	return func(c *Client) {
		if location != "" {
			c.location = strings.TrimRight(location, "/")
		}
		if version != "" {
			c.version = strings.Trim(version, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithLogger sets a logger
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithRetry sets the retry count and initial backoff for table requests
func WithRetry(attempts int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		if attempts >= 0 {
			c.retryAttempts = attempts
		}
		if backoff > 0 {
			c.retryBackoff = backoff
		}
	}
}

// WithObserver reports request outcomes
func WithObserver(observer Observer) ClientOption {
	return func(c *Client) {
		if observer != nil {
			c.observer = observer
		}
	}
}

// NewClient creates a new FEC API client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		location: DefaultLocation,
		version:  DefaultVersion,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter:       rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		observer:      noopObserver{},
		retryAttempts: DefaultRetryAttempts,
		retryBackoff:  DefaultRetryBackoff,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Endpoint returns the full URL of a table path, without query
func (c *Client) Endpoint(path string) string {
	return c.location + "/" + c.version + "/" + strings.TrimLeft(path, "/")
}

// Fetch issues GET {location}/{version}/{path}?{query}&api_key=... and decodes the
// envelope. Network errors and 5xx responses are retried with exponential backoff.
func (c *Client) Fetch(ctx context.Context, path string, query url.Values) (*Response, error) {
	params := url.Values{}
	for key, values := range query {
		params[key] = append([]string(nil), values...)
	}
	params.Set("api_key", c.apiKey)
	reqURL := c.Endpoint(path) + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt <= c.retryAttempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		result, retry, err := c.get(ctx, path, reqURL)
		if err == nil {
			return result, nil
		}
		if !retry || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err

		if c.logger != nil {
			c.logger.Warn().
				Err(err).
				Str("path", path).
				Int("attempt", attempt+1).
				Msg("FEC API request failed")
		}
	}

	return nil, fmt.Errorf("request to %s failed after %d attempts: %w", path, c.retryAttempts+1, lastErr)
}

// get performs one GET and reports whether a failure is worth retrying
func (c *Client) get(ctx context.Context, path string, reqURL string) (*Response, bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if c.logger != nil {
		c.logger.Debug().Str("url", c.Endpoint(path)).Msg("FEC API request")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observer.ObserveRequest("table", "error", time.Since(start))
		return nil, true, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.observer.ObserveRequest("table", statusOutcome(resp.StatusCode), time.Since(start))
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, resp.StatusCode >= 500, &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			Endpoint:   path,
		}
	}

	// Cursor ids can exceed float64 precision
	var result Response
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&result); err != nil {
		c.observer.ObserveRequest("table", "decode_error", time.Since(start))
		return nil, false, fmt.Errorf("failed to decode response: %w", err)
	}

	c.observer.ObserveRequest("table", "ok", time.Since(start))
	return &result, false, nil
}

// CheckStatus posts {"filename": filename} to a download status URL. A reply of
// {"status": "complete", "url": ...} is complete; anything else is pending.
// Failures are returned to the job, which retries on its own schedule.
func (c *Client) CheckStatus(ctx context.Context, apiURL string, filename string) (downloads.Status, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return downloads.Status{}, err
	}

	body, err := json.Marshal(map[string]string{"filename": filename})
	if err != nil {
		return downloads.Status{}, fmt.Errorf("failed to encode status request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return downloads.Status{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observer.ObserveRequest("download_status", "error", time.Since(start))
		return downloads.Status{}, fmt.Errorf("failed to execute status request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.observer.ObserveRequest("download_status", statusOutcome(resp.StatusCode), time.Since(start))
		message, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return downloads.Status{}, &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(message)),
			Endpoint:   apiURL,
		}
	}

	var reply statusReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		c.observer.ObserveRequest("download_status", "decode_error", time.Since(start))
		return downloads.Status{}, fmt.Errorf("failed to decode status response: %w", err)
	}
	c.observer.ObserveRequest("download_status", "ok", time.Since(start))

	if reply.Status == "complete" && reply.URL != "" {
		return downloads.Complete(reply.URL), nil
	}
	return downloads.Pending(), nil
}

// backoff waits for an exponentially increasing duration with jitter
func (c *Client) backoff(ctx context.Context, attempt int) error {
	delay := c.retryBackoff * time.Duration(1<<uint(attempt-1))
	if delay > maxRetryBackoff {
		delay = maxRetryBackoff
	}

	// 0.5 to 1.5 of the delay
	jitter := time.Duration(float64(delay) * (0.5 + rand.Float64()))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
		return nil
	}
}

func statusOutcome(code int) string {
	if code >= 500 {
		return "server_error"
	}
	return "client_error"
}
