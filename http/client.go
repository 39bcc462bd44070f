// Package http provides the HTTP client shared by the platform adapters,
// with built-in retry logic, per-host rate limiting, and error handling.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"clipcast/internal/retry"
)

// Client wraps an HTTP client with retry logic and rate limit handling.
type Client struct {
	base        *http.Client
	config      *Config
	rateLimiter *RateLimiter
}

// Config holds HTTP client configuration including retry and rate limit settings.
type Config struct {
	// Timeout for individual request attempts. Requests may override it.
	Timeout time.Duration

	// Retry configuration
	Retry retry.Config

	// User agent for HTTP requests
	UserAgent string

	// Rate limiter configuration
	RateLimiter RateLimiterConfig

	// Connection pool configuration
	Transport TransportConfig

	// HTTPClient replaces the pooled client, e.g. with a request-signing client.
	HTTPClient *http.Client
}

// TransportConfig configures the HTTP transport (connection pooling).
type TransportConfig struct {
	// MaxIdleConns is the maximum number of idle connections across all hosts.
	// Default: 20
	MaxIdleConns int

	// MaxIdleConnsPerHost is the maximum idle connections per host.
	// Default: 10
	MaxIdleConnsPerHost int

	// IdleConnTimeout is the maximum amount of time an idle connection can remain open.
	// Default: 90 seconds
	IdleConnTimeout time.Duration

	// ForceAttemptHTTP2 forces HTTP/2 for connections to servers that don't explicitly support it.
	// Default: true
	ForceAttemptHTTP2 bool
}

// DefaultConfig returns sensible defaults for HTTP client configuration.
func DefaultConfig() *Config {
	return &Config{
		Timeout:     60 * time.Second,
		Retry:       retry.DefaultConfig(),
		UserAgent:   "clipcast/1.0",
		RateLimiter: DefaultRateLimiterConfig(),
		Transport:   DefaultTransportConfig(),
	}
}

// DefaultTransportConfig returns sensible defaults for HTTP transport configuration.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
}

// New creates a new HTTP client with the given configuration.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        cfg.Transport.MaxIdleConns,
				MaxIdleConnsPerHost: cfg.Transport.MaxIdleConnsPerHost,
				IdleConnTimeout:     cfg.Transport.IdleConnTimeout,
				ForceAttemptHTTP2:   cfg.Transport.ForceAttemptHTTP2,
			},
		}
	}

	return &Client{
		base:        base,
		config:      cfg,
		rateLimiter: NewRateLimiter(cfg.RateLimiter),
	}
}

// Response represents an HTTP response with status code and body.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the response body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response (status %d): %w", r.StatusCode, err)
	}
	return nil
}

// Request describes a single API call. The body is held in memory so every
// retry attempt resends identical bytes.
type Request struct {
	Method string
	URL    string
	Header map[string]string
	Body   []byte

	// Accept lists non-2xx status codes handed back as responses, such as
	// 308 Resume Incomplete during resumable uploads.
	Accept []int

	// NoRetry disables the retry loop for callers that track attempts themselves.
	NoRetry bool

	// Timeout overrides Config.Timeout for this request. Negative disables it.
	Timeout time.Duration
}

// Get performs a GET request with retry logic.
func (c *Client) Get(ctx context.Context, urlStr string, headers map[string]string) (*Response, error) {
	return c.Send(ctx, &Request{Method: http.MethodGet, URL: urlStr, Header: headers})
}

// PostForm performs a form-encoded POST with retry logic.
func (c *Client) PostForm(ctx context.Context, urlStr string, form url.Values, headers map[string]string) (*Response, error) {
	h := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
	for k, v := range headers {
		h[k] = v
	}
	return c.Send(ctx, &Request{Method: http.MethodPost, URL: urlStr, Header: h, Body: []byte(form.Encode())})
}

// PostJSON marshals v and POSTs it with retry logic.
func (c *Client) PostJSON(ctx context.Context, urlStr string, v any, headers map[string]string) (*Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	h := map[string]string{"Content-Type": "application/json; charset=UTF-8"}
	for k, v := range headers {
		h[k] = v
	}
	return c.Send(ctx, &Request{Method: http.MethodPost, URL: urlStr, Header: h, Body: body})
}

// Do performs an HTTP request with retry logic and rate limit handling.
func (c *Client) Do(ctx context.Context, method, urlStr string, body []byte, headers map[string]string) (*Response, error) {
	return c.Send(ctx, &Request{Method: method, URL: urlStr, Header: headers, Body: body})
}

// Send performs req. Transient failures (500, 502, 503, 504 and transport
// errors) are retried with backoff; any other non-2xx status fails at once.
// A 429 is returned as a *RateLimitError and backs off the host for later calls.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	// Wait for any backoff period from previous rate limit errors
	if err := c.rateLimiter.WaitForBackoff(ctx, req.URL); err != nil {
		return nil, err
	}

	cfg := c.config.Retry
	if req.NoRetry {
		cfg.MaxRetries = 0
	}

	resp, err := retry.DoValue(ctx, cfg, retry.IsRetryable, func(ctx context.Context) (*Response, error) {
		if err := c.rateLimiter.Wait(ctx, req.URL); err != nil {
			return nil, err
		}
		return c.attempt(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	// Record successful request to help recover from backoff
	c.rateLimiter.RecordSuccess(req.URL)
	return resp, nil
}

// attempt performs a single round trip.
func (c *Client) attempt(ctx context.Context, req *Request) (*Response, error) {
	parent := ctx
	timeout := c.config.Timeout
	if req.Timeout != 0 {
		timeout = req.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, retry.Permanent(err)
	}

	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := c.base.Do(httpReq)
	if err != nil {
		if parent.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			// Only this attempt's timer fired.
			return nil, &TransportError{Err: fmt.Errorf("attempt timed out after %v", timeout)}
		}
		return nil, &TransportError{Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("read response body: %w", err)}
	}

	if httpResp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(httpResp.Header)
		if recommended := c.rateLimiter.RecordRateLimitError(req.URL, retryAfter); recommended > retryAfter {
			retryAfter = recommended
		}
		return nil, &RateLimitError{
			StatusCode: httpResp.StatusCode,
			RetryAfter: retryAfter,
			Message:    APIMessage(respBody),
		}
	}

	if !accepted(httpResp.StatusCode, req.Accept) {
		return nil, &HTTPError{StatusCode: httpResp.StatusCode, Body: respBody}
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       respBody,
	}, nil
}

func accepted(code int, extra []int) bool {
	if code >= 200 && code < 300 {
		return true
	}
	for _, c := range extra {
		if c == code {
			return true
		}
	}
	return false
}

// parseRetryAfter extracts the Retry-After header value.
// Returns the number of seconds to wait, or 0 if not present.
func parseRetryAfter(header http.Header) time.Duration {
	retryAfter := header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	// Try parsing as seconds (integer)
	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		return time.Duration(seconds) * time.Second
	}

	// Try parsing as HTTP date
	if t, err := http.ParseTime(retryAfter); err == nil {
		return time.Until(t)
	}

	return 0
}

// Close closes idle connections.
func (c *Client) Close() error {
	if c.base != nil {
		c.base.CloseIdleConnections()
	}
	return nil
}
