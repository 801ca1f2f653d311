// Package client talks to the expense backend over HTTP.
//
// Request is the single entry point: it sends JSON, maps non-2xx responses
// to *RequestFailedError and transport failures to *NetworkError, and never
// retries. Typed calls in api.go decode and validate payloads on top of it.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	"expensedash/internal/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultTimeout       = 10 * time.Second
	DefaultHealthTimeout = 3 * time.Second

	maxBodyBytes = 4 << 20
)

// Client is safe for concurrent use.
type Client struct {
	baseURL       string
	http          *http.Client
	healthTimeout time.Duration
	validate      *validator.Validate
	logger        *log.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds every request made through the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

func WithHealthTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.healthTimeout = d
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l.WithComponent(log.ComponentClient) }
}

// New returns a client for the backend at baseURL, e.g. http://localhost:8000.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		http:          &http.Client{Timeout: DefaultTimeout},
		healthTimeout: DefaultHealthTimeout,
		validate:      newValidator(),
		logger:        log.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend address without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Result is the normalized outcome of a successful request.
type Result struct {
	StatusCode int
	// NoContent is set when the body was empty or not JSON; Raw is nil then.
	NoContent bool
	Raw       []byte
}

// Decode unmarshals the JSON payload into v.
func (r Result) Decode(v any) error {
	if r.NoContent {
		return ErrEmptyResponse
	}
	return json.Unmarshal(r.Raw, v)
}

// Request sends body (if non-nil) as JSON to path relative to the base URL.
func (c *Client) Request(ctx context.Context, method, path string, body any) (Result, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return Result{}, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return Result{}, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "Backend request failed",
			log.FieldMethod, method, log.FieldPath, path, log.FieldError, err)
		return Result{}, &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Result{}, &NetworkError{Op: "read " + method + " " + path, Err: err}
	}

	c.logger.DebugContext(ctx, "Backend request completed",
		log.FieldMethod, method,
		log.FieldPath, path,
		log.FieldStatusCode, resp.StatusCode,
		log.FieldDuration, time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &RequestFailedError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			RawBody:    string(raw),
		}
	}

	if len(bytes.TrimSpace(raw)) == 0 || !strings.Contains(resp.Header.Get("Content-Type"), "json") {
		return Result{StatusCode: resp.StatusCode, NoContent: true}, nil
	}
	if !json.Valid(raw) {
		return Result{}, &RequestFailedError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			RawBody:    string(raw),
			Err:        ErrMalformedResponse,
		}
	}
	return Result{StatusCode: resp.StatusCode, Raw: raw}, nil
}

// HealthCheck probes the service root. Any failure, including a timeout or a
// non-2xx status, reports false.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.DebugContext(ctx, "Health check failed", log.FieldError, err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}
