package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrEmptyResponse is reported when a call that needs a payload gets none.
	ErrEmptyResponse = errors.New("empty response")
	// ErrMalformedResponse is reported when a payload does not decode or validate.
	ErrMalformedResponse = errors.New("malformed response")
)

// RequestFailedError is returned for non-2xx responses and for 2xx responses
// whose payload was rejected. RawBody holds the body as received.
type RequestFailedError struct {
	Method     string
	Path       string
	StatusCode int
	RawBody    string
	Err        error
}

func (e *RequestFailedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: status %d", e.Method, e.Path, e.StatusCode)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if body := strings.TrimSpace(e.RawBody); body != "" {
		b.WriteString(": ")
		b.WriteString(truncate(body, 200))
	}
	return b.String()
}

func (e *RequestFailedError) Unwrap() error {
	return e.Err
}

// UserMessage is the text shown in the dashboard.
func (e *RequestFailedError) UserMessage() string {
	switch {
	case errors.Is(e.Err, ErrMalformedResponse), errors.Is(e.Err, ErrEmptyResponse):
		return "The expense service returned an unexpected response"
	case e.StatusCode == http.StatusNotFound:
		return "The requested expense no longer exists"
	case e.StatusCode >= 500:
		return fmt.Sprintf("The expense service failed (%d), please retry", e.StatusCode)
	}
	return fmt.Sprintf("The expense service rejected the request (%d)", e.StatusCode)
}

// NetworkError wraps transport failures: refused connections, DNS errors,
// timeouts and unreadable bodies.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func (e *NetworkError) UserMessage() string {
	return "The expense service is unreachable, please retry"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
