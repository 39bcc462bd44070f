package http

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RateLimitError indicates the server rate limited the request (429).
// It is never retried by the client; the domain is backed off instead.
type RateLimitError struct {
	// StatusCode is the HTTP status code
	StatusCode int
	// RetryAfter indicates how long to wait before retrying
	RetryAfter time.Duration
	// Message is the platform's own error message, if the body carried one
	Message string
}

// Error returns a string representation of the rate limit error.
func (e *RateLimitError) Error() string {
	msg := fmt.Sprintf("rate limited (status %d)", e.StatusCode)
	if e.RetryAfter > 0 {
		msg = fmt.Sprintf("rate limited (status %d): retry after %v", e.StatusCode, e.RetryAfter)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Retryable reports false: rate limits surface to the caller immediately.
func (e *RateLimitError) Retryable() bool { return false }

// HTTPError indicates an HTTP error response.
type HTTPError struct {
	// StatusCode is the HTTP status code
	StatusCode int
	// Body is the response body
	Body []byte
}

// Error returns a string representation of the HTTP error, including the
// platform's error message when the body carries one.
func (e *HTTPError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("http error: status %d: %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("http error: status %d", e.StatusCode)
}

// Message returns the platform error message parsed from the body.
func (e *HTTPError) Message() string {
	return APIMessage(e.Body)
}

// Retryable reports whether the status is a transient server failure.
func (e *HTTPError) Retryable() bool {
	return IsTransientStatus(e.StatusCode)
}

// IsTransientStatus reports whether a status code is worth retrying.
func IsTransientStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	}
	return false
}

// APIMessage extracts a human-readable error message from a JSON error body.
// It understands the shapes used by the supported platforms:
//
//	{"error": "text"}
//	{"error": {"message": "text"}}
//	{"errors": [{"message": "text"}]}
//	{"message": "text"}
//
// Anything else yields an empty string.
func APIMessage(body []byte) string {
	var doc struct {
		Error  json.RawMessage `json:"error"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if len(body) == 0 || json.Unmarshal(body, &doc) != nil {
		return ""
	}

	if len(doc.Error) > 0 {
		var s string
		if json.Unmarshal(doc.Error, &s) == nil && s != "" {
			return s
		}
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(doc.Error, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
	}
	if len(doc.Errors) > 0 && doc.Errors[0].Message != "" {
		return doc.Errors[0].Message
	}
	if doc.Message != "" {
		return doc.Message
	}
	return strings.TrimSpace(doc.Detail)
}

// TransportError is a failure below the HTTP layer: connection resets,
// DNS failures, timed-out attempts. It matches ErrRequestFailed.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "http request failed: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is reports whether target is ErrRequestFailed.
func (e *TransportError) Is(target error) bool { return target == ErrRequestFailed }

// Retryable reports true; cancellation is filtered out by the classifier first.
func (e *TransportError) Retryable() bool { return true }

// ErrRequestFailed indicates the request itself failed (network error).
var ErrRequestFailed = fmt.Errorf("http request failed")
