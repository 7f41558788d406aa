package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ahrav/go-magi/internal/domain"
	"github.com/ahrav/go-magi/internal/ports"
)

var (
	// ErrEmptyAPIKey is returned when a client is built without a credential.
	ErrEmptyAPIKey = errors.New("API key cannot be empty")

	// ErrEmptyResponse is returned when the backend answered with no text.
	ErrEmptyResponse = errors.New("empty response from API")

	// ErrNoResponseChoice is returned when an OpenAI-compatible backend
	// returned no choices.
	ErrNoResponseChoice = errors.New("no response choices returned")
)

// ErrorType classifies backend failures.
type ErrorType int

// Error types.
const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeAuthentication
	ErrorTypeRateLimit
	ErrorTypeBadRequest
	ErrorTypeNotFound
	ErrorTypeServerError
	ErrorTypeContentPolicy
	ErrorTypeNetwork
	ErrorTypeTimeout
	ErrorTypeCanceled
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeAuthentication:
		return "authentication"
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeBadRequest:
		return "bad_request"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeServerError:
		return "server_error"
	case ErrorTypeContentPolicy:
		return "content_policy"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// ProviderError is a classified backend failure. It never carries the
// request credential.
type ProviderError struct {
	Type       ErrorType
	Provider   domain.ProviderID
	StatusCode int
	Message    string
	Err        error

	// RetryAfter is the Retry-After hint of a throttled or unavailable
	// backend. Zero means none was sent.
	RetryAfter time.Duration
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s error", e.Provider)
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	msg += " [" + e.Type.String() + "]"
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is maps the classification onto the transport sentinels in ports so
// callers can test failures without importing this package.
func (e *ProviderError) Is(target error) bool {
	switch target {
	case ports.ErrRateLimited:
		return e.Type == ErrorTypeRateLimit
	case ports.ErrAuthenticationFailed:
		return e.Type == ErrorTypeAuthentication
	case ports.ErrTimeout:
		return e.Type == ErrorTypeTimeout
	case ports.ErrServiceUnavailable:
		return e.Type == ErrorTypeServerError
	case ports.ErrInvalidResponse:
		return e.Type == ErrorTypeContentPolicy
	default:
		return false
	}
}

// NewProviderError creates a ProviderError.
func NewProviderError(provider domain.ProviderID, t ErrorType, status int, message string, err error) *ProviderError {
	return &ProviderError{Type: t, Provider: provider, StatusCode: status, Message: message, Err: err}
}

// errorClassifier turns SDK errors into ProviderErrors for one provider.
type errorClassifier struct {
	provider domain.ProviderID
}

func (c errorClassifier) fromStatus(status int, message string, err error) *ProviderError {
	var t ErrorType
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		t, message = ErrorTypeAuthentication, "authentication failed"
	case status == http.StatusTooManyRequests:
		t, message = ErrorTypeRateLimit, "rate limit exceeded"
	case status == http.StatusNotFound:
		t = ErrorTypeNotFound
	case status >= 500:
		t = ErrorTypeServerError
	case status >= 400:
		t = ErrorTypeBadRequest
	default:
		t = ErrorTypeUnknown
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return NewProviderError(c.provider, t, status, message, err)
}

// fromContext classifies a context error. It returns nil for other errors.
func (c errorClassifier) fromContext(err error) *ProviderError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewProviderError(c.provider, ErrorTypeTimeout, 0, "request timed out", err)
	case errors.Is(err, context.Canceled):
		return NewProviderError(c.provider, ErrorTypeCanceled, 0, "request canceled", err)
	default:
		return nil
	}
}

// withRetryAfter copies the Retry-After hint from h onto e.
func (e *ProviderError) withRetryAfter(h http.Header) *ProviderError {
	e.RetryAfter = parseRetryAfter(h, time.Now())
	return e
}

// parseRetryAfter reads a Retry-After header given either as delta seconds
// or as an HTTP date. Missing, malformed and past values yield zero.
func parseRetryAfter(h http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	at, err := http.ParseTime(v)
	if err != nil {
		return 0
	}
	return max(at.Sub(now).Truncate(time.Second), 0)
}

func (c errorClassifier) unknown(err error) *ProviderError {
	return NewProviderError(c.provider, ErrorTypeUnknown, 0, "request failed", err)
}
