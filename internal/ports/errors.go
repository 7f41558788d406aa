package ports

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Transport sentinels. Provider adapters classify vendor failures onto these
// so callers can inspect an error without importing any SDK.
var (
	ErrRateLimited          = errors.New("rate limited")
	ErrServiceUnavailable   = errors.New("service unavailable")
	ErrTimeout              = errors.New("operation timed out")
	ErrInvalidResponse      = errors.New("invalid response")
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrConfigNotFound is returned when a named configuration file is
	// missing.
	ErrConfigNotFound = errors.New("configuration not found")
)

// LLMError records which step of a judge call failed (render, connect,
// complete or parse) against which model. It never carries the credential.
type LLMError struct {
	Model     string
	Operation string
	Err       error

	// TokensUsed counts tokens billed before the step failed, as with a
	// reply that arrived but could not be parsed.
	TokensUsed int

	// RetryAfter is the backend's back-off hint. Zero means none was sent.
	RetryAfter time.Duration
}

func (e *LLMError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "LLM error: model=%s, operation=%s, err=%v", e.Model, e.Operation, e.Err)
	if e.TokensUsed > 0 {
		fmt.Fprintf(&b, ", tokens_used=%d", e.TokensUsed)
	}
	if e.RetryAfter > 0 {
		fmt.Fprintf(&b, ", retry_after=%s", e.RetryAfter)
	}
	return b.String()
}

func (e *LLMError) Unwrap() error { return e.Err }

// IsRetryable reports whether a later attempt could succeed. Only the
// transport layer acts on it; a consensus round never retries.
func (e *LLMError) IsRetryable() bool {
	for _, target := range []error{ErrRateLimited, ErrServiceUnavailable, ErrTimeout} {
		if errors.Is(e.Err, target) {
			return true
		}
	}
	return false
}

// NewLLMError creates an LLMError without usage or back-off details.
func NewLLMError(model, operation string, err error) *LLMError {
	return &LLMError{Model: model, Operation: operation, Err: err}
}

// ConfigError ties a configuration failure to the file or key involved.
type ConfigError struct {
	ConfigKey string
	Err       error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: key=%s, err=%v", e.ConfigKey, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError creates a ConfigError.
func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{ConfigKey: key, Err: err}
}
