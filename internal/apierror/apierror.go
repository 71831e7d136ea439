// Package apierror provides typed errors for the Toggl and Jira API clients.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common failure modes.
var (
	ErrNotFound    = errors.New("resource not found")
	ErrAuthFailure = errors.New("authentication failed")
	ErrRateLimit   = errors.New("rate limit exceeded")
	ErrUnavailable = errors.New("service unavailable")
)

// APIError is a non-2xx response from a remote API.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

// Is maps status codes onto the sentinel errors so callers can use errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrAuthFailure:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrRateLimit:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrUnavailable:
		return e.StatusCode == http.StatusBadGateway ||
			e.StatusCode == http.StatusServiceUnavailable ||
			e.StatusCode == http.StatusGatewayTimeout
	}
	return false
}

// New creates an APIError.
func New(service string, statusCode int, message string) *APIError {
	return &APIError{Service: service, StatusCode: statusCode, Message: message}
}

// IsRetryable returns true if the error is likely transient and worth retrying.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrUnavailable)
}
