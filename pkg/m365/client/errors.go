package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrRequestExhausted matches any *RequestExhaustedError via errors.Is.
var ErrRequestExhausted = errors.New("request retries exhausted")

// RequestExhaustedError is returned when a throttled or failing request is
// still unsuccessful after the configured number of retries.
type RequestExhaustedError struct {
	Target     string
	Retries    int
	LastStatus int
}

func (e *RequestExhaustedError) Error() string {
	return fmt.Sprintf("failed to complete request after %d retries: %s (last status %d)", e.Retries, e.Target, e.LastStatus)
}

func (e *RequestExhaustedError) Is(target error) bool {
	return target == ErrRequestExhausted
}

// APIError is a non-retryable HTTP error status.
type APIError struct {
	Target     string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("API call %s failed with status %d", e.Target, e.StatusCode)
	}
	return fmt.Sprintf("API call %s failed with status %d: %s", e.Target, e.StatusCode, e.Body)
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == status
	}
	var exhausted *RequestExhaustedError
	if errors.As(err, &exhausted) {
		return exhausted.LastStatus == status
	}
	return false
}

// IsNotFound is a shorthand for IsStatus(err, 404).
func IsNotFound(err error) bool {
	return IsStatus(err, http.StatusNotFound)
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status < 600)
}
