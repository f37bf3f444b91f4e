package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError reports a backend response outside the accepted status range.
type StatusError struct {
	// Op names the call that failed ("snapshot", "health", "replay").
	Op string

	// StatusCode is the HTTP status returned by the backend.
	StatusCode int

	// Reason is the backend's error or reason field, when it sent one.
	Reason string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
}

// IsUnauthorized returns true if the backend rejected the session.
// Uses errors.As to handle wrapped errors.
func IsUnauthorized(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusUnauthorized
	}
	return false
}

// IsUnavailable returns true if the backend reported itself unavailable.
// Uses errors.As to handle wrapped errors.
func IsUnavailable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusServiceUnavailable
	}
	return false
}

// StatusCode extracts the HTTP status from err, or 0 when err carries none.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
