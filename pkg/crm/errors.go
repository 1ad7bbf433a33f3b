package crm

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound indicates the backend reported 404 for the target resource.
	ErrNotFound = errors.New("resource not found")

	// ErrBackendUnavailable indicates the backend could not be reached at all.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// APIError carries a backend-rejected request: the HTTP status and the
// detail string extracted from the response body. Callers are responsible
// for user-facing translation; the client never retries.
type APIError struct {
	StatusCode int
	Detail     string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Detail)
}

// Is maps 404 responses onto ErrNotFound so callers can dispatch with
// errors.Is without inspecting status codes.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}
