package sd

import (
	"errors"
	"fmt"
)

var (
	ErrAuth          = errors.New("authentication failed")
	ErrGroupNotFound = errors.New("address group not found")
	ErrConflict      = errors.New("edit-version conflict")
	ErrRemoteWrite   = errors.New("remote write failed")
	ErrRemoteRead    = errors.New("remote read failed")
	ErrSessionClosed = errors.New("session is closed")
	ErrInvalidName   = errors.New("name cannot be used in a filter")
)

// APIError is returned for any non-2xx response. It unwraps to one of the
// sentinel errors above so callers can use errors.Is.
type APIError struct {
	Op         string
	Method     string
	URL        string
	StatusCode int
	Body       string

	kind error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s: %s %s: unexpected status code %d", e.Op, e.Method, e.URL, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.kind
}
