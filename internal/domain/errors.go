package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when an operation targets an unknown session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDocumentNotFound is returned when an operation targets an unknown document.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrBackendUnavailable wraps transport failures and timeouts talking to a backend.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrRequestBlocked is returned when the admission policy rejects a request.
	ErrRequestBlocked = errors.New("request blocked by policy")
)

// BackendError is an error answer from a generation or embedding backend.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("backend error: %s", e.Message)
	}
	return fmt.Sprintf("backend error [%d]: %s", e.StatusCode, e.Message)
}

// IsBackendFailure reports whether err came from a generation or embedding backend.
func IsBackendFailure(err error) bool {
	var be *BackendError
	return errors.Is(err, ErrBackendUnavailable) || errors.As(err, &be)
}
