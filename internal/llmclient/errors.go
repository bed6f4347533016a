package llmclient

import (
	"errors"
	"fmt"
	"net/http"
)

// RemoteServiceError reports a completion call that did not produce usable
// text: the service was unreachable, rejected the request, timed out, or
// answered with a malformed payload.
type RemoteServiceError struct {
	Provider   string
	StatusCode int // Zero when no HTTP response was received.
	Err        error
}

func (e *RemoteServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s completion failed (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s completion failed: %v", e.Provider, e.Err)
}

func (e *RemoteServiceError) Unwrap() error { return e.Err }

// isTransientStatus reports whether an HTTP status is worth retrying.
func isTransientStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// asRemoteServiceError makes sure err carries the RemoteServiceError type.
// Context cancellation and deadline errors from the retry loop are wrapped so
// callers can still match them with errors.Is.
func asRemoteServiceError(provider string, err error) error {
	var rse *RemoteServiceError
	if errors.As(err, &rse) {
		return err
	}
	return &RemoteServiceError{Provider: provider, Err: err}
}
