package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// User-facing notice texts raised by the response interceptor.
const (
	MessageSessionExpired = "Session expired. Please login again."
	MessageForbidden      = "You do not have permission to perform this action."
	MessageServerError    = "Server error. Our team has been notified."
	MessageFallback       = "Something went wrong. Please try again."
)

var (
	// ErrUnauthorized matches any 401 response.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTransport wraps failures that never produced an HTTP response.
	ErrTransport = errors.New("transport failure")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Operation, e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsRetryable reports whether repeating the call may succeed: transport failures and 5xx.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrTransport) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= http.StatusInternalServerError
}

// noticeFor maps a failed status onto the notice text. An empty result means no notice.
func noticeFor(status int, serverMessage string) string {
	switch {
	case status == http.StatusUnauthorized:
		return MessageSessionExpired
	case status == http.StatusForbidden:
		return MessageForbidden
	case status == http.StatusNotFound:
		return ""
	case status >= http.StatusInternalServerError:
		return MessageServerError
	case serverMessage != "":
		return serverMessage
	default:
		return MessageFallback
	}
}
