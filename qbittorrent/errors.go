package qbittorrent

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the qBittorrent client.
var (
	// ErrInvalidConfig is returned when the client is created with missing settings.
	ErrInvalidConfig = errors.New("invalid qBittorrent configuration")

	// ErrBadCredentials is returned when qBittorrent rejects the username/password.
	ErrBadCredentials = errors.New("qBittorrent rejected the credentials")
)

// APIError represents a non-2xx qBittorrent WebAPI response
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("qBittorrent API error: status %d: %s", e.StatusCode, e.Message)
}

// IsUnauthorized checks if the error indicates an expired or missing session
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// AuthError indicates that qBittorrent refused to authenticate us, either at
// login or on a request retried after a fresh login.
type AuthError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authentication failed during %s (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("authentication failed during %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// TransportError covers network, timeout, status and decode failures.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DeletionRejectedError is returned when qBittorrent answers a delete
// request with a non-2xx status.
type DeletionRejectedError struct {
	Hash       string
	StatusCode int
	Body       string
}

func (e *DeletionRejectedError) Error() string {
	return fmt.Sprintf("deletion of %s rejected with status %d: %s", e.Hash, e.StatusCode, e.Body)
}

// IsUnauthorized reports whether err carries a 401/403 API response
func IsUnauthorized(err error) bool {
	apiErr, ok := asAPIError(err)
	return ok && apiErr.IsUnauthorized()
}

func asAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
