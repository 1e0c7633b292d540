package streaming

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the catalog and web-player clients.
var (
	// ErrAuthenticationFailed means a login attempt was rejected
	// (bad credentials or a non-2xx login response).
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrAuthenticationRequired means the stored token is missing,
	// expired, or was rejected and no viable refresh remains.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrTokenRefreshFailed means the refresh request itself failed.
	// Stored tokens are cleared when this is returned.
	ErrTokenRefreshFailed = errors.New("token refresh failed")

	// ErrSessionExpired means the web-player session was rejected by
	// the backend; the caller must run the interactive login again.
	ErrSessionExpired = errors.New("session expired - please log in again")

	// ErrAuthWindowBlocked means the interactive login window could
	// not be opened at all.
	ErrAuthWindowBlocked = errors.New("failed to open authentication window")

	// ErrAuthWindowClosed means the user closed the login window
	// before authentication completed.
	ErrAuthWindowClosed = errors.New("authentication window was closed")

	// ErrAuthTimeout means the interactive login did not complete
	// within the polling budget.
	ErrAuthTimeout = errors.New("authentication took too long")
)

// APIError carries the HTTP status of a non-2xx API response.
type APIError struct {
	StatusCode int
	Endpoint   string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("api error: %s returned status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("api error: status %d", e.StatusCode)
}

// AsAPIError unwraps err into an *APIError if one is present.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
