package domain

import "errors"

// Sentinel errors for domain error conditions.
// Use errors.Is() for matching - never compare error strings.
var (
	// Resource errors
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")

	// Session errors
	ErrDecode                = errors.New("malformed session token")
	ErrSessionExpired        = errors.New("session has expired")
	ErrUnauthorized          = errors.New("authentication required")
	ErrAuthorizationMismatch = errors.New("role not permitted in this area")

	// Authentication collaborator errors
	ErrAuthRequest        = errors.New("authentication request failed")
	ErrInvalidCredentials = errors.New("invalid email or password")

	// Storage errors
	ErrStorageUnavailable = errors.New("token storage unavailable")

	// Operational errors
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrUnavailable = errors.New("service temporarily unavailable")

	// Configuration errors
	ErrConfigRequired = errors.New("required configuration key missing")
)

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrStorageUnavailable)
}

// unauthenticatedErrors enumerates the errors that leave a client without a
// usable session. Each of them degrades to "signed out", never to a crash.
var unauthenticatedErrors = []error{
	ErrDecode,
	ErrSessionExpired,
	ErrUnauthorized,
	ErrAuthorizationMismatch,
	ErrStorageUnavailable,
}

// IsUnauthenticated returns true if err means the caller must be treated as
// having no session.
func IsUnauthenticated(err error) bool {
	for _, target := range unauthenticatedErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// clientErrors enumerates all domain errors that represent client-side issues.
var clientErrors = []error{
	ErrInvalidInput,
	ErrNotFound,
	ErrDecode,
	ErrSessionExpired,
	ErrUnauthorized,
	ErrAuthorizationMismatch,
	ErrInvalidCredentials,
}

// IsClientError returns true if the error represents a client-side issue
// that will not succeed on retry without client-side changes.
func IsClientError(err error) bool {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
