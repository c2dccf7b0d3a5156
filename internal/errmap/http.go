// Package errmap translates domain errors into HTTP responses.
package errmap

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/newsdesk/console/internal/domain"
)

// HTTPError represents an HTTP error response.
type HTTPError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e HTTPError) Error() string {
	return e.Message
}

// httpMapping defines a domain error to HTTP status/code mapping.
type httpMapping struct {
	err        error
	statusCode int
	code       string
}

// httpMappings maps domain errors to HTTP status codes and error codes.
// Order matters: first match wins (via errors.Is).
var httpMappings = []httpMapping{
	// Resource errors
	{domain.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},

	// Session errors: 401
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{domain.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHENTICATED"},
	{domain.ErrSessionExpired, http.StatusUnauthorized, "SESSION_EXPIRED"},
	{domain.ErrDecode, http.StatusUnauthorized, "MALFORMED_SESSION"},

	// Permission errors
	{domain.ErrAuthorizationMismatch, http.StatusForbidden, "PERMISSION_DENIED"},

	// Validation errors: 400
	{domain.ErrInvalidInput, http.StatusBadRequest, "INVALID_ARGUMENT"},

	// Rate limiting: 429
	{domain.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},

	// Availability
	{domain.ErrAuthRequest, http.StatusBadGateway, "AUTH_UNAVAILABLE"},
	{domain.ErrStorageUnavailable, http.StatusServiceUnavailable, "UNAVAILABLE"},
	{domain.ErrUnavailable, http.StatusServiceUnavailable, "UNAVAILABLE"},
}

// ToHTTPError converts a domain error to an HTTP error.
func ToHTTPError(err error) HTTPError {
	if err == nil {
		return HTTPError{StatusCode: http.StatusOK}
	}
	for _, m := range httpMappings {
		if errors.Is(err, m.err) {
			return HTTPError{StatusCode: m.statusCode, Code: m.code, Message: err.Error()}
		}
	}
	// Never expose internal error details to clients
	return HTTPError{StatusCode: http.StatusInternalServerError, Code: "INTERNAL", Message: "internal error"}
}

// ToHTTPStatusCode extracts just the HTTP status code for a domain error.
func ToHTTPStatusCode(err error) int {
	return ToHTTPError(err).StatusCode
}

// WriteError writes err as a JSON error body with the mapped status.
func WriteError(w http.ResponseWriter, err error) {
	he := ToHTTPError(err)
	WriteJSON(w, he.StatusCode, he)
}

// WriteJSON writes v as a JSON body with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
