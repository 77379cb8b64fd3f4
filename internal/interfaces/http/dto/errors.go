package dto

import (
	"net/http"

	"github.com/cassa/backend/internal/domain/shared"
)

// Envelope-level error codes. Domain failures reuse the shared.Code* values
// unchanged so terminals can branch on the same code the service raised.
const (
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeInvalidJSON     = "INVALID_JSON"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	ErrCodeUnavailable     = "SERVICE_UNAVAILABLE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeRateLimited:     http.StatusTooManyRequests,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeUnavailable:     http.StatusServiceUnavailable,

	shared.CodeValidation: http.StatusBadRequest,
	shared.CodeNotFound:   http.StatusNotFound,

	// Business conflicts: the cashier must look at fresh state
	shared.CodeOverAllocation:      http.StatusConflict,
	shared.CodeAlreadyPaid:         http.StatusConflict,
	shared.CodeAlreadySettled:      http.StatusConflict,
	shared.CodeStaleState:          http.StatusConflict,
	shared.CodeConcurrencyConflict: http.StatusConflict,

	shared.CodeTransport:   http.StatusBadGateway,
	shared.CodePersistence: http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether the client may retry the same request after
// re-reading state. Validation failures never are.
func IsRetryable(code string) bool {
	switch code {
	case shared.CodeStaleState, shared.CodeConcurrencyConflict,
		shared.CodeTransport, shared.CodePersistence, ErrCodeRateLimited:
		return true
	}
	return false
}
