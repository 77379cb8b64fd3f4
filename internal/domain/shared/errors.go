package shared

import (
	"errors"
	"fmt"
)

// Error codes. The first five are business outcomes that callers render to
// the cashier; transport and persistence codes signal that local state must
// be reconciled before any retry.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeOverAllocation      = "OVER_ALLOCATION"
	CodeAlreadyPaid         = "ALREADY_PAID"
	CodeAlreadySettled      = "ALREADY_SETTLED"
	CodeStaleState          = "STALE_STATE"
	CodeTransport           = "TRANSPORT_ERROR"
	CodePersistence         = "PERSISTENCE_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	cause   error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any
func (e *DomainError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a DomainError with the same code, so that
// errors.Is(err, ErrOverAllocation) matches any over-allocation failure.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WrapDomainError creates a domain error that keeps the original cause
func WrapDomainError(code, message string, cause error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// NewValidationError reports input that violates an operation contract
func NewValidationError(format string, args ...any) *DomainError {
	return NewDomainError(CodeValidation, fmt.Sprintf(format, args...))
}

// NewOverAllocationError reports a selection exceeding a line's unpaid quantity
func NewOverAllocationError(format string, args ...any) *DomainError {
	return NewDomainError(CodeOverAllocation, fmt.Sprintf(format, args...))
}

// NewAlreadyPaidError reports a payment attempt on a fully paid order
func NewAlreadyPaidError(format string, args ...any) *DomainError {
	return NewDomainError(CodeAlreadyPaid, fmt.Sprintf(format, args...))
}

// NewAlreadySettledError reports a payment attempt on a settled debt
func NewAlreadySettledError(format string, args ...any) *DomainError {
	return NewDomainError(CodeAlreadySettled, fmt.Sprintf(format, args...))
}

// NewStaleStateError reports that the caller acted on outdated state
func NewStaleStateError(format string, args ...any) *DomainError {
	return NewDomainError(CodeStaleState, fmt.Sprintf(format, args...))
}

// NewTransportError wraps a push-transport failure
func NewTransportError(message string, cause error) *DomainError {
	return WrapDomainError(CodeTransport, message, cause)
}

// NewPersistenceError wraps a storage failure
func NewPersistenceError(message string, cause error) *DomainError {
	return WrapDomainError(CodePersistence, message, cause)
}

// IsCode reports whether err carries a DomainError with the given code
func IsCode(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrConcurrencyConflict = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
	ErrValidation          = NewDomainError(CodeValidation, "Validation failed")
	ErrOverAllocation      = NewDomainError(CodeOverAllocation, "Selection exceeds unpaid quantity")
	ErrAlreadyPaid         = NewDomainError(CodeAlreadyPaid, "Order is already fully paid")
	ErrAlreadySettled      = NewDomainError(CodeAlreadySettled, "Debt is already settled")
	ErrStaleState          = NewDomainError(CodeStaleState, "Local state diverged from server state")
	ErrTransport           = NewDomainError(CodeTransport, "Push transport failure")
	ErrPersistence         = NewDomainError(CodePersistence, "Persistence failure")
)
