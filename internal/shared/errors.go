package shared

import (
	"errors"
	"fmt"
)

// Code is the stable error identifier surfaced to API callers.
type Code string

const (
	CodeFTEInvalid             Code = "FTE_INVALID"
	CodeDemandXor              Code = "DEMAND_XOR"
	CodePlaceholderBlocked4MFC Code = "PLACEHOLDER_BLOCKED_4MFC"
	CodeActualsOver100         Code = "ACTUALS_OVER_100"
	CodePeriodLocked           Code = "PERIOD_LOCKED"
	CodeUnauthorizedRole       Code = "UNAUTHORIZED_ROLE"
	CodeNotFound               Code = "NOT_FOUND"
	CodeValidation             Code = "VALIDATION_ERROR"
	CodeConflict               Code = "CONFLICT"
	CodeInternal               Code = "INTERNAL"
)

// Error is a typed domain failure. Details carries structured context for the caller.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Is matches sentinel errors that share the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Code == e.Code
}

// Sentinels usable with errors.Is.
var (
	ErrFTEInvalid             = &Error{Code: CodeFTEInvalid}
	ErrDemandXor              = &Error{Code: CodeDemandXor}
	ErrPlaceholderBlocked4MFC = &Error{Code: CodePlaceholderBlocked4MFC}
	ErrActualsOver100         = &Error{Code: CodeActualsOver100}
	ErrPeriodLocked           = &Error{Code: CodePeriodLocked}
	ErrUnauthorizedRole       = &Error{Code: CodeUnauthorizedRole}
	ErrNotFound               = &Error{Code: CodeNotFound}
	ErrValidation             = &Error{Code: CodeValidation}
	ErrConflict               = &Error{Code: CodeConflict}
)

// NewError builds a typed error.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithDetails attaches structured context to the error.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// WithCause records the underlying error without changing the code.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// NotFound reports a missing tenant-scoped entity.
func NotFound(entity string) *Error {
	return NewError(CodeNotFound, entity+" not found")
}

// Validation reports a rejected request.
func Validation(message string) *Error {
	return NewError(CodeValidation, message)
}

// Conflict reports a duplicate or concurrent modification.
func Conflict(message string) *Error {
	return NewError(CodeConflict, message)
}

// Unauthorized reports a role or identity mismatch.
func Unauthorized(message string) *Error {
	return NewError(CodeUnauthorizedRole, message)
}

// PeriodLocked reports a mutation against a locked month.
func PeriodLocked(ym YearMonth) *Error {
	return NewError(CodePeriodLocked, fmt.Sprintf("period %s is locked", ym)).
		WithDetails(map[string]any{"year": ym.Year, "month": ym.Month})
}

// CodeOf extracts the error code, defaulting to CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
