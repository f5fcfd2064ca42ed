package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard sentinel errors for common cases.
var (
	ErrNotFound             = errors.New("resource not found")
	ErrAlreadyExists        = errors.New("resource already exists")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInternal             = errors.New("internal error")
	ErrConflict             = errors.New("conflict")
	ErrServiceUnavail       = errors.New("service unavailable")
	ErrExpired              = errors.New("promotion expired")
	ErrNotEligible          = errors.New("not eligible")
	ErrInvalidCode          = errors.New("invalid code")
	ErrUsageLimitExceeded   = errors.New("usage limit exceeded")
	ErrInvalidPromotionSpec = errors.New("invalid promotion spec")
)

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// AlreadyExists creates a 409 error.
func AlreadyExists(resource, field, value string) *AppError {
	return &AppError{
		Code:    "ALREADY_EXISTS",
		Message: fmt.Sprintf("%s with %s %q already exists", resource, field, value),
		Status:  http.StatusConflict,
		Err:     ErrAlreadyExists,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Expired creates a 410 error for a promotion outside its active window.
func Expired(message string) *AppError {
	return &AppError{
		Code:    "EXPIRED",
		Message: message,
		Status:  http.StatusGone,
		Err:     ErrExpired,
	}
}

// NotEligible creates a 422 error for an order that does not qualify.
func NotEligible(message string) *AppError {
	return &AppError{
		Code:    "NOT_ELIGIBLE",
		Message: message,
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrNotEligible,
	}
}

// InvalidCode creates a 422 error for an unknown, inactive, or exhausted code.
func InvalidCode(code string) *AppError {
	return &AppError{
		Code:    "INVALID_CODE",
		Message: fmt.Sprintf("promotion code %q is not valid", code),
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrInvalidCode,
	}
}

// UsageLimitExceeded creates a 409 error for an exhausted usage limit.
func UsageLimitExceeded(message string) *AppError {
	return &AppError{
		Code:    "USAGE_LIMIT_EXCEEDED",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrUsageLimitExceeded,
	}
}

// Conflict creates a 409 error for a lost atomic race at reservation time.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// InvalidPromotionSpec creates a 400 error for a creation or update that
// violates the promotion data-model invariants.
func InvalidPromotionSpec(message string) *AppError {
	return &AppError{
		Code:    "INVALID_PROMOTION_SPEC",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidPromotionSpec,
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrConflict), errors.Is(err, ErrUsageLimitExceeded):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidPromotionSpec):
		return http.StatusBadRequest
	case errors.Is(err, ErrExpired):
		return http.StatusGone
	case errors.Is(err, ErrNotEligible), errors.Is(err, ErrInvalidCode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrServiceUnavail):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
