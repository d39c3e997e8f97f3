package errors

import (
	"errors"
	"fmt"
)

// CustomError represents a bot error with a machine-readable code
type CustomError struct {
	Code    string      // Machine-readable error code
	Message string      // Human-readable message
	Cause   error       // Underlying error
	Details interface{} // Additional error details
}

// Error implements the error interface
func (e *CustomError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface for wrapping errors
func (e *CustomError) Unwrap() error {
	return e.Cause
}

// Is reports whether target carries the same code
func (e *CustomError) Is(target error) bool {
	t, ok := target.(*CustomError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewCustomError creates a new custom error
func NewCustomError(code string, message string) *CustomError {
	return &CustomError{
		Code:    code,
		Message: message,
	}
}

// WithCause returns a copy of e wrapping err.
// The receiver is left untouched.
func (e *CustomError) WithCause(err error) *CustomError {
	c := *e
	c.Cause = err
	return &c
}

// WithDetails returns a copy of e carrying details
func (e *CustomError) WithDetails(details interface{}) *CustomError {
	c := *e
	c.Details = details
	return &c
}

// WithMessage returns a copy of e with a replaced message
func (e *CustomError) WithMessage(format string, args ...interface{}) *CustomError {
	c := *e
	c.Message = fmt.Sprintf(format, args...)
	return &c
}

// SizeDetails describes an oversized media file
type SizeDetails struct {
	Path  string
	Size  int64
	Limit int64
}

// CooldownDetails describes a rejected cooldown acquisition
type CooldownDetails struct {
	RemainingSeconds int
}

// Pre-defined errors
var (
	// Input errors
	ErrNoMatch = NewCustomError(
		"NO_MATCH",
		"No supported link found in message",
	)

	ErrUnsupportedPlatform = NewCustomError(
		"UNSUPPORTED_PLATFORM",
		"Link does not belong to a supported platform",
	)

	// Resolution errors
	ErrResolutionFailed = NewCustomError(
		"RESOLUTION_FAILED",
		"Media could not be resolved",
	)

	ErrNoMedia = NewCustomError(
		"NO_MEDIA",
		"No media files were produced",
	)

	// Delivery errors
	ErrOversized = NewCustomError(
		"OVERSIZED",
		"Media exceeds the transport size limit",
	)

	ErrDeliveryFailed = NewCustomError(
		"DELIVERY_ERROR",
		"Failed to deliver media",
	)

	// Throttling
	ErrRateLimited = NewCustomError(
		"RATE_LIMITED",
		"Too many requests. Please try again later",
	)

	// Server errors
	ErrInternal = NewCustomError(
		"INTERNAL_ERROR",
		"An internal error occurred",
	)

	ErrConfigInvalid = NewCustomError(
		"CONFIG_ERROR",
		"Configuration is invalid",
	)
)

// IsCustomError checks if an error is a CustomError
func IsCustomError(err error) bool {
	var customErr *CustomError
	return errors.As(err, &customErr)
}

// GetErrorCode extracts error code from an error
func GetErrorCode(err error) string {
	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr.Code
	}
	return "UNKNOWN_ERROR"
}

// GetErrorMessage extracts human-readable message from an error
func GetErrorMessage(err error) string {
	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr.Message
	}
	return "An unknown error occurred"
}

// GetDetails returns the details attached to the outermost CustomError
func GetDetails(err error) interface{} {
	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr.Details
	}
	return nil
}
