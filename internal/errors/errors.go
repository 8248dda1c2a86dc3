package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeInternal   ErrorType = "internal"

	// Scan pipeline failures
	ErrorTypeImageDecode        ErrorType = "image_decode"
	ErrorTypeNoTextDetected     ErrorType = "no_text_detected"
	ErrorTypeTitleNotFound      ErrorType = "title_not_found"
	ErrorTypeIsbnChecksum       ErrorType = "isbn_checksum"
	ErrorTypePriceNotFound      ErrorType = "price_not_found"
	ErrorTypeRecognitionTimeout ErrorType = "recognition_timeout"
	ErrorTypeInvalidStep        ErrorType = "invalid_step"

	// Session lifecycle
	ErrorTypeSessionBusy     ErrorType = "session_busy"
	ErrorTypeSessionNotFound ErrorType = "session_not_found"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails returns a copy of the error carrying extra human-readable detail.
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

func newError(t ErrorType, status int, retryable bool, message string, cause error) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: status,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return newError(ErrorTypeValidation, http.StatusBadRequest, false, message, cause)
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, cause error) *AppError {
	return newError(ErrorTypeNetwork, http.StatusBadGateway, true, message, cause)
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, cause error) *AppError {
	return newError(ErrorTypeTimeout, http.StatusGatewayTimeout, true, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return newError(ErrorTypeInternal, http.StatusInternalServerError, false, message, cause)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *AppError {
	return newError(ErrorTypeNotFound, http.StatusNotFound, false, message, cause)
}

// NewImageDecodeError reports bytes that do not decode to a usable image.
// A better photo is required, so it is not retryable as-is.
func NewImageDecodeError(message string, cause error) *AppError {
	return newError(ErrorTypeImageDecode, http.StatusBadRequest, false, message, cause)
}

// NewNoTextDetectedError reports that the recognition engine found nothing.
func NewNoTextDetectedError(message string) *AppError {
	return newError(ErrorTypeNoTextDetected, http.StatusUnprocessableEntity, true, message, nil)
}

// NewTitleNotFoundError reports an exhausted cover heuristic.
func NewTitleNotFoundError(message string) *AppError {
	return newError(ErrorTypeTitleNotFound, http.StatusUnprocessableEntity, true, message, nil)
}

// NewIsbnChecksumError reports that no ISBN candidate passed the checksum.
func NewIsbnChecksumError(message string) *AppError {
	return newError(ErrorTypeIsbnChecksum, http.StatusUnprocessableEntity, true, message, nil)
}

// NewPriceNotFoundError reports that no price pattern produced an in-range value.
func NewPriceNotFoundError(message string) *AppError {
	return newError(ErrorTypePriceNotFound, http.StatusUnprocessableEntity, true, message, nil)
}

// NewRecognitionTimeoutError reports a hung recognition engine call.
func NewRecognitionTimeoutError(message string, cause error) *AppError {
	return newError(ErrorTypeRecognitionTimeout, http.StatusGatewayTimeout, true, message, cause)
}

// NewInvalidStepError reports an unknown scan step tag.
func NewInvalidStepError(message string) *AppError {
	return newError(ErrorTypeInvalidStep, http.StatusBadRequest, false, message, nil)
}

// NewSessionBusyError reports a concurrent update on the same session.
func NewSessionBusyError(sessionID string) *AppError {
	return newError(ErrorTypeSessionBusy, http.StatusConflict, true,
		fmt.Sprintf("session %s is already being updated", sessionID), nil)
}

// NewSessionNotFoundError reports an unknown session id.
func NewSessionNotFoundError(sessionID string, cause error) *AppError {
	return newError(ErrorTypeSessionNotFound, http.StatusNotFound, false,
		fmt.Sprintf("session %s not found", sessionID), cause)
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsRetryable reports whether the caller may resubmit the same request.
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
