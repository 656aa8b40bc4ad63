package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a category of gateway error.
type ErrorCode string

const (
	// ErrCodeNetwork indicates the backend could not be reached.
	ErrCodeNetwork ErrorCode = "network"
	// ErrCodeAuth indicates missing, invalid or expired credentials.
	ErrCodeAuth ErrorCode = "auth"
	// ErrCodeSubscription indicates the backend requires an active subscription (402).
	ErrCodeSubscription ErrorCode = "subscription"
	// ErrCodeValidation indicates a malformed request.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeConfiguration indicates the gateway is misconfigured (e.g. no signing secret).
	ErrCodeConfiguration ErrorCode = "configuration"
	// ErrCodeUpstream indicates a non-2xx backend answer not otherwise classified.
	ErrCodeUpstream ErrorCode = "upstream"
	// ErrCodeMethodNotAllowed indicates an HTTP method the proxy does not forward.
	ErrCodeMethodNotAllowed ErrorCode = "method_not_allowed"
	// ErrCodeTooLarge indicates a request body above the configured limit.
	ErrCodeTooLarge ErrorCode = "too_large"
	// ErrCodeRateLimited indicates the caller exceeded its request budget.
	ErrCodeRateLimited ErrorCode = "rate_limited"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
)

// AppError represents a structured gateway error with a code, message, and optional cause.
// Message is safe to show to clients; Cause is for logs only.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable, client-safe message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
	// Status overrides the status derived from Code when non-zero (upstream passthrough).
	Status int
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Network creates a new Network error wrapping the transport failure.
func Network(cause error) *AppError {
	return &AppError{Code: ErrCodeNetwork, Message: "Backend unavailable", Cause: cause}
}

// Auth creates a new Auth error.
func Auth(message string) *AppError {
	return &AppError{Code: ErrCodeAuth, Message: message}
}

// Subscription creates a new Subscription error.
func Subscription(message string) *AppError {
	return &AppError{Code: ErrCodeSubscription, Message: message}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// Validationf creates a new Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// Configuration creates a new Configuration error. The client only ever sees a generic message.
func Configuration(cause error) *AppError {
	return &AppError{Code: ErrCodeConfiguration, Message: "Server configuration error", Cause: cause}
}

// Upstream creates a new Upstream error carrying the backend status.
func Upstream(status int, message string) *AppError {
	return &AppError{Code: ErrCodeUpstream, Message: message, Status: status}
}

// MethodNotAllowed creates a new MethodNotAllowed error.
func MethodNotAllowed() *AppError {
	return &AppError{Code: ErrCodeMethodNotAllowed, Message: "Method not allowed"}
}

// TooLarge creates a new TooLarge error.
func TooLarge(limit int64) *AppError {
	return &AppError{Code: ErrCodeTooLarge, Message: fmt.Sprintf("Request body exceeds %d bytes", limit)}
}

// RateLimited creates a new RateLimited error.
func RateLimited() *AppError {
	return &AppError{Code: ErrCodeRateLimited, Message: "Too many requests"}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsNetwork checks if an error is a Network error.
func IsNetwork(err error) bool { return isCode(err, ErrCodeNetwork) }

// IsAuth checks if an error is an Auth error.
func IsAuth(err error) bool { return isCode(err, ErrCodeAuth) }

// IsSubscription checks if an error is a Subscription error.
func IsSubscription(err error) bool { return isCode(err, ErrCodeSubscription) }

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool { return isCode(err, ErrCodeValidation) }

// IsConfiguration checks if an error is a Configuration error.
func IsConfiguration(err error) bool { return isCode(err, ErrCodeConfiguration) }

// IsUpstream checks if an error is an Upstream error.
func IsUpstream(err error) bool { return isCode(err, ErrCodeUpstream) }

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HTTPStatus maps an error to the status code the gateway answers with.
// Errors that are not AppErrors are treated as internal.
func HTTPStatus(err error) int {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	if appErr.Status != 0 {
		return appErr.Status
	}
	switch appErr.Code {
	case ErrCodeNetwork, ErrCodeUpstream:
		return http.StatusBadGateway
	case ErrCodeAuth:
		return http.StatusUnauthorized
	case ErrCodeSubscription:
		return http.StatusPaymentRequired
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ErrCodeTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ClientMessage returns the message that may be shown to an untrusted client.
// Causes are never included.
func ClientMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return "Internal server error"
}
