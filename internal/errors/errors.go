package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anime-shed/content-analyzer-go/pkg/models"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeNetwork      ErrorType = "network"
	ErrorTypeProcessing   ErrorType = "processing"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeInternal     ErrorType = "internal"

	ErrorTypeProvider         ErrorType = "provider"
	ErrorTypeCache            ErrorType = "cache"
	ErrorTypeQuality          ErrorType = "quality_below_threshold"
	ErrorTypeExhaustedRetries ErrorType = "exhausted_retries"
	ErrorTypeConfiguration    ErrorType = "configuration"
)

// ProviderErrorKind narrows a provider failure
type ProviderErrorKind string

const (
	ProviderRateLimited     ProviderErrorKind = "rate_limited"
	ProviderTimeout         ProviderErrorKind = "timeout"
	ProviderInvalidResponse ProviderErrorKind = "invalid_response"
	ProviderAuthFailure     ProviderErrorKind = "auth_failure"
	ProviderInvalidRequest  ProviderErrorKind = "invalid_request"
	ProviderUnavailable     ProviderErrorKind = "unavailable"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType         `json:"type"`
	Kind       ProviderErrorKind `json:"kind,omitempty"`
	Message    string            `json:"message"`
	Details    string            `json:"details,omitempty"`
	StatusCode int               `json:"status_code"`
	Cause      error             `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	prefix := string(e.Type)
	if e.Kind != "" {
		prefix = prefix + "/" + string(e.Kind)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Code is the stable public identifier of the error
func (e *AppError) Code() string {
	code := string(e.Type)
	if e.Kind != "" {
		code = code + "_" + string(e.Kind)
	}
	return strings.ToUpper(code)
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeNetwork,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// NewProcessingError creates a new processing error
func NewProcessingError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeProcessing,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Cause:      cause,
	}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeTimeout,
		Message:    message,
		StatusCode: http.StatusGatewayTimeout,
		Cause:      cause,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
		Cause:      cause,
	}
}

// NewProviderError creates a provider failure of the given kind
func NewProviderError(kind ProviderErrorKind, message string, cause error) *AppError {
	status := http.StatusBadGateway
	switch kind {
	case ProviderRateLimited:
		status = http.StatusTooManyRequests
	case ProviderTimeout:
		status = http.StatusGatewayTimeout
	case ProviderAuthFailure:
		status = http.StatusUnauthorized
	case ProviderInvalidRequest:
		status = http.StatusBadRequest
	}
	return &AppError{
		Type:       ErrorTypeProvider,
		Kind:       kind,
		Message:    message,
		StatusCode: status,
		Cause:      cause,
	}
}

// NewProviderErrorFromStatus maps an upstream HTTP status to a provider error kind
func NewProviderErrorFromStatus(statusCode int, message string, cause error) *AppError {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewProviderError(ProviderRateLimited, message, cause)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return NewProviderError(ProviderAuthFailure, message, cause)
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return NewProviderError(ProviderTimeout, message, cause)
	case statusCode >= 500:
		return NewProviderError(ProviderUnavailable, message, cause)
	default:
		return NewProviderError(ProviderInvalidRequest, message, cause)
	}
}

// NewCacheError creates a non-fatal cache failure
func NewCacheError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeCache,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewQualityBelowThresholdError records a quality shortfall
func NewQualityBelowThresholdError(score, threshold float64) *AppError {
	return &AppError{
		Type:       ErrorTypeQuality,
		Message:    "analysis quality below threshold",
		Details:    fmt.Sprintf("score=%.3f threshold=%.3f", score, threshold),
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// NewExhaustedRetriesError wraps the last failure after all attempts were used
func NewExhaustedRetriesError(attempts int, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeExhaustedRetries,
		Message:    fmt.Sprintf("provider call failed after %d attempts", attempts),
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeConfiguration,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// As extracts the outermost AppError in the chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	if appErr, ok := As(err); ok {
		return appErr.Type == errorType
	}
	return false
}

// IsProviderKind checks for a provider error of the given kind
func IsProviderKind(err error, kind ProviderErrorKind) bool {
	if appErr, ok := As(err); ok {
		return appErr.Type == ErrorTypeProvider && appErr.Kind == kind
	}
	return false
}

// IsRetryable reports whether a provider call may be attempted again
func IsRetryable(err error) bool {
	appErr, ok := As(err)
	if !ok {
		return false
	}
	if appErr.Type == ErrorTypeTimeout || appErr.Type == ErrorTypeNetwork {
		return true
	}
	if appErr.Type != ErrorTypeProvider {
		return false
	}
	switch appErr.Kind {
	case ProviderRateLimited, ProviderTimeout, ProviderInvalidResponse, ProviderUnavailable:
		return true
	default:
		return false
	}
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// ToFailure normalises any error to the public failure shape
func ToFailure(err error) models.Failure {
	if err == nil {
		return models.Failure{Code: "UNKNOWN", Message: "unknown error"}
	}
	if appErr, ok := As(err); ok {
		return models.Failure{Code: appErr.Code(), Message: appErr.Message}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.Failure{Code: "TIMEOUT", Message: "request timed out"}
	case errors.Is(err, context.Canceled):
		return models.Failure{Code: "CANCELLED", Message: "request cancelled"}
	}
	return models.Failure{Code: "INTERNAL", Message: "internal error"}
}
