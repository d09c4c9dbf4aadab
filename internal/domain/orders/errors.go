package orders

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard domain errors.
var (
	ErrUnauthorized       = errors.New("authentication failed")
	ErrMissingCredentials = errors.New("missing partner client credentials")
	ErrUpstream           = errors.New("order API error")
	ErrTimeout            = errors.New("request timeout")
	ErrNetwork            = errors.New("network error")
	ErrRateLimited        = errors.New("API rate limit exceeded")
	ErrInvalidData        = errors.New("invalid order data")
)

// ErrorKind classifies failures of the order API integration.
type ErrorKind string

const (
	KindAuth       ErrorKind = "auth"
	KindUpstream   ErrorKind = "upstream"
	KindTimeout    ErrorKind = "timeout"
	KindNetwork    ErrorKind = "network"
	KindValidation ErrorKind = "validation"
	KindUnknown    ErrorKind = "unknown"
)

// String returns the string representation of the kind.
func (k ErrorKind) String() string {
	return string(k)
}

// APIError represents a structured failure talking to the order API.
type APIError struct {
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Err        error     `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("orderapi [%s]: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("orderapi [%s]: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for APIError.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Kind == KindAuth || e.StatusCode == http.StatusUnauthorized
	case ErrUpstream:
		return e.Kind == KindUpstream
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrInvalidData:
		return e.Kind == KindValidation
	default:
		return false
	}
}

// IsRetryable returns true if this error is safe to retry.
func (e *APIError) IsRetryable() bool {
	switch e.Kind {
	case KindTimeout, KindNetwork:
		return true
	case KindUpstream:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
	default:
		return false
	}
}

// NewAuthError creates an authentication failure.
func NewAuthError(message string, err error) *APIError {
	return &APIError{Kind: KindAuth, Message: message, StatusCode: http.StatusUnauthorized, Err: err}
}

// NewUpstreamError creates a non-2xx failure using the proxy's message format.
func NewUpstreamError(statusCode int) *APIError {
	return &APIError{
		Kind:       KindUpstream,
		Message:    fmt.Sprintf("API Error: %d - %s", statusCode, http.StatusText(statusCode)),
		StatusCode: statusCode,
	}
}

// NewTimeoutError creates a timeout failure.
func NewTimeoutError(err error) *APIError {
	return &APIError{Kind: KindTimeout, Message: "Request timeout", Err: err}
}

// NewNetworkError creates a transport failure.
func NewNetworkError(err error) *APIError {
	return &APIError{Kind: KindNetwork, Message: "Network error", Err: err}
}

// NewValidationError creates a data-shape failure.
func NewValidationError(message string, err error) *APIError {
	return &APIError{Kind: KindValidation, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// ErrorMessage returns the message shown to clients for err.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

// ErrorCategory classifies errors for metrics and logs.
type ErrorCategory string

const (
	CategoryAuthentication ErrorCategory = "authentication"
	CategoryRateLimit      ErrorCategory = "rate_limit"
	CategoryServer         ErrorCategory = "server"
	CategoryTransport      ErrorCategory = "transport"
	CategoryValidation     ErrorCategory = "validation"
	CategoryUnknown        ErrorCategory = "unknown"
)

// Category returns the category of this error.
func (e *APIError) Category() ErrorCategory {
	switch e.Kind {
	case KindAuth:
		return CategoryAuthentication
	case KindUpstream:
		if e.StatusCode == http.StatusTooManyRequests {
			return CategoryRateLimit
		}
		return CategoryServer
	case KindTimeout, KindNetwork:
		return CategoryTransport
	case KindValidation:
		return CategoryValidation
	default:
		return CategoryUnknown
	}
}
