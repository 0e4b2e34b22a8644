// Package errors defines the structured error taxonomy for the governance layer.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrTypeRateLimit represents a request denied because a policy window is exhausted
	ErrTypeRateLimit ErrorType = "rate_limit"
	// ErrTypeIdentifier represents a client identifier that could not be resolved
	ErrTypeIdentifier ErrorType = "identifier"
	// ErrTypeStore represents a key-value store failure
	ErrTypeStore ErrorType = "store"
	// ErrTypeInvalidKey represents an empty or malformed cache key
	ErrTypeInvalidKey ErrorType = "invalid_key"
	// ErrTypeValidation represents validation errors
	ErrTypeValidation ErrorType = "validation"
	// ErrTypeNotFound represents resource not found errors
	ErrTypeNotFound ErrorType = "not_found"
	// ErrTypeAuth represents authentication errors
	ErrTypeAuth ErrorType = "authentication"
	// ErrTypeConfig represents configuration errors
	ErrTypeConfig ErrorType = "config"
	// ErrTypeInternal represents internal system errors
	ErrTypeInternal ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	parts := []string{string(e.Type), e.Message}

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context={%s}", strings.Join(contextParts, ", ")))
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// RateLimitExceeded creates an error for a request denied by a rate-limit policy.
// Limit and retry-after are attached as context so transports can surface them.
func RateLimitExceeded(msg string, limit int, retryAfter time.Duration) *AppError {
	e := &AppError{
		Type:    ErrTypeRateLimit,
		Message: msg,
	}
	return e.WithContext("limit", limit).WithContext("retry_after", retryAfter)
}

// IdentifierUnavailable creates an error for an unresolvable client identifier
func IdentifierUnavailable(policy string) *AppError {
	return &AppError{
		Type:    ErrTypeIdentifier,
		Message: fmt.Sprintf("client identifier could not be resolved for policy %s", policy),
	}
}

// StoreError creates a new key-value store error
func StoreError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeStore,
		Message: msg,
		Cause:   cause,
	}
}

// InvalidKey creates an error for an empty or malformed store key
func InvalidKey(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeInvalidKey,
		Message: msg,
	}
}

// ValidationError creates a new validation error
func ValidationError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeValidation,
		Message: msg,
	}
}

// NotFoundError creates a new not found error
func NotFoundError(resource string) *AppError {
	return &AppError{
		Type:    ErrTypeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// AuthError creates a new authentication error
func AuthError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeAuth,
		Message: msg,
	}
}

// ConfigError creates a new configuration error
func ConfigError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeConfig,
		Message: msg,
	}
}

// InternalError creates a new internal error
func InternalError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeInternal,
		Message: msg,
		Cause:   cause,
	}
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}

	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}

	return appErr.Type == errType
}

// GetType returns the error type if it's an AppError, otherwise returns ErrTypeInternal
func GetType(err error) ErrorType {
	if err == nil {
		return ""
	}

	appErr, ok := err.(*AppError)
	if !ok {
		return ErrTypeInternal
	}

	return appErr.Type
}

// RetryAfter extracts a retry-after duration from a rate-limit error
func RetryAfter(err error) (time.Duration, bool) {
	appErr, ok := err.(*AppError)
	if !ok || appErr.Type != ErrTypeRateLimit {
		return 0, false
	}
	d, ok := appErr.Context["retry_after"].(time.Duration)
	return d, ok
}
