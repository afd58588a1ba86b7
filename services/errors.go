package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeUnsupported   ErrorType = "unsupported"
	ErrorTypeNotConfigured ErrorType = "not_configured"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeContract      ErrorType = "contract"
	ErrorTypeExhausted     ErrorType = "exhausted"
	ErrorTypeRateLimit     ErrorType = "rate_limit"
	ErrorTypeExternal      ErrorType = "external"
	ErrorTypeInternal      ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Sentinels for errors.Is comparisons. Matching is by Type only.
var (
	ErrConfiguration       = NewDomainError(ErrorTypeConfiguration, "invalid dispatch configuration", nil)
	ErrUnsupportedProvider = NewDomainError(ErrorTypeUnsupported, "provider not supported for mode", nil)
	ErrProviderNotConfig   = NewDomainError(ErrorTypeNotConfigured, "provider has no credentials configured", nil)
	ErrInvalidInput        = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrContractViolation   = NewDomainError(ErrorTypeContract, "adapter returned an unrecognized result shape", nil)
	ErrDispatchExhausted   = NewDomainError(ErrorTypeExhausted, "all providers failed", nil)
	ErrRateLimitExceeded   = NewDomainError(ErrorTypeRateLimit, "rate limit exceeded", nil)
	ErrProviderError       = NewDomainError(ErrorTypeExternal, "provider error", nil)
	ErrInternal            = NewDomainError(ErrorTypeInternal, "internal server error", nil)
)

// hasType walks the whole chain, so a configuration error wrapping an
// unsupported-provider error answers to both.
func hasType(err error, t ErrorType) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, &DomainError{Type: t})
}

// IsConfigurationError reports whether err was raised before any provider call
// because the dispatch request itself is malformed.
func IsConfigurationError(err error) bool {
	return hasType(err, ErrorTypeConfiguration)
}

// IsUnsupportedError checks if an error is an unsupported provider error
func IsUnsupportedError(err error) bool {
	return hasType(err, ErrorTypeUnsupported)
}

// IsNotConfiguredError checks if an error is a missing credentials error
func IsNotConfiguredError(err error) bool {
	return hasType(err, ErrorTypeNotConfigured)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsContractError checks if an error is a result shape violation
func IsContractError(err error) bool {
	return hasType(err, ErrorTypeContract)
}

// IsExhaustedError checks if every attempt of a dispatch failed
func IsExhaustedError(err error) bool {
	return hasType(err, ErrorTypeExhausted)
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	return hasType(err, ErrorTypeRateLimit)
}

// IsExternalError checks if an error is an external provider error
func IsExternalError(err error) bool {
	return hasType(err, ErrorTypeExternal)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// FindDomainError returns the first domain error of type t in the chain. It
// looks past outer domain errors of other types, which errors.As does not.
func FindDomainError(err error, t ErrorType) *DomainError {
	for err != nil {
		var domainErr *DomainError
		if !errors.As(err, &domainErr) {
			return nil
		}
		if domainErr.Type == t {
			return domainErr
		}
		err = domainErr.Err
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapConfiguration wraps an error as a configuration error
func WrapConfiguration(message string, err error) error {
	return NewDomainError(ErrorTypeConfiguration, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
