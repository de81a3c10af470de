package errors

import (
	"fmt"
)

// FuseError is the structured error type for parafuse.
// It provides context for error handling, logging, and degradation decisions.
type FuseError struct {
	// Code is the unique error code (e.g., "ERR_402_QUERY_EMPTY").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *FuseError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *FuseError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with FuseError.
func (e *FuseError) Is(target error) bool {
	if t, ok := target.(*FuseError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *FuseError) WithDetail(key, value string) *FuseError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new FuseError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *FuseError {
	return &FuseError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a FuseError from an existing error.
// The error's message becomes the FuseError message.
func Wrap(code string, err error) *FuseError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// InvalidInput creates a validation error for rejected caller input.
func InvalidInput(message string) *FuseError {
	return New(ErrCodeInvalidInput, message, nil)
}

// EmptyQuery creates the error returned for empty or whitespace-only queries.
func EmptyQuery() *FuseError {
	return New(ErrCodeQueryEmpty, "query cannot be empty", nil)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *FuseError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// UnknownVotingMethod creates the error for an unrecognized fusion method name.
// This is a caller programming error, never a runtime data condition.
func UnknownVotingMethod(method string) *FuseError {
	return New(ErrCodeUnknownVotingMethod,
		fmt.Sprintf("unknown voting method: %q", method), nil).
		WithDetail("method", method)
}

// CollaboratorError wraps a failure from an external collaborator
// (embedding service, vector store, paraphrase source).
func CollaboratorError(code string, collaborator string, cause error) *FuseError {
	e := Wrap(code, cause)
	if e != nil {
		e.WithDetail("collaborator", collaborator)
	}
	return e
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a FuseError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if fe, ok := err.(*FuseError); ok {
		return fe.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors surface to the caller and must never trigger degradation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if fe, ok := err.(*FuseError); ok {
		return fe.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a FuseError.
// Returns empty string if not a FuseError.
func GetCode(err error) string {
	if fe, ok := err.(*FuseError); ok {
		return fe.Code
	}
	return ""
}

// GetCategory extracts the category from a FuseError.
// Returns empty string if not a FuseError.
func GetCategory(err error) Category {
	if fe, ok := err.(*FuseError); ok {
		return fe.Category
	}
	return ""
}
