// Package errors provides structured error handling for parafuse.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 3XX: Network / collaborator errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryNetwork indicates collaborator and network errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound      = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid       = "ERR_102_CONFIG_INVALID"
	ErrCodeUnknownVotingMethod = "ERR_103_UNKNOWN_VOTING_METHOD"

	// Network / collaborator errors (300-399)
	ErrCodeNetworkTimeout          = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeCollaboratorUnavailable = "ERR_302_COLLABORATOR_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty   = "ERR_402_QUERY_EMPTY"

	// Internal errors (500-599)
	ErrCodeInternal         = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed  = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed     = "ERR_503_SEARCH_FAILED"
	ErrCodeParaphraseFailed = "ERR_504_PARAPHRASE_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Numeric portion starts at offset 4 (e.g. "101" in "ERR_101_CONFIG_NOT_FOUND")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeUnknownVotingMethod, ErrCodeConfigInvalid:
		// Deployment mistakes, never data-dependent.
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Only transient collaborator failures are retryable; configuration and
// validation failures never are.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout,
		ErrCodeCollaboratorUnavailable,
		ErrCodeEmbeddingFailed,
		ErrCodeSearchFailed,
		ErrCodeParaphraseFailed:
		return true
	}
	return false
}
