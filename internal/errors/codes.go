// Package errors provides structured error handling for the retrieval core.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (record store, persistence)
//   - 3XX: Query errors (deadline, availability)
//   - 4XX: Validation errors
//   - 5XX: Index and internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates record store and persistence errors.
	CategoryStorage Category = "STORAGE"
	// CategoryQuery indicates query execution errors.
	CategoryQuery Category = "QUERY"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryIndex indicates index maintenance and internal errors.
	CategoryIndex Category = "INDEX"
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
	ErrCodeConfigInvalid = "ERR_101_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeNotFound     = "ERR_201_NOT_FOUND"
	ErrCodeStoreCorrupt = "ERR_202_STORE_CORRUPT"
	ErrCodeStoreClosed  = "ERR_203_STORE_CLOSED"

	// Query errors (300-399)
	ErrCodeTimeout          = "ERR_301_TIMEOUT"
	ErrCodeIndexUnavailable = "ERR_302_INDEX_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeMissingVector     = "ERR_403_MISSING_VECTOR"
	ErrCodeEmptyQuery        = "ERR_404_EMPTY_QUERY"
	ErrCodeMetricMismatch    = "ERR_405_METRIC_MISMATCH"

	// Index and internal errors (500-599)
	ErrCodeInternal           = "ERR_501_INTERNAL"
	ErrCodeIndexInconsistency = "ERR_502_INDEX_INCONSISTENCY"
	ErrCodeRebuildFailed      = "ERR_503_REBUILD_FAILED"
	ErrCodeIndexFailed        = "ERR_504_INDEX_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryIndex
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryQuery
	case '4':
		return CategoryValidation
	default:
		return CategoryIndex
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeStoreCorrupt:
		return SeverityFatal
	case ErrCodeNotFound, ErrCodeTimeout:
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeTimeout, ErrCodeIndexUnavailable, ErrCodeIndexInconsistency:
		return true
	default:
		return false
	}
}
