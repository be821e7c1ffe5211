// Package errors provides structured error handling for Prometheus.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration and pattern errors (fatal, abort before scanning)
//   - 2XX: Archive errors (recovered per archive)
//   - 3XX: Database errors (recovered per database entry)
//   - 4XX: Entry read errors (recovered per document entry)
//   - 5XX: Timeouts (recovered per unit that exceeded its ceiling)
//   - 9XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration or pattern-definition errors.
	CategoryConfig Category = "CONFIG"
	// CategoryArchive indicates an unreadable, corrupt or out-of-limits container.
	CategoryArchive Category = "ARCHIVE"
	// CategoryDatabase indicates an unreadable embedded relational store.
	CategoryDatabase Category = "DATABASE"
	// CategoryEntry indicates a malformed or undecodable document entry.
	CategoryEntry Category = "ENTRY"
	// CategoryTimeout indicates a wall-clock ceiling was exceeded.
	CategoryTimeout Category = "TIMEOUT"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the unit failed but the run continues.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodePatternCompile = "ERR_103_PATTERN_COMPILE"
	ErrCodeInvalidRoot    = "ERR_104_INVALID_ROOT"

	// Archive errors (200-299)
	ErrCodeArchiveInvalid = "ERR_201_ARCHIVE_INVALID"
	ErrCodeArchiveLimit   = "ERR_202_ARCHIVE_LIMIT"

	// Database errors (300-399)
	ErrCodeDatabaseInvalid = "ERR_301_DATABASE_INVALID"
	ErrCodeDatabaseLocked  = "ERR_302_DATABASE_LOCKED"

	// Entry errors (400-499)
	ErrCodeEntryRead = "ERR_401_ENTRY_READ"

	// Timeouts (500-599)
	ErrCodeTimeout  = "ERR_501_TIMEOUT"
	ErrCodeCanceled = "ERR_502_CANCELED"

	// Internal errors (900-999)
	ErrCodeInternal = "ERR_901_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Numeric portion, e.g. "201" from "ERR_201_ARCHIVE_INVALID"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryArchive
	case '3':
		return CategoryDatabase
	case '4':
		return CategoryEntry
	case '5':
		return CategoryTimeout
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch categoryFromCode(code) {
	case CategoryConfig:
		return SeverityFatal
	case CategoryTimeout:
		return SeverityWarning
	default:
		return SeverityError
	}
}
