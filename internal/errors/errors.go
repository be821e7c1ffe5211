package errors

import (
	"errors"
	"fmt"
)

// PrometheusError is the structured error type for Prometheus.
// It carries enough context to decide the recovery granularity of a failure
// (fatal, per archive, per entry) and to report it to the user.
type PrometheusError struct {
	// Code is the unique error code (e.g., "ERR_201_ARCHIVE_INVALID").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Archive, Database, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *PrometheusError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *PrometheusError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with PrometheusError.
func (e *PrometheusError) Is(target error) bool {
	if t, ok := target.(*PrometheusError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *PrometheusError) WithDetail(key, value string) *PrometheusError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *PrometheusError) WithSuggestion(suggestion string) *PrometheusError {
	e.Suggestion = suggestion
	return e
}

// New creates a new PrometheusError with the given code and message.
// Category and severity are derived from the code.
func New(code string, message string, cause error) *PrometheusError {
	return &PrometheusError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Wrap creates a PrometheusError from an existing error.
// The error's message becomes the PrometheusError message.
func Wrap(code string, err error) *PrometheusError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a fatal configuration error.
func ConfigError(message string, cause error) *PrometheusError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// PatternCompileError creates a fatal error for an expression that cannot be compiled.
func PatternCompileError(pattern string, cause error) *PrometheusError {
	return New(ErrCodePatternCompile, fmt.Sprintf("pattern %q does not compile", pattern), cause).
		WithDetail("pattern", pattern)
}

// ArchiveError creates an error scoped to one archive.
func ArchiveError(path, message string, cause error) *PrometheusError {
	return New(ErrCodeArchiveInvalid, message, cause).WithDetail("archive", path)
}

// ArchiveLimitError creates an archive error for a container that exceeds a
// configured ceiling (depth, entry count, size or compression ratio).
func ArchiveLimitError(path, message string) *PrometheusError {
	return New(ErrCodeArchiveLimit, message, nil).WithDetail("archive", path)
}

// DatabaseError creates an error scoped to one database entry.
func DatabaseError(entry, message string, cause error) *PrometheusError {
	return New(ErrCodeDatabaseInvalid, message, cause).WithDetail("entry", entry)
}

// EntryReadError creates an error scoped to one document entry.
func EntryReadError(entry, message string, cause error) *PrometheusError {
	return New(ErrCodeEntryRead, message, cause).WithDetail("entry", entry)
}

// Timeout creates an error for a unit that exceeded its wall-clock ceiling.
func Timeout(unit string, cause error) *PrometheusError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s exceeded its time ceiling", unit), cause).
		WithDetail("unit", unit)
}

// Canceled creates an error for a unit interrupted by a user abort.
func Canceled(unit string) *PrometheusError {
	return New(ErrCodeCanceled, unit+" interrupted by cancellation", nil).
		WithDetail("unit", unit)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *PrometheusError {
	return New(ErrCodeInternal, message, cause)
}

// IsFatal checks if an error has fatal severity anywhere in its chain.
// Fatal errors abort the run before any result is produced.
func IsFatal(err error) bool {
	var pe *PrometheusError
	if errors.As(err, &pe) {
		return pe.Severity == SeverityFatal
	}
	return false
}

// IsTimeout reports whether err is a timeout error.
func IsTimeout(err error) bool {
	return GetCode(err) == ErrCodeTimeout
}

// GetCode extracts the error code from a PrometheusError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var pe *PrometheusError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// GetCategory extracts the category from a PrometheusError in the chain.
// Returns empty string if there is none.
func GetCategory(err error) Category {
	var pe *PrometheusError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}
