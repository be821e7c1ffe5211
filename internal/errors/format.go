package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// FormatForUser returns a user-friendly error message.
// If debug is true, the underlying cause and details are included.
func FormatForUser(err error, debug bool) string {
	if err == nil {
		return ""
	}

	var pe *PrometheusError
	if !errors.As(err, &pe) {
		return err.Error()
	}

	var sb strings.Builder

	sb.WriteString("Error: ")
	sb.WriteString(pe.Message)
	sb.WriteString("\n")

	if debug {
		if pe.Cause != nil {
			sb.WriteString("Cause: ")
			sb.WriteString(pe.Cause.Error())
			sb.WriteString("\n")
		}
		for _, k := range sortedKeys(pe.Details) {
			sb.WriteString(fmt.Sprintf("  %s: %s\n", k, pe.Details[k]))
		}
	}

	if pe.Suggestion != "" {
		sb.WriteString("\nSuggestion: ")
		sb.WriteString(pe.Suggestion)
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("\n[%s]", pe.Code))

	return sb.String()
}

// FormatForCLI formats an error for CLI output.
// Uses a concise format suitable for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	var pe *PrometheusError
	if !errors.As(err, &pe) {
		pe = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Error: %s\n", pe.Message))
	if pe.Cause != nil && pe.Cause.Error() != pe.Message {
		sb.WriteString(fmt.Sprintf("  Cause: %v\n", pe.Cause))
	}

	if pe.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", pe.Suggestion))
	}

	sb.WriteString(fmt.Sprintf("  Code: %s\n", pe.Code))

	return sb.String()
}

// jsonError is the JSON representation of an error.
type jsonError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Severity   string            `json:"severity"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
}

// FormatJSON returns a JSON representation of the error.
// Suitable for machine consumption and structured logging.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	var pe *PrometheusError
	if !errors.As(err, &pe) {
		pe = Wrap(ErrCodeInternal, err)
	}

	je := jsonError{
		Code:       pe.Code,
		Message:    pe.Message,
		Category:   string(pe.Category),
		Severity:   string(pe.Severity),
		Details:    pe.Details,
		Suggestion: pe.Suggestion,
	}

	if pe.Cause != nil {
		je.Cause = pe.Cause.Error()
	}

	return json.Marshal(je)
}

// FormatForLog formats an error for structured logging.
// Returns slog-compatible alternating key-value pairs.
func FormatForLog(err error) []any {
	if err == nil {
		return nil
	}

	var pe *PrometheusError
	if !errors.As(err, &pe) {
		return []any{"error", err.Error()}
	}

	attrs := []any{
		"error_code", pe.Code,
		"error", pe.Message,
		"category", string(pe.Category),
		"severity", string(pe.Severity),
	}

	if pe.Cause != nil {
		attrs = append(attrs, "cause", pe.Cause.Error())
	}

	for _, k := range sortedKeys(pe.Details) {
		attrs = append(attrs, "detail_"+k, pe.Details[k])
	}

	return attrs
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
