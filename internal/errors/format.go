package errors

import (
	"fmt"
	"sort"
	"strings"
)

// FormatForCLI formats an error for command-line output, including the
// suggestion when present.
func FormatForCLI(err error) string {
	qe, ok := err.(*QuarryError)
	if !ok {
		return fmt.Sprintf("Error: %s", err.Error())
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Error [%s]: %s", qe.Code, qe.Message))
	if len(qe.Details) > 0 {
		keys := make([]string, 0, len(qe.Details))
		for k := range qe.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(fmt.Sprintf("\n  %s: %s", k, qe.Details[k]))
		}
	}
	if qe.Suggestion != "" {
		b.WriteString(fmt.Sprintf("\nSuggestion: %s", qe.Suggestion))
	}
	return b.String()
}

// FormatForLog returns structured key-value pairs for slog.
func FormatForLog(err error) []any {
	qe, ok := err.(*QuarryError)
	if !ok {
		return []any{"error", err.Error()}
	}

	attrs := []any{
		"error_code", qe.Code,
		"error_message", qe.Message,
		"category", string(qe.Category),
		"severity", string(qe.Severity),
	}
	if qe.Cause != nil {
		attrs = append(attrs, "cause", qe.Cause.Error())
	}
	for k, v := range qe.Details {
		attrs = append(attrs, "detail_"+k, v)
	}
	return attrs
}
