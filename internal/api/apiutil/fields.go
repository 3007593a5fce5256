package apiutil

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// PathValue returns a trimmed, required path parameter.
func PathValue(r *http.Request, name string) (string, error) {
	value := strings.TrimSpace(r.PathValue(name))
	if value == "" {
		return "", FieldError{Field: name, Reason: "is required"}
	}
	return value, nil
}

func ParseNonNegativeIntField(value int, field string) (int, error) {
	if value < 0 {
		return 0, FieldError{Field: field, Reason: "must be 0 or greater"}
	}
	return value, nil
}

// ParseDateField accepts a calendar date or an RFC 3339 timestamp and returns
// midnight UTC of that date.
func ParseDateField(raw string, field string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, FieldError{Field: field, Reason: "is required"}
	}

	layouts := []string{
		"2006-01-02",
		time.RFC3339,
	}
	for _, layout := range layouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			y, m, d := parsed.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, FieldError{Field: field, Reason: fmt.Sprintf("must be a date (YYYY-MM-DD), got %q", raw)}
}
