package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// ValidateRequired returns an error if the value is empty or whitespace-only.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   field,
			Message: "is required",
		}
	}
	return nil
}

// ValidateMaxLength returns an error if the value exceeds max runes.
func ValidateMaxLength(field, value string, max int) *ValidationError {
	if utf8.RuneCountInString(value) > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", max),
		}
	}
	return nil
}

// ValidateEnum returns an error if the value is not in the allowed list.
func ValidateEnum(field, value string, allowed []string) *ValidationError {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidatePositiveID returns an error unless the value is a positive
// integer identifier.
func ValidatePositiveID(field string, value int) *ValidationError {
	if value <= 0 {
		return &ValidationError{
			Field:   field,
			Message: "must be a positive id",
		}
	}
	return nil
}

// ValidateHour returns an error if the value is not a valid hour of day.
// The bot send window is expressed in whole local hours.
func ValidateHour(field string, value int) *ValidationError {
	if value < 0 || value > 23 {
		return &ValidationError{
			Field:   field,
			Message: "must be between 0 and 23",
		}
	}
	return nil
}

// ValidateNonNegative returns an error if the value is negative.
func ValidateNonNegative(field string, value int) *ValidationError {
	if value < 0 {
		return &ValidationError{
			Field:   field,
			Message: "must not be negative",
		}
	}
	return nil
}

// ValidateJSONObject returns an error unless the value parses as a JSON
// object. Used for the free-form extra_config editor.
func ValidateJSONObject(field, value string) *ValidationError {
	var m map[string]any
	if err := json.Unmarshal([]byte(value), &m); err != nil {
		return &ValidationError{
			Field:   field,
			Message: "must be a valid JSON object",
		}
	}
	return nil
}
