package model

import (
	"fmt"
	"strings"
)

// MaxListCount bounds the count accepted by the API layer.
const MaxListCount = 1000

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) err() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// ValidSeverity reports whether s is within [MinSeverity, MaxSeverity].
func ValidSeverity(s int) bool {
	return s >= MinSeverity && s <= MaxSeverity
}

// ClampSeverity forces s into [MinSeverity, MaxSeverity].
func ClampSeverity(s int) int {
	return max(MinSeverity, min(MaxSeverity, s))
}

// ValidateCreate checks the inputs of an event creation.
func ValidateCreate(eventType string, severity int) error {
	var ve ValidationError
	if strings.TrimSpace(eventType) == "" {
		ve.add("event_type", "is required")
	}
	if !ValidSeverity(severity) {
		ve.add("severity", "must be between %d and %d, got %d", MinSeverity, MaxSeverity, severity)
	}
	return ve.err()
}

// ValidateUpdate checks an update request.
func ValidateUpdate(u EventUpdate) error {
	var ve ValidationError
	if u.IsEmpty() {
		ve.add("update", "at least one of data, severity or type is required")
	}
	if u.Type != nil && strings.TrimSpace(*u.Type) == "" {
		ve.add("type", "must not be empty")
	}
	if u.Severity != nil && !ValidSeverity(*u.Severity) {
		ve.add("severity", "must be between %d and %d, got %d", MinSeverity, MaxSeverity, *u.Severity)
	}
	return ve.err()
}

// ValidateFilter checks list parameters as accepted at the API boundary.
func ValidateFilter(f EventFilter) error {
	var ve ValidationError
	if f.Count < 1 || f.Count > MaxListCount {
		ve.add("count", "must be between 1 and %d, got %d", MaxListCount, f.Count)
	}
	if f.MinSeverity != nil && !ValidSeverity(*f.MinSeverity) {
		ve.add("min_severity", "must be between %d and %d, got %d", MinSeverity, MaxSeverity, *f.MinSeverity)
	}
	if !f.OrderBy.IsValid() {
		ve.add("order_by", "invalid value %q", f.OrderBy)
	}
	return ve.err()
}
