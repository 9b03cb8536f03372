package models

import "strings"

// ValidationError collects the domain-rule violations of a single entity
// payload. It is an expected, per-item outcome during push reconciliation,
// not an infrastructure failure.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

func newValidationError(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: errs}
}
