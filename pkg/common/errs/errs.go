// Package errs holds the error taxonomy shared by the PII store, the clinical
// store and the linkage layer. Callers match on these with errors.As.
package errs

import (
	"errors"
	"fmt"
)

const (
	StorePII      = "pii"
	StoreClinical = "clinical"
)

// ValidationError is a missing or malformed field on create or update.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// SecurityViolation is a PII-shaped field on its way into the clinical store.
type SecurityViolation struct {
	Field     string
	LinkingID string
}

func (e *SecurityViolation) Error() string {
	return fmt.Sprintf("security violation: personal field %q not allowed in clinical data", e.Field)
}

// StoreUnavailable wraps a failure of the underlying store, including timeouts.
type StoreUnavailable struct {
	Store string
	Op    string
	Err   error
}

func (e *StoreUnavailable) Error() string {
	return fmt.Sprintf("%s store unavailable during %s: %v", e.Store, e.Op, e.Err)
}

func (e *StoreUnavailable) Unwrap() error {
	return e.Err
}

func Unavailable(store, op string, err error) error {
	return &StoreUnavailable{Store: store, Op: op, Err: err}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsSecurityViolation(err error) bool {
	var sv *SecurityViolation
	return errors.As(err, &sv)
}

func IsUnavailable(err error) bool {
	var su *StoreUnavailable
	return errors.As(err, &su)
}
