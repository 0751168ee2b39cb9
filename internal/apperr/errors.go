// Package apperr defines the error taxonomy shared by the ledger, the
// certificate issuer and the registration workflow.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidQuery  = errors.New("invalid query: registration number or national id is required")
	ErrValidation    = errors.New("validation failed")
	ErrPersistence   = errors.New("persistence failed")
	ErrChainBroken   = errors.New("ledger chain broken")
	ErrIncomplete    = errors.New("registration incomplete")

	// ErrCertificatePending marks a registration whose record is durable but
	// whose certificate could not be saved. The certificate is backfilled on
	// the next load; callers must not register the parcel again.
	ErrCertificatePending = errors.New("record saved, certificate pending")
)

// ValidationError is a batch of field-level constraint violations.
// Fields maps the field name to a human-readable reason.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is reports ErrValidation as a match so callers can use errors.Is.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Field returns a single-field validation error.
func Field(name, reason string) *ValidationError {
	return &ValidationError{Fields: map[string]string{name: reason}}
}

// FromValidation converts ozzo-validation output into a *ValidationError.
// Nil in, nil out. Internal rule errors (misconfigured rules) are returned
// unchanged since they are not user-correctable.
func FromValidation(err error) error {
	if err == nil {
		return nil
	}
	var internal validation.InternalError
	if errors.As(err, &internal) {
		return err
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return &ValidationError{Fields: map[string]string{"": err.Error()}}
	}
	out := &ValidationError{Fields: make(map[string]string, len(errs))}
	flatten("", errs, out.Fields)
	if len(out.Fields) == 0 {
		return nil
	}
	return out
}

func flatten(prefix string, errs validation.Errors, into map[string]string) {
	for k, v := range errs {
		if v == nil {
			continue
		}
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		var nested validation.Errors
		if errors.As(v, &nested) {
			flatten(key, nested, into)
			continue
		}
		into[key] = v.Error()
	}
}

// Merge combines several validation errors into one batch. Non-validation
// errors are returned immediately.
func Merge(errs ...error) error {
	out := &ValidationError{Fields: map[string]string{}}
	for _, err := range errs {
		if err == nil {
			continue
		}
		var ve *ValidationError
		if !errors.As(err, &ve) {
			return err
		}
		for k, v := range ve.Fields {
			out.Fields[k] = v
		}
	}
	if len(out.Fields) == 0 {
		return nil
	}
	return out
}

// PersistenceError reports a failed durable write. The in-memory state has
// already been rolled back when this error is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is reports ErrPersistence as a match so callers can use errors.Is.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// Persistence wraps err as a *PersistenceError for op.
func Persistence(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
