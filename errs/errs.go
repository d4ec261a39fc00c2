// Package errs defines the error taxonomy shared by the fixfeed packages.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks invalid or missing configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrMissingField marks a required FIX field that was absent from a message.
	ErrMissingField = errors.New("missing field")
	// ErrSigning marks a failure while building the signed logon.
	ErrSigning = errors.New("signing failure")
	// ErrSessionNotFound marks a send against a session that is not logged on.
	ErrSessionNotFound = errors.New("session not found")
)

// ConfigurationError reports a configuration key that failed validation.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("configuration: %s", e.Reason)
	}
	return fmt.Sprintf("configuration %s: %s", e.Key, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// Configuration builds a ConfigurationError.
func Configuration(key, reason string) error {
	return &ConfigurationError{Key: key, Reason: reason}
}

// MissingFieldError names the absent field. Entry is the 1-based repeating
// group entry index, zero for message level fields.
type MissingFieldError struct {
	Field string
	Tag   int
	Entry int
}

func (e *MissingFieldError) Error() string {
	var where string
	if e.Entry > 0 {
		where = fmt.Sprintf(" in entry %d", e.Entry)
	}
	if e.Tag > 0 {
		return fmt.Sprintf("missing field %s (%d)%s", e.Field, e.Tag, where)
	}
	return fmt.Sprintf("missing field %s%s", e.Field, where)
}

func (e *MissingFieldError) Is(target error) bool { return target == ErrMissingField }

// MissingField builds a MissingFieldError for a message level field.
func MissingField(name string, tag int) error {
	return &MissingFieldError{Field: name, Tag: tag}
}

// MissingEntryField builds a MissingFieldError for a repeating group entry.
func MissingEntryField(name string, tag, entry int) error {
	return &MissingFieldError{Field: name, Tag: tag, Entry: entry}
}

// SigningError wraps the failure of one logon mutation step.
type SigningError struct {
	Step string
	Err  error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("signing %s: %v", e.Step, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

func (e *SigningError) Is(target error) bool { return target == ErrSigning }

// Signing builds a SigningError for the named step.
func Signing(step string, err error) error {
	return &SigningError{Step: step, Err: err}
}
