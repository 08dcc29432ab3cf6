package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is the AuthenticationError: a missing or invalid
	// identity token, or a user without stored credentials.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNotFound is returned by stores when a row does not exist.
	ErrNotFound = errors.New("not found")
)

// ConfigurationError means an agent could not be built. No partially
// configured agent is ever handed out.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration: %s: %v", e.Reason, e.Err)
	}
	return "configuration: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// PersistenceError is a storage write that failed after retries.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
