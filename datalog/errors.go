package datalog

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedQuery is returned before a search starts when a pattern or
	// query is not well formed
	ErrMalformedQuery = errors.New("malformed query")

	// ErrMalformedRule is returned when a rule is not well formed or a rule
	// application is inconsistent with the rule
	ErrMalformedRule = errors.New("malformed rule")
)

// StoreError wraps a failure of a fact collection operation with the atom
// being processed, if any
type StoreError struct {
	Op   string // contains, add, iterate, terms, ...
	Atom *Atom
	Err  error
}

func (e *StoreError) Error() string {
	if e.Atom != nil {
		return fmt.Sprintf("store %s %s: %v", e.Op, e.Atom, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError wraps err unless it is nil or already a StoreError
func NewStoreError(op string, atom *Atom, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Atom: atom, Err: err}
}

// IsStoreError reports whether err carries a StoreError
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

func malformedRule(label, format string, args ...interface{}) error {
	if label != "" {
		return fmt.Errorf("%w [%s]: %s", ErrMalformedRule, label, fmt.Sprintf(format, args...))
	}
	return fmt.Errorf("%w: %s", ErrMalformedRule, fmt.Sprintf(format, args...))
}
