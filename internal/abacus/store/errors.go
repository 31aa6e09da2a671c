package store

import (
	"errors"
	"fmt"
)

var (
	ErrWriteFailed   = errors.New("history write failed")
	ErrReadFailed    = errors.New("history read failed")
	ErrInvalidRecord = errors.New("expression and result are required")
	ErrClosed        = errors.New("history store closed")
)

// PersistenceError reports a failed store operation. Kind is ErrWriteFailed
// or ErrReadFailed; errors.Is matches both Kind and the underlying cause.
type PersistenceError struct {
	Op   string
	Kind error
	Err  error
}

func (e *PersistenceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func WriteFailed(op string, err error) error {
	return &PersistenceError{Op: op, Kind: ErrWriteFailed, Err: err}
}

func ReadFailed(op string, err error) error {
	return &PersistenceError{Op: op, Kind: ErrReadFailed, Err: err}
}
