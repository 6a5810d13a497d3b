package engine

import (
	"context"
	"errors"
)

// transient is implemented by errors that are worth retrying
type transient interface {
	Transient() bool
}

// TransientError marks a wrapped error as retryable
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string   { return e.Err.Error() }
func (e *TransientError) Unwrap() error   { return e.Err }
func (e *TransientError) Transient() bool { return true }

// IsTransient classifies an error as retryable or fatal. Errors flag
// themselves via a Transient() method; timeouts count as transient.
func IsTransient(err error) bool {
	var t transient
	if errors.As(err, &t) {
		return t.Transient()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
