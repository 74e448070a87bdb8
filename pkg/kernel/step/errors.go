package step

import (
	"errors"
	"fmt"
)

// StructuralError marks an adapter or precondition failure that cannot
// resolve on its own. Everything else crossing into the step layer is
// treated as transient.
type StructuralError struct {
	Reason string
	Err    error
}

func (e *StructuralError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *StructuralError) Unwrap() error { return e.Err }

// Structural builds a StructuralError.
func Structural(reason string) error {
	return &StructuralError{Reason: reason}
}

// Structuralf builds a StructuralError with a formatted reason.
func Structuralf(format string, args ...any) error {
	return &StructuralError{Reason: fmt.Sprintf(format, args...)}
}

// IsStructural reports whether err (or anything it wraps) is structural.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// Classify translates an error from the adapter boundary into an Outcome.
// nil maps to Success so callers can use it uniformly.
func Classify(err error) Outcome {
	if err == nil {
		return Success(nil)
	}
	var se *StructuralError
	if errors.As(err, &se) {
		return Failed(se.Error())
	}
	return Retryf("%v", err)
}
