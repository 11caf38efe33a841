package dynamo

import (
	"errors"
	"fmt"
)

// Error kinds shared by every primitive component. Callers match them with errors.Is.
var (
	// ErrPrecondition indicates a call made in the wrong lifecycle state or with bad arguments.
	ErrPrecondition = errors.New("dmp: precondition violated")

	// ErrValidity indicates a component or input failed its validity check.
	ErrValidity = errors.New("dmp: validity check failed")

	// ErrNumericDivergence indicates a NaN or Inf appeared while integrating.
	ErrNumericDivergence = errors.New("dmp: numeric divergence (NaN or Inf detected)")

	// ErrCapacityExceeded indicates a fixed-capacity buffer is full.
	ErrCapacityExceeded = errors.New("dmp: capacity exceeded")

	// ErrDimensionMismatch indicates mismatched vector dimensions. It is a precondition failure.
	ErrDimensionMismatch = fmt.Errorf("%w: dimension mismatch", ErrPrecondition)

	// ErrNotStarted indicates a step or query before Start. It is a precondition failure.
	ErrNotStarted = fmt.Errorf("%w: not started", ErrPrecondition)
)

// StepError wraps an error with the tick it happened on.
type StepError struct {
	Component string
	Step      int
	Time      float64
	Wrapped   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step %d (t=%.4f): %v", e.Component, e.Step, e.Time, e.Wrapped)
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}
