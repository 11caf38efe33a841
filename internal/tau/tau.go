// Package tau holds the movement duration shared by every system of a primitive.
package tau

import (
	"math"

	"github.com/pkg/errors"

	"github.com/san-kum/dmp/internal/dynamo"
)

// System holds τ and the reference duration it is compared against. Readers
// fetch τ every tick, so a change made mid-motion applies from the next tick.
type System struct {
	tau       float64
	reference float64
}

func New(tau, reference float64) (*System, error) {
	if !positive(reference) {
		return nil, errors.Wrapf(dynamo.ErrPrecondition, "tau reference must be positive and finite, got %f", reference)
	}
	if !positive(tau) {
		return nil, errors.Wrapf(dynamo.ErrPrecondition, "tau must be positive and finite, got %f", tau)
	}
	return &System{tau: tau, reference: reference}, nil
}

func (s *System) Tau() float64       { return s.tau }
func (s *System) Reference() float64 { return s.reference }

func (s *System) SetTau(v float64) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if !positive(v) {
		return errors.Wrapf(dynamo.ErrPrecondition, "tau must be positive and finite, got %f", v)
	}
	s.tau = v
	return nil
}

// TauRelative returns τ divided by the reference duration. Every system scales
// its dynamics by this ratio.
func (s *System) TauRelative() (float64, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	return s.tau / s.reference, nil
}

func (s *System) Validate() error {
	if s == nil || !positive(s.reference) || !positive(s.tau) {
		return errors.Wrap(dynamo.ErrValidity, "tau system not initialized")
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}
