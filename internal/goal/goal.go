// Package goal implements the goal-evolution systems. The current goal moves
// smoothly toward the steady-state goal, so re-targeting never produces a jump.
package goal

import (
	"github.com/pkg/errors"

	"github.com/san-kum/dmp/internal/dynamo"
	"github.com/san-kum/dmp/internal/tau"
)

const DefaultAlpha = 25.0 / 2.0

// System is the Cartesian goal system: ġ = α(G − g)/τ.
type System struct {
	dim     int
	alpha   float64
	tau     *tau.System
	current dynamo.State
	steady  []float64
	next    []float64
	started bool
	diag    dynamo.Diagnostics
}

func New(dim int, alpha float64, ts *tau.System, diag dynamo.Diagnostics) (*System, error) {
	if dim <= 0 {
		return nil, errors.Wrapf(dynamo.ErrPrecondition, "goal dimension must be positive, got %d", dim)
	}
	if alpha <= 0 {
		return nil, errors.Wrapf(dynamo.ErrPrecondition, "goal alpha must be positive, got %f", alpha)
	}
	if err := ts.Validate(); err != nil {
		return nil, err
	}
	if diag == nil {
		diag = dynamo.NopDiagnostics
	}
	return &System{
		dim:     dim,
		alpha:   alpha,
		tau:     ts,
		current: dynamo.NewState(dim),
		steady:  make([]float64, dim),
		next:    make([]float64, dim),
		diag:    diag,
	}, nil
}

// Start sets the current goal state and the steady-state goal position.
func (s *System) Start(current dynamo.State, steady []float64) error {
	if len(steady) != s.dim {
		return s.fail("start", errors.Wrapf(dynamo.ErrDimensionMismatch, "steady goal %d, want %d", len(steady), s.dim))
	}
	if err := current.Validate(); err != nil {
		return s.fail("start", err)
	}
	if !dynamo.Finite(steady) {
		return s.fail("start", errors.Wrap(dynamo.ErrValidity, "steady goal has non-finite values"))
	}
	if err := s.current.CopyFrom(current); err != nil {
		return s.fail("start", err)
	}
	copy(s.steady, steady)
	s.started = true
	return nil
}

func (s *System) Step(dt float64) error {
	if !s.started {
		return s.fail("step", dynamo.ErrNotStarted)
	}
	if dt <= 0 {
		return s.fail("step", errors.Wrapf(dynamo.ErrPrecondition, "dt must be positive, got %f", dt))
	}
	tau, err := s.tau.TauRelative()
	if err != nil {
		return s.fail("step", err)
	}
	for i := range s.next {
		gd := s.alpha * (s.steady[i] - s.current.X[i]) / tau
		s.next[i] = s.current.X[i] + gd*dt
	}
	if !dynamo.Finite(s.next) {
		return s.fail("step", errors.Wrap(dynamo.ErrNumericDivergence, "goal position"))
	}
	for i := range s.next {
		gd := (s.next[i] - s.current.X[i]) / dt
		s.current.Xdd[i] = (gd - s.current.Xd[i]) / dt
		s.current.Xd[i] = gd
		s.current.X[i] = s.next[i]
	}
	s.current.Time += dt
	return nil
}

func (s *System) Dim() int              { return s.dim }
func (s *System) Alpha() float64        { return s.alpha }
func (s *System) IsStarted() bool       { return s.started }
func (s *System) Current() dynamo.State { return s.current }
func (s *System) Steady() []float64     { return s.steady }

// SetSteady re-targets the steady-state goal. The current goal keeps moving from where it is.
func (s *System) SetSteady(steady []float64) error {
	if len(steady) != s.dim {
		return s.fail("set steady", errors.Wrapf(dynamo.ErrDimensionMismatch, "steady goal %d, want %d", len(steady), s.dim))
	}
	if !dynamo.Finite(steady) {
		return s.fail("set steady", errors.Wrap(dynamo.ErrValidity, "steady goal has non-finite values"))
	}
	copy(s.steady, steady)
	return nil
}

// SetCurrent overwrites the current goal state.
func (s *System) SetCurrent(current dynamo.State) error {
	if err := current.Validate(); err != nil {
		return s.fail("set current", err)
	}
	if err := s.current.CopyFrom(current); err != nil {
		return s.fail("set current", err)
	}
	return nil
}

func (s *System) Validate() error {
	if s.tau == nil || s.current.Dim() != s.dim || len(s.steady) != s.dim {
		return errors.Wrap(dynamo.ErrValidity, "goal system dimensions")
	}
	if err := s.tau.Validate(); err != nil {
		return err
	}
	if !dynamo.Finite(s.steady) {
		return errors.Wrap(dynamo.ErrValidity, "steady goal has non-finite values")
	}
	return s.current.Validate()
}

func (s *System) fail(op string, err error) error {
	s.diag.Report("goal", op, err)
	return err
}
