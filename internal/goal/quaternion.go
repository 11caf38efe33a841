package goal

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"github.com/san-kum/dmp/internal/dynamo"
	"github.com/san-kum/dmp/internal/so3"
	"github.com/san-kum/dmp/internal/tau"
)

// convergedAngle is the goal distance below which the goal no longer moves.
const convergedAngle = 1e-12

// QuatSystem is the orientation goal system:
//
//	ω_g = −(α/τ)·log(Q_goal ∘ Q_steady*)
//	Q_goal ← exp(ω_g·dt) ∘ Q_goal
type QuatSystem struct {
	alpha   float64
	tau     *tau.System
	current dynamo.QuatState
	steady  quat.Number
	started bool
	diag    dynamo.Diagnostics
}

func NewQuat(alpha float64, ts *tau.System, diag dynamo.Diagnostics) (*QuatSystem, error) {
	if alpha <= 0 {
		return nil, errors.Wrapf(dynamo.ErrPrecondition, "goal alpha must be positive, got %f", alpha)
	}
	if err := ts.Validate(); err != nil {
		return nil, err
	}
	if diag == nil {
		diag = dynamo.NopDiagnostics
	}
	return &QuatSystem{
		alpha:   alpha,
		tau:     ts,
		current: dynamo.NewQuatStateAt(so3.Identity),
		steady:  so3.Identity,
		diag:    diag,
	}, nil
}

func (s *QuatSystem) Start(current dynamo.QuatState, steady quat.Number) error {
	cur, err := current.Normalized()
	if err != nil {
		return s.fail("start", err)
	}
	st, err := normalizedGoal(steady)
	if err != nil {
		return s.fail("start", err)
	}
	s.current = cur
	s.steady = st
	s.started = true
	return nil
}

func (s *QuatSystem) Step(dt float64) error {
	if !s.started {
		return s.fail("step", dynamo.ErrNotStarted)
	}
	if dt <= 0 {
		return s.fail("step", errors.Wrapf(dynamo.ErrPrecondition, "dt must be positive, got %f", dt))
	}
	next := s.current
	next.Time += dt

	diff := so3.LogDiff(s.current.Q, s.steady)
	if diff.Norm() < convergedAngle {
		next.Omega, next.Omegad = r3.Vector{}, r3.Vector{}
		next.ComputeDerivatives()
		s.current = next
		return nil
	}

	tau, err := s.tau.TauRelative()
	if err != nil {
		return s.fail("step", err)
	}
	omega := diff.Mul(-s.alpha / tau)
	next.Q = so3.Integrate(s.current.Q, omega, dt)
	next.Omegad = omega.Sub(s.current.Omega).Mul(1 / dt)
	next.Omega = omega
	next.ComputeDerivatives()
	if err := next.Validate(); err != nil {
		return s.fail("step", errors.Wrap(dynamo.ErrNumericDivergence, err.Error()))
	}
	s.current = next
	return nil
}

func (s *QuatSystem) Alpha() float64            { return s.alpha }
func (s *QuatSystem) IsStarted() bool           { return s.started }
func (s *QuatSystem) Current() dynamo.QuatState { return s.current }
func (s *QuatSystem) Steady() quat.Number       { return s.steady }

// SetSteady re-targets the steady-state goal. The current goal keeps moving from where it is.
func (s *QuatSystem) SetSteady(steady quat.Number) error {
	st, err := normalizedGoal(steady)
	if err != nil {
		return s.fail("set steady", err)
	}
	s.steady = st
	return nil
}

func (s *QuatSystem) SetCurrent(current dynamo.QuatState) error {
	cur, err := current.Normalized()
	if err != nil {
		return s.fail("set current", err)
	}
	s.current = cur
	return nil
}

func (s *QuatSystem) Validate() error {
	if s.tau == nil {
		return errors.Wrap(dynamo.ErrValidity, "goal system has no tau system")
	}
	if err := s.tau.Validate(); err != nil {
		return err
	}
	if !so3.IsUnit(s.steady, so3.NormTolerance) {
		return errors.Wrap(dynamo.ErrValidity, "steady goal is not a unit quaternion")
	}
	return s.current.Validate()
}

func (s *QuatSystem) fail(op string, err error) error {
	s.diag.Report("goal", op, err)
	return err
}

func normalizedGoal(q quat.Number) (quat.Number, error) {
	if !so3.IsUnit(q, so3.InputTolerance) {
		return q, errors.Wrapf(dynamo.ErrValidity, "goal quaternion norm %.6f is not unit", so3.Norm(q))
	}
	n, _ := so3.Normalize(q)
	return n, nil
}
