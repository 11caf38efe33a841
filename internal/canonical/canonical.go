// Package canonical implements the phase system that drives a primitive's time course.
//
// The phase x starts at 1 and decays monotonically toward 0. First-order systems
// decay exponentially; second-order systems are a critically damped pair (x, v)
// whose velocity v starts at 0, so the forcing term it gates starts at 0 too.
package canonical

import (
	"math"

	"github.com/pkg/errors"

	"github.com/san-kum/dmp/internal/dynamo"
	"github.com/san-kum/dmp/internal/tau"
)

const (
	DefaultAlphaOrder1 = 25.0 / 3.0
	DefaultAlphaOrder2 = 25.0
)

// Coupler adds a term to the phase dynamics, e.g. to slow the phase while tracking error is large.
type Coupler interface {
	CanonicalCoupling() (float64, error)
}

type Option func(*System)

func WithAlpha(alpha float64) Option { return func(s *System) { s.alpha = alpha } }
func WithBeta(beta float64) Option   { return func(s *System) { s.beta = beta } }

func WithCouplers(c ...Coupler) Option {
	return func(s *System) { s.couplers = append(s.couplers, c...) }
}

func WithDiagnostics(d dynamo.Diagnostics) Option {
	return func(s *System) { s.diag = d }
}

type System struct {
	order int
	alpha float64
	beta  float64
	tau   *tau.System

	x, xd, xdd float64
	v, vd      float64
	started    bool

	couplers []Coupler
	diag     dynamo.Diagnostics
}

func New(ts *tau.System, order int, opts ...Option) (*System, error) {
	if order != 1 && order != 2 {
		return nil, errors.Wrapf(dynamo.ErrPrecondition, "canonical order must be 1 or 2, got %d", order)
	}
	if err := ts.Validate(); err != nil {
		return nil, err
	}
	s := &System{order: order, tau: ts, x: 1, diag: dynamo.NopDiagnostics}
	if order == 1 {
		s.alpha = DefaultAlphaOrder1
	} else {
		s.alpha = DefaultAlphaOrder2
	}
	s.beta = s.alpha / 4
	for _, opt := range opts {
		opt(s)
	}
	if s.alpha <= 0 || (order == 2 && s.beta <= 0) {
		return nil, errors.Wrapf(dynamo.ErrPrecondition, "canonical gains must be positive, alpha=%f beta=%f", s.alpha, s.beta)
	}
	return s, nil
}

// Start resets the phase to x=1 at rest.
func (s *System) Start() error {
	if err := s.Validate(); err != nil {
		return s.fail("start", err)
	}
	s.x, s.xd, s.xdd = 1, 0, 0
	s.v, s.vd = 0, 0
	s.started = true
	return nil
}

// Step advances the phase by dt with explicit Euler, reading τ fresh.
func (s *System) Step(dt float64) error {
	if !s.started {
		return s.fail("step", dynamo.ErrNotStarted)
	}
	if dt <= 0 {
		return s.fail("step", errors.Wrapf(dynamo.ErrPrecondition, "dt must be positive, got %f", dt))
	}
	if err := s.Validate(); err != nil {
		return s.fail("step", err)
	}
	tau, err := s.tau.TauRelative()
	if err != nil {
		return s.fail("step", err)
	}

	c := 0.0
	for _, cp := range s.couplers {
		v, err := cp.CanonicalCoupling()
		if err != nil {
			return s.fail("step", err)
		}
		c += v
	}

	x, v := s.x, s.v
	var xd, vd, xdd float64
	if s.order == 2 {
		vd = (s.alpha*(s.beta*(0-x)-v) + c) / tau
		xd = v / tau
		xdd = vd / tau
	} else {
		xd = (s.alpha*(0-x) + c) / tau
		xdd = 0
	}
	x += xd * dt
	v += vd * dt

	if math.IsNaN(x) || math.IsNaN(v) || math.IsInf(x, 0) || math.IsInf(v, 0) {
		return s.fail("step", errors.Wrap(dynamo.ErrNumericDivergence, "canonical state"))
	}
	s.x, s.v, s.xd, s.vd, s.xdd = x, v, xd, vd, xdd
	return nil
}

func (s *System) Order() int             { return s.order }
func (s *System) Alpha() float64         { return s.alpha }
func (s *System) Beta() float64          { return s.beta }
func (s *System) IsStarted() bool        { return s.started }
func (s *System) Tau() *tau.System       { return s.tau }
func (s *System) Phase() float64         { return s.x }
func (s *System) PhaseVelocity() float64 { return s.v }

// Multiplier is the scalar that gates the forcing term: x for order 1, v for order 2.
func (s *System) Multiplier() float64 {
	if s.order == 1 {
		return s.x
	}
	return s.v
}

// State returns the phase position, velocity and acceleration.
func (s *System) State() (x, xd, xdd float64) {
	return s.x, s.xd, s.xdd
}

func (s *System) Validate() error {
	if s == nil || s.tau == nil {
		return errors.Wrap(dynamo.ErrValidity, "canonical system has no tau system")
	}
	if err := s.tau.Validate(); err != nil {
		return err
	}
	if s.order != 1 && s.order != 2 {
		return errors.Wrapf(dynamo.ErrValidity, "canonical order %d", s.order)
	}
	if math.IsNaN(s.x) || math.IsNaN(s.v) {
		return errors.Wrap(dynamo.ErrValidity, "canonical state is NaN")
	}
	return nil
}

func (s *System) fail(op string, err error) error {
	s.diag.Report("canonical", op, err)
	return err
}
