package transform

import (
	"github.com/pkg/errors"

	"github.com/san-kum/dmp/internal/dynamo"
	"github.com/san-kum/dmp/internal/goal"
)

// Cartesian is the position transformation system over ℝⁿ:
//
//	τv̇ = α(β(g − x) − v) + f⊙A + c,  v = τẋ
type Cartesian struct {
	base
	start   dynamo.State
	current dynamo.State
	eta     []float64
	etad    []float64
	goal    *goal.System

	next     dynamo.State
	nextEta  []float64
	nextEtad []float64
	g0       dynamo.State
}

var _ System = (*Cartesian)(nil)

func NewCartesian(dim int, cfg Config) (*Cartesian, error) {
	b, err := newBase(KindCartesian, dim, dim, cfg)
	if err != nil {
		return nil, err
	}
	g, err := goal.New(dim, b.goalAlpha, b.tau, b.diag)
	if err != nil {
		return nil, err
	}
	return &Cartesian{
		base:     b,
		start:    dynamo.NewState(dim),
		current:  dynamo.NewState(dim),
		eta:      make([]float64, dim),
		etad:     make([]float64, dim),
		goal:     g,
		next:     dynamo.NewState(dim),
		nextEta:  make([]float64, dim),
		nextEtad: make([]float64, dim),
		g0:       dynamo.NewState(dim),
	}, nil
}

// Start begins a motion from start toward goalState's position. With a
// second-order canonical system the goal system starts at the virtual goal
// g0 = x0 + (τ²ẍ0/α + τẋ0)/β.
func (s *Cartesian) Start(start, goalState dynamo.State) error {
	if err := s.validateBase(); err != nil {
		return s.fail("start", err)
	}
	if err := start.Validate(); err != nil {
		return s.fail("start", err)
	}
	if err := goalState.Validate(); err != nil {
		return s.fail("start", err)
	}
	if start.Dim() != s.dim || goalState.Dim() != s.dim {
		return s.fail("start", errors.Wrapf(dynamo.ErrDimensionMismatch, "start %d, goal %d, want %d", start.Dim(), goalState.Dim(), s.dim))
	}

	tau, err := s.tau.TauRelative()
	if err != nil {
		return s.fail("start", err)
	}
	for i := range s.g0.X {
		s.g0.X[i] = goalState.X[i]
		if s.canon.Order() == 2 {
			s.g0.X[i] = start.X[i] + (tau*tau*start.Xdd[i]/s.alpha+tau*start.Xd[i])/s.beta
		}
		s.g0.Xd[i], s.g0.Xdd[i] = 0, 0
	}
	s.g0.Time = start.Time
	if err := s.goal.Start(s.g0, goalState.X); err != nil {
		return err
	}

	_ = s.start.CopyFrom(start)
	_ = s.current.CopyFrom(start)
	for i := range s.eta {
		s.eta[i] = tau * start.Xd[i]
		s.etad[i] = tau * start.Xdd[i]
	}
	s.tick = 0
	s.started = true
	if err := s.Validate(); err != nil {
		s.started = false
		return s.fail("start", err)
	}
	return nil
}

// Step advances the position by one tick of dt and then the goal system.
func (s *Cartesian) Step(dt float64) error {
	if err := s.stepPreconditions(dt); err != nil {
		return s.failStep(s.current.Time, err)
	}
	if err := s.Validate(); err != nil {
		return s.failStep(s.current.Time, err)
	}
	tau, err := s.tau.TauRelative()
	if err != nil {
		return s.failStep(s.current.Time, err)
	}

	if err := s.approx.ForcingTerm(s.f, s.basis); err != nil {
		return s.failStep(s.current.Time, err)
	}
	if err := s.sumCoupling(); err != nil {
		return s.failStep(s.current.Time, err)
	}

	cur, next := s.current, s.next
	g, steady := s.goal.Current().X, s.goal.Steady()
	for i := 0; i < s.dim; i++ {
		next.X[i] = cur.X[i] + cur.Xd[i]*dt
		next.Xd[i] = cur.Xd[i] + cur.Xdd[i]*dt
		s.nextEta[i] = tau * next.Xd[i]

		s.amplitudeAt(i, steady[i]-s.start.X[i])
		s.nextEtad[i] = (s.alpha*(s.beta*(g[i]-next.X[i])-s.nextEta[i]) + s.f[i]*s.amp[i] + s.ctAcc[i]) / tau
		next.Xdd[i] = s.nextEtad[i] / tau
	}
	next.Time = cur.Time + dt
	if !dynamo.Finite(next.X) || !dynamo.Finite(next.Xd) || !dynamo.Finite(next.Xdd) {
		return s.failStep(cur.Time, errors.Wrap(dynamo.ErrNumericDivergence, "position state"))
	}

	if err := s.goal.Step(dt); err != nil {
		return s.failStep(cur.Time, err)
	}
	_ = s.current.CopyFrom(next)
	copy(s.eta, s.nextEta)
	copy(s.etad, s.nextEtad)
	s.tick++
	s.fillRecord()
	s.record(s.current.Time)
	return nil
}

// LearnTargetForcing writes the forcing term that would make the system pass
// through sample given the current goal: f = τ²ẍ − α(β(g − x) − τẋ).
func (s *Cartesian) LearnTargetForcing(sample dynamo.State, fTarget []float64) error {
	if err := s.learnPreconditions(sample, fTarget); err != nil {
		return s.fail("learn forcing", err)
	}
	if err := s.targetForcing(sample, fTarget); err != nil {
		return s.fail("learn forcing", err)
	}
	if !dynamo.Finite(fTarget) {
		return s.fail("learn forcing", errors.Wrap(dynamo.ErrNumericDivergence, "target forcing term"))
	}
	return nil
}

// LearnTargetCoupling writes the coupling term that, added to the current learned
// forcing term, makes the system pass through sample. Axes with coupling disabled
// get zero.
func (s *Cartesian) LearnTargetCoupling(sample dynamo.State, ctTarget []float64) error {
	if err := s.learnPreconditions(sample, ctTarget); err != nil {
		return s.fail("learn coupling", err)
	}
	if err := s.approx.ForcingTerm(s.f, nil); err != nil {
		return s.fail("learn coupling", err)
	}
	if err := s.targetForcing(sample, ctTarget); err != nil {
		return s.fail("learn coupling", err)
	}
	steady := s.goal.Steady()
	for i := range ctTarget {
		s.amplitudeAt(i, steady[i]-s.start.X[i])
		ctTarget[i] -= s.f[i] * s.amp[i]
		if !s.couplingMask[i] {
			ctTarget[i] = 0
		}
	}
	if !dynamo.Finite(ctTarget) {
		return s.fail("learn coupling", errors.Wrap(dynamo.ErrNumericDivergence, "target coupling term"))
	}
	return nil
}

func (s *Cartesian) learnPreconditions(sample dynamo.State, out []float64) error {
	if !s.started {
		return dynamo.ErrNotStarted
	}
	if sample.Dim() != s.dim || len(out) != s.dim {
		return errors.Wrapf(dynamo.ErrDimensionMismatch, "sample %d, target %d, want %d", sample.Dim(), len(out), s.dim)
	}
	return sample.Validate()
}

func (s *Cartesian) targetForcing(sample dynamo.State, out []float64) error {
	tau, err := s.tau.TauRelative()
	if err != nil {
		return err
	}
	g := s.goal.Current().X
	for i := range out {
		out[i] = tau*tau*sample.Xdd[i] - s.alpha*(s.beta*(g[i]-sample.X[i])-tau*sample.Xd[i])
	}
	return nil
}

func (s *Cartesian) fillRecord() {
	copy(s.rec.Position, s.current.X)
	copy(s.rec.Velocity, s.current.Xd)
	copy(s.rec.Acceleration, s.current.Xdd)
	copy(s.rec.Goal, s.goal.Current().X)
	copy(s.rec.SteadyGoal, s.goal.Steady())
}

func (s *Cartesian) Validate() error {
	if err := s.validateBase(); err != nil {
		return err
	}
	if !s.started {
		return nil
	}
	if s.start.Dim() != s.dim || s.current.Dim() != s.dim || len(s.eta) != s.dim || len(s.etad) != s.dim {
		return errors.Wrap(dynamo.ErrValidity, "state dimensions")
	}
	if err := s.start.Validate(); err != nil {
		return err
	}
	if err := s.current.Validate(); err != nil {
		return err
	}
	if !dynamo.Finite(s.eta) || !dynamo.Finite(s.etad) {
		return errors.Wrap(dynamo.ErrValidity, "velocity state has non-finite values")
	}
	return s.goal.Validate()
}

// Position returns the current position. Coupling terms that react to the state read it.
func (s *Cartesian) Position() []float64 { return s.current.X }

func (s *Cartesian) StartState() dynamo.State       { return s.start }
func (s *Cartesian) CurrentState() dynamo.State     { return s.current }
func (s *Cartesian) CurrentGoalState() dynamo.State { return s.goal.Current() }
func (s *Cartesian) SteadyGoal() []float64          { return s.goal.Steady() }

// Velocity returns the velocity state v = τẋ and its derivative.
func (s *Cartesian) Velocity() (eta, etad []float64) { return s.eta, s.etad }

// SetSteadyGoal re-targets a running motion. The current goal moves smoothly to it.
func (s *Cartesian) SetSteadyGoal(g []float64) error {
	return s.goal.SetSteady(g)
}

func (s *Cartesian) SetCurrentGoalState(g dynamo.State) error {
	return s.goal.SetCurrent(g)
}

// AdvanceGoal steps only the goal system. Learning uses it to walk the goal along a
// demonstration without integrating the attractor.
func (s *Cartesian) AdvanceGoal(dt float64) error {
	if !s.started {
		return s.fail("advance goal", dynamo.ErrNotStarted)
	}
	return s.goal.Step(dt)
}

// SetStartState replaces the start state used for amplitude scaling.
func (s *Cartesian) SetStartState(st dynamo.State) error {
	if err := st.Validate(); err != nil {
		return s.fail("set start", err)
	}
	if err := s.start.CopyFrom(st); err != nil {
		return s.fail("set start", err)
	}
	return nil
}

// SetCurrentState overwrites the current state and its velocity mirror.
func (s *Cartesian) SetCurrentState(st dynamo.State) error {
	if err := st.Validate(); err != nil {
		return s.fail("set current", err)
	}
	tau, err := s.tau.TauRelative()
	if err != nil {
		return s.fail("set current", err)
	}
	if err := s.current.CopyFrom(st); err != nil {
		return s.fail("set current", err)
	}
	for i := range s.eta {
		s.eta[i] = tau * st.Xd[i]
		s.etad[i] = tau * st.Xdd[i]
	}
	return nil
}
