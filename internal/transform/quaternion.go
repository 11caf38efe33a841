package transform

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"github.com/san-kum/dmp/internal/dynamo"
	"github.com/san-kum/dmp/internal/goal"
	"github.com/san-kum/dmp/internal/so3"
)

// Quaternion is the orientation transformation system. Its velocity state is
// η = τω, η̇ = τω̇ and the attractor is
//
//	τη̇ = α(β·log(Q_goal ∘ Q*) − η) + f⊙A + c
type Quaternion struct {
	base
	start   dynamo.QuatState
	current dynamo.QuatState
	eta     r3.Vector
	etad    r3.Vector
	goal    *goal.QuatSystem
}

var _ System = (*Quaternion)(nil)

func NewQuaternion(cfg Config) (*Quaternion, error) {
	b, err := newBase(KindQuaternion, 3, 4, cfg)
	if err != nil {
		return nil, err
	}
	g, err := goal.NewQuat(b.goalAlpha, b.tau, b.diag)
	if err != nil {
		return nil, err
	}
	return &Quaternion{
		base:    b,
		start:   dynamo.NewQuatStateAt(so3.Identity),
		current: dynamo.NewQuatStateAt(so3.Identity),
		goal:    g,
	}, nil
}

// Start begins a motion from start toward goalState's orientation. With a
// second-order canonical system the goal system starts at a virtual goal chosen so
// the first tick reproduces the start state's angular acceleration.
func (s *Quaternion) Start(start, goalState dynamo.QuatState) error {
	if err := s.validateBase(); err != nil {
		return s.fail("start", err)
	}
	st, err := start.Normalized()
	if err != nil {
		return s.fail("start", err)
	}
	gs, err := goalState.Normalized()
	if err != nil {
		return s.fail("start", err)
	}
	if err := st.Validate(); err != nil {
		return s.fail("start", err)
	}

	tau, err := s.tau.TauRelative()
	if err != nil {
		return s.fail("start", err)
	}
	g0 := gs.Q
	if s.canon.Order() == 2 {
		l := st.Omegad.Mul(tau * tau / s.alpha).Add(st.Omega.Mul(tau)).Mul(1 / s.beta)
		g0 = so3.Compose(so3.ExpMap(l), st.Q)
	}
	g0State := dynamo.NewQuatStateAt(g0)
	g0State.Time = st.Time
	if err := s.goal.Start(g0State, gs.Q); err != nil {
		return err
	}

	s.start = st
	s.current = st
	s.eta = st.Omega.Mul(tau)
	s.etad = st.Omegad.Mul(tau)
	s.tick = 0
	s.started = true
	if err := s.Validate(); err != nil {
		s.started = false
		return s.fail("start", err)
	}
	return nil
}

// Step advances the orientation by one tick of dt and then the goal system.
func (s *Quaternion) Step(dt float64) error {
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

	cur := s.current
	next := cur
	next.Q = so3.Integrate(cur.Q, cur.Omega, dt)
	next.Omega = cur.Omega.Add(cur.Omegad.Mul(dt))
	eta := next.Omega.Mul(tau)

	ampNow := so3.LogDiff(s.goal.Steady(), s.start.Q)
	diff := so3.LogDiff(s.goal.Current().Q, next.Q)
	var etad [3]float64
	for i := 0; i < 3; i++ {
		s.amplitudeAt(i, component(ampNow, i))
		etad[i] = (s.alpha*(s.beta*component(diff, i)-component(eta, i)) + s.f[i]*s.amp[i] + s.ctAcc[i]) / tau
	}
	if !dynamo.Finite(etad[:]) {
		return s.failStep(cur.Time, errors.Wrap(dynamo.ErrNumericDivergence, "angular acceleration"))
	}
	etadVec := r3.Vector{X: etad[0], Y: etad[1], Z: etad[2]}
	next.Omegad = etadVec.Mul(1 / tau)
	next.Time = cur.Time + dt
	next.ComputeDerivatives()
	if err := next.Validate(); err != nil {
		return s.failStep(cur.Time, errors.Wrap(dynamo.ErrNumericDivergence, err.Error()))
	}

	if err := s.goal.Step(dt); err != nil {
		return s.failStep(cur.Time, err)
	}
	s.current = next
	s.eta = eta
	s.etad = etadVec
	s.tick++
	s.fillRecord()
	s.record(next.Time)
	return nil
}

// LearnTargetForcing writes the forcing term that would make the system pass
// through sample given the current goal: f = τ²ω̇ − α(β·log(Q_goal ∘ Q*) − τω).
func (s *Quaternion) LearnTargetForcing(sample dynamo.QuatState, fTarget []float64) error {
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
func (s *Quaternion) LearnTargetCoupling(sample dynamo.QuatState, ctTarget []float64) error {
	if err := s.learnPreconditions(sample, ctTarget); err != nil {
		return s.fail("learn coupling", err)
	}
	if err := s.approx.ForcingTerm(s.f, nil); err != nil {
		return s.fail("learn coupling", err)
	}
	if err := s.targetForcing(sample, ctTarget); err != nil {
		return s.fail("learn coupling", err)
	}
	ampNow := so3.LogDiff(s.goal.Steady(), s.start.Q)
	for i := 0; i < 3; i++ {
		s.amplitudeAt(i, component(ampNow, i))
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

func (s *Quaternion) learnPreconditions(sample dynamo.QuatState, out []float64) error {
	if !s.started {
		return dynamo.ErrNotStarted
	}
	if len(out) != 3 {
		return errors.Wrapf(dynamo.ErrDimensionMismatch, "target %d, want 3", len(out))
	}
	if !so3.IsUnit(sample.Q, so3.InputTolerance) || !so3.IsFinite(sample.Omega) || !so3.IsFinite(sample.Omegad) {
		return errors.Wrap(dynamo.ErrValidity, "sample is not a valid orientation state")
	}
	return nil
}

func (s *Quaternion) targetForcing(sample dynamo.QuatState, out []float64) error {
	tau, err := s.tau.TauRelative()
	if err != nil {
		return err
	}
	q, _ := so3.Normalize(sample.Q)
	diff := so3.LogDiff(s.goal.Current().Q, q)
	for i := 0; i < 3; i++ {
		out[i] = tau*tau*component(sample.Omegad, i) -
			s.alpha*(s.beta*component(diff, i)-tau*component(sample.Omega, i))
	}
	return nil
}

func (s *Quaternion) fillRecord() {
	putQuat(s.rec.Position, s.current.Q)
	putVec(s.rec.Velocity, s.current.Omega)
	putVec(s.rec.Acceleration, s.current.Omegad)
	putQuat(s.rec.Goal, s.goal.Current().Q)
	putQuat(s.rec.SteadyGoal, s.goal.Steady())
}

func (s *Quaternion) Validate() error {
	if err := s.validateBase(); err != nil {
		return err
	}
	if !s.started {
		return nil
	}
	if err := s.start.Validate(); err != nil {
		return err
	}
	if err := s.current.Validate(); err != nil {
		return err
	}
	if !so3.IsFinite(s.eta) || !so3.IsFinite(s.etad) {
		return errors.Wrap(dynamo.ErrValidity, "velocity state has non-finite values")
	}
	return s.goal.Validate()
}

func (s *Quaternion) StartState() dynamo.QuatState       { return s.start }
func (s *Quaternion) CurrentState() dynamo.QuatState     { return s.current }
func (s *Quaternion) CurrentGoalState() dynamo.QuatState { return s.goal.Current() }
func (s *Quaternion) SteadyGoal() quat.Number            { return s.goal.Steady() }

// Velocity returns the velocity state η = τω and its derivative.
func (s *Quaternion) Velocity() (eta, etad r3.Vector) { return s.eta, s.etad }

// SetSteadyGoal re-targets a running motion. The current goal moves smoothly to it.
func (s *Quaternion) SetSteadyGoal(q quat.Number) error {
	return s.goal.SetSteady(q)
}

// AdvanceGoal steps only the goal system. Learning uses it to walk the goal along a
// demonstration without integrating the attractor.
func (s *Quaternion) AdvanceGoal(dt float64) error {
	if !s.started {
		return s.fail("advance goal", dynamo.ErrNotStarted)
	}
	return s.goal.Step(dt)
}

func (s *Quaternion) SetCurrentGoalState(g dynamo.QuatState) error {
	return s.goal.SetCurrent(g)
}

// SetStartState replaces the start state used for amplitude scaling.
func (s *Quaternion) SetStartState(st dynamo.QuatState) error {
	n, err := st.Normalized()
	if err != nil {
		return s.fail("set start", err)
	}
	s.start = n
	return nil
}

// SetCurrentState overwrites the current state and its velocity mirror.
func (s *Quaternion) SetCurrentState(st dynamo.QuatState) error {
	n, err := st.Normalized()
	if err != nil {
		return s.fail("set current", err)
	}
	tau, err := s.tau.TauRelative()
	if err != nil {
		return s.fail("set current", err)
	}
	s.current = n
	s.eta = n.Omega.Mul(tau)
	s.etad = n.Omegad.Mul(tau)
	return nil
}

func component(v r3.Vector, i int) float64 {
	switch i {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

func putVec(dst []float64, v r3.Vector) {
	dst[0], dst[1], dst[2] = v.X, v.Y, v.Z
}

func putQuat(dst []float64, q quat.Number) {
	dst[0], dst[1], dst[2], dst[3] = q.Real, q.Imag, q.Jmag, q.Kmag
}
