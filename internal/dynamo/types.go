package dynamo

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"github.com/san-kum/dmp/internal/so3"
)

// State is a Cartesian primitive state: position, velocity and acceleration of equal length.
type State struct {
	X    []float64
	Xd   []float64
	Xdd  []float64
	Time float64
}

func NewState(dim int) State {
	return State{
		X:   make([]float64, dim),
		Xd:  make([]float64, dim),
		Xdd: make([]float64, dim),
	}
}

// NewStateAt returns a state at rest at position x. The slice is copied.
func NewStateAt(x []float64) State {
	s := NewState(len(x))
	copy(s.X, x)
	return s
}

func (s State) Dim() int { return len(s.X) }

func (s State) Clone() State {
	c := NewState(s.Dim())
	copy(c.X, s.X)
	copy(c.Xd, s.Xd)
	copy(c.Xdd, s.Xdd)
	c.Time = s.Time
	return c
}

// CopyFrom overwrites s with o without allocating.
func (s *State) CopyFrom(o State) error {
	if o.Dim() != s.Dim() || len(o.Xd) != len(s.Xd) || len(o.Xdd) != len(s.Xdd) {
		return errors.Wrapf(ErrDimensionMismatch, "state copy %d into %d", o.Dim(), s.Dim())
	}
	copy(s.X, o.X)
	copy(s.Xd, o.Xd)
	copy(s.Xdd, o.Xdd)
	s.Time = o.Time
	return nil
}

func (s State) Validate() error {
	if s.Dim() == 0 || len(s.Xd) != s.Dim() || len(s.Xdd) != s.Dim() {
		return errors.Wrapf(ErrValidity, "state dimensions x=%d xd=%d xdd=%d", len(s.X), len(s.Xd), len(s.Xdd))
	}
	if !Finite(s.X) || !Finite(s.Xd) || !Finite(s.Xdd) || math.IsNaN(s.Time) {
		return errors.Wrap(ErrValidity, "state has non-finite values")
	}
	return nil
}

// QuatState is an orientation primitive state. Qd and Qdd are derived from Q, Omega and
// Omegad and must be refreshed with ComputeDerivatives after any change.
type QuatState struct {
	Q      quat.Number
	Omega  r3.Vector
	Omegad r3.Vector
	Qd     quat.Number
	Qdd    quat.Number
	Time   float64
}

func NewQuatState(q quat.Number, omega, omegad r3.Vector) QuatState {
	s := QuatState{Q: q, Omega: omega, Omegad: omegad}
	s.ComputeDerivatives()
	return s
}

// NewQuatStateAt returns a state at rest at orientation q.
func NewQuatStateAt(q quat.Number) QuatState {
	return NewQuatState(q, r3.Vector{}, r3.Vector{})
}

func (s QuatState) Dim() int { return 3 }

func (s *QuatState) ComputeDerivatives() {
	s.Qd, s.Qdd = so3.Derivatives(s.Q, s.Omega, s.Omegad)
}

func (s QuatState) Validate() error {
	if !so3.IsUnit(s.Q, so3.NormTolerance) {
		return errors.Wrapf(ErrValidity, "quaternion norm %.9f is not unit", so3.Norm(s.Q))
	}
	if !so3.IsFinite(s.Omega) || !so3.IsFinite(s.Omegad) || math.IsNaN(s.Time) {
		return errors.Wrap(ErrValidity, "angular state has non-finite values")
	}
	qd, qdd := so3.Derivatives(s.Q, s.Omega, s.Omegad)
	if quat.Abs(quat.Sub(qd, s.Qd)) > derivativeTolerance || quat.Abs(quat.Sub(qdd, s.Qdd)) > derivativeTolerance {
		return errors.Wrap(ErrValidity, "quaternion derivatives out of date")
	}
	return nil
}

// Normalized returns a copy with Q renormalized. Orientations further than
// so3.InputTolerance from unit norm are rejected.
func (s QuatState) Normalized() (QuatState, error) {
	if !so3.IsUnit(s.Q, so3.InputTolerance) {
		return s, errors.Wrapf(ErrValidity, "quaternion norm %.6f is not unit", so3.Norm(s.Q))
	}
	s.Q, _ = so3.Normalize(s.Q)
	s.ComputeDerivatives()
	return s, nil
}

const derivativeTolerance = 1e-9

// Finite reports whether every value in xs is finite.
func Finite(xs []float64) bool {
	for _, v := range xs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// ForcingTermApproximator produces the nonlinear forcing term at the current phase.
// ForcingTerm writes into f and, when basis is non-nil, the basis activations.
// It must not allocate.
type ForcingTermApproximator interface {
	ForcingTerm(f []float64, basis []float64) error
	ModelSize() int
	CanonicalOrder() int
}

// CouplingTerm writes its acceleration and velocity contributions into acc and vel.
// The caller sums contributions across terms. Implementations must not allocate.
type CouplingTerm interface {
	CouplingTerm(acc, vel []float64) error
}

// TickRecord is one logged tick. Slices are owned by the producer and reused every tick.
type TickRecord struct {
	Time         float64
	Tau          float64
	Canonical    [3]float64
	Position     []float64
	Velocity     []float64
	Acceleration []float64
	Goal         []float64
	SteadyGoal   []float64
	Basis        []float64
	Forcing      []float64
	CouplingAcc  []float64
}

// NewTickRecord allocates a record for a system with dim velocity components, posDim
// position components and modelSize basis functions.
func NewTickRecord(dim, posDim, modelSize int) *TickRecord {
	return &TickRecord{
		Position:     make([]float64, posDim),
		Velocity:     make([]float64, dim),
		Acceleration: make([]float64, dim),
		Goal:         make([]float64, posDim),
		SteadyGoal:   make([]float64, posDim),
		Basis:        make([]float64, modelSize),
		Forcing:      make([]float64, dim),
		CouplingAcc:  make([]float64, dim),
	}
}

type DataLogger interface {
	Record(rec *TickRecord) error
}

// Diagnostics receives every error a component returns, so failures are visible
// without interrupting the control loop.
type Diagnostics interface {
	Report(component, op string, err error)
}

type nopDiagnostics struct{}

func (nopDiagnostics) Report(string, string, error) {}

// NopDiagnostics discards reports.
var NopDiagnostics Diagnostics = nopDiagnostics{}
