// Package trajectory holds demonstrated motions and generates synthetic ones.
package trajectory

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/num/quat"

	"github.com/san-kum/dmp/internal/dynamo"
	"github.com/san-kum/dmp/internal/so3"
)

// Cartesian is a time-ordered position demonstration.
type Cartesian []dynamo.State

// Quaternion is a time-ordered orientation demonstration.
type Quaternion []dynamo.QuatState

func (c Cartesian) Duration() float64 {
	if len(c) < 2 {
		return 0
	}
	return c[len(c)-1].Time - c[0].Time
}

// Dt returns the mean sample spacing.
func (c Cartesian) Dt() float64 {
	if len(c) < 2 {
		return 0
	}
	return c.Duration() / float64(len(c)-1)
}

func (c Cartesian) Dim() int {
	if len(c) == 0 {
		return 0
	}
	return c[0].Dim()
}

// Validate checks that the demonstration has at least two valid samples of one
// dimension with strictly increasing time.
func (c Cartesian) Validate() error {
	if len(c) < 2 {
		return errors.Wrapf(dynamo.ErrPrecondition, "demonstration needs at least 2 samples, got %d", len(c))
	}
	for i, s := range c {
		if err := s.Validate(); err != nil {
			return errors.Wrapf(err, "sample %d", i)
		}
		if s.Dim() != c[0].Dim() {
			return errors.Wrapf(dynamo.ErrDimensionMismatch, "sample %d has dimension %d, want %d", i, s.Dim(), c[0].Dim())
		}
		if i > 0 && s.Time <= c[i-1].Time {
			return errors.Wrapf(dynamo.ErrPrecondition, "sample %d time %.6f does not increase", i, s.Time)
		}
	}
	return nil
}

func (q Quaternion) Duration() float64 {
	if len(q) < 2 {
		return 0
	}
	return q[len(q)-1].Time - q[0].Time
}

func (q Quaternion) Dt() float64 {
	if len(q) < 2 {
		return 0
	}
	return q.Duration() / float64(len(q)-1)
}

func (q Quaternion) Validate() error {
	if len(q) < 2 {
		return errors.Wrapf(dynamo.ErrPrecondition, "demonstration needs at least 2 samples, got %d", len(q))
	}
	for i, s := range q {
		if err := s.Validate(); err != nil {
			return errors.Wrapf(err, "sample %d", i)
		}
		if i > 0 && s.Time <= q[i-1].Time {
			return errors.Wrapf(dynamo.ErrPrecondition, "sample %d time %.6f does not increase", i, s.Time)
		}
	}
	return nil
}

// minJerk returns the minimum-jerk profile s(u) = 10u³ − 15u⁴ + 6u⁵ and its first two
// time derivatives at time t of a motion lasting duration.
func minJerk(t, duration float64) (s, sd, sdd float64) {
	u := t / duration
	u2, u3 := u*u, u*u*u
	s = 10*u3 - 15*u3*u + 6*u3*u2
	sd = (30*u2 - 60*u3 + 30*u3*u) / duration
	sdd = (60*u - 180*u2 + 120*u3) / (duration * duration)
	return s, sd, sdd
}

func sampleCount(duration, dt float64) (int, error) {
	if duration <= 0 || dt <= 0 || dt > duration || math.IsNaN(duration) || math.IsNaN(dt) {
		return 0, errors.Wrapf(dynamo.ErrPrecondition, "duration=%f dt=%f", duration, dt)
	}
	return int(math.Round(duration/dt)) + 1, nil
}

// MinJerk generates a rest-to-rest minimum-jerk straight line from start to goal.
func MinJerk(start, goal []float64, duration, dt float64) (Cartesian, error) {
	if len(start) == 0 || len(start) != len(goal) {
		return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "start %d, goal %d", len(start), len(goal))
	}
	n, err := sampleCount(duration, dt)
	if err != nil {
		return nil, err
	}
	delta := make([]float64, len(start))
	floats.SubTo(delta, goal, start)

	out := make(Cartesian, n)
	step := duration / float64(n-1)
	for k := range out {
		t := float64(k) * step
		s, sd, sdd := minJerk(t, duration)
		st := dynamo.NewState(len(start))
		floats.AddScaledTo(st.X, start, s, delta)
		floats.ScaleTo(st.Xd, sd, delta)
		floats.ScaleTo(st.Xdd, sdd, delta)
		st.Time = t
		out[k] = st
	}
	return out, nil
}

// QuatMinJerk rotates from q0 to q1 about a fixed axis along a minimum-jerk profile.
// Angular velocity and acceleration are exact.
func QuatMinJerk(q0, q1 quat.Number, duration, dt float64) (Quaternion, error) {
	a, ok0 := so3.Normalize(q0)
	b, ok1 := so3.Normalize(q1)
	if !ok0 || !ok1 {
		return nil, errors.Wrap(dynamo.ErrValidity, "endpoint orientation is not normalizable")
	}
	n, err := sampleCount(duration, dt)
	if err != nil {
		return nil, err
	}
	r := so3.LogDiff(b, a)

	out := make(Quaternion, n)
	step := duration / float64(n-1)
	for k := range out {
		t := float64(k) * step
		s, sd, sdd := minJerk(t, duration)
		q := so3.Compose(so3.ExpMap(r.Mul(s)), a)
		st := dynamo.NewQuatState(q, r.Mul(sd), r.Mul(sdd))
		st.Time = t
		out[k] = st
	}
	return out, nil
}

// Differentiate builds a demonstration from sampled positions, estimating velocity
// and acceleration with central differences (one-sided at the ends).
func Differentiate(times []float64, positions [][]float64) (Cartesian, error) {
	n := len(times)
	if n < 3 || len(positions) != n {
		return nil, errors.Wrapf(dynamo.ErrPrecondition, "need at least 3 timed positions, got %d times and %d positions", n, len(positions))
	}
	dim := len(positions[0])
	out := make(Cartesian, n)
	for k := range out {
		if len(positions[k]) != dim {
			return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "position %d has dimension %d, want %d", k, len(positions[k]), dim)
		}
		if k > 0 && times[k] <= times[k-1] {
			return nil, errors.Wrapf(dynamo.ErrPrecondition, "time %d does not increase", k)
		}
		out[k] = dynamo.NewStateAt(positions[k])
		out[k].Time = times[k]
	}
	derive := func(dst func(int) []float64, src func(int) []float64) {
		for k := 0; k < n; k++ {
			lo, hi := k-1, k+1
			if lo < 0 {
				lo = 0
			}
			if hi >= n {
				hi = n - 1
			}
			d := dst(k)
			floats.SubTo(d, src(hi), src(lo))
			floats.Scale(1/(times[hi]-times[lo]), d)
		}
	}
	derive(func(k int) []float64 { return out[k].Xd }, func(k int) []float64 { return out[k].X })
	derive(func(k int) []float64 { return out[k].Xdd }, func(k int) []float64 { return out[k].Xd })
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// DifferentiateQuat builds an orientation demonstration from sampled unit
// quaternions, estimating angular velocity from neighbouring rotations and angular
// acceleration from neighbouring velocities. Orientations are renormalized.
func DifferentiateQuat(times []float64, qs []quat.Number) (Quaternion, error) {
	n := len(times)
	if n < 3 || len(qs) != n {
		return nil, errors.Wrapf(dynamo.ErrPrecondition, "need at least 3 timed orientations, got %d times and %d orientations", n, len(qs))
	}
	unit := make([]quat.Number, n)
	for k, q := range qs {
		if !so3.IsUnit(q, so3.InputTolerance) {
			return nil, errors.Wrapf(dynamo.ErrValidity, "orientation %d has norm %.6f", k, so3.Norm(q))
		}
		if k > 0 && times[k] <= times[k-1] {
			return nil, errors.Wrapf(dynamo.ErrPrecondition, "time %d does not increase", k)
		}
		unit[k], _ = so3.Normalize(q)
	}
	span := func(k int) (int, int) {
		lo, hi := k-1, k+1
		if lo < 0 {
			lo = 0
		}
		if hi >= n {
			hi = n - 1
		}
		return lo, hi
	}
	omega := make([]r3.Vector, n)
	for k := range omega {
		lo, hi := span(k)
		omega[k] = so3.LogDiff(unit[hi], unit[lo]).Mul(1 / (times[hi] - times[lo]))
	}
	out := make(Quaternion, n)
	for k := range out {
		lo, hi := span(k)
		omegad := omega[hi].Sub(omega[lo]).Mul(1 / (times[hi] - times[lo]))
		out[k] = dynamo.NewQuatState(unit[k], omega[k], omegad)
		out[k].Time = times[k]
	}
	return out, nil
}

// AngularError returns the largest angle between matching samples of two orientation
// trajectories of equal length.
func AngularError(a, b Quaternion) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.Wrapf(dynamo.ErrDimensionMismatch, "trajectories of %d and %d samples", len(a), len(b))
	}
	worst := 0.0
	for i := range a {
		worst = math.Max(worst, so3.Angle(a[i].Q, b[i].Q))
	}
	return worst, nil
}

// PositionError returns the largest Euclidean distance between matching samples.
func PositionError(a, b Cartesian) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.Wrapf(dynamo.ErrDimensionMismatch, "trajectories of %d and %d samples", len(a), len(b))
	}
	worst := 0.0
	for i := range a {
		if a[i].Dim() != b[i].Dim() {
			return 0, errors.Wrapf(dynamo.ErrDimensionMismatch, "sample %d", i)
		}
		worst = math.Max(worst, floats.Distance(a[i].X, b[i].X, 2))
	}
	return worst, nil
}
