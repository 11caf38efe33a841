// Package so3 implements the unit-quaternion maps used by orientation primitives.
//
// Rotation vectors are full-angle axis-angle vectors (angle in radians times unit
// axis). Angular velocities are expressed in the world frame, so integration
// left-multiplies the orientation.
package so3

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

const (
	// NormTolerance bounds the unit-norm drift accepted on internal states.
	NormTolerance = 1e-6

	// InputTolerance bounds the drift accepted on caller-supplied orientations,
	// which are renormalized on entry.
	InputTolerance = 1e-3

	smallAngle = 1e-12
)

// Identity is the zero rotation.
var Identity = quat.Number{Real: 1}

// Norm returns the quaternion's Euclidean norm.
func Norm(q quat.Number) float64 {
	return quat.Abs(q)
}

// IsUnit reports whether q is finite and within tol of unit norm.
func IsUnit(q quat.Number, tol float64) bool {
	if quat.IsNaN(q) || quat.IsInf(q) {
		return false
	}
	return math.Abs(Norm(q)-1) <= tol
}

// Normalize scales q to unit norm. It reports false for a zero or non-finite q.
func Normalize(q quat.Number) (quat.Number, bool) {
	n := Norm(q)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return q, false
	}
	return quat.Scale(1/n, q), true
}

// Compose returns a∘b (apply b first, then a).
func Compose(a, b quat.Number) quat.Number {
	return quat.Mul(a, b)
}

// Pure embeds v as a quaternion with zero real part.
func Pure(v r3.Vector) quat.Number {
	return quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
}

// Vec returns the imaginary part of q.
func Vec(q quat.Number) r3.Vector {
	return r3.Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
}

// ExpMap maps a rotation vector to the unit quaternion rotating by |r| about r.
func ExpMap(r r3.Vector) quat.Number {
	theta := r.Norm()
	if theta < smallAngle {
		q, _ := Normalize(quat.Number{Real: 1, Imag: r.X / 2, Jmag: r.Y / 2, Kmag: r.Z / 2})
		return q
	}
	half := theta / 2
	s := math.Sin(half) / theta
	return quat.Number{Real: math.Cos(half), Imag: r.X * s, Jmag: r.Y * s, Kmag: r.Z * s}
}

// LogMap maps a unit quaternion to its rotation vector, taking the short way round.
func LogMap(q quat.Number) r3.Vector {
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	v := Vec(q)
	n := v.Norm()
	if n < smallAngle {
		if q.Real == 0 {
			return r3.Vector{}
		}
		return v.Mul(2 / q.Real)
	}
	angle := 2 * math.Atan2(n, q.Real)
	return v.Mul(angle / n)
}

// LogDiff returns the rotation vector taking b to a: log(a∘b*).
func LogDiff(a, b quat.Number) r3.Vector {
	return LogMap(Compose(a, quat.Conj(b)))
}

// Angle returns the rotation angle between a and b in radians.
func Angle(a, b quat.Number) float64 {
	return LogDiff(a, b).Norm()
}

// Mean averages orientations in the tangent space of the first one. It suits
// orientations well inside a half turn of each other.
func Mean(qs []quat.Number) quat.Number {
	if len(qs) == 0 {
		return Identity
	}
	ref := qs[0]
	if len(qs) == 1 {
		return ref
	}
	var sum r3.Vector
	for _, q := range qs[1:] {
		sum = sum.Add(LogDiff(q, ref))
	}
	m := Compose(ExpMap(sum.Mul(1/float64(len(qs)))), ref)
	if n, ok := Normalize(m); ok {
		return n
	}
	return m
}

// Integrate advances q by the world-frame angular velocity omega held for dt.
func Integrate(q quat.Number, omega r3.Vector, dt float64) quat.Number {
	next := Compose(ExpMap(omega.Mul(dt)), q)
	if n, ok := Normalize(next); ok {
		return n
	}
	return next
}

// Derivatives returns the first and second time derivatives of q for the given
// world-frame angular velocity and acceleration.
func Derivatives(q quat.Number, omega, omegad r3.Vector) (qd, qdd quat.Number) {
	w := Pure(omega)
	qd = quat.Scale(0.5, quat.Mul(w, q))
	qdd = quat.Scale(0.5, quat.Add(quat.Mul(Pure(omegad), q), quat.Mul(w, qd)))
	return qd, qdd
}

// IsFinite reports whether every component of v is finite.
func IsFinite(v r3.Vector) bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
