package trajectory

import (
	"errors"
	"testing"

	"github.com/golang/geo/r3"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/num/quat"

	"github.com/san-kum/dmp/internal/dynamo"
	"github.com/san-kum/dmp/internal/so3"
)

func TestMinJerkEndpoints(t *testing.T) {
	g := NewWithT(t)

	demo, err := MinJerk([]float64{0, 1}, []float64{2, -1}, 2, 0.01)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(demo).To(HaveLen(201))
	g.Expect(demo.Validate()).To(Succeed())
	g.Expect(demo.Duration()).To(BeNumerically("~", 2, 1e-12))
	g.Expect(demo.Dt()).To(BeNumerically("~", 0.01, 1e-12))
	g.Expect(demo.Dim()).To(Equal(2))

	first, last := demo[0], demo[len(demo)-1]
	g.Expect(first.X).To(Equal([]float64{0, 1}))
	g.Expect(last.X[0]).To(BeNumerically("~", 2, 1e-12))
	g.Expect(last.X[1]).To(BeNumerically("~", -1, 1e-12))
	for _, s := range []dynamo.State{first, last} {
		for i := 0; i < 2; i++ {
			g.Expect(s.Xd[i]).To(BeNumerically("~", 0, 1e-12))
			g.Expect(s.Xdd[i]).To(BeNumerically("~", 0, 1e-9))
		}
	}
	// Peak speed of a min-jerk profile is 15/8 of the mean speed, reached halfway.
	g.Expect(demo[100].Xd[0]).To(BeNumerically("~", 15.0/8.0, 1e-9))
}

func TestMinJerkRejectsBadInput(t *testing.T) {
	g := NewWithT(t)

	_, err := MinJerk([]float64{0}, []float64{1, 2}, 1, 0.1)
	g.Expect(errors.Is(err, dynamo.ErrDimensionMismatch)).To(BeTrue())
	_, err = MinJerk([]float64{0}, []float64{1}, 0, 0.1)
	g.Expect(errors.Is(err, dynamo.ErrPrecondition)).To(BeTrue())
	_, err = MinJerk([]float64{0}, []float64{1}, 1, 2)
	g.Expect(errors.Is(err, dynamo.ErrPrecondition)).To(BeTrue())
}

func TestQuatMinJerkIsConsistent(t *testing.T) {
	g := NewWithT(t)

	q0 := so3.Identity
	q1 := quat.Number{Real: 0.707, Imag: 0.707}
	demo, err := QuatMinJerk(q0, q1, 1, 1.0/420)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(demo.Validate()).To(Succeed())
	g.Expect(demo).To(HaveLen(421))

	unit, _ := so3.Normalize(q1)
	g.Expect(so3.Angle(demo[len(demo)-1].Q, unit)).To(BeNumerically("<", 1e-9))
	g.Expect(demo[0].Omega.Norm()).To(BeNumerically("~", 0, 1e-12))

	// Integrating the analytic angular velocity reproduces the samples.
	q := demo[0].Q
	for k := 1; k < len(demo); k++ {
		mid := demo[k-1].Omega.Add(demo[k].Omega).Mul(0.5)
		q = so3.Integrate(q, mid, demo.Dt())
	}
	g.Expect(so3.Angle(q, unit)).To(BeNumerically("<", 1e-4))
}

func TestDifferentiate(t *testing.T) {
	g := NewWithT(t)

	times := make([]float64, 101)
	positions := make([][]float64, 101)
	for k := range times {
		tt := float64(k) * 0.01
		times[k] = tt
		positions[k] = []float64{tt * tt, 3 * tt}
	}
	demo, err := Differentiate(times, positions)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(demo[50].Xd[0]).To(BeNumerically("~", 1.0, 1e-9))
	g.Expect(demo[50].Xd[1]).To(BeNumerically("~", 3.0, 1e-9))
	g.Expect(demo[50].Xdd[0]).To(BeNumerically("~", 2.0, 1e-6))

	_, err = Differentiate(times[:2], positions[:2])
	g.Expect(errors.Is(err, dynamo.ErrPrecondition)).To(BeTrue())

	times[5] = times[4]
	_, err = Differentiate(times, positions)
	g.Expect(errors.Is(err, dynamo.ErrPrecondition)).To(BeTrue())
}

func TestValidateRejectsNonMonotonicTime(t *testing.T) {
	g := NewWithT(t)

	demo := Cartesian{dynamo.NewStateAt([]float64{0}), dynamo.NewStateAt([]float64{1})}
	g.Expect(errors.Is(demo.Validate(), dynamo.ErrPrecondition)).To(BeTrue())

	q := Quaternion{dynamo.NewQuatStateAt(so3.Identity)}
	g.Expect(errors.Is(q.Validate(), dynamo.ErrPrecondition)).To(BeTrue())
	g.Expect(q.Duration()).To(Equal(0.0))
}

func TestTrackingErrors(t *testing.T) {
	g := NewWithT(t)

	a, _ := QuatMinJerk(so3.Identity, so3.ExpMap(r3.Vector{Z: 1}), 1, 0.1)
	b, _ := QuatMinJerk(so3.Identity, so3.ExpMap(r3.Vector{Z: 1.1}), 1, 0.1)
	worst, err := AngularError(a, b)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(worst).To(BeNumerically("~", 0.1, 1e-9))

	c, _ := MinJerk([]float64{0, 0}, []float64{3, 4}, 1, 0.1)
	d, _ := MinJerk([]float64{0, 0}, []float64{0, 0}, 1, 0.1)
	dist, err := PositionError(c, d)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(dist).To(BeNumerically("~", 5, 1e-9))

	_, err = PositionError(c, d[:3])
	g.Expect(errors.Is(err, dynamo.ErrDimensionMismatch)).To(BeTrue())
}

func TestDifferentiateQuat(t *testing.T) {
	g := NewWithT(t)

	var times []float64
	var qs []quat.Number
	for k := 0; k <= 20; k++ {
		tk := float64(k) * 0.05
		times = append(times, tk)
		qs = append(qs, so3.ExpMap(r3.Vector{Z: 2 * tk}))
	}
	demo, err := DifferentiateQuat(times, qs)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(demo.Validate()).To(Succeed())
	for _, s := range demo {
		g.Expect(s.Omega.Z).To(BeNumerically("~", 2, 1e-9))
		g.Expect(s.Omegad.Norm()).To(BeNumerically("<", 1e-6))
	}

	qs[3] = quat.Scale(2, qs[3])
	_, err = DifferentiateQuat(times, qs)
	g.Expect(errors.Is(err, dynamo.ErrValidity)).To(BeTrue())
}
