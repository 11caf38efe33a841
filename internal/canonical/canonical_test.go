package canonical

import (
	"errors"
	"math"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/san-kum/dmp/internal/dynamo"
	"github.com/san-kum/dmp/internal/tau"
)

func newTau(t *testing.T, v float64) *tau.System {
	t.Helper()
	ts, err := tau.New(v, 1)
	if err != nil {
		t.Fatalf("tau: %v", err)
	}
	return ts
}

type constCoupler float64

func (c constCoupler) CanonicalCoupling() (float64, error) { return float64(c), nil }

func TestPhaseDecaysMonotonically(t *testing.T) {
	for _, order := range []int{1, 2} {
		g := NewWithT(t)
		s, err := New(newTau(t, 1), order)
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(s.Start()).To(Succeed())
		g.Expect(s.Phase()).To(Equal(1.0))

		prev := s.Phase()
		for i := 0; i < 420; i++ {
			g.Expect(s.Step(1.0 / 420)).To(Succeed())
			g.Expect(s.Phase()).To(BeNumerically("<=", prev))
			g.Expect(s.Phase()).To(BeNumerically(">=", 0))
			prev = s.Phase()
		}
		g.Expect(s.Phase()).To(BeNumerically("<", 0.01), "order %d", order)
	}
}

func TestOrderOneMatchesExponential(t *testing.T) {
	g := NewWithT(t)

	s, err := New(newTau(t, 2), 1, WithAlpha(4))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(s.Start()).To(Succeed())

	dt := 1e-4
	for i := 0; i < 10000; i++ {
		g.Expect(s.Step(dt)).To(Succeed())
	}
	g.Expect(s.Phase()).To(BeNumerically("~", math.Exp(-2), 1e-3))
	g.Expect(s.Multiplier()).To(Equal(s.Phase()))
}

func TestOrderTwoMultiplierStartsAtZero(t *testing.T) {
	g := NewWithT(t)

	s, err := New(newTau(t, 1), 2)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(s.Alpha()).To(Equal(25.0))
	g.Expect(s.Beta()).To(Equal(6.25))
	g.Expect(s.Start()).To(Succeed())
	g.Expect(s.Multiplier()).To(Equal(0.0))

	g.Expect(s.Step(0.01)).To(Succeed())
	g.Expect(s.Multiplier()).NotTo(Equal(0.0))
	g.Expect(s.Multiplier()).To(Equal(s.PhaseVelocity()))
}

func TestTauReferenceScalesTimeConstant(t *testing.T) {
	g := NewWithT(t)

	half, err := tau.New(1, 0.5)
	g.Expect(err).NotTo(HaveOccurred())
	scaled, err := New(half, 1)
	g.Expect(err).NotTo(HaveOccurred())
	plain, err := New(newTau(t, 2), 1)
	g.Expect(err).NotTo(HaveOccurred())
	unit, err := New(newTau(t, 1), 1)
	g.Expect(err).NotTo(HaveOccurred())

	for _, s := range []*System{scaled, plain, unit} {
		g.Expect(s.Start()).To(Succeed())
		for i := 0; i < 420; i++ {
			g.Expect(s.Step(1.0 / 420)).To(Succeed())
		}
	}

	// τ=1 against a 0.5 reference runs like τ=2 against a unit one.
	g.Expect(scaled.Phase()).To(Equal(plain.Phase()))
	g.Expect(scaled.Phase()).To(BeNumerically("~", math.Exp(-scaled.Alpha()/2), 1e-3))
	g.Expect(scaled.Phase()).To(BeNumerically(">", 10*unit.Phase()))
}

func TestTauScalesPhase(t *testing.T) {
	g := NewWithT(t)

	fast, _ := New(newTau(t, 1), 2)
	slow, _ := New(newTau(t, 2), 2)
	g.Expect(fast.Start()).To(Succeed())
	g.Expect(slow.Start()).To(Succeed())

	for i := 0; i < 100; i++ {
		g.Expect(fast.Step(0.001)).To(Succeed())
	}
	for i := 0; i < 100; i++ {
		g.Expect(slow.Step(0.002)).To(Succeed())
	}
	g.Expect(slow.Phase()).To(BeNumerically("~", fast.Phase(), 1e-12))
}

func TestCouplerSlowsPhase(t *testing.T) {
	g := NewWithT(t)

	plain, _ := New(newTau(t, 1), 1)
	held, _ := New(newTau(t, 1), 1, WithCouplers(constCoupler(2)))
	g.Expect(plain.Start()).To(Succeed())
	g.Expect(held.Start()).To(Succeed())

	for i := 0; i < 50; i++ {
		g.Expect(plain.Step(0.01)).To(Succeed())
		g.Expect(held.Step(0.01)).To(Succeed())
	}
	g.Expect(held.Phase()).To(BeNumerically(">", plain.Phase()))
}

func TestPreconditions(t *testing.T) {
	g := NewWithT(t)

	_, err := New(newTau(t, 1), 3)
	g.Expect(errors.Is(err, dynamo.ErrPrecondition)).To(BeTrue())

	s, _ := New(newTau(t, 1), 2)
	g.Expect(errors.Is(s.Step(0.01), dynamo.ErrNotStarted)).To(BeTrue())

	g.Expect(s.Start()).To(Succeed())
	g.Expect(errors.Is(s.Step(0), dynamo.ErrPrecondition)).To(BeTrue())
	g.Expect(errors.Is(s.Step(-0.1), dynamo.ErrPrecondition)).To(BeTrue())
}

func TestNaNCouplerDiverges(t *testing.T) {
	g := NewWithT(t)

	s, _ := New(newTau(t, 1), 1, WithCouplers(constCoupler(math.NaN())))
	g.Expect(s.Start()).To(Succeed())

	err := s.Step(0.01)
	g.Expect(errors.Is(err, dynamo.ErrNumericDivergence)).To(BeTrue())
	g.Expect(s.Phase()).To(Equal(1.0))
}
