package transform

import (
	"errors"
	"math"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/san-kum/dmp/internal/approx"
	"github.com/san-kum/dmp/internal/canonical"
	"github.com/san-kum/dmp/internal/coupling"
	"github.com/san-kum/dmp/internal/dynamo"
	"github.com/san-kum/dmp/internal/tau"
)

func newCartesian(t *testing.T, tauValue float64, order, dim int, edit func(*Config)) (*Cartesian, *rig) {
	t.Helper()
	r, err := newRig(tauValue, order, dim, 20)
	if err != nil {
		t.Fatalf("rig: %v", err)
	}
	cfg := r.config()
	if edit != nil {
		edit(&cfg)
	}
	sys, err := NewCartesian(dim, cfg)
	if err != nil {
		t.Fatalf("cartesian: %v", err)
	}
	if err := r.canon.Start(); err != nil {
		t.Fatalf("canonical: %v", err)
	}
	return sys, r
}

func TestCartesianConverges(t *testing.T) {
	g := NewWithT(t)

	sys, r := newCartesian(t, 1, 2, 3, nil)
	goal := []float64{0.4, -0.2, 1.0}
	g.Expect(sys.Start(dynamo.NewStateAt([]float64{0, 0, 0}), dynamo.NewStateAt(goal))).To(Succeed())

	for i := 0; i < 420; i++ {
		g.Expect(sys.Step(servoDt)).To(Succeed())
		g.Expect(r.canon.Step(servoDt)).To(Succeed())
	}
	for i, want := range goal {
		g.Expect(sys.CurrentState().X[i]).To(BeNumerically("~", want, 1e-3))
	}
	g.Expect(sys.Validate()).To(Succeed())
}

func TestCartesianSecondOrderStartIsContinuous(t *testing.T) {
	g := NewWithT(t)

	sys, r := newCartesian(t, 1, 2, 2, nil)
	start := dynamo.NewStateAt([]float64{0.1, 0.2})
	start.Xd[0], start.Xdd[0] = 0.3, -2
	start.Xdd[1] = 1.5
	g.Expect(sys.Start(start, dynamo.NewStateAt([]float64{1, 1}))).To(Succeed())

	g.Expect(sys.Step(1e-5)).To(Succeed())
	g.Expect(r.canon.Step(1e-5)).To(Succeed())
	g.Expect(sys.CurrentState().Xdd[0]).To(BeNumerically("~", -2, 1e-2))
	g.Expect(sys.CurrentState().Xdd[1]).To(BeNumerically("~", 1.5, 1e-2))

	eta, etad := sys.Velocity()
	g.Expect(eta[0]).To(BeNumerically("~", 0.3, 1e-3))
	g.Expect(etad[1]).To(BeNumerically("~", 1.5, 1e-2))
}

func TestCartesianGoalStartFailureReportsOnce(t *testing.T) {
	g := NewWithT(t)

	diag := &recordingDiagnostics{}
	sys, _ := newCartesian(t, 1, 2, 1, func(c *Config) { c.Diagnostics = diag })

	// The start state is finite but the virtual goal it implies overflows.
	start := dynamo.NewStateAt([]float64{math.MaxFloat64})
	start.Xd[0] = math.MaxFloat64
	err := sys.Start(start, dynamo.NewStateAt([]float64{1}))
	g.Expect(errors.Is(err, dynamo.ErrValidity)).To(BeTrue())
	g.Expect(sys.IsStarted()).To(BeFalse())
	g.Expect(diag.reports).To(HaveLen(1))
	g.Expect(diag.reports[0].component).To(Equal("goal"))
}

func TestCartesianRelativeTau(t *testing.T) {
	g := NewWithT(t)

	// τ=1 against a 0.5 reference must match τ=2 against a unit reference.
	run := func(tauValue, reference float64) []float64 {
		ts, err := tau.New(tauValue, reference)
		g.Expect(err).NotTo(HaveOccurred())
		c, err := canonical.New(ts, 2)
		g.Expect(err).NotTo(HaveOccurred())
		a, err := approx.NewGaussian(1, 20, c)
		g.Expect(err).NotTo(HaveOccurred())
		r := &rig{tau: ts, canon: c, approx: a}
		g.Expect(r.wiggle(20)).To(Succeed())

		sys, err := NewCartesian(1, r.config())
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(sys.SetLearnedAmplitude([]float64{1})).To(Succeed())
		g.Expect(r.canon.Start()).To(Succeed())
		g.Expect(sys.Start(dynamo.NewStateAt([]float64{0}), dynamo.NewStateAt([]float64{1}))).To(Succeed())
		out := make([]float64, 0, 200)
		for i := 0; i < 200; i++ {
			g.Expect(sys.Step(servoDt)).To(Succeed())
			g.Expect(r.canon.Step(servoDt)).To(Succeed())
			out = append(out, sys.CurrentState().X[0])
		}
		return out
	}

	scaled, plain, unit := run(1, 0.5), run(2, 1), run(1, 1)
	g.Expect(scaled).To(Equal(plain))
	g.Expect(scaled[100]).NotTo(BeNumerically("~", unit[100], 1e-3))
}

func TestCartesianTargetForcingOfAttractorIsZero(t *testing.T) {
	g := NewWithT(t)

	sys, r := newCartesian(t, 1.5, 1, 2, nil)
	g.Expect(sys.Start(dynamo.NewStateAt([]float64{0, 0}), dynamo.NewStateAt([]float64{1, -1}))).To(Succeed())

	// Each tick's outcome is explained by the goal it was computed against.
	f := make([]float64, 2)
	for i := 0; i < 50; i++ {
		snapshot := sys.CurrentGoalState().Clone()
		g.Expect(sys.Step(0.01)).To(Succeed())
		g.Expect(r.canon.Step(0.01)).To(Succeed())

		after := sys.CurrentGoalState().Clone()
		g.Expect(sys.SetCurrentGoalState(snapshot)).To(Succeed())
		g.Expect(sys.LearnTargetForcing(sys.CurrentState(), f)).To(Succeed())
		g.Expect(sys.SetCurrentGoalState(after)).To(Succeed())

		g.Expect(f[0]).To(BeNumerically("~", 0, 1e-9))
		g.Expect(f[1]).To(BeNumerically("~", 0, 1e-9))
	}
}

func TestCartesianAmplitudeScalesForcing(t *testing.T) {
	g := NewWithT(t)

	run := func(goal float64) float64 {
		sys, r := newCartesian(t, 1, 1, 1, nil)
		g.Expect(r.wiggle(20)).To(Succeed())
		g.Expect(sys.SetLearnedAmplitude([]float64{1})).To(Succeed())
		g.Expect(sys.Start(dynamo.NewStateAt([]float64{0}), dynamo.NewStateAt([]float64{goal}))).To(Succeed())
		for i := 0; i < 100; i++ {
			g.Expect(sys.Step(0.005)).To(Succeed())
			g.Expect(r.canon.Step(0.005)).To(Succeed())
		}
		return sys.CurrentState().X[0]
	}

	// The attractor and the scaled forcing are both linear in the goal, so doubling
	// the goal doubles the whole trajectory.
	g.Expect(run(2)).To(BeNumerically("~", 2*run(1), 1e-9))
}

func TestCartesianSpringCoupling(t *testing.T) {
	g := NewWithT(t)

	var sys *Cartesian
	spring := coupling.Func(func(acc, vel []float64) error {
		for i := range acc {
			acc[i] = 50 * (0.5 - sys.Position()[i])
		}
		return nil
	})
	sys, r := newCartesian(t, 1, 2, 1, func(c *Config) { c.Couplings = []dynamo.CouplingTerm{spring} })
	g.Expect(sys.Start(dynamo.NewStateAt([]float64{0}), dynamo.NewStateAt([]float64{1}))).To(Succeed())

	for i := 0; i < 2000; i++ {
		g.Expect(sys.Step(servoDt)).To(Succeed())
		g.Expect(r.canon.Step(servoDt)).To(Succeed())
	}
	// Equilibrium of α·β·(1 − x) + 50·(0.5 − x) = 0.
	want := (25*6.25 + 25) / (25*6.25 + 50)
	g.Expect(sys.CurrentState().X[0]).To(BeNumerically("~", want, 1e-3))
}

func TestCartesianRetarget(t *testing.T) {
	g := NewWithT(t)

	sys, r := newCartesian(t, 1, 2, 1, nil)
	g.Expect(sys.Start(dynamo.NewStateAt([]float64{0}), dynamo.NewStateAt([]float64{1}))).To(Succeed())
	for i := 0; i < 100; i++ {
		g.Expect(sys.Step(servoDt)).To(Succeed())
		g.Expect(r.canon.Step(servoDt)).To(Succeed())
	}

	g.Expect(sys.SetSteadyGoal([]float64{-1})).To(Succeed())
	prevAcc := sys.CurrentState().Xdd[0]
	g.Expect(sys.Step(servoDt)).To(Succeed())
	g.Expect(math.Abs(sys.CurrentState().Xdd[0] - prevAcc)).To(BeNumerically("<", 5))

	for i := 0; i < 1000; i++ {
		g.Expect(sys.Step(servoDt)).To(Succeed())
		g.Expect(r.canon.Step(servoDt)).To(Succeed())
	}
	g.Expect(sys.CurrentState().X[0]).To(BeNumerically("~", -1, 1e-3))
	g.Expect(sys.SteadyGoal()).To(Equal([]float64{-1}))
}

func TestCartesianFailedStepKeepsState(t *testing.T) {
	g := NewWithT(t)

	ct := coupling.NewStatic(2)
	sys, r := newCartesian(t, 1, 2, 2, func(c *Config) { c.Couplings = []dynamo.CouplingTerm{ct} })
	g.Expect(sys.Start(dynamo.NewStateAt([]float64{0, 0}), dynamo.NewStateAt([]float64{1, 1}))).To(Succeed())
	for i := 0; i < 5; i++ {
		g.Expect(sys.Step(servoDt)).To(Succeed())
		g.Expect(r.canon.Step(servoDt)).To(Succeed())
	}
	before := sys.CurrentState().Clone()
	goalBefore := sys.CurrentGoalState().Clone()

	g.Expect(ct.Set([]float64{0, math.Inf(1)}, nil)).To(Succeed())
	err := sys.Step(servoDt)
	g.Expect(errors.Is(err, dynamo.ErrNumericDivergence)).To(BeTrue())
	g.Expect(sys.CurrentState()).To(Equal(before))
	g.Expect(sys.CurrentGoalState()).To(Equal(goalBefore))
}

func TestCartesianPreconditions(t *testing.T) {
	g := NewWithT(t)

	sys, _ := newCartesian(t, 1, 2, 2, nil)
	g.Expect(errors.Is(sys.Step(servoDt), dynamo.ErrNotStarted)).To(BeTrue())

	err := sys.Start(dynamo.NewStateAt([]float64{0}), dynamo.NewStateAt([]float64{1, 1}))
	g.Expect(errors.Is(err, dynamo.ErrDimensionMismatch)).To(BeTrue())
	g.Expect(sys.IsStarted()).To(BeFalse())

	_, err = New(Kind(9), 2, Config{})
	g.Expect(errors.Is(err, dynamo.ErrPrecondition)).To(BeTrue())

	_, err = NewCartesian(2, Config{})
	g.Expect(errors.Is(err, dynamo.ErrPrecondition)).To(BeTrue())
}

func TestCartesianStepDoesNotAllocate(t *testing.T) {
	ct := coupling.NewStatic(3)
	sys, r := newCartesian(t, 1, 2, 3, func(c *Config) { c.Couplings = []dynamo.CouplingTerm{ct} })
	if err := r.wiggle(5); err != nil {
		t.Fatal(err)
	}
	if err := sys.Start(dynamo.NewStateAt([]float64{0, 0, 0}), dynamo.NewStateAt([]float64{1, 2, 3})); err != nil {
		t.Fatal(err)
	}
	allocs := testing.AllocsPerRun(200, func() {
		if err := sys.Step(servoDt); err != nil {
			t.Fatal(err)
		}
		if err := r.canon.Step(servoDt); err != nil {
			t.Fatal(err)
		}
	})
	if allocs != 0 {
		t.Errorf("expected 0 allocations per tick, got %.1f", allocs)
	}
}
