package transform

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/num/quat"

	"github.com/san-kum/dmp/internal/coupling"
	"github.com/san-kum/dmp/internal/dynamo"
	"github.com/san-kum/dmp/internal/so3"
)

const servoDt = 1.0 / 420

var (
	q0 = quat.Number{Real: 1}
	qg = quat.Number{Real: 0.707, Imag: 0.707}
)

var _ = Describe("Quaternion", func() {
	var (
		r   *rig
		sys *Quaternion
	)

	tick := func(dt float64) {
		Expect(sys.Step(dt)).To(Succeed())
		Expect(r.canon.Step(dt)).To(Succeed())
	}

	build := func(tauValue float64, order int, cfg func(*Config)) {
		var err error
		r, err = newRig(tauValue, order, 3, 25)
		Expect(err).NotTo(HaveOccurred())
		c := r.config()
		if cfg != nil {
			cfg(&c)
		}
		sys, err = NewQuaternion(c)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.canon.Start()).To(Succeed())
	}

	Describe("construction", func() {
		It("rejects an approximator built for another canonical order", func() {
			other, err := newRig(1, 1, 3, 10)
			Expect(err).NotTo(HaveOccurred())
			mine, err := newRig(1, 2, 3, 10)
			Expect(err).NotTo(HaveOccurred())
			cfg := mine.config()
			cfg.Approximator = other.approx
			_, err = NewQuaternion(cfg)
			Expect(errors.Is(err, dynamo.ErrPrecondition)).To(BeTrue())
		})

		It("builds through the kind switch", func() {
			rr, err := newRig(1, 2, 3, 10)
			Expect(err).NotTo(HaveOccurred())
			s, err := New(KindQuaternion, 0, rr.config())
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Kind()).To(Equal(KindQuaternion))
			Expect(s.Dim()).To(Equal(3))
			Expect(s.Kind().String()).To(Equal("quaternion"))
		})
	})

	Describe("lifecycle", func() {
		BeforeEach(func() { build(1, 2, nil) })

		It("refuses to step before start", func() {
			err := sys.Step(servoDt)
			Expect(errors.Is(err, dynamo.ErrNotStarted)).To(BeTrue())
			var se *dynamo.StepError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.Component).To(Equal("quaternion"))
		})

		It("refuses non-positive dt", func() {
			Expect(sys.Start(dynamo.NewQuatStateAt(q0), dynamo.NewQuatStateAt(qg))).To(Succeed())
			Expect(errors.Is(sys.Step(0), dynamo.ErrPrecondition)).To(BeTrue())
			Expect(errors.Is(sys.Step(-servoDt), dynamo.ErrPrecondition)).To(BeTrue())
			Expect(sys.Ticks()).To(Equal(0))
		})

		It("rejects a non-unit goal without starting", func() {
			err := sys.Start(dynamo.NewQuatStateAt(q0), dynamo.NewQuatStateAt(quat.Number{Real: 2}))
			Expect(errors.Is(err, dynamo.ErrValidity)).To(BeTrue())
			Expect(sys.IsStarted()).To(BeFalse())
		})
	})

	Describe("convergence", func() {
		It("reaches the goal within 1e-3 rad after 420 ticks at 420 Hz", func() {
			build(1, 2, nil)
			Expect(sys.Alpha()).To(Equal(25.0))
			Expect(sys.Beta()).To(Equal(6.25))
			Expect(sys.Start(dynamo.NewQuatStateAt(q0), dynamo.NewQuatStateAt(qg))).To(Succeed())

			for i := 0; i < 420; i++ {
				tick(servoDt)
			}
			Expect(so3.Angle(sys.CurrentState().Q, sys.SteadyGoal())).To(BeNumerically("<", 1e-3))
			Expect(sys.CurrentState().Time).To(BeNumerically("~", 1, 1e-9))
		})

		It("keeps unit norm under forcing and coupling", func() {
			ct := coupling.NewStatic(3)
			Expect(ct.Set([]float64{2, -1, 0.5}, nil)).To(Succeed())
			build(1, 2, func(c *Config) { c.Couplings = []dynamo.CouplingTerm{ct} })
			Expect(r.wiggle(10)).To(Succeed())
			Expect(sys.SetLearnedAmplitude([]float64{0.3, 0.2, -0.1})).To(Succeed())

			start := dynamo.NewQuatState(so3.ExpMap(r3.Vector{X: 0.3, Y: -1}), r3.Vector{Z: 0.8}, r3.Vector{Y: -2})
			Expect(sys.Start(start, dynamo.NewQuatStateAt(so3.ExpMap(r3.Vector{Z: 2.5})))).To(Succeed())
			for i := 0; i < 2000; i++ {
				tick(servoDt)
				Expect(math.Abs(quat.Abs(sys.CurrentState().Q) - 1)).To(BeNumerically("<", so3.NormTolerance))
			}
			Expect(sys.Validate()).To(Succeed())
		})
	})

	Describe("second-order start", func() {
		It("continues the start state's angular acceleration", func() {
			build(1, 2, nil)
			wd0 := r3.Vector{X: 1, Y: -0.5, Z: 0.25}
			start := dynamo.NewQuatState(q0, r3.Vector{X: 0.5}, wd0)
			Expect(sys.Start(start, dynamo.NewQuatStateAt(qg))).To(Succeed())

			tick(1e-5)
			Expect(sys.CurrentState().Omegad.Sub(wd0).Norm()).To(BeNumerically("<", 1e-2))
		})

		It("stays continuous at the servo rate", func() {
			build(1, 2, nil)
			w0 := r3.Vector{X: 0.5}
			wd0 := r3.Vector{X: 1, Y: -0.5, Z: 0.25}
			Expect(sys.Start(dynamo.NewQuatState(q0, w0, wd0), dynamo.NewQuatStateAt(qg))).To(Succeed())

			// With zero forcing the first tick moves ω̇ by about α(β|ω| + |ω̇|)dt,
			// the Euler drift of the attractor, far below the jump a first-order
			// phase produces.
			tick(servoDt)
			drift := sys.Alpha() * (sys.Beta()*w0.Norm() + wd0.Norm()) * servoDt
			Expect(sys.CurrentState().Omegad.Sub(wd0).Norm()).To(BeNumerically("<", 1.5*drift))
			Expect(drift).To(BeNumerically("<", 0.3))
		})

		It("jumps with a first-order canonical system", func() {
			build(1, 1, nil)
			Expect(sys.Start(dynamo.NewQuatStateAt(q0), dynamo.NewQuatStateAt(qg))).To(Succeed())

			tick(1e-5)
			Expect(sys.CurrentState().Omegad.Norm()).To(BeNumerically(">", 100))
		})
	})

	Describe("tau invariance", func() {
		It("follows the same path in phase-normalized time", func() {
			run := func(tauValue float64) []quat.Number {
				build(tauValue, 2, nil)
				Expect(r.wiggle(30)).To(Succeed())
				Expect(sys.SetLearnedAmplitude([]float64{1, 1, 1})).To(Succeed())
				Expect(sys.Start(dynamo.NewQuatStateAt(q0), dynamo.NewQuatStateAt(qg))).To(Succeed())
				out := make([]quat.Number, 0, 300)
				for i := 0; i < 300; i++ {
					tick(0.001 * tauValue)
					out = append(out, sys.CurrentState().Q)
				}
				return out
			}
			fast := run(1)
			slow := run(2.5)
			for i := range fast {
				Expect(so3.Angle(fast[i], slow[i])).To(BeNumerically("<", 1e-9))
			}
		})
	})

	Describe("amplitude scaling", func() {
		It("leaves axes with a vanishing learned amplitude unscaled", func() {
			build(1, 2, nil)
			Expect(r.wiggle(50)).To(Succeed())
			Expect(sys.SetLearnedAmplitude([]float64{1e-9, 0, 0.4})).To(Succeed())
			Expect(sys.Start(dynamo.NewQuatStateAt(q0), dynamo.NewQuatStateAt(qg))).To(Succeed())
			for i := 0; i < 100; i++ {
				tick(servoDt)
			}
			Expect(sys.amp[0]).To(Equal(1.0))
			Expect(sys.amp[1]).To(Equal(1.0))
			Expect(sys.amp[2]).To(BeNumerically("~", 0, 1e-12))
			Expect(sys.Validate()).To(Succeed())
		})

		It("honours the scaling mask", func() {
			build(1, 2, nil)
			Expect(sys.SetLearnedAmplitude([]float64{0.5, 0.5, 0.5})).To(Succeed())
			Expect(sys.SetScalingMask([]bool{false, true, true})).To(Succeed())
			Expect(sys.Start(dynamo.NewQuatStateAt(q0), dynamo.NewQuatStateAt(qg))).To(Succeed())
			tick(servoDt)
			Expect(sys.amp[0]).To(Equal(1.0))
			Expect(sys.amp[1]).To(BeNumerically("~", 0, 1e-12))
			Expect(errors.Is(sys.SetScalingMask([]bool{true}), dynamo.ErrDimensionMismatch)).To(BeTrue())
		})
	})

	Describe("staged commit", func() {
		It("leaves state, goal and tick count untouched when a tick fails", func() {
			diag := &recordingDiagnostics{}
			ct := coupling.NewStatic(3)
			build(1, 2, func(c *Config) {
				c.Couplings = []dynamo.CouplingTerm{ct}
				c.Diagnostics = diag
			})
			Expect(sys.Start(dynamo.NewQuatStateAt(q0), dynamo.NewQuatStateAt(qg))).To(Succeed())
			for i := 0; i < 10; i++ {
				tick(servoDt)
			}
			before := sys.CurrentState()
			goalBefore := sys.CurrentGoalState()

			Expect(ct.Set([]float64{math.NaN(), 0, 0}, nil)).To(Succeed())
			err := sys.Step(servoDt)
			Expect(errors.Is(err, dynamo.ErrNumericDivergence)).To(BeTrue())
			Expect(sys.CurrentState()).To(Equal(before))
			Expect(sys.CurrentGoalState()).To(Equal(goalBefore))
			Expect(sys.Ticks()).To(Equal(10))
			Expect(diag.reports).To(HaveLen(1))
			Expect(diag.reports[0].op).To(Equal("step"))

			ct.Reset()
			Expect(sys.Step(servoDt)).To(Succeed())
		})
	})

	Describe("coupling mask", func() {
		It("ignores coupling on disabled axes", func() {
			ct := coupling.NewStatic(3)
			Expect(ct.Set([]float64{5, 5, 5}, nil)).To(Succeed())
			build(1, 2, func(c *Config) { c.Couplings = []dynamo.CouplingTerm{ct} })
			Expect(sys.SetCouplingMask([]bool{false, false, true})).To(Succeed())
			Expect(sys.Start(dynamo.NewQuatStateAt(q0), dynamo.NewQuatStateAt(q0))).To(Succeed())
			tick(servoDt)
			w := sys.CurrentState().Omegad
			Expect(w.X).To(Equal(0.0))
			Expect(w.Y).To(Equal(0.0))
			Expect(w.Z).To(BeNumerically(">", 0))
		})
	})

	Describe("learning targets", func() {
		BeforeEach(func() { build(2, 1, nil) })

		It("computes the forcing that explains a sample", func() {
			Expect(sys.Start(dynamo.NewQuatStateAt(q0), dynamo.NewQuatStateAt(qg))).To(Succeed())
			sample := dynamo.NewQuatState(so3.ExpMap(r3.Vector{X: 0.2}), r3.Vector{X: 0.4}, r3.Vector{X: -0.3})

			f := make([]float64, 3)
			Expect(sys.LearnTargetForcing(sample, f)).To(Succeed())

			diff := so3.LogDiff(sys.CurrentGoalState().Q, sample.Q)
			want := 4*(-0.3) - 25*(6.25*diff.X-2*0.4)
			Expect(f[0]).To(BeNumerically("~", want, 1e-9))
			Expect(f[1]).To(BeNumerically("~", 0, 1e-12))
		})

		It("subtracts the learned forcing and masks coupling targets", func() {
			Expect(r.wiggle(10)).To(Succeed())
			Expect(sys.Start(dynamo.NewQuatStateAt(q0), dynamo.NewQuatStateAt(qg))).To(Succeed())
			Expect(sys.SetCouplingMask([]bool{true, false, true})).To(Succeed())
			sample := dynamo.NewQuatState(so3.ExpMap(r3.Vector{X: 0.1}), r3.Vector{X: 0.2}, r3.Vector{})

			f := make([]float64, 3)
			ct := make([]float64, 3)
			Expect(sys.LearnTargetForcing(sample, f)).To(Succeed())
			Expect(sys.LearnTargetCoupling(sample, ct)).To(Succeed())

			learned := make([]float64, 3)
			Expect(r.approx.ForcingTerm(learned, nil)).To(Succeed())
			Expect(ct[0]).To(BeNumerically("~", f[0]-learned[0], 1e-9))
			Expect(ct[1]).To(Equal(0.0))
			Expect(ct[2]).To(BeNumerically("~", f[2]-learned[2], 1e-9))
		})

		It("needs a started system and a matching target", func() {
			sample := dynamo.NewQuatStateAt(q0)
			Expect(errors.Is(sys.LearnTargetForcing(sample, make([]float64, 3)), dynamo.ErrNotStarted)).To(BeTrue())
			Expect(sys.Start(dynamo.NewQuatStateAt(q0), dynamo.NewQuatStateAt(qg))).To(Succeed())
			Expect(errors.Is(sys.LearnTargetForcing(sample, make([]float64, 2)), dynamo.ErrDimensionMismatch)).To(BeTrue())
		})
	})

	Describe("logging", func() {
		It("records one row per committed tick", func() {
			logger := &recordingLogger{}
			build(1, 2, func(c *Config) { c.Logger = logger })
			Expect(sys.Start(dynamo.NewQuatStateAt(q0), dynamo.NewQuatStateAt(qg))).To(Succeed())
			for i := 0; i < 5; i++ {
				tick(servoDt)
			}
			Expect(logger.records).To(Equal(5))
			Expect(logger.last.Time).To(BeNumerically("~", 5*servoDt, 1e-12))
			Expect(logger.last.Position).To(HaveLen(4))
		})
	})
})

func TestQuaternionStepDoesNotAllocate(t *testing.T) {
	r, err := newRig(1, 2, 3, 25)
	if err != nil {
		t.Fatal(err)
	}
	ct := coupling.NewStatic(3)
	cfg := r.config()
	cfg.Couplings = []dynamo.CouplingTerm{ct}
	sys, err := NewQuaternion(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.wiggle(10); err != nil {
		t.Fatal(err)
	}
	if err := r.canon.Start(); err != nil {
		t.Fatal(err)
	}
	if err := sys.Start(dynamo.NewQuatStateAt(q0), dynamo.NewQuatStateAt(qg)); err != nil {
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
