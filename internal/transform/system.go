// Package transform implements the transformation systems: the second-order
// attractor that pulls a primitive's state toward its goal, shaped by a learned
// forcing term and additive coupling terms.
//
// Two variants exist, selected by [Kind]: [Cartesian] over ℝⁿ positions and
// [Quaternion] over unit-quaternion orientations. Both integrate with explicit
// Euler, read τ fresh every tick, advance their goal system after the attractor
// update, and stage each tick so that a failing tick leaves the state untouched.
// Step never allocates.
package transform

import (
	"math"

	"github.com/pkg/errors"

	"github.com/san-kum/dmp/internal/canonical"
	"github.com/san-kum/dmp/internal/dynamo"
	"github.com/san-kum/dmp/internal/goal"
	"github.com/san-kum/dmp/internal/tau"
)

type Kind int

const (
	KindCartesian Kind = iota
	KindQuaternion
)

func (k Kind) String() string {
	switch k {
	case KindCartesian:
		return "cartesian"
	case KindQuaternion:
		return "quaternion"
	default:
		return "unknown"
	}
}

const (
	DefaultAlpha = 25.0
	DefaultBeta  = DefaultAlpha / 4

	// MinAmplitude is the smallest learned amplitude that is scaled against. Axes with
	// a smaller learned amplitude are left unscaled.
	MinAmplitude = 1e-4
)

// System is the contract shared by both variants.
type System interface {
	Kind() Kind
	Dim() int
	IsStarted() bool
	Step(dt float64) error
	Validate() error
	SetLearnedAmplitude(a []float64) error
	LearnedAmplitude() []float64
	SetCouplingMask(mask []bool) error
	SetScalingMask(mask []bool) error
}

type Config struct {
	Alpha        float64
	Beta         float64
	GoalAlpha    float64
	Tau          *tau.System
	Canonical    *canonical.System
	Approximator dynamo.ForcingTermApproximator
	Couplings    []dynamo.CouplingTerm
	Logger       dynamo.DataLogger
	Diagnostics  dynamo.Diagnostics
}

// New builds the variant named by kind. dim is ignored for quaternions, which are always 3.
func New(kind Kind, dim int, cfg Config) (System, error) {
	switch kind {
	case KindCartesian:
		return NewCartesian(dim, cfg)
	case KindQuaternion:
		return NewQuaternion(cfg)
	default:
		return nil, errors.Wrapf(dynamo.ErrPrecondition, "unknown transformation system kind %d", kind)
	}
}

// base holds what both variants share: collaborators, masks, amplitude and the
// scratch buffers that keep Step allocation-free.
type base struct {
	kind      Kind
	dim       int
	alpha     float64
	beta      float64
	goalAlpha float64

	tau       *tau.System
	canon     *canonical.System
	approx    dynamo.ForcingTermApproximator
	couplings []dynamo.CouplingTerm
	logger    dynamo.DataLogger
	diag      dynamo.Diagnostics

	couplingMask []bool
	scalingMask  []bool
	aLearn       []float64

	started bool
	tick    int

	f       []float64
	basis   []float64
	ctAcc   []float64
	ctVel   []float64
	termAcc []float64
	termVel []float64
	amp     []float64
	rec     dynamo.TickRecord
}

func newBase(kind Kind, dim, posDim int, cfg Config) (base, error) {
	b := base{
		kind:      kind,
		dim:       dim,
		alpha:     cfg.Alpha,
		beta:      cfg.Beta,
		goalAlpha: cfg.GoalAlpha,
		tau:       cfg.Tau,
		canon:     cfg.Canonical,
		approx:    cfg.Approximator,
		couplings: cfg.Couplings,
		logger:    cfg.Logger,
		diag:      cfg.Diagnostics,
	}
	if b.alpha == 0 {
		b.alpha = DefaultAlpha
	}
	if b.beta == 0 {
		b.beta = b.alpha / 4
	}
	if b.goalAlpha == 0 {
		b.goalAlpha = goal.DefaultAlpha
	}
	if b.diag == nil {
		b.diag = dynamo.NopDiagnostics
	}
	if dim <= 0 {
		return b, errors.Wrapf(dynamo.ErrPrecondition, "dimension must be positive, got %d", dim)
	}
	if b.alpha <= 0 || b.beta <= 0 {
		return b, errors.Wrapf(dynamo.ErrPrecondition, "gains must be positive, alpha=%f beta=%f", b.alpha, b.beta)
	}
	if b.tau == nil || b.canon == nil || b.approx == nil {
		return b, errors.Wrap(dynamo.ErrPrecondition, "tau, canonical and approximator are required")
	}
	if b.canon.Tau() != b.tau {
		return b, errors.Wrap(dynamo.ErrPrecondition, "canonical system reads a different tau system")
	}
	if b.approx.CanonicalOrder() != b.canon.Order() {
		return b, errors.Wrapf(dynamo.ErrPrecondition, "approximator built for canonical order %d, system has %d",
			b.approx.CanonicalOrder(), b.canon.Order())
	}
	for i, c := range b.couplings {
		if c == nil {
			return b, errors.Wrapf(dynamo.ErrPrecondition, "coupling term %d is nil", i)
		}
	}

	size := b.approx.ModelSize()
	b.couplingMask = allTrue(dim)
	b.scalingMask = allTrue(dim)
	b.aLearn = make([]float64, dim)
	b.rec = *dynamo.NewTickRecord(dim, posDim, size)
	b.basis = b.rec.Basis
	b.f = b.rec.Forcing
	b.ctAcc = b.rec.CouplingAcc
	b.ctVel = make([]float64, dim)
	b.termAcc = make([]float64, dim)
	b.termVel = make([]float64, dim)
	b.amp = make([]float64, dim)
	return b, nil
}

func allTrue(n int) []bool {
	m := make([]bool, n)
	for i := range m {
		m[i] = true
	}
	return m
}

func (b *base) Kind() Kind      { return b.kind }
func (b *base) Dim() int        { return b.dim }
func (b *base) IsStarted() bool { return b.started }
func (b *base) Alpha() float64  { return b.alpha }
func (b *base) Beta() float64   { return b.beta }
func (b *base) Ticks() int      { return b.tick }

// Forcing returns the unscaled forcing term of the last tick. The slice is reused.
func (b *base) Forcing() []float64 { return b.f }

// SetLearnedAmplitude freezes the amplitude the forcing term was learned at.
func (b *base) SetLearnedAmplitude(a []float64) error {
	if len(a) != b.dim {
		return b.fail("set amplitude", errors.Wrapf(dynamo.ErrDimensionMismatch, "amplitude %d, want %d", len(a), b.dim))
	}
	if !dynamo.Finite(a) {
		return b.fail("set amplitude", errors.Wrap(dynamo.ErrValidity, "amplitude has non-finite values"))
	}
	copy(b.aLearn, a)
	return nil
}

func (b *base) LearnedAmplitude() []float64 {
	return append([]float64(nil), b.aLearn...)
}

// SetCouplingMask enables coupling per axis. Disabled axes ignore coupling terms and
// learn zero coupling targets.
func (b *base) SetCouplingMask(mask []bool) error {
	if len(mask) != b.dim {
		return b.fail("set coupling mask", errors.Wrapf(dynamo.ErrDimensionMismatch, "mask %d, want %d", len(mask), b.dim))
	}
	copy(b.couplingMask, mask)
	return nil
}

// SetScalingMask enables amplitude scaling per axis.
func (b *base) SetScalingMask(mask []bool) error {
	if len(mask) != b.dim {
		return b.fail("set scaling mask", errors.Wrapf(dynamo.ErrDimensionMismatch, "mask %d, want %d", len(mask), b.dim))
	}
	copy(b.scalingMask, mask)
	return nil
}

// stepPreconditions checks the lifecycle and dt before a tick.
func (b *base) stepPreconditions(dt float64) error {
	if !b.started {
		return dynamo.ErrNotStarted
	}
	if dt <= 0 || math.IsNaN(dt) {
		return errors.Wrapf(dynamo.ErrPrecondition, "dt must be positive, got %f", dt)
	}
	return nil
}

// sumCoupling fills ctAcc and ctVel with the masked sum over all coupling terms.
func (b *base) sumCoupling() error {
	for i := range b.ctAcc {
		b.ctAcc[i], b.ctVel[i] = 0, 0
	}
	for _, c := range b.couplings {
		for i := range b.termAcc {
			b.termAcc[i], b.termVel[i] = 0, 0
		}
		if err := c.CouplingTerm(b.termAcc, b.termVel); err != nil {
			return err
		}
		for i := range b.ctAcc {
			b.ctAcc[i] += b.termAcc[i]
			b.ctVel[i] += b.termVel[i]
		}
	}
	for i, on := range b.couplingMask {
		if !on {
			b.ctAcc[i], b.ctVel[i] = 0, 0
		}
	}
	if !dynamo.Finite(b.ctAcc) || !dynamo.Finite(b.ctVel) {
		return errors.Wrap(dynamo.ErrNumericDivergence, "coupling term")
	}
	return nil
}

// amplitudeAt fills amp from the current goal-to-start amplitude on axis i.
func (b *base) amplitudeAt(i int, current float64) {
	if !b.scalingMask[i] || math.Abs(b.aLearn[i]) < MinAmplitude {
		b.amp[i] = 1
		return
	}
	b.amp[i] = current / b.aLearn[i]
}

func (b *base) validateBase() error {
	if err := b.tau.Validate(); err != nil {
		return err
	}
	if err := b.canon.Validate(); err != nil {
		return err
	}
	if b.approx.CanonicalOrder() != b.canon.Order() || len(b.basis) != b.approx.ModelSize() {
		return errors.Wrap(dynamo.ErrValidity, "approximator no longer matches the canonical system")
	}
	if len(b.aLearn) != b.dim || len(b.couplingMask) != b.dim || len(b.scalingMask) != b.dim {
		return errors.Wrap(dynamo.ErrValidity, "per-axis vectors have the wrong dimension")
	}
	if !dynamo.Finite(b.aLearn) {
		return errors.Wrap(dynamo.ErrValidity, "learned amplitude has non-finite values")
	}
	return nil
}

// record hands the filled tick record to the logger. A full logger does not fail the
// tick, the state is already committed; the drop goes to diagnostics.
func (b *base) record(time float64) {
	if b.logger == nil {
		return
	}
	b.rec.Time = time
	b.rec.Tau = b.tau.Tau()
	b.rec.Canonical[0], b.rec.Canonical[1], b.rec.Canonical[2] = b.canon.State()
	if err := b.logger.Record(&b.rec); err != nil {
		b.diag.Report("transform", "record", err)
	}
}

func (b *base) fail(op string, err error) error {
	b.diag.Report("transform", op, err)
	return err
}

// failStep wraps err with the tick it happened on.
func (b *base) failStep(time float64, err error) error {
	return b.fail("step", &dynamo.StepError{Component: b.kind.String(), Step: b.tick, Time: time, Wrapped: err})
}
