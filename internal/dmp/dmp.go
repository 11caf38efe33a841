// Package dmp assembles complete movement primitives: one tau system, one phase
// system, one forcing-term approximator and one transformation system, learned from
// a demonstration and unrolled tick by tick.
package dmp

import (
	"github.com/pkg/errors"

	"github.com/san-kum/dmp/internal/approx"
	"github.com/san-kum/dmp/internal/canonical"
	"github.com/san-kum/dmp/internal/dynamo"
	"github.com/san-kum/dmp/internal/goal"
	"github.com/san-kum/dmp/internal/tau"
	"github.com/san-kum/dmp/internal/transform"
)

type Options struct {
	Alpha          float64
	Beta           float64
	GoalAlpha      float64
	CanonicalOrder int
	NumBasis       int
	Method         approx.Method
	TauReference   float64

	// DoneTolerance is the goal distance (rad for orientations) under which a
	// primitive whose phase has decayed counts as finished.
	DoneTolerance float64

	Couplings         []dynamo.CouplingTerm
	CanonicalCouplers []canonical.Coupler
	Logger            dynamo.DataLogger
	Diagnostics       dynamo.Diagnostics
}

const donePhase = 1e-3

// initialTau is the movement duration before any demo or Start sets one.
const initialTau = 1.0

func DefaultOptions() Options {
	return Options{
		Alpha:          transform.DefaultAlpha,
		Beta:           transform.DefaultBeta,
		GoalAlpha:      goal.DefaultAlpha,
		CanonicalOrder: 2,
		NumBasis:       25,
		Method:         approx.MethodLeastSquares,
		TauReference:   1,
		DoneTolerance:  1e-3,
	}
}

// core is the part shared by both primitives.
type core struct {
	opts    Options
	tau     *tau.System
	canon   *canonical.System
	approx  *approx.Gaussian
	diag    dynamo.Diagnostics
	learned bool
	running bool
}

func newCore(dim int, opts Options) (core, error) {
	if opts.TauReference == 0 {
		opts.TauReference = 1
	}
	if opts.DoneTolerance <= 0 {
		opts.DoneTolerance = DefaultOptions().DoneTolerance
	}
	if opts.Diagnostics == nil {
		opts.Diagnostics = dynamo.NopDiagnostics
	}
	ts, err := tau.New(initialTau, opts.TauReference)
	if err != nil {
		return core{}, err
	}
	canonOpts := []canonical.Option{canonical.WithDiagnostics(opts.Diagnostics)}
	if len(opts.CanonicalCouplers) > 0 {
		canonOpts = append(canonOpts, canonical.WithCouplers(opts.CanonicalCouplers...))
	}
	c, err := canonical.New(ts, opts.CanonicalOrder, canonOpts...)
	if err != nil {
		return core{}, err
	}
	a, err := approx.NewGaussian(dim, opts.NumBasis, c)
	if err != nil {
		return core{}, err
	}
	return core{opts: opts, tau: ts, canon: c, approx: a, diag: opts.Diagnostics}, nil
}

func (c *core) transformConfig() transform.Config {
	cfg := transform.Config{
		Alpha:        c.opts.Alpha,
		Beta:         c.opts.Beta,
		GoalAlpha:    c.opts.GoalAlpha,
		Tau:          c.tau,
		Canonical:    c.canon,
		Approximator: c.approx,
		Couplings:    c.opts.Couplings,
		Diagnostics:  c.diag,
	}
	if c.opts.Logger != nil {
		cfg.Logger = c.opts.Logger
	}
	return cfg
}

func (c *core) Tau() *tau.System               { return c.tau }
func (c *core) Canonical() *canonical.System   { return c.canon }
func (c *core) Approximator() *approx.Gaussian { return c.approx }
func (c *core) IsLearned() bool                { return c.learned }
func (c *core) IsRunning() bool                { return c.running }
func (c *core) Options() Options               { return c.opts }

// SetTau changes the movement duration. A running primitive picks it up on the next tick.
func (c *core) SetTau(v float64) error {
	if err := c.tau.SetTau(v); err != nil {
		c.diag.Report("dmp", "set tau", err)
		return err
	}
	return nil
}

// startPhase resets the phase and sets τ. A non-positive v falls back to fallback,
// then to the current τ.
func (c *core) startPhase(v, fallback float64) error {
	if v <= 0 {
		v = fallback
	}
	if v <= 0 {
		v = c.tau.Tau()
	}
	if err := c.SetTau(v); err != nil {
		return err
	}
	return c.canon.Start()
}

// fit solves for the approximator weights over ds.
func (c *core) fit(ds *approx.Dataset) error {
	if err := c.approx.Fit(ds, c.opts.Method); err != nil {
		c.diag.Report("dmp", "fit", err)
		return errors.Wrap(err, "fit forcing term")
	}
	c.learned = true
	return nil
}

func (c *core) fail(op string, err error) error {
	c.diag.Report("dmp", op, err)
	return err
}
