package experiment

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/num/quat"

	"github.com/san-kum/dmp/internal/approx"
	"github.com/san-kum/dmp/internal/config"
	"github.com/san-kum/dmp/internal/coupling"
	"github.com/san-kum/dmp/internal/dmp"
	"github.com/san-kum/dmp/internal/dynamo"
	"github.com/san-kum/dmp/internal/logging"
	"github.com/san-kum/dmp/internal/sim"
	"github.com/san-kum/dmp/internal/storage"
	"github.com/san-kum/dmp/internal/trajectory"
	"github.com/san-kum/dmp/internal/trajlog"
)

// Experiment learns one primitive from the configured demonstration and unrolls it.
type Experiment struct {
	cfg    *config.Config
	logger *zap.Logger
	diag   *logging.Diagnostics

	cart     *dmp.Cartesian
	quat     *dmp.Quaternion
	cartDemo trajectory.Cartesian
	quatDemo trajectory.Quaternion
	// further demonstrations learned together with the first
	cartExtra []trajectory.Cartesian
	quatExtra []trajectory.Quaternion
	arena     *trajlog.Arena

	simulator *sim.Simulator
}

func New(cfg *config.Config, logger *zap.Logger) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Experiment{
		cfg:    cfg,
		logger: logger,
		diag:   logging.NewDiagnostics(logger.Named("diag"), 100),
	}

	var err error
	switch cfg.Kind {
	case config.KindCartesian:
		if e.cartDemo, err = CartesianDemo(cfg); err != nil {
			return nil, err
		}
		for _, path := range cfg.Demo.Extra {
			demo, lerr := storage.LoadCartesian(path)
			if lerr != nil {
				return nil, lerr
			}
			e.cartExtra = append(e.cartExtra, demo)
		}
		dim := e.cartDemo.Dim()
		if len(cfg.Goal) > 0 && len(cfg.Goal) != dim {
			return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "goal %d, demonstration %d", len(cfg.Goal), dim)
		}
		opts, oerr := e.options(dim, dim)
		if oerr != nil {
			return nil, oerr
		}
		reader := &lateReader{}
		if cfg.Coupling.Stiffness != 0 {
			opts.Couplings = append(opts.Couplings, coupling.NewSpring(reader, cfg.Coupling.Anchor, cfg.Coupling.Stiffness))
		}
		e.cart, err = dmp.NewCartesian(dim, opts)
		if err == nil {
			reader.src = e.cart.System()
		}
	case config.KindQuaternion:
		if e.quatDemo, err = QuaternionDemo(cfg); err != nil {
			return nil, err
		}
		for _, path := range cfg.Demo.Extra {
			demo, lerr := storage.LoadQuaternion(path)
			if lerr != nil {
				return nil, lerr
			}
			e.quatExtra = append(e.quatExtra, demo)
		}
		opts, oerr := e.options(3, 4)
		if oerr != nil {
			return nil, oerr
		}
		e.quat, err = dmp.NewQuaternion(opts)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "build %s primitive", cfg.Kind)
	}
	return e, nil
}

func (e *Experiment) options(dim, posDim int) (dmp.Options, error) {
	p := e.cfg.Primitive
	method, err := approx.ParseMethod(p.Method)
	if err != nil {
		return dmp.Options{}, err
	}
	opts := dmp.Options{
		Alpha:          p.Alpha,
		Beta:           p.Beta,
		GoalAlpha:      p.GoalAlpha,
		CanonicalOrder: p.CanonicalOrder,
		NumBasis:       p.NumBasis,
		Method:         method,
		TauReference:   p.TauReference,
		DoneTolerance:  p.DoneTolerance,
		Diagnostics:    e.diag,
	}
	if e.cfg.LogCapacity > 0 {
		e.arena, err = trajlog.New(e.cfg.LogCapacity, dim, posDim, p.NumBasis)
		if err != nil {
			return dmp.Options{}, err
		}
		opts.Logger = e.arena
	}
	return opts, nil
}

// lateReader lets a coupling term read the position of a system built after it.
type lateReader struct {
	src coupling.StateReader
}

func (r *lateReader) Position() []float64 { return r.src.Position() }

// Learn fits the primitive to the configured demonstrations.
func (e *Experiment) Learn() error {
	switch {
	case e.cart != nil:
		demos := append([]trajectory.Cartesian{e.cartDemo}, e.cartExtra...)
		if err := e.cart.LearnMulti(demos); err != nil {
			return err
		}
		e.logger.Info("learned cartesian demonstration",
			zap.Int("demos", len(demos)), zap.Int("samples", len(e.cartDemo)), zap.Float64("tau", e.cart.LearnedTau()))
	default:
		demos := append([]trajectory.Quaternion{e.quatDemo}, e.quatExtra...)
		if err := e.quat.LearnMulti(demos); err != nil {
			return err
		}
		e.logger.Info("learned orientation demonstration",
			zap.Int("demos", len(demos)), zap.Int("samples", len(e.quatDemo)), zap.Float64("tau", e.quat.LearnedTau()))
	}
	return nil
}

// Setup starts the learned primitive from the demonstrated start toward the
// configured goal and attaches metrics.
func (e *Experiment) Setup(metrics []sim.Metric) error {
	if err := e.start(); err != nil {
		return err
	}
	if e.arena != nil {
		e.arena.Reset()
	}
	e.simulator = sim.New(e.Primitive())
	for _, m := range metrics {
		e.simulator.AddMetric(m)
	}
	return nil
}

// Restart starts the primitive again from the demonstrated start without
// clearing the trajectory log.
func (e *Experiment) Restart() error { return e.start() }

// Tau returns the movement duration the primitive is started with.
func (e *Experiment) Tau() float64 {
	if e.cfg.Tau > 0 {
		return e.cfg.Tau
	}
	return e.learnedTau()
}

func (e *Experiment) start() error {
	switch {
	case e.cart != nil:
		goal := e.cart.LearnedGoal()
		if len(e.cfg.Goal) > 0 {
			goal = e.cfg.Goal
		}
		return e.cart.Start(e.cart.LearnedStart(), goal, e.cfg.Tau)
	default:
		goal := e.quat.LearnedGoal()
		if len(e.cfg.Goal) > 0 {
			goal = toQuat(e.cfg.Goal)
		}
		return e.quat.Start(e.quat.LearnedStart(), goal, e.cfg.Tau)
	}
}

func (e *Experiment) SimConfig() sim.Config {
	return sim.Config{
		Dt:            e.cfg.Dt,
		Duration:      e.cfg.Duration,
		StopWhenDone:  e.cfg.StopWhenDone,
		ValidateState: true,
	}
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	if e.simulator == nil {
		return nil, errors.Wrap(dynamo.ErrPrecondition, "experiment not set up")
	}
	res, err := e.simulator.Run(ctx, e.SimConfig())
	if err != nil {
		return nil, err
	}
	for _, stepErr := range res.Errors {
		e.logger.Warn("unroll stopped", zap.Error(stepErr))
	}
	if e.arena != nil && e.arena.Dropped() > 0 {
		e.logger.Warn("trajectory log full", zap.Int("capacity", e.arena.Cap()), zap.Int("dropped", e.arena.Dropped()))
	}
	e.logger.Debug("unroll finished", zap.Int("steps", res.StepsTaken), zap.Bool("done", e.Primitive().Done()))
	return res, nil
}

// ReproductionError replays the demonstration from its own start, goal and
// duration and returns the worst deviation from it: Euclidean for positions,
// rotation angle for orientations. Call Setup again before Run afterwards.
func (e *Experiment) ReproductionError() (float64, error) {
	if e.cart != nil {
		if err := e.cart.Reproduce(); err != nil {
			return 0, err
		}
		out, err := e.cart.Rollout(len(e.cartDemo)-1, e.cartDemo.Dt())
		if err != nil {
			return 0, err
		}
		return trajectory.PositionError(e.cartDemo, out)
	}
	if err := e.quat.Reproduce(); err != nil {
		return 0, err
	}
	out, err := e.quat.Rollout(len(e.quatDemo)-1, e.quatDemo.Dt())
	if err != nil {
		return 0, err
	}
	return trajectory.AngularError(e.quatDemo, out)
}

// Metadata describes the run for storage under preset.
func (e *Experiment) Metadata(preset string) storage.RunMetadata {
	p := e.cfg.Primitive
	return storage.RunMetadata{
		Preset:         preset,
		Kind:           e.cfg.Kind,
		Dt:             e.cfg.Dt,
		Duration:       e.cfg.Duration,
		Tau:            e.Tau(),
		Alpha:          p.Alpha,
		Beta:           p.Beta,
		CanonicalOrder: p.CanonicalOrder,
		NumBasis:       p.NumBasis,
		Method:         p.Method,
	}
}

func (e *Experiment) learnedTau() float64 {
	if e.cart != nil {
		return e.cart.LearnedTau()
	}
	return e.quat.LearnedTau()
}

// Primitive returns the configured primitive.
func (e *Experiment) Primitive() sim.Primitive {
	if e.cart != nil {
		return e.cart
	}
	return e.quat
}

func (e *Experiment) Cartesian() *dmp.Cartesian   { return e.cart }
func (e *Experiment) Quaternion() *dmp.Quaternion { return e.quat }

// Log returns the per-tick trajectory log, or nil when logging is disabled.
func (e *Experiment) Log() *trajlog.Arena               { return e.arena }
func (e *Experiment) Diagnostics() *logging.Diagnostics { return e.diag }
func (e *Experiment) GetSimulator() *sim.Simulator      { return e.simulator }

// SaveDemo writes the demonstration the primitive learns from as CSV.
func (e *Experiment) SaveDemo(path string) error {
	if e.cart != nil {
		return storage.SaveCartesian(path, e.cartDemo)
	}
	return storage.SaveQuaternion(path, e.quatDemo)
}

// CartesianDemo loads the configured demonstration file or generates a
// minimum-jerk reach.
func CartesianDemo(cfg *config.Config) (trajectory.Cartesian, error) {
	if cfg.Demo.File != "" {
		return storage.LoadCartesian(cfg.Demo.File)
	}
	return trajectory.MinJerk(cfg.Demo.Start, cfg.Demo.Goal, cfg.Demo.Duration, cfg.Demo.Dt)
}

// QuaternionDemo loads the configured demonstration file or generates a
// minimum-jerk rotation.
func QuaternionDemo(cfg *config.Config) (trajectory.Quaternion, error) {
	if cfg.Demo.File != "" {
		return storage.LoadQuaternion(cfg.Demo.File)
	}
	return trajectory.QuatMinJerk(toQuat(cfg.Demo.Start), toQuat(cfg.Demo.Goal), cfg.Demo.Duration, cfg.Demo.Dt)
}

func toQuat(v []float64) quat.Number {
	return quat.Number{Real: v[0], Imag: v[1], Jmag: v[2], Kmag: v[3]}
}
