package dmp

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/dmp/internal/approx"
	"github.com/san-kum/dmp/internal/dynamo"
	"github.com/san-kum/dmp/internal/sim"
	"github.com/san-kum/dmp/internal/trajectory"
	"github.com/san-kum/dmp/internal/transform"
)

// Cartesian is a position primitive over ℝⁿ.
type Cartesian struct {
	core
	dim int
	sys *transform.Cartesian

	learnedStart dynamo.State
	learnedGoal  []float64
	learnedTau   float64
	target       []float64
}

var _ sim.Primitive = (*Cartesian)(nil)

func NewCartesian(dim int, opts Options) (*Cartesian, error) {
	c, err := newCore(dim, opts)
	if err != nil {
		return nil, err
	}
	sys, err := transform.NewCartesian(dim, c.transformConfig())
	if err != nil {
		return nil, err
	}
	return &Cartesian{
		core:         c,
		dim:          dim,
		sys:          sys,
		learnedStart: dynamo.NewState(dim),
		learnedGoal:  make([]float64, dim),
		target:       make([]float64, dim),
	}, nil
}

// Learn fits the forcing term to demo. τ becomes the demo duration, and the demo's
// first and last samples become the default start and goal.
func (d *Cartesian) Learn(demo trajectory.Cartesian) error {
	return d.LearnMulti([]trajectory.Cartesian{demo})
}

// LearnMulti fits one forcing term to every demo. Each demo is replayed with its
// own duration, start and goal. The default start, goal, amplitude and τ are the
// means over the set.
func (d *Cartesian) LearnMulti(demos []trajectory.Cartesian) error {
	if len(demos) == 0 {
		return d.fail("learn", errors.Wrap(dynamo.ErrPrecondition, "no demonstrations"))
	}
	total := 0
	for _, demo := range demos {
		total += len(demo)
	}
	ds := d.approx.NewDataset(total)
	for i, demo := range demos {
		err := d.walk(demo, "learn", ds, func(sample dynamo.State) error {
			return d.sys.LearnTargetForcing(sample, d.target)
		})
		if err != nil {
			return errors.Wrapf(err, "demo %d", i)
		}
	}
	if err := d.fit(ds); err != nil {
		return err
	}

	start := dynamo.NewState(d.dim)
	goal := make([]float64, d.dim)
	tau := 0.0
	for _, demo := range demos {
		first := demo[0]
		floats.Add(start.X, first.X)
		floats.Add(start.Xd, first.Xd)
		floats.Add(start.Xdd, first.Xdd)
		floats.Add(goal, demo[len(demo)-1].X)
		tau += demo.Duration()
	}
	k := 1 / float64(len(demos))
	floats.Scale(k, start.X)
	floats.Scale(k, start.Xd)
	floats.Scale(k, start.Xdd)
	floats.Scale(k, goal)
	start.Time = demos[0][0].Time

	amp := make([]float64, d.dim)
	floats.SubTo(amp, goal, start.X)
	if err := d.sys.SetLearnedAmplitude(amp); err != nil {
		return err
	}
	_ = d.learnedStart.CopyFrom(start)
	copy(d.learnedGoal, goal)
	d.learnedTau = tau * k
	return nil
}

// LearnCoupling returns, for every demo sample after the first, the coupling term
// the current forcing term would need to pass through it.
func (d *Cartesian) LearnCoupling(demo trajectory.Cartesian) ([][]float64, error) {
	out := make([][]float64, 0, len(demo))
	err := d.walk(demo, "learn coupling", d.approx.NewDataset(len(demo)), func(sample dynamo.State) error {
		if err := d.sys.LearnTargetCoupling(sample, d.target); err != nil {
			return err
		}
		out = append(out, append([]float64(nil), d.target...))
		return nil
	})
	return out, err
}

// walk replays demo through the goal and phase systems, calling target for each
// sample after the first with the goal and phase the integrator would have used
// to produce it, and appending d.target to ds.
func (d *Cartesian) walk(demo trajectory.Cartesian, op string, ds *approx.Dataset, target func(dynamo.State) error) error {
	if err := demo.Validate(); err != nil {
		return d.fail(op, err)
	}
	if demo.Dim() != d.dim {
		return d.fail(op, errors.Wrapf(dynamo.ErrDimensionMismatch, "demo %d, want %d", demo.Dim(), d.dim))
	}
	d.running = false
	if err := d.startPhase(demo.Duration(), 0); err != nil {
		return err
	}
	if err := d.sys.Start(demo[0], dynamo.NewStateAt(demo[len(demo)-1].X)); err != nil {
		return err
	}

	for i := 1; i < len(demo); i++ {
		if err := target(demo[i]); err != nil {
			return errors.Wrapf(err, "sample %d", i)
		}
		if err := ds.Add(d.target); err != nil {
			return d.fail(op, errors.Wrapf(err, "sample %d", i))
		}
		dt := demo[i].Time - demo[i-1].Time
		if err := d.sys.AdvanceGoal(dt); err != nil {
			return err
		}
		if err := d.canon.Step(dt); err != nil {
			return err
		}
	}
	return nil
}

// Start begins a motion from start toward goal lasting tau. A non-positive tau
// reuses the demo duration.
func (d *Cartesian) Start(start dynamo.State, goal []float64, tau float64) error {
	if len(goal) != d.dim {
		return d.fail("start", errors.Wrapf(dynamo.ErrDimensionMismatch, "goal %d, want %d", len(goal), d.dim))
	}
	d.running = false
	if err := d.startPhase(tau, d.learnedTau); err != nil {
		return err
	}
	if err := d.sys.Start(start, dynamo.NewStateAt(goal)); err != nil {
		return err
	}
	d.running = true
	return nil
}

// Reproduce starts the motion the primitive was learned from.
func (d *Cartesian) Reproduce() error {
	if !d.learned {
		return d.fail("reproduce", errors.Wrap(dynamo.ErrPrecondition, "primitive has not learned a demonstration"))
	}
	return d.Start(d.learnedStart, d.learnedGoal, d.learnedTau)
}

// Step advances the transformation system and then the phase by dt.
func (d *Cartesian) Step(dt float64) error {
	if !d.running {
		return d.fail("step", dynamo.ErrNotStarted)
	}
	if err := d.sys.Step(dt); err != nil {
		return err
	}
	return d.canon.Step(dt)
}

// SetGoal re-targets a running motion.
func (d *Cartesian) SetGoal(goal []float64) error {
	return d.sys.SetSteadyGoal(goal)
}

// Rollout steps a started primitive ticks times and returns every state, the
// current one first.
func (d *Cartesian) Rollout(ticks int, dt float64) (trajectory.Cartesian, error) {
	out := make(trajectory.Cartesian, 0, ticks+1)
	out = append(out, d.sys.CurrentState().Clone())
	for i := 0; i < ticks; i++ {
		if err := d.Step(dt); err != nil {
			return out, err
		}
		out = append(out, d.sys.CurrentState().Clone())
	}
	return out, nil
}

func (d *Cartesian) Snapshot(s *sim.Sample) {
	cur := d.sys.CurrentState()
	s.Time = cur.Time
	s.Phase = d.canon.Phase()
	copy(s.Position, cur.X)
	copy(s.Velocity, cur.Xd)
	copy(s.Acceleration, cur.Xdd)
	copy(s.Goal, d.sys.CurrentGoalState().X)
	copy(s.Forcing, d.sys.Forcing())
}

// Done reports whether the phase has decayed and the position is at the steady goal.
func (d *Cartesian) Done() bool {
	if !d.running || d.canon.Phase() > donePhase {
		return false
	}
	return floats.Distance(d.sys.CurrentState().X, d.sys.SteadyGoal(), 2) < d.opts.DoneTolerance
}

func (d *Cartesian) Dim() int         { return d.dim }
func (d *Cartesian) PositionDim() int { return d.dim }

func (d *Cartesian) System() *transform.Cartesian { return d.sys }
func (d *Cartesian) LearnedGoal() []float64       { return d.learnedGoal }
func (d *Cartesian) LearnedStart() dynamo.State   { return d.learnedStart }
func (d *Cartesian) LearnedTau() float64          { return d.learnedTau }
