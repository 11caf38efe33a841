package dmp

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"github.com/san-kum/dmp/internal/approx"
	"github.com/san-kum/dmp/internal/dynamo"
	"github.com/san-kum/dmp/internal/sim"
	"github.com/san-kum/dmp/internal/so3"
	"github.com/san-kum/dmp/internal/trajectory"
	"github.com/san-kum/dmp/internal/transform"
)

// Quaternion is an orientation primitive over unit quaternions.
type Quaternion struct {
	core
	sys *transform.Quaternion

	learnedStart dynamo.QuatState
	learnedGoal  quat.Number
	learnedTau   float64
	target       []float64
}

var _ sim.Primitive = (*Quaternion)(nil)

func NewQuaternion(opts Options) (*Quaternion, error) {
	c, err := newCore(3, opts)
	if err != nil {
		return nil, err
	}
	sys, err := transform.NewQuaternion(c.transformConfig())
	if err != nil {
		return nil, err
	}
	return &Quaternion{
		core:         c,
		sys:          sys,
		learnedStart: dynamo.NewQuatStateAt(so3.Identity),
		learnedGoal:  so3.Identity,
		target:       make([]float64, 3),
	}, nil
}

// Learn fits the forcing term to demo. τ becomes the demo duration, and the demo's
// first and last orientations become the default start and goal.
func (d *Quaternion) Learn(demo trajectory.Quaternion) error {
	return d.LearnMulti([]trajectory.Quaternion{demo})
}

// LearnMulti fits one forcing term to every demo. The default start and goal are
// the mean orientations over the set, and the amplitude and τ are mean values.
func (d *Quaternion) LearnMulti(demos []trajectory.Quaternion) error {
	if len(demos) == 0 {
		return d.fail("learn", errors.Wrap(dynamo.ErrPrecondition, "no demonstrations"))
	}
	total := 0
	for _, demo := range demos {
		total += len(demo)
	}
	ds := d.approx.NewDataset(total)
	for i, demo := range demos {
		err := d.walk(demo, "learn", ds, func(sample dynamo.QuatState) error {
			return d.sys.LearnTargetForcing(sample, d.target)
		})
		if err != nil {
			return errors.Wrapf(err, "demo %d", i)
		}
	}
	if err := d.fit(ds); err != nil {
		return err
	}

	starts := make([]quat.Number, len(demos))
	goals := make([]quat.Number, len(demos))
	var amp, omega, omegad r3.Vector
	tau := 0.0
	for i, demo := range demos {
		first, last := demo[0], demo[len(demo)-1]
		starts[i], goals[i] = first.Q, last.Q
		amp = amp.Add(so3.LogDiff(last.Q, first.Q))
		omega = omega.Add(first.Omega)
		omegad = omegad.Add(first.Omegad)
		tau += demo.Duration()
	}
	k := 1 / float64(len(demos))
	amp = amp.Mul(k)
	if err := d.sys.SetLearnedAmplitude([]float64{amp.X, amp.Y, amp.Z}); err != nil {
		return err
	}
	if len(demos) == 1 {
		d.learnedStart = demos[0][0]
	} else {
		d.learnedStart = dynamo.NewQuatState(so3.Mean(starts), omega.Mul(k), omegad.Mul(k))
		d.learnedStart.Time = demos[0][0].Time
	}
	d.learnedGoal = so3.Mean(goals)
	d.learnedTau = tau * k
	return nil
}

// LearnCoupling returns, for every demo sample after the first, the coupling term
// the current forcing term would need to pass through it.
func (d *Quaternion) LearnCoupling(demo trajectory.Quaternion) ([][]float64, error) {
	out := make([][]float64, 0, len(demo))
	err := d.walk(demo, "learn coupling", d.approx.NewDataset(len(demo)), func(sample dynamo.QuatState) error {
		if err := d.sys.LearnTargetCoupling(sample, d.target); err != nil {
			return err
		}
		out = append(out, append([]float64(nil), d.target...))
		return nil
	})
	return out, err
}

func (d *Quaternion) walk(demo trajectory.Quaternion, op string, ds *approx.Dataset, target func(dynamo.QuatState) error) error {
	if err := demo.Validate(); err != nil {
		return d.fail(op, err)
	}
	d.running = false
	if err := d.startPhase(demo.Duration(), 0); err != nil {
		return err
	}
	if err := d.sys.Start(demo[0], dynamo.NewQuatStateAt(demo[len(demo)-1].Q)); err != nil {
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

// Start begins a rotation from start toward goal lasting tau. A non-positive tau
// reuses the demo duration.
func (d *Quaternion) Start(start dynamo.QuatState, goal quat.Number, tau float64) error {
	d.running = false
	if err := d.startPhase(tau, d.learnedTau); err != nil {
		return err
	}
	if err := d.sys.Start(start, dynamo.NewQuatStateAt(goal)); err != nil {
		return err
	}
	d.running = true
	return nil
}

func (d *Quaternion) Reproduce() error {
	if !d.learned {
		return d.fail("reproduce", errors.Wrap(dynamo.ErrPrecondition, "primitive has not learned a demonstration"))
	}
	return d.Start(d.learnedStart, d.learnedGoal, d.learnedTau)
}

func (d *Quaternion) Step(dt float64) error {
	if !d.running {
		return d.fail("step", dynamo.ErrNotStarted)
	}
	if err := d.sys.Step(dt); err != nil {
		return err
	}
	return d.canon.Step(dt)
}

func (d *Quaternion) SetGoal(goal quat.Number) error {
	return d.sys.SetSteadyGoal(goal)
}

func (d *Quaternion) Rollout(ticks int, dt float64) (trajectory.Quaternion, error) {
	out := make(trajectory.Quaternion, 0, ticks+1)
	out = append(out, d.sys.CurrentState())
	for i := 0; i < ticks; i++ {
		if err := d.Step(dt); err != nil {
			return out, err
		}
		out = append(out, d.sys.CurrentState())
	}
	return out, nil
}

func (d *Quaternion) Snapshot(s *sim.Sample) {
	cur := d.sys.CurrentState()
	s.Time = cur.Time
	s.Phase = d.canon.Phase()
	putQuat(s.Position, cur.Q)
	s.Velocity[0], s.Velocity[1], s.Velocity[2] = cur.Omega.X, cur.Omega.Y, cur.Omega.Z
	s.Acceleration[0], s.Acceleration[1], s.Acceleration[2] = cur.Omegad.X, cur.Omegad.Y, cur.Omegad.Z
	putQuat(s.Goal, d.sys.CurrentGoalState().Q)
	copy(s.Forcing, d.sys.Forcing())
}

func putQuat(dst []float64, q quat.Number) {
	dst[0], dst[1], dst[2], dst[3] = q.Real, q.Imag, q.Jmag, q.Kmag
}

// Done reports whether the phase has decayed and the orientation is at the steady goal.
func (d *Quaternion) Done() bool {
	if !d.running || d.canon.Phase() > donePhase {
		return false
	}
	return so3.Angle(d.sys.CurrentState().Q, d.sys.SteadyGoal()) < d.opts.DoneTolerance
}

func (d *Quaternion) Dim() int         { return 3 }
func (d *Quaternion) PositionDim() int { return 4 }

func (d *Quaternion) System() *transform.Quaternion  { return d.sys }
func (d *Quaternion) LearnedGoal() quat.Number       { return d.learnedGoal }
func (d *Quaternion) LearnedStart() dynamo.QuatState { return d.learnedStart }
func (d *Quaternion) LearnedTau() float64            { return d.learnedTau }
