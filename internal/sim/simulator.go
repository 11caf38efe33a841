package sim

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/san-kum/dmp/internal/dynamo"
)

// Simulator unrolls a started primitive at a fixed rate.
type Simulator struct {
	prim      Primitive
	metrics   []Metric
	observers []Observer
}

func New(prim Primitive) *Simulator {
	return &Simulator{
		prim:      prim,
		metrics:   make([]Metric, 0),
		observers: make([]Observer, 0),
	}
}

func (s *Simulator) AddMetric(m Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

// Run steps the primitive for cfg.Duration, recording every tick. A failed tick
// ends the run; the partial result is returned with the error recorded in
// Result.Errors.
func (s *Simulator) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := s.validateConfig(cfg); err != nil {
		return nil, err
	}

	steps := int(math.Round(cfg.Duration / cfg.Dt))
	result := &Result{
		Times:         make([]float64, 0, steps+1),
		States:        make([][]float64, 0, steps+1),
		Velocities:    make([][]float64, 0, steps+1),
		Accelerations: make([][]float64, 0, steps+1),
		Goals:         make([][]float64, 0, steps+1),
		Forcing:       make([][]float64, 0, steps+1),
		Phases:        make([]float64, 0, steps+1),
		Metrics:       make(map[string]float64),
		Errors:        make([]error, 0),
	}

	for _, m := range s.metrics {
		m.Reset()
	}

	sample := NewSample(s.prim.PositionDim(), s.prim.Dim())
	s.prim.Snapshot(&sample)
	result.append(sample)

	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		for _, m := range s.metrics {
			m.Observe(&sample)
		}
		for _, obs := range s.observers {
			obs.OnStep(&sample)
		}

		if err := s.prim.Step(cfg.Dt); err != nil {
			result.Errors = append(result.Errors, err)
			break
		}
		s.prim.Snapshot(&sample)

		if cfg.ValidateState && !sample.IsValid() {
			result.Errors = append(result.Errors, SimError{Time: sample.Time, Step: i, Message: "invalid state (NaN/Inf)"})
			break
		}

		result.StepsTaken++
		result.append(sample)

		if cfg.StopWhenDone && s.prim.Done() {
			break
		}
	}

	for _, m := range s.metrics {
		m.Observe(&sample)
		result.Metrics[m.Name()] = m.Value()
	}

	return result, nil
}

func (r *Result) append(s Sample) {
	c := s.Clone()
	r.Times = append(r.Times, c.Time)
	r.States = append(r.States, c.Position)
	r.Velocities = append(r.Velocities, c.Velocity)
	r.Accelerations = append(r.Accelerations, c.Acceleration)
	r.Goals = append(r.Goals, c.Goal)
	r.Forcing = append(r.Forcing, c.Forcing)
	r.Phases = append(r.Phases, c.Phase)
}

func (s *Simulator) validateConfig(cfg Config) error {
	if s.prim == nil {
		return errors.Wrap(dynamo.ErrPrecondition, "no primitive to simulate")
	}
	if cfg.Dt <= 0 {
		return errors.Wrapf(dynamo.ErrPrecondition, "dt must be positive, got %f", cfg.Dt)
	}
	if cfg.Duration <= 0 {
		return errors.Wrapf(dynamo.ErrPrecondition, "duration must be positive, got %f", cfg.Duration)
	}
	if cfg.Dt > cfg.Duration {
		return errors.Wrapf(dynamo.ErrPrecondition, "dt %f exceeds duration %f", cfg.Dt, cfg.Duration)
	}
	return nil
}

// RunWithCallback steps the primitive until the callback returns false, the
// duration elapses or the primitive fails. It records nothing; live views use it.
func (s *Simulator) RunWithCallback(ctx context.Context, cfg Config, callback func(*Sample) bool) error {
	if err := s.validateConfig(cfg); err != nil {
		return err
	}

	sample := NewSample(s.prim.PositionDim(), s.prim.Dim())
	s.prim.Snapshot(&sample)
	steps := int(math.Round(cfg.Duration / cfg.Dt))

	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !callback(&sample) {
			return nil
		}

		if err := s.prim.Step(cfg.Dt); err != nil {
			return err
		}
		s.prim.Snapshot(&sample)

		if cfg.ValidateState && !sample.IsValid() {
			return SimError{Time: sample.Time, Step: i, Message: "invalid state (NaN/Inf)"}
		}
		if cfg.StopWhenDone && s.prim.Done() {
			callback(&sample)
			return nil
		}
	}
	callback(&sample)
	return nil
}
