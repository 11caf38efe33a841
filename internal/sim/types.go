package sim

import (
	"fmt"

	"github.com/san-kum/dmp/internal/dynamo"
)

// Sample is one observed tick of a primitive. Position holds x for Cartesian
// primitives and (w, x, y, z) for orientation primitives.
type Sample struct {
	Time         float64
	Phase        float64
	Position     []float64
	Velocity     []float64
	Acceleration []float64
	Goal         []float64
	Forcing      []float64
}

func NewSample(posDim, dim int) Sample {
	return Sample{
		Position:     make([]float64, posDim),
		Velocity:     make([]float64, dim),
		Acceleration: make([]float64, dim),
		Goal:         make([]float64, posDim),
		Forcing:      make([]float64, dim),
	}
}

func (s Sample) Clone() Sample {
	c := NewSample(len(s.Position), len(s.Velocity))
	c.Time, c.Phase = s.Time, s.Phase
	copy(c.Position, s.Position)
	copy(c.Velocity, s.Velocity)
	copy(c.Acceleration, s.Acceleration)
	copy(c.Goal, s.Goal)
	copy(c.Forcing, s.Forcing)
	return c
}

func (s Sample) IsValid() bool {
	return dynamo.Finite(s.Position) && dynamo.Finite(s.Velocity) && dynamo.Finite(s.Acceleration)
}

// Primitive is a started movement primitive the simulator can unroll.
type Primitive interface {
	Step(dt float64) error
	Snapshot(s *Sample)
	Done() bool
	PositionDim() int
	Dim() int
}

type Metric interface {
	Name() string
	Observe(s *Sample)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(s *Sample)
}

type Config struct {
	Dt            float64
	Duration      float64
	StopWhenDone  bool // end the unroll once the primitive reports convergence
	ValidateState bool
}

type Result struct {
	Times         []float64
	States        [][]float64
	Velocities    [][]float64
	Accelerations [][]float64
	Goals         [][]float64
	Forcing       [][]float64
	Phases        []float64
	Metrics       map[string]float64
	StepsTaken    int
	Errors        []error
}

// Final returns the last recorded position.
func (r *Result) Final() []float64 {
	if len(r.States) == 0 {
		return nil
	}
	return r.States[len(r.States)-1]
}

type SimError struct {
	Time    float64
	Step    int
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %s", e.Step, e.Time, e.Message)
}

// ServoDt is the control period of a 420 Hz servo loop.
const ServoDt = 1.0 / 420.0

func DefaultConfig() Config {
	return Config{
		Dt:            ServoDt,
		Duration:      1.5,
		StopWhenDone:  false,
		ValidateState: true,
	}
}
