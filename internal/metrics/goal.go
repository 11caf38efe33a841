package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/num/quat"

	"github.com/san-kum/dmp/internal/sim"
	"github.com/san-kum/dmp/internal/so3"
)

// GoalDistance reports the distance between the last observed position and goal.
// Four-dimensional positions are quaternions and are compared by rotation angle.
type GoalDistance struct {
	name    string
	last    float64
	samples int
}

func NewGoalDistance() *GoalDistance {
	return &GoalDistance{name: "goal_distance"}
}

func (g *GoalDistance) Name() string { return g.name }

func (g *GoalDistance) Observe(s *sim.Sample) {
	if len(s.Position) != len(s.Goal) || len(s.Position) == 0 {
		return
	}
	g.last = Distance(s.Position, s.Goal)
	g.samples++
}

func (g *GoalDistance) Value() float64 {
	if g.samples == 0 {
		return math.NaN()
	}
	return g.last
}

func (g *GoalDistance) Reset() {
	g.last = 0
	g.samples = 0
}

// Distance is the Euclidean distance between two positions, or the rotation angle
// when both are (w, x, y, z) quaternions.
func Distance(a, b []float64) float64 {
	if len(a) == 4 && len(b) == 4 && isQuaternionLike(a) && isQuaternionLike(b) {
		return so3.Angle(toQuat(a), toQuat(b))
	}
	return floats.Distance(a, b, 2)
}

func isQuaternionLike(v []float64) bool {
	return math.Abs(floats.Norm(v, 2)-1) <= so3.InputTolerance
}

func toQuat(v []float64) quat.Number {
	return quat.Number{Real: v[0], Imag: v[1], Jmag: v[2], Kmag: v[3]}
}

// NormDrift tracks the largest deviation of a quaternion position from unit norm.
type NormDrift struct {
	name     string
	maxDrift float64
}

func NewNormDrift() *NormDrift {
	return &NormDrift{name: "norm_drift"}
}

func (n *NormDrift) Name() string { return n.name }

func (n *NormDrift) Observe(s *sim.Sample) {
	if len(s.Position) != 4 {
		return
	}
	n.maxDrift = math.Max(n.maxDrift, math.Abs(floats.Norm(s.Position, 2)-1))
}

func (n *NormDrift) Value() float64 { return n.maxDrift }
func (n *NormDrift) Reset()         { n.maxDrift = 0 }
