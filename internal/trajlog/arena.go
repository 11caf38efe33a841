// Package trajlog records per-tick trajectory data into a fixed-capacity arena.
// All memory is reserved up front; a full arena rejects further records.
package trajlog

import (
	"github.com/pkg/errors"

	"github.com/san-kum/dmp/internal/dynamo"
)

// Field names a logged quantity. Storage writes one file per field.
type Field int

const (
	FieldTime Field = iota
	FieldTau
	FieldCanonical
	FieldPosition
	FieldVelocity
	FieldAcceleration
	FieldGoal
	FieldSteadyGoal
	FieldBasis
	FieldForcing
	FieldCouplingAcc
	numFields
)

var fieldNames = [numFields]string{
	"time", "tau", "canonical", "position", "velocity", "acceleration",
	"goal", "steady_goal", "basis", "forcing", "coupling_acc",
}

func (f Field) String() string {
	if f < 0 || f >= numFields {
		return "unknown"
	}
	return fieldNames[f]
}

// Fields lists every logged quantity in storage order.
func Fields() []Field {
	out := make([]Field, numFields)
	for i := range out {
		out[i] = Field(i)
	}
	return out
}

// Arena is a DataLogger backed by one flat buffer per field.
type Arena struct {
	capacity int
	n        int
	dropped  int
	widths   [numFields]int
	data     [numFields][]float64
}

var _ dynamo.DataLogger = (*Arena)(nil)

// New reserves capacity rows. dim is the velocity dimension, posDim the position
// dimension (4 for quaternions) and modelSize the number of basis functions.
func New(capacity, dim, posDim, modelSize int) (*Arena, error) {
	if capacity <= 0 || dim <= 0 || posDim <= 0 || modelSize < 0 {
		return nil, errors.Wrapf(dynamo.ErrPrecondition, "arena capacity=%d dim=%d posDim=%d modelSize=%d",
			capacity, dim, posDim, modelSize)
	}
	a := &Arena{capacity: capacity}
	a.widths = [numFields]int{1, 1, 3, posDim, dim, dim, posDim, posDim, modelSize, dim, dim}
	for f, w := range a.widths {
		a.data[f] = make([]float64, capacity*w)
	}
	return a, nil
}

// Record copies rec into the next free row.
func (a *Arena) Record(rec *dynamo.TickRecord) error {
	if a.n >= a.capacity {
		a.dropped++
		return errors.Wrapf(dynamo.ErrCapacityExceeded, "trajectory log holds %d ticks", a.capacity)
	}
	if len(rec.Position) != a.widths[FieldPosition] || len(rec.Velocity) != a.widths[FieldVelocity] ||
		len(rec.Basis) != a.widths[FieldBasis] || len(rec.Forcing) != a.widths[FieldForcing] {
		return errors.Wrap(dynamo.ErrDimensionMismatch, "tick record does not match the arena layout")
	}
	a.row(FieldTime)[0] = rec.Time
	a.row(FieldTau)[0] = rec.Tau
	copy(a.row(FieldCanonical), rec.Canonical[:])
	copy(a.row(FieldPosition), rec.Position)
	copy(a.row(FieldVelocity), rec.Velocity)
	copy(a.row(FieldAcceleration), rec.Acceleration)
	copy(a.row(FieldGoal), rec.Goal)
	copy(a.row(FieldSteadyGoal), rec.SteadyGoal)
	copy(a.row(FieldBasis), rec.Basis)
	copy(a.row(FieldForcing), rec.Forcing)
	copy(a.row(FieldCouplingAcc), rec.CouplingAcc)
	a.n++
	return nil
}

func (a *Arena) row(f Field) []float64 {
	w := a.widths[f]
	return a.data[f][a.n*w : (a.n+1)*w]
}

func (a *Arena) Len() int          { return a.n }
func (a *Arena) Cap() int          { return a.capacity }
func (a *Arena) Dropped() int      { return a.dropped }
func (a *Arena) Full() bool        { return a.n >= a.capacity }
func (a *Arena) Width(f Field) int { return a.widths[f] }

// Reset forgets every row without releasing memory.
func (a *Arena) Reset() {
	a.n = 0
	a.dropped = 0
}

// Row returns row i of field f. The slice aliases the arena. Only recorded rows
// can be read.
func (a *Arena) Row(f Field, i int) ([]float64, error) {
	if f < 0 || f >= numFields {
		return nil, errors.Wrapf(dynamo.ErrPrecondition, "unknown field %d", int(f))
	}
	if i < 0 || i >= a.n {
		return nil, errors.Wrapf(dynamo.ErrPrecondition, "row %d outside the %d recorded ticks", i, a.n)
	}
	w := a.widths[f]
	return a.data[f][i*w : (i+1)*w], nil
}

// Column returns component c of field f over every recorded tick.
func (a *Arena) Column(f Field, c int) []float64 {
	out := make([]float64, a.n)
	w := a.widths[f]
	for i := range out {
		out[i] = a.data[f][i*w+c]
	}
	return out
}
