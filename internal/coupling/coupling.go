// Package coupling provides coupling terms that add corrections to a primitive's
// acceleration and velocity.
package coupling

import (
	"github.com/pkg/errors"

	"github.com/san-kum/dmp/internal/dynamo"
)

// Static holds externally set contributions. A sensing pipeline updates it between
// ticks; the caller serializes those updates with Step.
type Static struct {
	acc []float64
	vel []float64
}

func NewStatic(dim int) *Static {
	return &Static{acc: make([]float64, dim), vel: make([]float64, dim)}
}

func (s *Static) Set(acc, vel []float64) error {
	if (acc != nil && len(acc) != len(s.acc)) || (vel != nil && len(vel) != len(s.vel)) {
		return errors.Wrapf(dynamo.ErrDimensionMismatch, "coupling term dimension %d", len(s.acc))
	}
	if acc != nil {
		copy(s.acc, acc)
	}
	if vel != nil {
		copy(s.vel, vel)
	}
	return nil
}

func (s *Static) Reset() {
	for i := range s.acc {
		s.acc[i], s.vel[i] = 0, 0
	}
}

func (s *Static) CouplingTerm(acc, vel []float64) error {
	if len(acc) != len(s.acc) || len(vel) != len(s.vel) {
		return errors.Wrapf(dynamo.ErrDimensionMismatch, "coupling term dimension %d", len(s.acc))
	}
	copy(acc, s.acc)
	copy(vel, s.vel)
	return nil
}

// Func adapts a function to a coupling term.
type Func func(acc, vel []float64) error

func (f Func) CouplingTerm(acc, vel []float64) error { return f(acc, vel) }

// StateReader exposes the position a state-dependent term reacts to.
type StateReader interface {
	Position() []float64
}

// Spring pulls the reader's position toward an anchor: acc = k·(anchor − x).
type Spring struct {
	reader    StateReader
	anchor    []float64
	stiffness float64
}

func NewSpring(reader StateReader, anchor []float64, stiffness float64) *Spring {
	return &Spring{reader: reader, anchor: append([]float64(nil), anchor...), stiffness: stiffness}
}

func (s *Spring) CouplingTerm(acc, vel []float64) error {
	x := s.reader.Position()
	if len(x) != len(s.anchor) || len(acc) != len(s.anchor) || len(vel) != len(s.anchor) {
		return errors.Wrapf(dynamo.ErrDimensionMismatch, "spring anchor %d, position %d", len(s.anchor), len(x))
	}
	for i := range acc {
		acc[i] = s.stiffness * (s.anchor[i] - x[i])
		vel[i] = 0
	}
	return nil
}
