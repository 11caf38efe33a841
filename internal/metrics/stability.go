package metrics

import (
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/dmp/internal/sim"
)

// Stability is the fraction of ticks whose acceleration stayed within threshold.
// A primitive excited by a bad forcing term or coupling term shows up here first.
type Stability struct {
	name       string
	threshold  float64
	violations int
	samples    int
}

func NewStability(threshold float64) *Stability {
	return &Stability{
		name:      "stability",
		threshold: threshold,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) Observe(sample *sim.Sample) {
	s.samples++
	if !sample.IsValid() || floats.Norm(sample.Acceleration, 2) > s.threshold {
		s.violations++
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}
