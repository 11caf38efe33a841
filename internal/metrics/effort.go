package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/dmp/internal/sim"
)

type PeakSpeed struct {
	name string
	peak float64
}

func NewPeakSpeed() *PeakSpeed {
	return &PeakSpeed{name: "peak_speed"}
}

func (p *PeakSpeed) Name() string { return p.name }

func (p *PeakSpeed) Observe(s *sim.Sample) {
	p.peak = math.Max(p.peak, floats.Norm(s.Velocity, 2))
}

func (p *PeakSpeed) Value() float64 { return p.peak }
func (p *PeakSpeed) Reset()         { p.peak = 0 }

// ForcingEffort is the mean absolute forcing term per tick.
type ForcingEffort struct {
	name    string
	sum     float64
	samples int
}

func NewForcingEffort() *ForcingEffort {
	return &ForcingEffort{name: "forcing_effort"}
}

func (f *ForcingEffort) Name() string { return f.name }

func (f *ForcingEffort) Observe(s *sim.Sample) {
	f.sum += floats.Norm(s.Forcing, 1)
	f.samples++
}

func (f *ForcingEffort) Value() float64 {
	if f.samples == 0 {
		return 0
	}
	return f.sum / float64(f.samples)
}

func (f *ForcingEffort) Reset() {
	f.sum = 0
	f.samples = 0
}
