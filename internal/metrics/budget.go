package metrics

import (
	"time"

	"github.com/san-kum/dmp/internal/sim"
)

// ServoBudget is the time available per tick at 420 Hz.
const ServoBudget = time.Second / 420

// TickBudget measures wall time between consecutive observations and reports the
// fraction of ticks that overran the budget.
type TickBudget struct {
	name    string
	budget  time.Duration
	now     func() time.Time
	last    time.Time
	worst   time.Duration
	over    int
	samples int
}

func NewTickBudget(budget time.Duration) *TickBudget {
	return &TickBudget{name: "tick_budget_overruns", budget: budget, now: time.Now}
}

func (b *TickBudget) Name() string { return b.name }

func (b *TickBudget) Observe(*sim.Sample) {
	now := b.now()
	if !b.last.IsZero() {
		d := now.Sub(b.last)
		if d > b.worst {
			b.worst = d
		}
		if d > b.budget {
			b.over++
		}
		b.samples++
	}
	b.last = now
}

func (b *TickBudget) Value() float64 {
	if b.samples == 0 {
		return 0
	}
	return float64(b.over) / float64(b.samples)
}

// Worst returns the longest observed tick.
func (b *TickBudget) Worst() time.Duration { return b.worst }

func (b *TickBudget) Reset() {
	b.last = time.Time{}
	b.worst = 0
	b.over = 0
	b.samples = 0
}
