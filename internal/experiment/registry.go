package experiment

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/san-kum/dmp/internal/config"
	"github.com/san-kum/dmp/internal/dynamo"
	"github.com/san-kum/dmp/internal/metrics"
	"github.com/san-kum/dmp/internal/sim"
)

// stabilityLimit is the acceleration magnitude above which a tick counts as unstable.
const stabilityLimit = 500.0

type Registry struct {
	metrics map[string]func() sim.Metric
	kinds   map[string][]string
}

func NewRegistry() *Registry {
	r := &Registry{
		metrics: make(map[string]func() sim.Metric),
		kinds:   make(map[string][]string),
	}

	r.metrics["goal_distance"] = func() sim.Metric { return metrics.NewGoalDistance() }
	r.metrics["norm_drift"] = func() sim.Metric { return metrics.NewNormDrift() }
	r.metrics["peak_speed"] = func() sim.Metric { return metrics.NewPeakSpeed() }
	r.metrics["forcing_effort"] = func() sim.Metric { return metrics.NewForcingEffort() }
	r.metrics["stability"] = func() sim.Metric { return metrics.NewStability(stabilityLimit) }
	r.metrics["tick_budget"] = func() sim.Metric { return metrics.NewTickBudget(metrics.ServoBudget) }

	common := []string{"goal_distance", "peak_speed", "forcing_effort", "stability"}
	r.kinds[config.KindCartesian] = common
	r.kinds[config.KindQuaternion] = append(append([]string(nil), common...), "norm_drift")

	return r
}

func (r *Registry) GetMetric(name string) (sim.Metric, error) {
	fn, ok := r.metrics[name]
	if !ok {
		return nil, errors.Wrapf(dynamo.ErrPrecondition, "unknown metric: %s", name)
	}
	return fn(), nil
}

func (r *Registry) ListMetrics() []string {
	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultMetrics returns fresh instances of the metrics reported for kind.
func (r *Registry) DefaultMetrics(kind string) []sim.Metric {
	names := r.kinds[kind]
	out := make([]sim.Metric, 0, len(names))
	for _, name := range names {
		out = append(out, r.metrics[name]())
	}
	return out
}
