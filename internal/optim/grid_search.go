// Package optim searches primitive parameters for the lowest objective value.
package optim

import (
	"context"
	"math"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/san-kum/dmp/internal/config"
	"github.com/san-kum/dmp/internal/dynamo"
	"github.com/san-kum/dmp/internal/experiment"
)

// Objective scores one parameter combination; lower is better.
type Objective func(ctx context.Context, params map[string]float64) (float64, error)

// Trial is one evaluated grid point.
type Trial struct {
	Params map[string]float64
	Value  float64
	Err    error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, errors.Wrapf(dynamo.ErrPrecondition, "%d parameters but %d ranges", len(params), len(ranges))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, errors.Wrapf(dynamo.ErrPrecondition, "parameter %s has no values", params[i])
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// Search evaluates every combination of the grid and returns the best trial with
// all trials in evaluation order. Failed points are kept in the trial list; an
// error is returned only when no point succeeds or ctx is cancelled.
func (g *GridSearch) Search(ctx context.Context, objective Objective) (*Trial, []Trial, error) {
	var trials []Trial
	if err := g.searchRecursive(ctx, 0, make(map[string]float64), objective, &trials); err != nil {
		return nil, trials, err
	}

	var (
		best *Trial
		errs error
	)
	for i := range trials {
		t := &trials[i]
		if t.Err != nil {
			errs = multierr.Append(errs, t.Err)
			continue
		}
		if best == nil || t.Value < best.Value {
			best = t
		}
	}
	if best == nil {
		return nil, trials, errors.Wrap(errs, "every grid point failed")
	}
	return best, trials, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	objective Objective,
	trials *[]Trial,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.paramNames) {
		val, err := objective(ctx, current)
		if err == nil && math.IsNaN(val) {
			err = errors.Wrap(dynamo.ErrNumericDivergence, "objective is NaN")
		}
		*trials = append(*trials, Trial{Params: current, Value: val, Err: err})
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, objective, trials); err != nil {
			return err
		}
	}
	return nil
}

// Parameters lists the configuration fields Apply understands.
var Parameters = map[string]func(*config.Config, float64){
	"alpha":      func(c *config.Config, v float64) { c.Primitive.Alpha = v },
	"beta":       func(c *config.Config, v float64) { c.Primitive.Beta = v },
	"goal_alpha": func(c *config.Config, v float64) { c.Primitive.GoalAlpha = v },
	"num_basis":  func(c *config.Config, v float64) { c.Primitive.NumBasis = int(math.Round(v)) },
	"order":      func(c *config.Config, v float64) { c.Primitive.CanonicalOrder = int(math.Round(v)) },
	"tau":        func(c *config.Config, v float64) { c.Tau = v },
}

// Apply returns a copy of base with params set. Setting alpha without beta keeps
// the critically damped ratio beta = alpha/4.
func Apply(base *config.Config, params map[string]float64) (*config.Config, error) {
	cfg := base.Clone()
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		set, ok := Parameters[name]
		if !ok {
			return nil, errors.Wrapf(dynamo.ErrPrecondition, "unknown parameter: %s", name)
		}
		set(cfg, params[name])
	}
	if _, ok := params["alpha"]; ok {
		if _, ok := params["beta"]; !ok {
			cfg.Primitive.Beta = cfg.Primitive.Alpha / 4
		}
	}
	return cfg, nil
}

// ReproductionObjective learns base's demonstration under each parameter set and
// scores the worst deviation of the replay from the demonstration.
func ReproductionObjective(base *config.Config) Objective {
	return func(ctx context.Context, params map[string]float64) (float64, error) {
		cfg, err := Apply(base, params)
		if err != nil {
			return 0, err
		}
		exp, err := experiment.New(cfg, nil)
		if err != nil {
			return 0, err
		}
		if err := exp.Learn(); err != nil {
			return 0, err
		}
		return exp.ReproductionError()
	}
}
