package sim

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Factory builds the i-th independent primitive of an ensemble together with the
// metrics to attach to it. Each primitive is used by one goroutine only.
type Factory func(i int) (Primitive, []Metric, error)

// Ensemble unrolls independent primitives concurrently, one goroutine each.
type Ensemble struct {
	factory Factory
	numRuns int
}

func NewEnsemble(factory Factory, numRuns int) *Ensemble {
	return &Ensemble{factory: factory, numRuns: numRuns}
}

// Run returns one result per primitive. Errors from every run are combined.
func (e *Ensemble) Run(ctx context.Context, cfg Config) ([]*Result, error) {
	results := make([]*Result, e.numRuns)
	errs := make([]error, e.numRuns)

	var wg sync.WaitGroup
	for i := 0; i < e.numRuns; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			prim, metrics, err := e.factory(idx)
			if err != nil {
				errs[idx] = errors.Wrapf(err, "run %d", idx)
				return
			}
			sim := New(prim)
			for _, m := range metrics {
				sim.AddMetric(m)
			}

			results[idx], err = sim.Run(ctx, cfg)
			if err != nil {
				errs[idx] = errors.Wrapf(err, "run %d", idx)
			}
		}(i)
	}

	wg.Wait()

	if err := multierr.Combine(errs...); err != nil {
		return results, err
	}
	return results, nil
}
