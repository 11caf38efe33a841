package approx

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dmp/internal/dynamo"
)

// Dataset collects regression pairs (phase, target forcing) for one approximator.
type Dataset struct {
	a           *Gaussian
	activations [][]float64
	multipliers []float64
	targets     [][]float64
}

func (a *Gaussian) NewDataset(capacity int) *Dataset {
	return &Dataset{
		a:           a,
		activations: make([][]float64, 0, capacity),
		multipliers: make([]float64, 0, capacity),
		targets:     make([][]float64, 0, capacity),
	}
}

func (ds *Dataset) Len() int { return len(ds.targets) }

// Add records target at the approximator's current phase.
func (ds *Dataset) Add(target []float64) error {
	if len(target) != ds.a.dim {
		return errors.Wrapf(dynamo.ErrDimensionMismatch, "target %d, want %d", len(target), ds.a.dim)
	}
	if !dynamo.Finite(target) {
		return errors.Wrap(dynamo.ErrNumericDivergence, "target forcing term")
	}
	psi := make([]float64, ds.a.size)
	ds.a.activations(psi)
	ds.activations = append(ds.activations, psi)
	ds.multipliers = append(ds.multipliers, ds.a.canon.Multiplier())
	ds.targets = append(ds.targets, append([]float64(nil), target...))
	return nil
}

// Fit replaces the approximator's weights with the regression solution over ds.
func (a *Gaussian) Fit(ds *Dataset, method Method) error {
	if ds.a != a {
		return errors.Wrap(dynamo.ErrPrecondition, "dataset belongs to another approximator")
	}
	if ds.Len() == 0 {
		return errors.Wrap(dynamo.ErrPrecondition, "empty dataset")
	}
	var w *mat.Dense
	var err error
	switch method {
	case MethodLWR:
		w = a.fitLWR(ds)
	case MethodLeastSquares:
		w, err = a.fitLeastSquares(ds)
	default:
		err = errors.Wrapf(dynamo.ErrPrecondition, "unknown regression method %d", method)
	}
	if err != nil {
		return err
	}
	return a.SetWeights(w)
}

func (a *Gaussian) fitLWR(ds *Dataset) *mat.Dense {
	w := mat.NewDense(a.dim, a.size, nil)
	num := make([]float64, a.dim)
	for i := 0; i < a.size; i++ {
		for d := range num {
			num[d] = 0
		}
		den := 0.0
		for t, psi := range ds.activations {
			s := ds.multipliers[t]
			den += s * s * psi[i]
			floats.AddScaled(num, s*psi[i], ds.targets[t])
		}
		if den < 1e-12 {
			continue
		}
		for d := range num {
			w.Set(d, i, num[d]/den)
		}
	}
	return w
}

func (a *Gaussian) fitLeastSquares(ds *Dataset) (*mat.Dense, error) {
	n := ds.Len()
	phi := mat.NewDense(n, a.size, nil)
	f := mat.NewDense(n, a.dim, nil)
	for t, psi := range ds.activations {
		row := phi.RawRowView(t)
		sum := floats.Sum(psi)
		if sum >= minActivity {
			floats.ScaleTo(row, ds.multipliers[t]/sum, psi)
		}
		f.SetRow(t, ds.targets[t])
	}

	var ata mat.Dense
	ata.Mul(phi.T(), phi)
	lambda := math.Max(relativeRidge*mat.Trace(&ata)/float64(a.size), minRidge)
	for i := 0; i < a.size; i++ {
		ata.Set(i, i, ata.At(i, i)+lambda)
	}
	var atf mat.Dense
	atf.Mul(phi.T(), f)

	var sol mat.Dense
	if err := sol.Solve(&ata, &atf); err != nil {
		return nil, errors.Wrap(dynamo.ErrNumericDivergence, err.Error())
	}
	w := mat.NewDense(a.dim, a.size, nil)
	w.Copy(sol.T())
	return w, nil
}
