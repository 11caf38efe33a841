// Package approx implements forcing-term approximators over the canonical phase.
package approx

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dmp/internal/canonical"
	"github.com/san-kum/dmp/internal/dynamo"
)

type Method int

const (
	// MethodLWR fits each basis function independently by locally weighted regression.
	MethodLWR Method = iota
	// MethodLeastSquares fits all weights jointly by ridge-regularized least squares.
	MethodLeastSquares
)

func (m Method) String() string {
	switch m {
	case MethodLWR:
		return "lwr"
	case MethodLeastSquares:
		return "ls"
	default:
		return "unknown"
	}
}

func ParseMethod(name string) (Method, error) {
	switch strings.ToLower(name) {
	case "lwr", "":
		return MethodLWR, nil
	case "ls", "least_squares", "global":
		return MethodLeastSquares, nil
	default:
		return 0, errors.Wrapf(dynamo.ErrPrecondition, "unknown regression method %q", name)
	}
}

const (
	widthOverlap = 0.55
	minActivity  = 1e-300

	// The least-squares ridge is relativeRidge times the mean diagonal of ΦᵀΦ,
	// and never below minRidge.
	relativeRidge = 1e-10
	minRidge      = 1e-12
)

// Gaussian is a normalized Gaussian basis-function approximator:
//
//	f_d(x) = Σ ψ_i(x)·w_di / Σ ψ_i(x) · s
//
// where ψ_i(x) = exp(−h_i (x − c_i)²), x is the phase and s the canonical multiplier.
type Gaussian struct {
	dim     int
	size    int
	canon   *canonical.System
	centers []float64
	widths  []float64
	weights *mat.Dense
	psi     []float64
}

func NewGaussian(dim, size int, canon *canonical.System) (*Gaussian, error) {
	if dim <= 0 {
		return nil, errors.Wrapf(dynamo.ErrPrecondition, "approximator dimension must be positive, got %d", dim)
	}
	if size < 2 {
		return nil, errors.Wrapf(dynamo.ErrPrecondition, "approximator needs at least 2 basis functions, got %d", size)
	}
	if canon == nil {
		return nil, errors.Wrap(dynamo.ErrPrecondition, "approximator needs a canonical system")
	}
	a := &Gaussian{
		dim:     dim,
		size:    size,
		canon:   canon,
		centers: make([]float64, size),
		widths:  make([]float64, size),
		weights: mat.NewDense(dim, size, nil),
		psi:     make([]float64, size),
	}
	a.placeCenters()
	return a, nil
}

// placeCenters spreads the centers over the phase values reached at evenly spaced
// normalized times, so each basis function covers a similar share of the motion.
func (a *Gaussian) placeCenters() {
	alpha := a.canon.Alpha()
	for i := range a.centers {
		t := float64(i) / float64(a.size-1)
		if a.canon.Order() == 1 {
			a.centers[i] = math.Exp(-alpha * t)
		} else {
			w := alpha / 2
			a.centers[i] = (1 + w*t) * math.Exp(-w*t)
		}
	}
	for i := 0; i < a.size-1; i++ {
		d := widthOverlap * (a.centers[i+1] - a.centers[i])
		a.widths[i] = 1 / (d * d)
	}
	a.widths[a.size-1] = a.widths[a.size-2]
}

func (a *Gaussian) ModelSize() int      { return a.size }
func (a *Gaussian) Dim() int            { return a.dim }
func (a *Gaussian) CanonicalOrder() int { return a.canon.Order() }
func (a *Gaussian) Centers() []float64  { return a.centers }
func (a *Gaussian) Widths() []float64   { return a.widths }

// activations fills out with ψ at the current phase and returns their sum.
func (a *Gaussian) activations(out []float64) float64 {
	x := a.canon.Phase()
	for i, c := range a.centers {
		d := x - c
		out[i] = math.Exp(-a.widths[i] * d * d)
	}
	return floats.Sum(out)
}

// ForcingTerm writes the forcing term at the current phase into f and, when basis is
// non-nil, the raw basis activations into basis.
func (a *Gaussian) ForcingTerm(f []float64, basis []float64) error {
	if len(f) != a.dim {
		return errors.Wrapf(dynamo.ErrDimensionMismatch, "forcing term %d, want %d", len(f), a.dim)
	}
	if basis != nil && len(basis) != a.size {
		return errors.Wrapf(dynamo.ErrDimensionMismatch, "basis %d, want %d", len(basis), a.size)
	}
	sum := a.activations(a.psi)
	if basis != nil {
		copy(basis, a.psi)
	}
	if sum < minActivity {
		for d := range f {
			f[d] = 0
		}
		return nil
	}
	scale := a.canon.Multiplier() / sum
	for d := range f {
		f[d] = floats.Dot(a.weights.RawRowView(d), a.psi) * scale
	}
	if !dynamo.Finite(f) {
		return errors.Wrap(dynamo.ErrNumericDivergence, "forcing term")
	}
	return nil
}

// Features writes the regression row at the current phase: normalized activations
// times the canonical multiplier.
func (a *Gaussian) Features(out []float64) error {
	if len(out) != a.size {
		return errors.Wrapf(dynamo.ErrDimensionMismatch, "features %d, want %d", len(out), a.size)
	}
	sum := a.activations(out)
	if sum < minActivity {
		for i := range out {
			out[i] = 0
		}
		return nil
	}
	floats.Scale(a.canon.Multiplier()/sum, out)
	return nil
}

// Weights returns a copy of the dim×size weight matrix.
func (a *Gaussian) Weights() *mat.Dense {
	return mat.DenseCopyOf(a.weights)
}

func (a *Gaussian) SetWeights(w mat.Matrix) error {
	r, c := w.Dims()
	if r != a.dim || c != a.size {
		return errors.Wrapf(dynamo.ErrDimensionMismatch, "weights %dx%d, want %dx%d", r, c, a.dim, a.size)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := w.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.Wrap(dynamo.ErrValidity, "weights have non-finite values")
			}
		}
	}
	a.weights.Copy(w)
	return nil
}

func (a *Gaussian) Validate() error {
	if err := a.canon.Validate(); err != nil {
		return err
	}
	r, c := a.weights.Dims()
	if r != a.dim || c != a.size || len(a.psi) != a.size {
		return errors.Wrap(dynamo.ErrValidity, "approximator dimensions")
	}
	for d := 0; d < r; d++ {
		if !dynamo.Finite(a.weights.RawRowView(d)) {
			return errors.Wrap(dynamo.ErrValidity, "weights have non-finite values")
		}
	}
	return nil
}
