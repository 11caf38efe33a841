package analysis

import (
	"math"
	"math/cmplx"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/dmp/internal/dynamo"
)

// padFactor zero-pads signals before the transform to refine the frequency grid.
const padFactor = 4

// Spectrum is a one-sided magnitude spectrum.
type Spectrum struct {
	Freqs []float64
	Power []float64
}

// PowerSpectrum returns the magnitude spectrum of data sampled every dt seconds.
// The signal is zero-padded to padFactor times the next power of two.
func PowerSpectrum(data []float64, dt float64) (*Spectrum, error) {
	if len(data) < 2 {
		return nil, errors.Wrapf(dynamo.ErrPrecondition, "spectrum needs at least 2 samples, got %d", len(data))
	}
	if !(dt > 0) {
		return nil, errors.Wrapf(dynamo.ErrPrecondition, "sample period must be positive, got %g", dt)
	}

	n := 1
	for n < len(data) {
		n <<= 1
	}
	n *= padFactor
	padded := make([]float64, n)
	copy(padded, data)

	fft := fourier.NewFFT(n)
	coeff := fft.Coefficients(nil, padded)

	s := &Spectrum{
		Freqs: make([]float64, len(coeff)),
		Power: make([]float64, len(coeff)),
	}
	for i, c := range coeff {
		s.Freqs[i] = fft.Freq(i) / dt
		s.Power[i] = cmplx.Abs(c)
	}
	return s, nil
}

// DominantFrequency returns the frequency of the largest component above DC.
func (s *Spectrum) DominantFrequency() float64 {
	if len(s.Power) < 2 {
		return 0
	}
	return s.Freqs[1+floats.MaxIdx(s.Power[1:])]
}

// SpectralArcLength measures the smoothness of a speed profile as the negative arc
// length of its normalized magnitude spectrum below cutoff Hz. Values closer to
// zero are smoother.
func SpectralArcLength(speeds []float64, dt, cutoff float64) (float64, error) {
	s, err := PowerSpectrum(speeds, dt)
	if err != nil {
		return 0, err
	}
	peak := floats.Max(s.Power)
	if peak == 0 {
		return 0, errors.Wrap(dynamo.ErrPrecondition, "speed profile is identically zero")
	}

	arc := 0.0
	for i := 1; i < len(s.Freqs) && s.Freqs[i] <= cutoff; i++ {
		df := (s.Freqs[i] - s.Freqs[i-1]) / cutoff
		dm := (s.Power[i] - s.Power[i-1]) / peak
		arc -= math.Hypot(df, dm)
	}
	return arc, nil
}

// Speeds returns the Euclidean norm of each velocity row.
func Speeds(velocities [][]float64) []float64 {
	out := make([]float64, len(velocities))
	for i, v := range velocities {
		out[i] = floats.Norm(v, 2)
	}
	return out
}
