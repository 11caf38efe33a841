package analysis

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/dmp/internal/dynamo"
)

func TestPowerSpectrumFindsSine(t *testing.T) {
	dt := 0.01
	data := make([]float64, 512)
	for i := range data {
		data[i] = math.Sin(2 * math.Pi * 5 * float64(i) * dt)
	}

	s, err := PowerSpectrum(data, dt)
	if err != nil {
		t.Fatal(err)
	}
	if f := s.DominantFrequency(); math.Abs(f-5) > 0.1 {
		t.Errorf("expected dominant frequency near 5 Hz, got %.3f", f)
	}
	if s.Freqs[len(s.Freqs)-1] != 50 {
		t.Errorf("expected spectrum to end at Nyquist 50 Hz, got %.3f", s.Freqs[len(s.Freqs)-1])
	}
}

func TestPowerSpectrumErrors(t *testing.T) {
	if _, err := PowerSpectrum([]float64{1}, 0.01); !errors.Is(err, dynamo.ErrPrecondition) {
		t.Errorf("expected precondition error for one sample, got %v", err)
	}
	if _, err := PowerSpectrum([]float64{1, 2}, 0); !errors.Is(err, dynamo.ErrPrecondition) {
		t.Errorf("expected precondition error for zero dt, got %v", err)
	}
}

func minJerkSpeed(n int, dt, tau float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		s := math.Min(float64(i)*dt/tau, 1)
		out[i] = 30 * s * s * (1 - s) * (1 - s) / tau
	}
	return out
}

func TestSpectralArcLengthRanksSmoothness(t *testing.T) {
	dt := 0.01
	smooth := minJerkSpeed(200, dt, 1)
	wobbly := minJerkSpeed(200, dt, 1)
	for i := range wobbly {
		wobbly[i] += 0.3 * math.Abs(math.Sin(2*math.Pi*4*float64(i)*dt))
	}

	a, err := SpectralArcLength(smooth, dt, 10)
	if err != nil {
		t.Fatal(err)
	}
	b, err := SpectralArcLength(wobbly, dt, 10)
	if err != nil {
		t.Fatal(err)
	}
	if a >= 0 || b >= a {
		t.Errorf("expected smooth arc %.3f above wobbly arc %.3f and below zero", a, b)
	}

	if _, err := SpectralArcLength(make([]float64, 10), dt, 10); !errors.Is(err, dynamo.ErrPrecondition) {
		t.Errorf("expected precondition error for a still profile, got %v", err)
	}
}

func TestSpeeds(t *testing.T) {
	got := Speeds([][]float64{{3, 4}, {0, 0}})
	if got[0] != 5 || got[1] != 0 {
		t.Errorf("unexpected speeds %v", got)
	}
}
