package export

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/dmp/internal/dynamo"
	"github.com/san-kum/dmp/internal/sim"
)

func testResult() *sim.Result {
	r := &sim.Result{}
	for i := 0; i <= 20; i++ {
		t := float64(i) * 0.05
		r.Times = append(r.Times, t)
		r.Phases = append(r.Phases, 1-t)
		r.States = append(r.States, []float64{t, 2 * t})
		r.Velocities = append(r.Velocities, []float64{1, 2})
		r.Forcing = append(r.Forcing, []float64{0, 0})
		r.Goals = append(r.Goals, []float64{1, 2})
	}
	return r
}

func TestSavePlots(t *testing.T) {
	dir := t.TempDir()
	for _, ext := range []string{"png", "svg"} {
		paths, err := SavePlots(dir, ext, testResult())
		if err != nil {
			t.Fatalf("%s: %v", ext, err)
		}
		if len(paths) != len(Figures) {
			t.Fatalf("expected %d figures, got %d", len(Figures), len(paths))
		}
		for _, p := range paths {
			info, err := os.Stat(p)
			if err != nil {
				t.Fatalf("missing %s: %v", p, err)
			}
			if info.Size() == 0 {
				t.Errorf("%s is empty", p)
			}
		}
	}
}

func TestSaveFigureErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.png")

	if err := SaveFigure(path, "energy", testResult()); !errors.Is(err, dynamo.ErrPrecondition) {
		t.Errorf("expected unknown figure error, got %v", err)
	}
	if err := SaveFigure(path, "position", &sim.Result{Times: []float64{0}}); !errors.Is(err, dynamo.ErrPrecondition) {
		t.Errorf("expected too-short error, got %v", err)
	}

	_, err := LinePlot("t", "x", "y", []float64{0, 1}, []Series{{Name: "a", Values: []float64{1}}})
	if !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch, got %v", err)
	}
}
