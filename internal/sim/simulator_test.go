package sim

import (
	"context"
	"errors"
	"math"
	"testing"
)

// decay is x' = -x integrated with explicit Euler.
type decay struct {
	x, t   float64
	failAt int
	steps  int
}

func (d *decay) Step(dt float64) error {
	if d.failAt > 0 && d.steps == d.failAt {
		return errors.New("boom")
	}
	d.x -= d.x * dt
	d.t += dt
	d.steps++
	return nil
}

func (d *decay) Snapshot(s *Sample) {
	s.Time = d.t
	s.Position[0] = d.x
	s.Velocity[0] = -d.x
	s.Goal[0] = 0
	s.Phase = math.Exp(-d.t)
}

func (d *decay) Done() bool       { return d.x < 0.5 }
func (d *decay) PositionDim() int { return 1 }
func (d *decay) Dim() int         { return 1 }

func TestSimulatorRun(t *testing.T) {
	sim := New(&decay{x: 1})

	cfg := Config{Dt: 0.1, Duration: 1.0}
	result, err := sim.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(result.States) != 11 {
		t.Errorf("expected 11 states, got %d", len(result.States))
	}
	if len(result.Times) != 11 {
		t.Errorf("expected 11 times, got %d", len(result.Times))
	}
	if result.StepsTaken != 10 {
		t.Errorf("expected 10 steps, got %d", result.StepsTaken)
	}

	final := result.Final()[0]
	expected := math.Exp(-1.0)
	if math.Abs(final-expected) > 0.2 {
		t.Errorf("expected final state ~%.4f, got %.4f", expected, final)
	}
	if result.States[0][0] != 1 {
		t.Errorf("recorded states alias the sample buffer: first = %v", result.States[0][0])
	}
}

func TestSimulatorInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero dt", Config{Dt: 0, Duration: 1.0}},
		{"negative dt", Config{Dt: -0.1, Duration: 1.0}},
		{"zero duration", Config{Dt: 0.1, Duration: 0}},
		{"negative duration", Config{Dt: 0.1, Duration: -1.0}},
		{"dt beyond duration", Config{Dt: 2, Duration: 1.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(&decay{x: 1}).Run(context.Background(), tt.cfg)
			if err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestSimulatorStopsWhenDone(t *testing.T) {
	cfg := Config{Dt: 0.1, Duration: 5.0, StopWhenDone: true}
	result, err := New(&decay{x: 1}).Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	// 0.9^7 is the first power below one half.
	if result.StepsTaken != 7 {
		t.Errorf("expected 7 steps, got %d", result.StepsTaken)
	}
}

func TestSimulatorRecordsStepFailure(t *testing.T) {
	result, err := New(&decay{x: 1, failAt: 3}).Run(context.Background(), Config{Dt: 0.1, Duration: 1.0})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.StepsTaken != 3 {
		t.Errorf("expected 3 steps, got %d", result.StepsTaken)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(result.Errors))
	}
}

func TestSimulatorCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := New(&decay{x: 1}).Run(ctx, Config{Dt: 0.1, Duration: 1.0})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result.StepsTaken != 0 {
		t.Errorf("expected no steps, got %d", result.StepsTaken)
	}
}

type testMetric struct {
	count int
	sum   float64
}

func (t *testMetric) Name() string { return "test" }
func (t *testMetric) Observe(s *Sample) {
	t.count++
	t.sum += s.Position[0]
}
func (t *testMetric) Value() float64 {
	if t.count == 0 {
		return 0
	}
	return t.sum / float64(t.count)
}
func (t *testMetric) Reset() {
	t.count = 0
	t.sum = 0
}

func TestSimulatorMetrics(t *testing.T) {
	sim := New(&decay{x: 1})

	metric := &testMetric{}
	sim.AddMetric(metric)

	result, err := sim.Run(context.Background(), Config{Dt: 0.1, Duration: 1.0})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if _, ok := result.Metrics["test"]; !ok {
		t.Error("metric not found in result")
	}
	if metric.count != 11 {
		t.Errorf("expected 11 observations, got %d", metric.count)
	}
}

func TestRunWithCallback(t *testing.T) {
	calls := 0
	err := New(&decay{x: 1}).RunWithCallback(context.Background(), Config{Dt: 0.1, Duration: 1.0}, func(s *Sample) bool {
		calls++
		return s.Time < 0.45
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if calls != 6 {
		t.Errorf("expected 6 callbacks, got %d", calls)
	}
}

func TestEnsemble(t *testing.T) {
	factory := func(i int) (Primitive, []Metric, error) {
		if i == 2 {
			return nil, nil, errors.New("no primitive")
		}
		return &decay{x: float64(i + 1)}, []Metric{&testMetric{}}, nil
	}

	results, err := NewEnsemble(factory, 4).Run(context.Background(), Config{Dt: 0.1, Duration: 1.0})
	if err == nil {
		t.Fatal("expected the failing run to be reported")
	}
	if results[2] != nil {
		t.Error("failed run should have no result")
	}
	for _, i := range []int{0, 1, 3} {
		if results[i] == nil || results[i].StepsTaken != 10 {
			t.Errorf("run %d did not complete", i)
		}
	}
	if results[3].States[0][0] != 4 {
		t.Errorf("run 3 started at %v, want 4", results[3].States[0][0])
	}
}
