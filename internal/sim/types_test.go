package sim

import (
	"math"
	"testing"
)

func TestSample_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Sample)
		valid bool
	}{
		{"zeros", func(*Sample) {}, true},
		{"normal", func(s *Sample) { s.Position[0] = 1.5 }, true},
		{"NaN position", func(s *Sample) { s.Position[1] = math.NaN() }, false},
		{"+Inf velocity", func(s *Sample) { s.Velocity[0] = math.Inf(1) }, false},
		{"-Inf acceleration", func(s *Sample) { s.Acceleration[2] = math.Inf(-1) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSample(4, 3)
			tt.edit(&s)
			if got := s.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestSample_Clone(t *testing.T) {
	s := NewSample(2, 2)
	s.Time, s.Phase = 0.5, 0.25
	s.Position[0] = 1
	s.Goal[1] = 3

	c := s.Clone()
	c.Position[0] = 99
	if s.Position[0] != 1 {
		t.Error("Clone did not create an independent copy")
	}
	if c.Time != 0.5 || c.Phase != 0.25 || c.Goal[1] != 3 {
		t.Errorf("Clone lost values: %+v", c)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Dt <= 0 {
		t.Error("DefaultConfig has invalid Dt")
	}
	if cfg.Duration <= 0 {
		t.Error("DefaultConfig has invalid Duration")
	}
	if math.Abs(cfg.Dt*420-1) > 1e-12 {
		t.Errorf("DefaultConfig Dt = %v, want 1/420", cfg.Dt)
	}
}

func TestSimError(t *testing.T) {
	err := SimError{Time: 1.5, Step: 150, Message: "test error"}
	expected := "step 150 (t=1.5000): test error"
	if err.Error() != expected {
		t.Errorf("SimError.Error() = %q, want %q", err.Error(), expected)
	}
}

func TestResult_Final(t *testing.T) {
	var r Result
	if r.Final() != nil {
		t.Error("empty result should have no final state")
	}
	r.States = [][]float64{{0}, {1}}
	if r.Final()[0] != 1 {
		t.Errorf("Final() = %v, want [1]", r.Final())
	}
}
