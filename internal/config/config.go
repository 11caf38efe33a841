package config

import (
	"math"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/dmp/internal/approx"
	"github.com/san-kum/dmp/internal/dynamo"
)

const (
	KindCartesian  = "cartesian"
	KindQuaternion = "quaternion"
)

const (
	DefaultDt          = 1.0 / 420.0
	DefaultDuration    = 1.5
	DefaultTau         = 1.0
	DefaultAlpha       = 25.0
	DefaultBeta        = DefaultAlpha / 4
	DefaultGoalAlpha   = 12.5
	DefaultNumBasis    = 25
	DefaultLogCapacity = 10000
)

type Config struct {
	Kind         string          `yaml:"kind"`
	Dt           float64         `yaml:"dt"`
	Duration     float64         `yaml:"duration"`
	Tau          float64         `yaml:"tau"` // 0 reuses the demonstration duration
	StopWhenDone bool            `yaml:"stop_when_done"`
	Primitive    PrimitiveConfig `yaml:"primitive"`
	Demo         DemoConfig      `yaml:"demo"`
	Goal         []float64       `yaml:"goal"`
	Coupling     CouplingConfig  `yaml:"coupling"`
	LogCapacity  int             `yaml:"log_capacity"`
	DataDir      string          `yaml:"data_dir"`
	PlotDir      string          `yaml:"plot_dir"`
	LogLevel     string          `yaml:"log_level"`
}

type PrimitiveConfig struct {
	Alpha          float64 `yaml:"alpha"`
	Beta           float64 `yaml:"beta"`
	GoalAlpha      float64 `yaml:"goal_alpha"`
	CanonicalOrder int     `yaml:"canonical_order"`
	NumBasis       int     `yaml:"num_basis"`
	Method         string  `yaml:"method"`
	TauReference   float64 `yaml:"tau_reference"`
	DoneTolerance  float64 `yaml:"done_tolerance"`
}

// DemoConfig describes the demonstration to learn from: a CSV file, or a synthetic
// minimum-jerk motion from Start to Goal. Orientations are [w, x, y, z]. Extra
// lists more CSV demonstrations fitted together with the first.
type DemoConfig struct {
	File     string    `yaml:"file"`
	Duration float64   `yaml:"duration"`
	Dt       float64   `yaml:"dt"`
	Start    []float64 `yaml:"start"`
	Goal     []float64 `yaml:"goal"`
	Extra    []string  `yaml:"extra,omitempty"`
}

// CouplingConfig adds a virtual spring toward Anchor when Stiffness is non-zero.
// Cartesian only.
type CouplingConfig struct {
	Stiffness float64   `yaml:"stiffness"`
	Anchor    []float64 `yaml:"anchor"`
}

func DefaultConfig() *Config {
	return &Config{
		Kind:         KindQuaternion,
		Dt:           DefaultDt,
		Duration:     DefaultDuration,
		StopWhenDone: true,
		Primitive: PrimitiveConfig{
			Alpha:          DefaultAlpha,
			Beta:           DefaultBeta,
			GoalAlpha:      DefaultGoalAlpha,
			CanonicalOrder: 2,
			NumBasis:       DefaultNumBasis,
			Method:         "ls",
			TauReference:   1,
			DoneTolerance:  1e-3,
		},
		Demo: DemoConfig{
			Duration: DefaultTau,
			Dt:       DefaultDt,
			Start:    []float64{1, 0, 0, 0},
			Goal:     []float64{0.707, 0.707, 0, 0},
		},
		LogCapacity: DefaultLogCapacity,
		DataDir:     "data",
		PlotDir:     "plots",
		LogLevel:    "info",
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return cfg, cfg.Validate()
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns a deep copy, so presets can be modified by flags.
func (c *Config) Clone() *Config {
	out := *c
	out.Demo.Start = append([]float64(nil), c.Demo.Start...)
	out.Demo.Goal = append([]float64(nil), c.Demo.Goal...)
	out.Demo.Extra = append([]string(nil), c.Demo.Extra...)
	out.Goal = append([]float64(nil), c.Goal...)
	out.Coupling.Anchor = append([]float64(nil), c.Coupling.Anchor...)
	return &out
}

// Dim returns the velocity dimension of the configured primitive.
func (c *Config) Dim() int {
	if c.Kind == KindQuaternion {
		return 3
	}
	return len(c.Demo.Start)
}

// PositionDim returns the number of position components (4 for orientations).
func (c *Config) PositionDim() int {
	if c.Kind == KindQuaternion {
		return 4
	}
	return len(c.Demo.Start)
}

// Validate reports every problem in the config at once.
func (c *Config) Validate() error {
	var err error
	bad := func(format string, args ...any) {
		err = multierr.Append(err, errors.Wrapf(dynamo.ErrPrecondition, format, args...))
	}

	if c.Kind != KindCartesian && c.Kind != KindQuaternion {
		bad("kind %q is neither %s nor %s", c.Kind, KindCartesian, KindQuaternion)
	}
	if !positive(c.Dt) {
		bad("dt must be positive, got %v", c.Dt)
	}
	if !positive(c.Duration) || c.Duration < c.Dt {
		bad("duration %v must cover at least one tick of %v", c.Duration, c.Dt)
	}
	if c.Tau < 0 || math.IsNaN(c.Tau) {
		bad("tau must not be negative, got %v", c.Tau)
	}
	if c.LogCapacity < 0 {
		bad("log_capacity must not be negative, got %d", c.LogCapacity)
	}

	p := c.Primitive
	if !positive(p.Alpha) || !positive(p.Beta) {
		bad("alpha and beta must be positive, got %v and %v", p.Alpha, p.Beta)
	}
	if p.GoalAlpha < 0 {
		bad("goal_alpha must not be negative, got %v", p.GoalAlpha)
	}
	if p.CanonicalOrder != 1 && p.CanonicalOrder != 2 {
		bad("canonical_order must be 1 or 2, got %d", p.CanonicalOrder)
	}
	if p.NumBasis < 2 {
		bad("num_basis must be at least 2, got %d", p.NumBasis)
	}
	if _, perr := approx.ParseMethod(p.Method); perr != nil {
		err = multierr.Append(err, perr)
	}
	if !positive(p.TauReference) {
		bad("tau_reference must be positive, got %v", p.TauReference)
	}

	width := 0
	switch c.Kind {
	case KindQuaternion:
		width = 4
	case KindCartesian:
		width = len(c.Demo.Start)
		if width == 0 && c.Demo.File == "" {
			bad("cartesian demo needs a start position")
		}
	}
	if c.Demo.File == "" {
		if !positive(c.Demo.Duration) || !positive(c.Demo.Dt) || c.Demo.Dt > c.Demo.Duration {
			bad("demo duration %v and dt %v", c.Demo.Duration, c.Demo.Dt)
		}
		if len(c.Demo.Start) != width || len(c.Demo.Goal) != width {
			bad("demo start and goal need %d components, got %d and %d", width, len(c.Demo.Start), len(c.Demo.Goal))
		}
	}
	if len(c.Goal) != 0 && width != 0 && len(c.Goal) != width {
		bad("goal needs %d components, got %d", width, len(c.Goal))
	}
	if c.Coupling.Stiffness != 0 {
		if c.Kind != KindCartesian {
			bad("coupling is only supported for cartesian primitives")
		} else if width != 0 && len(c.Coupling.Anchor) != width {
			bad("coupling anchor needs %d components, got %d", width, len(c.Coupling.Anchor))
		}
	}
	return err
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
