package automation

import (
	"context"
	"math/rand"
	"os"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/num/quat"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/dmp/internal/config"
	"github.com/san-kum/dmp/internal/dynamo"
	"github.com/san-kum/dmp/internal/experiment"
	"github.com/san-kum/dmp/internal/metrics"
	"github.com/san-kum/dmp/internal/sim"
	"github.com/san-kum/dmp/internal/so3"
	"github.com/san-kum/dmp/internal/storage"
)

// Scenario defines a scripted sequence of unrolls
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is one unroll: a preset or config file, with optional overrides
type ScenarioStep struct {
	Kind     string    `yaml:"kind"`
	Preset   string    `yaml:"preset"`
	Config   string    `yaml:"config"`
	Goal     []float64 `yaml:"goal"`
	Tau      float64   `yaml:"tau"`
	Duration float64   `yaml:"duration"`
	SaveAs   string    `yaml:"save_as"`
}

// StepResult is the outcome of one scenario step
type StepResult struct {
	Name   string
	RunID  string
	Done   bool
	Result *sim.Result
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	if len(scenario.Steps) == 0 {
		return nil, errors.Wrapf(dynamo.ErrPrecondition, "scenario %s has no steps", path)
	}

	return &scenario, nil
}

// Resolve builds the configuration of the step.
func (s ScenarioStep) Resolve() (*config.Config, error) {
	var cfg *config.Config
	switch {
	case s.Config != "":
		loaded, err := config.Load(s.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	case s.Preset != "":
		cfg = config.GetPreset(s.Kind, s.Preset)
		if cfg == nil {
			return nil, errors.Wrapf(dynamo.ErrPrecondition, "unknown preset %s/%s", s.Kind, s.Preset)
		}
	default:
		return nil, errors.Wrap(dynamo.ErrPrecondition, "step needs a preset or a config file")
	}

	if len(s.Goal) > 0 {
		cfg.Goal = s.Goal
	}
	if s.Tau > 0 {
		cfg.Tau = s.Tau
	}
	if s.Duration > 0 {
		cfg.Duration = s.Duration
	}
	return cfg, nil
}

func (s ScenarioStep) name() string {
	switch {
	case s.SaveAs != "":
		return s.SaveAs
	case s.Preset != "":
		return s.Preset
	default:
		return "custom"
	}
}

// RunScenario executes all steps in order. Runs are saved to st when it is not nil.
func RunScenario(ctx context.Context, scenario *Scenario, registry *experiment.Registry, st *storage.Store, logger *zap.Logger) ([]StepResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		logger.Info("running scenario step",
			zap.String("scenario", scenario.Name), zap.Int("step", i+1), zap.Int("of", len(scenario.Steps)), zap.String("name", step.name()))

		cfg, err := step.Resolve()
		if err != nil {
			return results, errors.Wrapf(err, "step %d", i+1)
		}

		exp, err := experiment.New(cfg, logger.Named(step.name()))
		if err != nil {
			return results, errors.Wrapf(err, "step %d", i+1)
		}
		if err := exp.Learn(); err != nil {
			return results, errors.Wrapf(err, "step %d learn", i+1)
		}
		if err := exp.Setup(registry.DefaultMetrics(cfg.Kind)); err != nil {
			return results, errors.Wrapf(err, "step %d setup", i+1)
		}

		result, err := exp.Run(ctx)
		if err != nil {
			return results, errors.Wrapf(err, "step %d run", i+1)
		}

		out := StepResult{Name: step.name(), Done: exp.Primitive().Done(), Result: result}
		if st != nil {
			if out.RunID, err = st.Save(exp.Metadata(out.Name), result); err != nil {
				return results, errors.Wrapf(err, "step %d save", i+1)
			}
		}
		results = append(results, out)
	}

	return results, nil
}

// MonteCarloConfig perturbs the goal of a base configuration to check that the
// learned motion generalizes. Perturbation is metres for positions and radians
// for orientations.
type MonteCarloConfig struct {
	Base         *config.Config
	Perturbation float64
	NumTrials    int
	Seed         int64
	// Tolerance on the final distance to the perturbed goal
	Tolerance float64
}

// MonteCarloResult holds the outcome of one perturbed trial
type MonteCarloResult struct {
	TrialID       int
	Goal          []float64
	FinalDistance float64
	Converged     bool
}

// RunMonteCarlo learns the base demonstration once per trial and unrolls it
// toward a randomly perturbed goal.
func RunMonteCarlo(ctx context.Context, cfg *MonteCarloConfig, logger *zap.Logger) ([]MonteCarloResult, error) {
	if cfg.NumTrials < 1 {
		return nil, errors.Wrapf(dynamo.ErrPrecondition, "need at least one trial, got %d", cfg.NumTrials)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	results := make([]MonteCarloResult, 0, cfg.NumTrials)

	rng := rand.New(rand.NewSource(cfg.Seed))
	if cfg.Seed == 0 {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	base, err := experiment.New(cfg.Base.Clone(), nil)
	if err != nil {
		return nil, err
	}
	if err := base.Learn(); err != nil {
		return nil, err
	}
	nominal := nominalGoal(base)

	for trial := 0; trial < cfg.NumTrials; trial++ {
		trialCfg := cfg.Base.Clone()
		trialCfg.Goal = perturb(rng, nominal, cfg.Perturbation)
		trialCfg.StopWhenDone = false

		exp, err := experiment.New(trialCfg, nil)
		if err != nil {
			return results, err
		}
		if err := exp.Learn(); err != nil {
			return results, err
		}
		if err := exp.Setup(nil); err != nil {
			return results, err
		}

		result, err := exp.Run(ctx)
		if err != nil {
			return results, err
		}

		dist := metrics.Distance(result.Final(), trialCfg.Goal)
		results = append(results, MonteCarloResult{
			TrialID:       trial,
			Goal:          trialCfg.Goal,
			FinalDistance: dist,
			Converged:     len(result.Errors) == 0 && dist <= cfg.Tolerance,
		})

		if (trial+1)%10 == 0 {
			logger.Info("monte carlo progress", zap.Int("trials", trial+1), zap.Int("of", cfg.NumTrials))
		}
	}

	return results, nil
}

func nominalGoal(exp *experiment.Experiment) []float64 {
	if c := exp.Cartesian(); c != nil {
		return append([]float64(nil), c.LearnedGoal()...)
	}
	q := exp.Quaternion().LearnedGoal()
	return []float64{q.Real, q.Imag, q.Jmag, q.Kmag}
}

// perturb offsets a position uniformly per axis, or rotates a quaternion
// [w, x, y, z] about a random axis by up to scale radians.
func perturb(rng *rand.Rand, goal []float64, scale float64) []float64 {
	if len(goal) != 4 {
		out := make([]float64, len(goal))
		for i, v := range goal {
			out[i] = v + (rng.Float64()-0.5)*2*scale
		}
		return out
	}
	axis := r3.Vector{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
	if axis.Norm() == 0 {
		axis = r3.Vector{Z: 1}
	}
	r := axis.Normalize().Mul(rng.Float64() * scale)
	q := so3.Compose(so3.ExpMap(r), quat.Number{Real: goal[0], Imag: goal[1], Jmag: goal[2], Kmag: goal[3]})
	return []float64{q.Real, q.Imag, q.Jmag, q.Kmag}
}

// MonteCarloStats counts converged and failed trials
func MonteCarloStats(results []MonteCarloResult) (converged int, failed int) {
	for _, r := range results {
		if r.Converged {
			converged++
		} else {
			failed++
		}
	}
	return
}
