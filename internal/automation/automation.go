// Package automation runs scripted sequences of experiments and randomized
// ensembles around a single experiment.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/celltx/internal/config"
	"github.com/san-kum/celltx/internal/dynamo"
	"github.com/san-kum/celltx/internal/experiment"
	"github.com/san-kum/celltx/internal/sim"
)

// Scenario is a named list of runs executed in order.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Steps       []Step `yaml:"steps"`
}

// Step is one run. In YAML a step carries a name, an optional model and
// preset, and any config field; fields override the preset, which overrides
// the defaults.
type Step struct {
	Name   string
	Config *config.Config
}

func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	var head struct {
		Name   string `yaml:"name"`
		Model  string `yaml:"model"`
		Preset string `yaml:"preset"`
	}
	if err := node.Decode(&head); err != nil {
		return err
	}

	cfg := config.DefaultConfig()
	if head.Model != "" {
		cfg.Model = head.Model
	}
	if head.Preset != "" {
		p := config.GetPreset(cfg.Model, head.Preset)
		if p == nil {
			return fmt.Errorf("line %d: unknown preset %s for model %s", node.Line, head.Preset, cfg.Model)
		}
		cfg = p
	}
	if err := node.Decode(cfg); err != nil {
		return err
	}

	s.Name = head.Name
	if s.Name == "" {
		s.Name = cfg.Model
	}
	s.Config = cfg
	return nil
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// ParseScenario decodes and validates every step.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", sc.Name)
	}
	for i, step := range sc.Steps {
		if err := step.Config.Validate(); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Name, err)
		}
	}
	return &sc, nil
}

type StepResult struct {
	Step   Step
	Result *sim.Result
}

// RunScenario executes the steps in order and stops at the first failure.
// Results of completed steps, and the partial result of the failing one,
// are returned with the error.
func RunScenario(ctx context.Context, sc *Scenario, logger *slog.Logger) ([]StepResult, error) {
	results := make([]StepResult, 0, len(sc.Steps))

	for i, step := range sc.Steps {
		logger.Info("scenario step", "scenario", sc.Name, "step", i+1, "of", len(sc.Steps), "name", step.Name)

		exp, err := experiment.New(step.Config, experiment.WithLogger(logger))
		if err != nil {
			return results, fmt.Errorf("step %d (%s): %w", i+1, step.Name, err)
		}

		result, err := exp.Run(ctx)
		if result != nil {
			results = append(results, StepResult{Step: step, Result: result})
		}
		if err != nil {
			return results, fmt.Errorf("step %d (%s): %w", i+1, step.Name, err)
		}
	}

	return results, nil
}

// MonteCarloConfig perturbs every initial magnitude by a uniform relative
// factor in [-Perturbation, +Perturbation].
type MonteCarloConfig struct {
	Trials       int
	Perturbation float64
	Seed         int64
	Workers      int
}

type MonteCarloResult struct {
	TrialID int
	Initial dynamo.State
	Final   dynamo.State
	Metrics map[string]float64
	// Stable is false when the run failed or any magnitude ran away.
	Stable bool
	Err    error
}

// RunMonteCarlo runs cfg.Trials perturbed copies of exp concurrently.
// Perturbed magnitudes are floored at zero. A zero seed uses the clock.
func RunMonteCarlo(ctx context.Context, exp *experiment.Experiment, cfg MonteCarloConfig) ([]MonteCarloResult, error) {
	if cfg.Trials < 1 {
		return nil, fmt.Errorf("monte carlo: trials must be >= 1, got %d", cfg.Trials)
	}
	if cfg.Perturbation < 0 {
		return nil, fmt.Errorf("monte carlo: perturbation must be >= 0, got %g", cfg.Perturbation)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	if cfg.Seed == 0 {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	jobs := make([]sim.Job, cfg.Trials)
	initial := make([]dynamo.State, cfg.Trials)
	for trial := range jobs {
		s, x0, err := exp.Prepare(nil)
		if err != nil {
			return nil, err
		}
		for i, v := range x0 {
			x0[i] = math.Max(0, v*(1+(rng.Float64()*2-1)*cfg.Perturbation))
		}
		initial[trial] = x0.Clone()
		jobs[trial] = sim.Job{Sim: s, X0: x0}
	}

	runs, errs := sim.NewEnsemble(jobs, cfg.Workers).RunAll(ctx, exp.Config().Run())

	results := make([]MonteCarloResult, cfg.Trials)
	for trial, run := range runs {
		r := MonteCarloResult{TrialID: trial, Initial: initial[trial], Err: errs[trial]}
		if run != nil {
			r.Metrics = run.Metrics
			if final, _, ok := run.Trajectory.Final(); ok {
				r.Final = final
			}
		}
		r.Stable = r.Err == nil && r.Metrics["stability"] == 1
		results[trial] = r
	}
	return results, ctx.Err()
}

func MonteCarloStats(results []MonteCarloResult) (stableCount int, unstableCount int) {
	for _, r := range results {
		if r.Stable {
			stableCount++
		} else {
			unstableCount++
		}
	}
	return
}

// MetricSpread is the mean and sample standard deviation of a metric over
// the successful trials.
func MetricSpread(results []MonteCarloResult, name string) (mean, stddev float64, n int) {
	var sum, sumSq float64
	for _, r := range results {
		v, ok := r.Metrics[name]
		if r.Err != nil || !ok {
			continue
		}
		sum += v
		sumSq += v * v
		n++
	}
	if n == 0 {
		return 0, 0, 0
	}
	mean = sum / float64(n)
	if n > 1 {
		stddev = math.Sqrt(math.Max(0, (sumSq-float64(n)*mean*mean)/float64(n-1)))
	}
	return mean, stddev, n
}
