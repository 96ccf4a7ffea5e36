// Package experiment provides the surrogate-backed campaign experiment:
// a hidden ground truth, an observed dataset and an append-only history of
// proposals made by acquisition policies.
package experiment

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/campaign-sim/campaign-sim/sim"
	"github.com/campaign-sim/campaign-sim/sim/acquisition"
	"github.com/campaign-sim/campaign-sim/sim/surrogate"
)

// Config describes a fresh experiment over a named objective.
type Config struct {
	Name          string  `yaml:"name,omitempty"`
	Objective     string  `yaml:"objective"`
	InitialPoints int     `yaml:"initial_points"`
	NoiseStd      float64 `yaml:"noise_std,omitempty"`
}

// Validate checks the objective exists and the design is usable.
func (c Config) Validate() error {
	if _, err := LookupObjective(c.Objective); err != nil {
		return err
	}
	if c.InitialPoints < 1 {
		return fmt.Errorf("experiment.initial_points must be >= 1, got %d", c.InitialPoints)
	}
	if c.NoiseStd < 0 || math.IsNaN(c.NoiseStd) {
		return fmt.Errorf("experiment.noise_std must be non-negative, got %v", c.NoiseStd)
	}
	return nil
}

// DisplayName returns Name, falling back to the objective.
func (c Config) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Objective
}

// Experiment implements sim.Experiment and sim.Snapshotter.
type Experiment struct {
	state     *sim.Snapshot
	truth     truth
	noiseStd  float64
	surrogate surrogate.Config
}

var (
	_ sim.Experiment  = (*Experiment)(nil)
	_ sim.Snapshotter = (*Experiment)(nil)
)

// New builds an experiment over cfg.Objective with InitialPoints uniform
// draws from rng.
func New(cfg Config, rng *rand.Rand) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("experiment: nil rng")
	}
	obj, _ := LookupObjective(cfg.Objective)
	e := &Experiment{
		state: &sim.Snapshot{
			Name:   cfg.DisplayName(),
			Domain: obj.Domain.Clone(),
		},
		truth:     analyticTruth{name: cfg.Objective, fn: obj.Func},
		noiseStd:  cfg.NoiseStd,
		surrogate: surrogate.DefaultConfig(),
	}
	for i := 0; i < cfg.InitialPoints; i++ {
		u := make([]float64, obj.Domain.Dim())
		for j := range u {
			u[j] = rng.Float64()
		}
		e.observe(obj.Domain.Denormalize(u), rng)
	}
	return e, nil
}

// NewDream builds a disposable experiment whose ground truth is a GP
// posterior sample conditioned on the snapshot's data. The snapshot's data
// and domain are deep-copied; its history is not carried over.
func NewDream(snap *sim.Snapshot, rng *rand.Rand) (sim.Experiment, error) {
	if snap == nil {
		return nil, fmt.Errorf("experiment: nil snapshot")
	}
	if err := snap.Domain.Validate(); err != nil {
		return nil, err
	}
	cfg := surrogate.DefaultConfig()
	sample, err := newGPSample(snap, cfg, rng)
	if err != nil {
		return nil, err
	}
	return &Experiment{
		state: &sim.Snapshot{
			Name:   snap.Name,
			Data:   snap.Data.Clone(),
			Domain: snap.Domain.Clone(),
		},
		truth:     sample,
		surrogate: cfg,
	}, nil
}

// Name returns the experiment name.
func (e *Experiment) Name() string { return e.state.Name }

// Snapshot implements sim.Snapshotter.
func (e *Experiment) Snapshot() (*sim.Snapshot, error) {
	return e.state.Clone(), nil
}

// Evaluate implements sim.Experiment. It returns the noise-free objective.
func (e *Experiment) Evaluate(x []float64) (float64, error) {
	if len(x) != e.state.Domain.Dim() {
		return 0, fmt.Errorf("evaluate: point has %d dims, domain has %d", len(x), e.state.Domain.Dim())
	}
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("evaluate: non-finite coordinate in %v", x)
		}
	}
	return e.truth.evaluate(x), nil
}

// Run implements sim.Experiment.
func (e *Experiment) Run(ctx context.Context, n int, params *sim.Parameters, opts sim.RunOptions) error {
	if n < 0 {
		return fmt.Errorf("run: negative step count %d", n)
	}
	if params == nil {
		return fmt.Errorf("run: nil parameters")
	}
	if opts.Rand == nil {
		return fmt.Errorf("run: nil rng")
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	key, hash := params.AcqfKey(), params.Hash()
	e.state.Metadata.RuntimeProperties = append(e.state.Metadata.RuntimeProperties, sim.RuntimeProperty{
		Iteration:      len(e.state.History),
		Steps:          n,
		PolicyKey:      key,
		ParametersHash: hash,
	})

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		step, err := e.propose(params, opts.Rand)
		if err != nil {
			return fmt.Errorf("run step %d: %w", i, err)
		}
		step.PolicyKey, step.ParametersHash = key, hash
		y := e.observe(step.OptimizeGP.NextPoints, opts.Rand)
		e.state.History = append(e.state.History, step)
		if opts.Progress {
			logrus.Infof("[%s] step %d/%d policy=%s next=%v y=%.4f", e.state.Name, i+1, n, key, step.OptimizeGP.NextPoints, y)
		}
	}

	if opts.AdditionalExperiments {
		optima, err := e.locateOptimum(params.Optimizer(), opts.Rand)
		if err != nil {
			return fmt.Errorf("run optima: %w", err)
		}
		e.state.Metadata.Optima = optima
	}
	return nil
}

// propose fits the surrogate and maximizes the acquisition function.
// With no data it falls back to a uniform draw.
func (e *Experiment) propose(params *sim.Parameters, rng *rand.Rand) (sim.Step, error) {
	dom := e.state.Domain
	step := sim.Step{Iteration: len(e.state.History)}

	if e.state.Data.Len() == 0 {
		u := make([]float64, dom.Dim())
		for j := range u {
			u[j] = rng.Float64()
		}
		step.OptimizeGP.NextPoints = dom.Denormalize(u)
		return step, nil
	}

	g, err := e.fit()
	if err != nil {
		return step, err
	}
	best := math.Inf(-1)
	for _, y := range e.state.Data.Y {
		best = math.Max(best, g.Standardize(y))
	}
	scorer, err := acquisition.New(params.Acquisition, best)
	if err != nil {
		return step, err
	}
	c, err := acquisition.Maximize(g, scorer, dom.Dim(), params.Optimizer(), rng)
	if err != nil {
		return step, err
	}
	step.OptimizeGP = sim.StepResult{NextPoints: dom.Denormalize(c.U), Value: c.Value}
	step.Surrogate = sim.SurrogateState{
		Lengthscale:           g.Lengthscale(),
		Noise:                 g.Noise(),
		LogMarginalLikelihood: g.LogMarginalLikelihood(),
	}
	return step, nil
}

// locateOptimum maximizes the posterior mean. The recorded value stays in
// standardized units.
func (e *Experiment) locateOptimum(opt sim.OptimizerSpec, rng *rand.Rand) (*sim.StepResult, error) {
	g, err := e.fit()
	if err != nil {
		return nil, err
	}
	c, err := acquisition.Maximize(g, acquisition.PosteriorMean{}, e.state.Domain.Dim(), opt, rng)
	if err != nil {
		return nil, err
	}
	return &sim.StepResult{NextPoints: e.state.Domain.Denormalize(c.U), Value: c.Value}, nil
}

func (e *Experiment) fit() (*surrogate.GP, error) {
	inputs := make([][]float64, e.state.Data.Len())
	for i, x := range e.state.Data.X {
		inputs[i] = e.state.Domain.Normalize(x)
	}
	return surrogate.Fit(inputs, e.state.Data.Y, e.surrogate)
}

// observe appends (x, truth(x) + noise) to the dataset.
func (e *Experiment) observe(x []float64, rng *rand.Rand) float64 {
	y := e.truth.evaluate(x)
	if e.noiseStd > 0 {
		y += e.noiseStd * rng.NormFloat64()
	}
	e.state.Data.X = append(e.state.Data.X, append([]float64(nil), x...))
	e.state.Data.Y = append(e.state.Data.Y, y)
	return y
}
