package sim

import (
	"context"
	"math/rand"
)

// Experiment is the capability set the policy evaluator drives.
// Implementations own their data and mutate it only inside Run.
type Experiment interface {
	// Run advances the experiment by n steps under params.
	Run(ctx context.Context, n int, params *Parameters, opts RunOptions) error
	// Save persists the experiment so that it can be loaded back into an
	// equivalent in-memory experiment.
	Save(path string) error
	// Evaluate returns the unscaled objective at x.
	Evaluate(x []float64) (float64, error)
}

// Snapshotter exposes a deep copy of an experiment's recorded state.
type Snapshotter interface {
	Snapshot() (*Snapshot, error)
}

// RunOptions controls a single Experiment.Run call.
type RunOptions struct {
	// Rand drives every stochastic choice made during the run. Must be non-nil.
	Rand *rand.Rand
	// Progress logs each step at info level.
	Progress bool
	// AdditionalExperiments lets the experiment schedule its bookkeeping
	// steps (the optima search) after the last proposed point.
	AdditionalExperiments bool
}

// Dataset holds observed (input, output) pairs in observation order.
type Dataset struct {
	X [][]float64 `json:"x"`
	Y []float64   `json:"y"`
}

// Len returns the number of observations.
func (d Dataset) Len() int { return len(d.Y) }

// Clone returns a deep copy.
func (d Dataset) Clone() Dataset {
	out := Dataset{
		X: make([][]float64, len(d.X)),
		Y: append([]float64(nil), d.Y...),
	}
	for i, x := range d.X {
		out.X[i] = append([]float64(nil), x...)
	}
	return out
}

// StepResult is the point a policy proposed and its acquisition value.
type StepResult struct {
	NextPoints []float64 `json:"next_points"`
	Value      float64   `json:"value"`
}

// SurrogateState records the fitted surrogate hyperparameters at a step.
type SurrogateState struct {
	Lengthscale           float64 `json:"lengthscale"`
	Noise                 float64 `json:"noise"`
	LogMarginalLikelihood float64 `json:"log_marginal_likelihood"`
}

// Step is one entry of an experiment's append-only history.
type Step struct {
	Iteration      int            `json:"iteration"`
	PolicyKey      string         `json:"policy_key"`
	ParametersHash string         `json:"parameters_hash"`
	OptimizeGP     StepResult     `json:"optimize_gp"`
	Surrogate      SurrogateState `json:"surrogate"`
}

// RuntimeProperty records which parameters drove a Run call.
type RuntimeProperty struct {
	Iteration      int    `json:"iteration"`
	Steps          int    `json:"steps"`
	PolicyKey      string `json:"policy_key"`
	ParametersHash string `json:"parameters_hash"`
}

// Metadata holds run bookkeeping that is not part of the step history.
type Metadata struct {
	RuntimeProperties []RuntimeProperty `json:"runtime_properties"`
	// Optima is the surrogate's best point after the last run; its Value is
	// in the surrogate's standardized scale.
	Optima *StepResult `json:"optima,omitempty"`
}

// Snapshot is the serializable state of an experiment.
type Snapshot struct {
	Name     string   `json:"name"`
	Data     Dataset  `json:"data"`
	Domain   Domain   `json:"domain"`
	History  []Step   `json:"history"`
	Metadata Metadata `json:"metadata"`
}

// PolicyKey returns the acquisition key of the last Run, or "" if the
// experiment never ran.
func (s *Snapshot) PolicyKey() string {
	props := s.Metadata.RuntimeProperties
	if len(props) == 0 {
		return ""
	}
	return props[len(props)-1].PolicyKey
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		Name:    s.Name,
		Data:    s.Data.Clone(),
		Domain:  s.Domain.Clone(),
		History: make([]Step, len(s.History)),
		Metadata: Metadata{
			RuntimeProperties: append([]RuntimeProperty(nil), s.Metadata.RuntimeProperties...),
		},
	}
	for i, st := range s.History {
		st.OptimizeGP.NextPoints = append([]float64(nil), st.OptimizeGP.NextPoints...)
		out.History[i] = st
	}
	if s.Metadata.Optima != nil {
		opt := *s.Metadata.Optima
		opt.NextPoints = append([]float64(nil), opt.NextPoints...)
		out.Metadata.Optima = &opt
	}
	return out
}
