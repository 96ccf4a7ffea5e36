// Package evaluation scores candidate acquisition policies by running
// forward simulations ("dreams") of an experiment under each policy and
// fitting how fast each policy drives opportunity cost down.
//
// The pipeline is BuildJobs -> Run -> ProcessResults -> BestPolicy. An
// Evaluator accumulates completed simulations across Run calls, so repeated
// calls with the same candidates only compute what is missing.
package evaluation

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"

	"github.com/campaign-sim/campaign-sim/sim"
)

var (
	// ErrNoReplicates is returned when no policy has a usable replicate.
	ErrNoReplicates = errors.New("no replicates to rank")
	// ErrInvalidPolicyKey is returned for keys that are neither the baseline
	// nor "<method>-<value>".
	ErrInvalidPolicyKey = errors.New("invalid policy key")
	// ErrZeroOptimum marks a replicate whose best value is zero, which leaves
	// the normalized opportunity cost undefined.
	ErrZeroOptimum = errors.New("zero optimum value")
	// ErrTooFewSteps is returned when a simulation is too short to fit a
	// learning rate.
	ErrTooFewSteps = errors.New("too few simulated steps")
)

// MinLookAhead is the shortest look-ahead a line can be fitted to.
const MinLookAhead = 2

// DreamFunc builds a disposable experiment from a snapshot. The snapshot is
// a private deep copy the dream may keep.
type DreamFunc func(snap *sim.Snapshot, rng *rand.Rand) (sim.Experiment, error)

// LoadFunc reads an experiment written by Experiment.Save.
type LoadFunc func(path string) (sim.Experiment, error)

// Config parameterizes an Evaluator.
type Config struct {
	// CheckpointDir holds one file per job. Empty disables checkpointing.
	CheckpointDir string
	// LookAhead is the number of simulated steps per dream.
	LookAhead int
	// Dreams is the number of replicates per candidate policy.
	Dreams int
	// Seed is the base seed; dream d of every policy uses Seed+d.
	Seed int64
	// StrictCheckpoints turns unreadable checkpoints into job errors
	// instead of cache misses.
	StrictCheckpoints bool
	// FailFast cancels the batch on the first job error.
	FailFast bool

	Dream DreamFunc
	Load  LoadFunc
}

// Validate checks the configuration before any work is dispatched.
func (c Config) Validate() error {
	if c.LookAhead < MinLookAhead {
		return fmt.Errorf("look_ahead must be >= %d, got %d: %w", MinLookAhead, c.LookAhead, ErrTooFewSteps)
	}
	if c.Dreams < 1 {
		return fmt.Errorf("dreams must be >= 1, got %d: %w", c.Dreams, ErrNoReplicates)
	}
	if c.Dream == nil {
		return fmt.Errorf("evaluation: nil dream builder")
	}
	if c.CheckpointDir != "" && c.Load == nil {
		return fmt.Errorf("evaluation: checkpoint dir %q set without a loader", c.CheckpointDir)
	}
	return nil
}

// Completed is one finished simulation in an Evaluator's history.
type Completed struct {
	Name       string
	Experiment sim.Experiment
}

// RunStats counts job outcomes over the lifetime of an Evaluator.
type RunStats struct {
	Built    int64
	Computed int64
	Loaded   int64
	Failed   int64
}

// Evaluator runs and scores policy simulations for one base experiment.
type Evaluator struct {
	exp  sim.Experiment
	snap sim.Snapshotter
	cfg  Config

	mu       sync.Mutex
	history  []Completed
	names    map[string]bool
	failures []JobResult

	built    atomic.Int64
	computed atomic.Int64
	loaded   atomic.Int64
	failed   atomic.Int64
}

// NewEvaluator validates cfg and exp, and creates the checkpoint directory.
func NewEvaluator(exp sim.Experiment, cfg Config) (*Evaluator, error) {
	if exp == nil {
		return nil, fmt.Errorf("evaluation: nil experiment")
	}
	snap, ok := exp.(sim.Snapshotter)
	if !ok {
		return nil, fmt.Errorf("evaluation: experiment %T cannot be snapshotted", exp)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.CheckpointDir != "" {
		if err := os.MkdirAll(cfg.CheckpointDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating checkpoint dir: %w", err)
		}
	}
	return &Evaluator{
		exp:   exp,
		snap:  snap,
		cfg:   cfg,
		names: make(map[string]bool),
	}, nil
}

// History returns the completed simulations in the order they were added.
func (e *Evaluator) History() []Completed {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Completed(nil), e.history...)
}

// Failures returns the jobs that failed, in the order they were recorded.
func (e *Evaluator) Failures() []JobResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]JobResult(nil), e.failures...)
}

// Stats returns the job counters.
func (e *Evaluator) Stats() RunStats {
	return RunStats{
		Built:    e.built.Load(),
		Computed: e.computed.Load(),
		Loaded:   e.loaded.Load(),
		Failed:   e.failed.Load(),
	}
}

// ProcessResults aggregates the current history per policy key.
func (e *Evaluator) ProcessResults() (map[string]*PolicyResult, error) {
	return Aggregate(e.History())
}

// BestPolicy ranks the current history and decodes the winner.
func (e *Evaluator) BestPolicy() (PolicyDecision, []RankedPolicy, error) {
	results, err := e.ProcessResults()
	if err != nil {
		return PolicyDecision{}, nil, err
	}
	return Select(results)
}

func (e *Evaluator) hasName(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.names[name]
}

func (e *Evaluator) record(results []JobResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range results {
		if r.Err != nil {
			e.failures = append(e.failures, r)
			continue
		}
		if r.Experiment == nil || e.names[r.Job.Name] {
			continue
		}
		e.names[r.Job.Name] = true
		e.history = append(e.history, Completed{Name: r.Job.Name, Experiment: r.Experiment})
	}
}
