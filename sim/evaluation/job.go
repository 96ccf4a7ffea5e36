package evaluation

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/campaign-sim/campaign-sim/sim"
)

// Job is one simulation unit: a dream advanced LookAhead steps under
// Parameters. The Experiment is owned by whichever worker runs the job;
// Parameters is shared between the dreams of one policy and never mutated.
type Job struct {
	Seed           int64
	DreamIndex     int
	Experiment     sim.Experiment
	Parameters     *sim.Parameters
	LookAhead      int
	CheckpointPath string
	Name           string
}

// JobName returns the deduplication and resume key of a (parameters, seed)
// pair.
func JobName(params *sim.Parameters, seed int64) string {
	return params.Hash() + "-seed-" + strconv.FormatInt(seed, 10)
}

// NewJob validates its inputs and derives the job name. When checkpointDir
// is non-empty the job checkpoints to <checkpointDir>/<name>.json.
func NewJob(seed int64, dreamIndex int, exp sim.Experiment, params *sim.Parameters, lookAhead int, checkpointDir string) (Job, error) {
	if exp == nil {
		return Job{}, fmt.Errorf("job: nil experiment")
	}
	if params == nil {
		return Job{}, fmt.Errorf("job: nil parameters")
	}
	if err := params.Validate(); err != nil {
		return Job{}, fmt.Errorf("job: %w", err)
	}
	if params.OptimizeGP == nil {
		return Job{}, fmt.Errorf("job: parameters %s have no optimizer attached", params.DisplayName())
	}
	if dreamIndex < 0 {
		return Job{}, fmt.Errorf("job: negative dream index %d", dreamIndex)
	}
	if lookAhead < MinLookAhead {
		return Job{}, fmt.Errorf("job: look-ahead %d: %w", lookAhead, ErrTooFewSteps)
	}
	job := Job{
		Seed:       seed,
		DreamIndex: dreamIndex,
		Experiment: exp,
		Parameters: params,
		LookAhead:  lookAhead,
		Name:       JobName(params, seed),
	}
	if checkpointDir != "" {
		job.CheckpointPath = filepath.Join(checkpointDir, job.Name+".json")
	}
	return job, nil
}

// BuildJobs returns one job per candidate and dream index, skipping names
// already in the history. Dream d of every candidate is built from the same
// seed, so all policies face the same simulated futures. Any failure aborts
// the whole build.
func (e *Evaluator) BuildJobs(candidates []sim.Parameters) ([]Job, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("build jobs: no candidate policies")
	}
	prepared := make([]*sim.Parameters, len(candidates))
	for i, c := range candidates {
		p := c.WithDefaultOptimizer()
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("build jobs: candidate %d (%s): %w", i, c.DisplayName(), err)
		}
		prepared[i] = &p
	}

	base, err := e.snap.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("build jobs: snapshot: %w", err)
	}

	var jobs []Job
	seen := make(map[string]bool)
	for _, params := range prepared {
		for d := 0; d < e.cfg.Dreams; d++ {
			seed := e.cfg.Seed + int64(d)
			name := JobName(params, seed)
			if seen[name] || e.hasName(name) {
				continue
			}
			seen[name] = true

			rng := sim.NewPartitionedRNG(sim.NewSimulationKey(seed))
			dream, err := e.cfg.Dream(base.Clone(), rng.ForSubsystem(sim.SubsystemDream))
			if err != nil {
				return nil, fmt.Errorf("build jobs: dream %d for %s: %w", d, params.AcqfKey(), err)
			}
			job, err := NewJob(seed, d, dream, params, e.cfg.LookAhead, e.cfg.CheckpointDir)
			if err != nil {
				return nil, fmt.Errorf("build jobs: %w", err)
			}
			jobs = append(jobs, job)
		}
	}
	e.built.Add(int64(len(jobs)))
	return jobs, nil
}
