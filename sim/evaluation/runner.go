package evaluation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/campaign-sim/campaign-sim/sim"
)

// JobResult is the outcome of one job. Exactly one of Experiment and Err
// is set.
type JobResult struct {
	Job        Job
	Experiment sim.Experiment
	Err        error
	Loaded     bool
	WallTime   time.Duration
}

// Run builds the jobs for candidates, executes them on a pool of width
// workers and appends the successes to the history. Failed jobs are
// recorded in Failures and excluded from aggregation; with FailFast the
// batch is cancelled and the first error is returned as well.
func (e *Evaluator) Run(ctx context.Context, candidates []sim.Parameters, width int) ([]JobResult, error) {
	if width < 1 {
		return nil, fmt.Errorf("run: worker count must be >= 1, got %d", width)
	}
	jobs, err := e.BuildJobs(candidates)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		logrus.Debugf("evaluation: all %d candidate(s) already simulated", len(candidates))
		return nil, nil
	}

	results := make([]JobResult, len(jobs))
	p := pool.New().WithMaxGoroutines(width).WithContext(ctx)
	if e.cfg.FailFast {
		p = p.WithCancelOnError().WithFirstError()
	}
	for i, job := range jobs {
		i, job := i, job
		p.Go(func(ctx context.Context) error {
			results[i] = e.execute(ctx, job)
			if e.cfg.FailFast {
				return results[i].Err
			}
			return nil
		})
	}
	batchErr := p.Wait()

	for _, r := range results {
		if r.Err != nil {
			e.failed.Add(1)
			logrus.Warnf("evaluation: job %s (%s, dream %d) failed: %v", r.Job.Name, r.Job.Parameters.AcqfKey(), r.Job.DreamIndex, r.Err)
		}
	}
	e.record(results)
	if batchErr != nil {
		return results, fmt.Errorf("run: %w", batchErr)
	}
	return results, nil
}

// execute runs a single job, loading its checkpoint when one exists.
func (e *Evaluator) execute(ctx context.Context, job Job) (res JobResult) {
	start := time.Now()
	res.Job = job
	defer func() {
		if r := recover(); r != nil {
			res.Experiment = nil
			res.Err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
		res.WallTime = time.Since(start)
	}()

	if job.CheckpointPath != "" {
		exp, err := e.loadCheckpoint(job)
		if err != nil {
			res.Err = err
			return res
		}
		if exp != nil {
			e.loaded.Add(1)
			res.Experiment, res.Loaded = exp, true
			logrus.Debugf("evaluation: job %s loaded from %s", job.Name, job.CheckpointPath)
			return res
		}
	}

	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(job.Seed)).ForSubsystem(sim.SubsystemPolicy)
	opts := sim.RunOptions{Rand: rng, Progress: false, AdditionalExperiments: true}
	if err := job.Experiment.Run(ctx, job.LookAhead, job.Parameters, opts); err != nil {
		res.Err = fmt.Errorf("job %s: %w", job.Name, err)
		return res
	}
	if job.CheckpointPath != "" {
		if err := job.Experiment.Save(job.CheckpointPath); err != nil {
			res.Err = fmt.Errorf("job %s: saving checkpoint: %w", job.Name, err)
			return res
		}
	}
	e.computed.Add(1)
	res.Experiment = job.Experiment
	logrus.Debugf("evaluation: job %s computed in %s", job.Name, time.Since(start))
	return res
}

// loadCheckpoint returns (nil, nil) on a cache miss. An unreadable file is
// a miss unless StrictCheckpoints is set.
func (e *Evaluator) loadCheckpoint(job Job) (sim.Experiment, error) {
	if _, err := os.Stat(job.CheckpointPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		if e.cfg.StrictCheckpoints {
			return nil, fmt.Errorf("job %s: checkpoint %s: %w", job.Name, job.CheckpointPath, err)
		}
		logrus.Warnf("evaluation: ignoring checkpoint %s: %v", job.CheckpointPath, err)
		return nil, nil
	}
	exp, err := e.cfg.Load(job.CheckpointPath)
	if err != nil {
		if e.cfg.StrictCheckpoints {
			return nil, fmt.Errorf("job %s: corrupt checkpoint: %w", job.Name, err)
		}
		logrus.Warnf("evaluation: recomputing job %s, checkpoint unreadable: %v", job.Name, err)
		return nil, nil
	}
	return exp, nil
}
