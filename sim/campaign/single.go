package campaign

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/campaign-sim/campaign-sim/sim"
)

// RunSingle runs every campaign parameter set against every replica seed
// under that fixed policy, n_jobs campaigns at a time. Results are
// returned in (parameters, replica) order.
func (r *Runner) RunSingle(ctx context.Context) ([]*Result, error) {
	logBanner(r.cfg, ModeSingle)

	type job struct {
		params sim.Parameters
		seed   int64
	}
	var jobs []job
	for _, p := range r.cfg.CampaignParameters {
		for replica := 0; replica < r.cfg.Replicas; replica++ {
			jobs = append(jobs, job{params: p.WithDefaultOptimizer(), seed: r.cfg.Seed + int64(replica)})
		}
	}

	results := make([]*Result, len(jobs))
	p := pool.New().WithMaxGoroutines(r.cfg.NJobs).WithContext(ctx).WithCancelOnError()
	for i, j := range jobs {
		i, j := i, j
		p.Go(func(ctx context.Context) error {
			res, err := r.runSingleJob(ctx, j.params, j.seed)
			if err != nil {
				return fmt.Errorf("%s seed %d: %w", j.params.DisplayName(), j.seed, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("single-policy campaigns: %w", err)
	}
	return results, nil
}

func (r *Runner) runSingleJob(ctx context.Context, params sim.Parameters, seed int64) (*Result, error) {
	start := time.Now()
	exp, rng, err := r.newReal(seed)
	if err != nil {
		return nil, err
	}
	campaign, err := r.startCampaign(ctx, ModeSingle, seed)
	if err != nil {
		return nil, err
	}

	opts := sim.RunOptions{
		Rand:                  rng.ForSubsystem(sim.SubsystemCampaign),
		Progress:              r.cfg.Progress,
		AdditionalExperiments: r.cfg.AdditionalExperiments,
	}
	if err := exp.Run(ctx, r.cfg.N, &params, opts); err != nil {
		return nil, err
	}
	path := r.singleOutputPath(exp.Name(), params, seed)
	if err := exp.Save(path); err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	logrus.Infof("done with exp: %s in %.02f s", path, elapsed.Seconds())
	res := NewResult(campaign.ID, ModeSingle, exp.Name(), seed, path, nil, nil, elapsed)
	res.Policy = params.DisplayName()
	return res, nil
}
