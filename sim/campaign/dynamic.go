package campaign

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/campaign-sim/campaign-sim/sim"
	"github.com/campaign-sim/campaign-sim/sim/evaluation"
	"github.com/campaign-sim/campaign-sim/sim/experiment"
	"github.com/campaign-sim/campaign-sim/sim/store"
	"github.com/campaign-sim/campaign-sim/sim/trace"
)

// RunDynamic runs one campaign per replica. Before every real step a fresh
// evaluator simulates the candidate policies from the current state, and
// the winner is applied for exactly one real step. Steps are strictly
// sequential; only the simulations inside a step run in parallel.
func (r *Runner) RunDynamic(ctx context.Context) ([]*Result, error) {
	if r.cfg.Mode() != ModeDynamic {
		return nil, fmt.Errorf("run dynamic: config has no policy_performance_tuner")
	}
	logBanner(r.cfg, ModeDynamic)

	results := make([]*Result, 0, r.cfg.Replicas)
	for replica := 0; replica < r.cfg.Replicas; replica++ {
		seed := r.cfg.Seed + int64(replica)
		res, err := r.runDynamicReplica(ctx, seed)
		if err != nil {
			return results, fmt.Errorf("dynamic campaign seed %d: %w", seed, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Runner) runDynamicReplica(ctx context.Context, seed int64) (*Result, error) {
	start := time.Now()
	exp, rng, err := r.newReal(seed)
	if err != nil {
		return nil, err
	}
	stepRand := rng.ForSubsystem(sim.SubsystemCampaign)
	campaign, err := r.startCampaign(ctx, ModeDynamic, seed)
	if err != nil {
		return nil, err
	}

	var tr *trace.CampaignTrace
	if tc := r.cfg.TraceSettings(); tc.Enabled() {
		tr = trace.NewCampaignTrace(tc)
	}
	logrus.Infof(":: Starting experiment %s at seed %d (campaign %s)", exp.Name(), seed, campaign.ID)

	base := r.cfg.BaseParameters()
	decisions := make([]store.Decision, 0, r.cfg.N)
	for ii := 0; ii < r.cfg.N; ii++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stepStart := time.Now()

		sel, err := r.selectPolicy(ctx, exp, seed, ii)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", ii, err)
		}
		decision, ranked := sel.Decision, sel.Ranking

		params := base.ForPolicy(decision.Method, decision.Kwargs)
		opts := sim.RunOptions{Rand: stepRand, Progress: r.cfg.Progress, AdditionalExperiments: true}
		if err := exp.Run(ctx, 1, &params, opts); err != nil {
			return nil, fmt.Errorf("step %d: real step under %s: %w", ii, params.AcqfKey(), err)
		}
		snap, err := exp.Snapshot()
		if err != nil {
			return nil, err
		}
		next := snap.Data.X[len(snap.Data.X)-1]
		elapsed := time.Since(stepStart)

		failures := sel.Failures
		d := store.Decision{
			CampaignID:   campaign.ID,
			Step:         ii,
			Method:       decision.Method,
			Kwargs:       decision.Kwargs,
			LearningRate: decision.LearningRate,
			Ranking:      toScores(ranked),
			NextPoints:   next,
			FailedJobs:   len(failures),
			WallTime:     elapsed,
		}
		if err := r.store.SaveDecision(ctx, d); err != nil {
			return nil, fmt.Errorf("step %d: saving decision: %w", ii, err)
		}
		decisions = append(decisions, d)
		if tr != nil {
			recordStep(tr, ii, decision, ranked, next, failures)
		}

		logrus.Infof("(%02d) Best policy: %s with LR=%.02f next=%v finished in %.02f s",
			ii, decision.Key(), decision.LearningRate, next, elapsed.Seconds())
	}

	path := r.dynamicOutputPath(exp.Name(), seed)
	if err := exp.Save(path); err != nil {
		return nil, err
	}
	logrus.Infof("saved %s", path)
	return NewResult(campaign.ID, ModeDynamic, exp.Name(), seed, path, decisions, tr, time.Since(start)), nil
}

// Selection is the outcome of one policy evaluation.
type Selection struct {
	Decision evaluation.PolicyDecision
	Ranking  []evaluation.RankedPolicy
	Failures []evaluation.JobResult
	Stats    evaluation.RunStats
}

// selectPolicy simulates every candidate from exp's current state and
// picks the policy with the steepest learning rate.
func (r *Runner) selectPolicy(ctx context.Context, exp *experiment.Experiment, seed int64, step int) (Selection, error) {
	tuner := r.cfg.PolicyPerformanceTuner
	ev, err := evaluation.NewEvaluator(exp, evaluation.Config{
		CheckpointDir:     r.stepCheckpointDir(exp.Name(), seed, step),
		LookAhead:         tuner.LookAhead,
		Dreams:            tuner.Dreams,
		Seed:              seed*1000 + int64(step),
		StrictCheckpoints: tuner.StrictCheckpoints,
		FailFast:          tuner.FailFast,
		Dream:             experiment.NewDream,
		Load:              experiment.LoadExperiment,
	})
	if err != nil {
		return Selection{}, err
	}
	if _, err := ev.Run(ctx, r.cfg.CandidateParameters, r.cfg.NJobs); err != nil {
		return Selection{}, err
	}
	decision, ranked, err := ev.BestPolicy()
	if err != nil {
		return Selection{}, err
	}
	return Selection{Decision: decision, Ranking: ranked, Failures: ev.Failures(), Stats: ev.Stats()}, nil
}

// Evaluate runs a single policy evaluation against a fresh experiment at
// the config seed without taking any real step.
func (r *Runner) Evaluate(ctx context.Context) (Selection, error) {
	if r.cfg.Mode() != ModeDynamic {
		return Selection{}, fmt.Errorf("evaluate: config has no policy_performance_tuner")
	}
	exp, _, err := r.newReal(r.cfg.Seed)
	if err != nil {
		return Selection{}, err
	}
	return r.selectPolicy(ctx, exp, r.cfg.Seed, 0)
}

func toScores(ranked []evaluation.RankedPolicy) []store.PolicyScore {
	out := make([]store.PolicyScore, len(ranked))
	for i, rp := range ranked {
		out[i] = store.PolicyScore{Key: rp.Key, LearningRate: rp.LearningRate}
	}
	return out
}

func recordStep(tr *trace.CampaignTrace, step int, decision evaluation.PolicyDecision, ranked []evaluation.RankedPolicy, next []float64, failures []evaluation.JobResult) {
	cands := make([]trace.CandidateScore, len(ranked))
	for i, rp := range ranked {
		cands[i] = trace.CandidateScore{Key: rp.Key, LearningRate: rp.LearningRate}
	}
	tr.RecordDecision(trace.DecisionRecord{
		Step:         step,
		ChosenKey:    decision.Key(),
		Method:       decision.Method,
		LearningRate: decision.LearningRate,
		Candidates:   cands,
		NextPoints:   next,
	})
	for _, f := range failures {
		tr.RecordFailure(trace.FailureRecord{
			Step:      step,
			JobName:   f.Job.Name,
			PolicyKey: f.Job.Parameters.AcqfKey(),
			Reason:    f.Err.Error(),
		})
	}
}
