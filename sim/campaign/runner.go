package campaign

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/campaign-sim/campaign-sim/sim"
	"github.com/campaign-sim/campaign-sim/sim/experiment"
	"github.com/campaign-sim/campaign-sim/sim/store"
)

// Runner executes campaigns described by a Config and records every
// decision in a Store.
type Runner struct {
	cfg   Config
	store store.Store
	now   func() time.Time
}

// NewRunner validates cfg. st must already be initialized; nil uses a
// fresh in-memory store.
func NewRunner(cfg Config, st store.Store) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if st == nil {
		mem := store.NewMemoryStore()
		if err := mem.Init(context.Background()); err != nil {
			return nil, err
		}
		st = mem
	}
	return &Runner{cfg: cfg, store: st, now: time.Now}, nil
}

// Store returns the decision store the runner writes to.
func (r *Runner) Store() store.Store { return r.store }

// Run dispatches on the config mode.
func (r *Runner) Run(ctx context.Context) ([]*Result, error) {
	if r.cfg.Mode() == ModeDynamic {
		return r.RunDynamic(ctx)
	}
	return r.RunSingle(ctx)
}

// newReal builds the real experiment for seed and the generator that
// drives its real steps.
func (r *Runner) newReal(seed int64) (*experiment.Experiment, *sim.PartitionedRNG, error) {
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(seed))
	exp, err := experiment.New(r.cfg.Experiment, rng.ForSubsystem(sim.SubsystemInitial))
	if err != nil {
		return nil, nil, fmt.Errorf("seed %d: %w", seed, err)
	}
	return exp, rng, nil
}

func (r *Runner) startCampaign(ctx context.Context, mode string, seed int64) (store.Campaign, error) {
	c := store.Campaign{
		ID:         store.NewCampaignID(),
		Name:       r.cfg.Name,
		Experiment: r.cfg.Experiment.DisplayName(),
		Seed:       seed,
		Mode:       mode,
		StartedAt:  r.now(),
	}
	if err := r.store.SaveCampaign(ctx, c); err != nil {
		return store.Campaign{}, fmt.Errorf("saving campaign: %w", err)
	}
	return c, nil
}

// dynamicOutputPath is <output_dir>/<experiment>/<seed>.json.
func (r *Runner) dynamicOutputPath(experimentName string, seed int64) string {
	return filepath.Join(r.cfg.Paths.OutputDir, experimentName, strconv.FormatInt(seed, 10)+".json")
}

// singleOutputPath is <output_dir>/<experiment>/<policy>[-<hash>]/<seed>.json.
func (r *Runner) singleOutputPath(experimentName string, params sim.Parameters, seed int64) string {
	name := params.DisplayName()
	if r.cfg.UseFullHashes {
		name += "-" + params.Hash()
	}
	return filepath.Join(r.cfg.Paths.OutputDir, experimentName, name, strconv.FormatInt(seed, 10)+".json")
}

// stepCheckpointDir is <checkpoint_dir>/<experiment>/<seed>/step-<ii>, or
// empty when checkpoints are disabled.
func (r *Runner) stepCheckpointDir(experimentName string, seed int64, step int) string {
	if r.cfg.Paths.CheckpointDir == "" {
		return ""
	}
	return filepath.Join(r.cfg.Paths.CheckpointDir, experimentName, strconv.FormatInt(seed, 10), fmt.Sprintf("step-%d", step))
}

func logBanner(cfg Config, mode string) {
	logrus.Infof("campaign %q: mode=%s seed=%d replicas=%d n=%d n_jobs=%d", cfg.Name, mode, cfg.Seed, cfg.Replicas, cfg.N, cfg.NJobs)
}
