package evaluation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campaign-sim/campaign-sim/sim"
)

func TestNewEvaluator_RejectsInvalidInputs(t *testing.T) {
	valid := testConfig("")
	tests := []struct {
		name   string
		exp    sim.Experiment
		mutate func(*Config)
	}{
		{name: "nil experiment", exp: nil, mutate: func(*Config) {}},
		{name: "not snapshottable", exp: bareExperiment{}, mutate: func(*Config) {}},
		{name: "look-ahead one", exp: baseExperiment(), mutate: func(c *Config) { c.LookAhead = 1 }},
		{name: "zero dreams", exp: baseExperiment(), mutate: func(c *Config) { c.Dreams = 0 }},
		{name: "no dream builder", exp: baseExperiment(), mutate: func(c *Config) { c.Dream = nil }},
		{name: "checkpoints without loader", exp: baseExperiment(), mutate: func(c *Config) {
			c.CheckpointDir = t.TempDir()
			c.Load = nil
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			_, err := NewEvaluator(tc.exp, cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewEvaluator_CreatesCheckpointDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	_, err := NewEvaluator(baseExperiment(), testConfig(dir))
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestBuildJobs_OneJobPerPolicyAndDream(t *testing.T) {
	// GIVEN an evaluator with 4 dreams and 2 candidates
	dir := t.TempDir()
	ev, err := NewEvaluator(baseExperiment(), testConfig(dir))
	require.NoError(t, err)

	// WHEN jobs are built
	jobs, err := ev.BuildJobs(candidates())
	require.NoError(t, err)

	// THEN there is one job per (policy, dream), seeded base+dream
	require.Len(t, jobs, 8)
	names := make(map[string]bool)
	for i, job := range jobs {
		assert.Equal(t, i%4, job.DreamIndex)
		assert.Equal(t, int64(42+job.DreamIndex), job.Seed)
		assert.Equal(t, 3, job.LookAhead)
		require.NotNil(t, job.Parameters.OptimizeGP, "default optimizer attached before hashing")
		assert.Equal(t, JobName(job.Parameters, job.Seed), job.Name)
		assert.Equal(t, filepath.Join(dir, job.Name+".json"), job.CheckpointPath)
		names[job.Name] = true
	}
	assert.Len(t, names, 8)
	assert.Equal(t, int64(8), ev.Stats().Built)
}

func TestBuildJobs_NameIgnoresOptimizerOmission(t *testing.T) {
	ev, err := NewEvaluator(baseExperiment(), testConfig(""))
	require.NoError(t, err)

	bare := sim.NewParameters(sim.MethodEI, nil)
	explicit := bare.WithDefaultOptimizer()
	a, err := ev.BuildJobs([]sim.Parameters{bare})
	require.NoError(t, err)

	ev2, err := NewEvaluator(baseExperiment(), testConfig(""))
	require.NoError(t, err)
	b, err := ev2.BuildJobs([]sim.Parameters{explicit})
	require.NoError(t, err)

	assert.Equal(t, a[0].Name, b[0].Name)
}

func TestBuildJobs_SameDreamIndexSharesFuture(t *testing.T) {
	ev, err := NewEvaluator(baseExperiment(), testConfig(""))
	require.NoError(t, err)
	jobs, err := ev.BuildJobs(candidates())
	require.NoError(t, err)

	draw := func(j Job) float64 { return j.Experiment.(*fakeExperiment).draw }
	for d := 0; d < 4; d++ {
		assert.Equal(t, draw(jobs[d]), draw(jobs[4+d]), "dream %d", d)
	}
	assert.NotEqual(t, draw(jobs[0]), draw(jobs[1]))
}

func TestBuildJobs_DreamsOwnTheirData(t *testing.T) {
	base := baseExperiment()
	ev, err := NewEvaluator(base, testConfig(""))
	require.NoError(t, err)
	jobs, err := ev.BuildJobs(candidates())
	require.NoError(t, err)

	jobs[0].Experiment.(*fakeExperiment).state.Data.X[0][0] = 99
	assert.Equal(t, 0.2, base.state.Data.X[0][0])
	assert.Equal(t, 0.2, jobs[1].Experiment.(*fakeExperiment).state.Data.X[0][0])
}

func TestBuildJobs_SnapshotFailureAbortsBuild(t *testing.T) {
	exp := &failingSnapshot{fakeExperiment: *baseExperiment()}
	ev, err := NewEvaluator(exp, testConfig(""))
	require.NoError(t, err)

	jobs, err := ev.BuildJobs(candidates())
	assert.Error(t, err)
	assert.Nil(t, jobs)
}

func TestBuildJobs_InvalidCandidateFailsBeforeWork(t *testing.T) {
	ev, err := NewEvaluator(baseExperiment(), testConfig(""))
	require.NoError(t, err)

	bad := sim.NewParameters(sim.MethodUCB, nil)
	_, err = ev.BuildJobs([]sim.Parameters{sim.NewParameters(sim.MethodEI, nil), bad})
	assert.Error(t, err)
	assert.Zero(t, ev.Stats().Built)

	_, err = ev.BuildJobs(nil)
	assert.Error(t, err)
}

func TestBuildJobs_DuplicateCandidatesCollapse(t *testing.T) {
	ev, err := NewEvaluator(baseExperiment(), testConfig(""))
	require.NoError(t, err)
	ei := sim.NewParameters(sim.MethodEI, nil)
	named := ei
	named.Name = "baseline"

	jobs, err := ev.BuildJobs([]sim.Parameters{ei, named})
	require.NoError(t, err)
	assert.Len(t, jobs, 4)
}

func TestNewJob_Validation(t *testing.T) {
	p := sim.NewParameters(sim.MethodEI, nil).WithDefaultOptimizer()
	exp := baseExperiment()

	job, err := NewJob(7, 0, exp, &p, 3, "")
	require.NoError(t, err)
	assert.Equal(t, p.Hash()+"-seed-7", job.Name)
	assert.Empty(t, job.CheckpointPath)

	noOpt := sim.NewParameters(sim.MethodEI, nil)
	_, err = NewJob(7, 0, exp, &noOpt, 3, "")
	assert.Error(t, err)
	_, err = NewJob(7, -1, exp, &p, 3, "")
	assert.Error(t, err)
	_, err = NewJob(7, 0, nil, &p, 3, "")
	assert.Error(t, err)
	_, err = NewJob(7, 0, exp, nil, 3, "")
	assert.Error(t, err)
	_, err = NewJob(7, 0, exp, &p, 1, "")
	assert.ErrorIs(t, err, ErrTooFewSteps)
}

func TestRun_WritesOneCheckpointPerJob(t *testing.T) {
	// GIVEN a checkpointing evaluator
	dir := t.TempDir()
	ev, err := NewEvaluator(baseExperiment(), testConfig(dir))
	require.NoError(t, err)

	// WHEN the candidates are run on two workers
	results, err := ev.Run(context.Background(), candidates(), 2)
	require.NoError(t, err)

	// THEN every job computed, checkpointed and joined the history
	require.Len(t, results, 8)
	for _, r := range results {
		require.NoError(t, r.Err)
		assert.False(t, r.Loaded)
		assert.FileExists(t, r.Job.CheckpointPath)
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 8)
	assert.Len(t, ev.History(), 8)
	assert.Equal(t, RunStats{Built: 8, Computed: 8}, ev.Stats())
}

func TestRun_SecondCallBuildsNothing(t *testing.T) {
	ev, err := NewEvaluator(baseExperiment(), testConfig(""))
	require.NoError(t, err)
	_, err = ev.Run(context.Background(), candidates(), 4)
	require.NoError(t, err)

	jobs, err := ev.BuildJobs(candidates())
	require.NoError(t, err)
	assert.Empty(t, jobs)

	results, err := ev.Run(context.Background(), candidates(), 4)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Len(t, ev.History(), 8)
	assert.Equal(t, int64(8), ev.Stats().Computed)
}

func TestRun_ResumesFromCheckpoints(t *testing.T) {
	// GIVEN a checkpoint directory populated by a previous evaluator
	dir := t.TempDir()
	first, err := NewEvaluator(baseExperiment(), testConfig(dir))
	require.NoError(t, err)
	_, err = first.Run(context.Background(), candidates()[:1], 2)
	require.NoError(t, err)

	// WHEN a fresh evaluator runs a superset of the candidates
	second, err := NewEvaluator(baseExperiment(), testConfig(dir))
	require.NoError(t, err)
	_, err = second.Run(context.Background(), candidates(), 2)
	require.NoError(t, err)

	// THEN the checkpointed jobs load instead of recomputing
	stats := second.Stats()
	assert.Equal(t, int64(4), stats.Loaded)
	assert.Equal(t, int64(4), stats.Computed)

	// AND the loaded replicates match what the first evaluator computed
	want, err := first.ProcessResults()
	require.NoError(t, err)
	got, err := second.ProcessResults()
	require.NoError(t, err)
	assert.Equal(t, want[sim.MethodEI].Costs, got[sim.MethodEI].Costs)
}

func TestRun_FullyCheckpointedRunComputesNothing(t *testing.T) {
	dir := t.TempDir()
	first, err := NewEvaluator(baseExperiment(), testConfig(dir))
	require.NoError(t, err)
	_, err = first.Run(context.Background(), candidates(), 2)
	require.NoError(t, err)

	second, err := NewEvaluator(baseExperiment(), testConfig(dir))
	require.NoError(t, err)
	_, err = second.Run(context.Background(), candidates(), 3)
	require.NoError(t, err)

	assert.Zero(t, second.Stats().Computed)
	assert.Equal(t, int64(8), second.Stats().Loaded)
}

func TestRun_CorruptCheckpoint(t *testing.T) {
	corrupt := func(t *testing.T, dir string) {
		t.Helper()
		ev, err := NewEvaluator(baseExperiment(), testConfig(dir))
		require.NoError(t, err)
		jobs, err := ev.BuildJobs(candidates()[:1])
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(jobs[0].CheckpointPath, []byte("{truncated"), 0o644))
	}

	t.Run("lenient recomputes", func(t *testing.T) {
		dir := t.TempDir()
		corrupt(t, dir)
		ev, err := NewEvaluator(baseExperiment(), testConfig(dir))
		require.NoError(t, err)
		_, err = ev.Run(context.Background(), candidates()[:1], 1)
		require.NoError(t, err)
		assert.Equal(t, int64(4), ev.Stats().Computed)
		assert.Empty(t, ev.Failures())
	})

	t.Run("strict fails the job", func(t *testing.T) {
		dir := t.TempDir()
		corrupt(t, dir)
		cfg := testConfig(dir)
		cfg.StrictCheckpoints = true
		ev, err := NewEvaluator(baseExperiment(), cfg)
		require.NoError(t, err)
		_, err = ev.Run(context.Background(), candidates()[:1], 1)
		require.NoError(t, err)
		assert.Len(t, ev.Failures(), 1)
		assert.Len(t, ev.History(), 3)
	})
}

func TestRun_IsolatesFailingJobs(t *testing.T) {
	// GIVEN dreams that fail under UCB
	cfg := testConfig("")
	cfg.Dream = fakeDreams{failKey: "UCB-2.0"}.build
	ev, err := NewEvaluator(baseExperiment(), cfg)
	require.NoError(t, err)

	// WHEN both candidates run
	results, err := ev.Run(context.Background(), candidates(), 3)

	// THEN the batch completes, failures are recorded and EI still wins
	require.NoError(t, err)
	require.Len(t, results, 8)
	assert.Len(t, ev.Failures(), 4)
	assert.Len(t, ev.History(), 4)
	assert.Equal(t, int64(4), ev.Stats().Failed)

	decision, ranked, err := ev.BestPolicy()
	require.NoError(t, err)
	assert.Equal(t, sim.MethodEI, decision.Method)
	assert.Len(t, ranked, 1)
}

func TestRun_RecoversPanics(t *testing.T) {
	cfg := testConfig("")
	cfg.Dream = fakeDreams{panicKey: sim.MethodEI}.build
	ev, err := NewEvaluator(baseExperiment(), cfg)
	require.NoError(t, err)

	_, err = ev.Run(context.Background(), candidates(), 2)
	require.NoError(t, err)
	failures := ev.Failures()
	require.Len(t, failures, 4)
	assert.Contains(t, failures[0].Err.Error(), "panicked")
}

func TestRun_FailFastReturnsFirstError(t *testing.T) {
	cfg := testConfig("")
	cfg.FailFast = true
	cfg.Dream = fakeDreams{failKey: sim.MethodEI}.build
	ev, err := NewEvaluator(baseExperiment(), cfg)
	require.NoError(t, err)

	_, err = ev.Run(context.Background(), candidates(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "simulated failure")
	assert.NotEmpty(t, ev.Failures())
}

func TestRun_RejectsZeroWorkers(t *testing.T) {
	ev, err := NewEvaluator(baseExperiment(), testConfig(""))
	require.NoError(t, err)
	_, err = ev.Run(context.Background(), candidates(), 0)
	assert.Error(t, err)
}

func TestRun_SameSeedSameSimulations(t *testing.T) {
	// GIVEN two evaluators with identical inputs and different pool widths
	run := func(width int) map[string]*PolicyResult {
		ev, err := NewEvaluator(baseExperiment(), testConfig(""))
		require.NoError(t, err)
		_, err = ev.Run(context.Background(), candidates(), width)
		require.NoError(t, err)
		res, err := ev.ProcessResults()
		require.NoError(t, err)
		return res
	}

	// THEN the cost matrices are bit-identical
	a, b := run(1), run(8)
	for key := range a {
		assert.Equal(t, a[key].Costs, b[key].Costs, key)
		assert.Equal(t, a[key].LearningRate, b[key].LearningRate, key)
	}
}

func TestRun_JobRNGIsIndependentOfPolicy(t *testing.T) {
	// Jobs sharing a dream index draw the same proposals under different policies.
	ev, err := NewEvaluator(baseExperiment(), testConfig(""))
	require.NoError(t, err)
	results, err := ev.Run(context.Background(), candidates(), 2)
	require.NoError(t, err)

	points := func(r JobResult) []float64 {
		snap, _ := r.Experiment.(sim.Snapshotter).Snapshot()
		out := make([]float64, len(snap.History))
		for i, st := range snap.History {
			out[i] = st.OptimizeGP.NextPoints[0]
		}
		return out
	}
	assert.Equal(t, points(results[0]), points(results[4]))
}
