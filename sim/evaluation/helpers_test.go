package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"os"

	"github.com/campaign-sim/campaign-sim/sim"
)

// fakeExperiment proposes rng.Float64() at each step and scores points as
// x[0] + offset. Its optimum is always x = 1.
type fakeExperiment struct {
	state    *sim.Snapshot
	offset   float64
	draw     float64
	failKey  string
	panicKey string
}

func (f *fakeExperiment) Run(ctx context.Context, n int, params *sim.Parameters, opts sim.RunOptions) error {
	key := params.AcqfKey()
	if key == f.panicKey {
		panic("simulated panic")
	}
	if key == f.failKey {
		return errors.New("simulated failure")
	}
	start := len(f.state.History)
	f.state.Metadata.RuntimeProperties = append(f.state.Metadata.RuntimeProperties, sim.RuntimeProperty{
		Iteration: start, Steps: n, PolicyKey: key, ParametersHash: params.Hash(),
	})
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		f.state.History = append(f.state.History, sim.Step{
			Iteration:  start + i,
			PolicyKey:  key,
			OptimizeGP: sim.StepResult{NextPoints: []float64{opts.Rand.Float64()}},
		})
	}
	if opts.AdditionalExperiments {
		f.state.Metadata.Optima = &sim.StepResult{NextPoints: []float64{1}}
	}
	return nil
}

func (f *fakeExperiment) Save(path string) error {
	data, err := json.Marshal(f.state)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (f *fakeExperiment) Evaluate(x []float64) (float64, error) {
	return x[0] + f.offset, nil
}

func (f *fakeExperiment) Snapshot() (*sim.Snapshot, error) {
	return f.state.Clone(), nil
}

func loadFake(path string) (sim.Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap sim.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &fakeExperiment{state: &snap, offset: 1}, nil
}

type fakeDreams struct {
	failKey  string
	panicKey string
}

func (d fakeDreams) build(snap *sim.Snapshot, rng *rand.Rand) (sim.Experiment, error) {
	return &fakeExperiment{state: snap, offset: 1, draw: rng.Float64(), failKey: d.failKey, panicKey: d.panicKey}, nil
}

// failingSnapshot cannot be copied.
type failingSnapshot struct{ fakeExperiment }

func (failingSnapshot) Snapshot() (*sim.Snapshot, error) {
	return nil, errors.New("cannot copy")
}

// bareExperiment implements sim.Experiment but not sim.Snapshotter.
type bareExperiment struct{}

func (bareExperiment) Run(context.Context, int, *sim.Parameters, sim.RunOptions) error { return nil }
func (bareExperiment) Save(string) error                                              { return nil }
func (bareExperiment) Evaluate([]float64) (float64, error)                            { return 0, nil }

func baseExperiment() *fakeExperiment {
	return &fakeExperiment{
		state: &sim.Snapshot{
			Name:   "toy",
			Data:   sim.Dataset{X: [][]float64{{0.2}, {0.6}}, Y: []float64{1.2, 1.6}},
			Domain: sim.NewUnitDomain(1),
		},
		offset: 1,
	}
}

func testConfig(dir string) Config {
	return Config{
		CheckpointDir: dir,
		LookAhead:     3,
		Dreams:        4,
		Seed:          42,
		Dream:         fakeDreams{}.build,
		Load:          loadFake,
	}
}

func candidates() []sim.Parameters {
	return []sim.Parameters{
		sim.NewParameters(sim.MethodEI, nil),
		sim.NewParameters(sim.MethodUCB, map[string]float64{sim.HyperparameterBeta: 2}),
	}
}
