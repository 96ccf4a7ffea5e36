package experiment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/campaign-sim/campaign-sim/sim"
	"github.com/campaign-sim/campaign-sim/sim/surrogate"
)

// checkpointVersion is bumped whenever the on-disk layout changes.
const checkpointVersion = 1

// checkpoint is the on-disk layout. Field order is the key order in the
// written JSON, so repeated saves of equal experiments are byte-identical.
type checkpoint struct {
	Version  int           `json:"version"`
	Snapshot *sim.Snapshot `json:"snapshot"`
	Truth    truthSpec     `json:"truth"`
	NoiseStd float64       `json:"noise_std"`
}

// Save implements sim.Experiment. The file is written to a temp file in the
// target directory and renamed into place.
func (e *Experiment) Save(path string) error {
	payload, err := json.MarshalIndent(checkpoint{
		Version:  checkpointVersion,
		Snapshot: e.state,
		Truth:    e.truth.spec(),
		NoiseStd: e.noiseStd,
	}, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding experiment %s: %w", e.state.Name, err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("saving experiment: %w", err)
	}
	if _, err := tmp.Write(append(payload, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("saving experiment: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("saving experiment: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("saving experiment: %w", err)
	}
	return nil
}

// Load reads an experiment written by Save.
func Load(path string) (*Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading experiment: %w", err)
	}
	var ck checkpoint
	if err := json.Unmarshal(data, &ck); err != nil {
		return nil, fmt.Errorf("parsing experiment %s: %w", path, err)
	}
	if ck.Version != checkpointVersion {
		return nil, fmt.Errorf("experiment %s: unsupported version %d", path, ck.Version)
	}
	if ck.Snapshot == nil {
		return nil, fmt.Errorf("experiment %s: missing snapshot", path)
	}
	if err := ck.Snapshot.Domain.Validate(); err != nil {
		return nil, fmt.Errorf("experiment %s: %w", path, err)
	}
	if len(ck.Snapshot.Data.X) != len(ck.Snapshot.Data.Y) {
		return nil, fmt.Errorf("experiment %s: %d inputs but %d outputs", path, len(ck.Snapshot.Data.X), len(ck.Snapshot.Data.Y))
	}
	tr, err := ck.Truth.build()
	if err != nil {
		return nil, fmt.Errorf("experiment %s: %w", path, err)
	}
	return &Experiment{
		state:     ck.Snapshot,
		truth:     tr,
		noiseStd:  ck.NoiseStd,
		surrogate: surrogate.DefaultConfig(),
	}, nil
}

// LoadExperiment adapts Load to the evaluator's checkpoint loader signature.
func LoadExperiment(path string) (sim.Experiment, error) {
	e, err := Load(path)
	if err != nil {
		return nil, err
	}
	return e, nil
}
