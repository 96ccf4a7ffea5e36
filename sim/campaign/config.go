// Package campaign runs real campaigns: either a fixed policy per
// campaign, or a dynamic loop that re-evaluates candidate policies with
// simulated look-ahead before every real step.
package campaign

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/campaign-sim/campaign-sim/sim"
	"github.com/campaign-sim/campaign-sim/sim/evaluation"
	"github.com/campaign-sim/campaign-sim/sim/experiment"
	"github.com/campaign-sim/campaign-sim/sim/store"
	"github.com/campaign-sim/campaign-sim/sim/trace"
)

const (
	ModeSingle  = "single"
	ModeDynamic = "dynamic"
)

// Config is the top-level campaign configuration file.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type Config struct {
	Name                  string `yaml:"name"`
	Seed                  int64  `yaml:"seed"`
	Replicas              int    `yaml:"replicas"`
	N                     int    `yaml:"n"`
	NJobs                 int    `yaml:"n_jobs"`
	UseFullHashes         bool   `yaml:"use_full_hashes"`
	AdditionalExperiments bool   `yaml:"additional_experiments"`
	Progress              bool   `yaml:"pbar"`

	Paths      PathsConfig       `yaml:"paths"`
	Experiment experiment.Config `yaml:"experiment"`

	// CampaignParameters are the policies of a single-policy run. In a
	// dynamic run the first entry is the base the decided policy is applied
	// to (its optimizer settings carry over).
	CampaignParameters []sim.Parameters `yaml:"campaign_parameters"`

	// PolicyPerformanceTuner selects the dynamic mode when present.
	PolicyPerformanceTuner *TunerConfig     `yaml:"policy_performance_tuner,omitempty"`
	CandidateParameters    []sim.Parameters `yaml:"candidate_parameters,omitempty"`

	Store StoreConfig `yaml:"store"`
	Trace TraceConfig `yaml:"trace"`
}

// PathsConfig holds output locations.
type PathsConfig struct {
	OutputDir string `yaml:"output_dir"`
	// CheckpointDir enables per-step dream checkpoints in dynamic runs.
	CheckpointDir string `yaml:"checkpoint_dir,omitempty"`
}

// TunerConfig configures the policy evaluator used at every dynamic step.
type TunerConfig struct {
	LookAhead         int  `yaml:"look_ahead"`
	Dreams            int  `yaml:"dreams"`
	StrictCheckpoints bool `yaml:"strict_checkpoints,omitempty"`
	FailFast          bool `yaml:"fail_fast,omitempty"`
}

// StoreConfig selects the decision store backend.
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path,omitempty"`
}

// TraceConfig controls the in-memory decision trace.
type TraceConfig struct {
	Level string `yaml:"level"`
	TopK  int    `yaml:"top_k,omitempty"`
}

// envOverrides lists the settings that can be overridden from the
// environment. Unset variables leave the file values untouched.
type envOverrides struct {
	NJobs         int    `env:"CAMPAIGN_N_JOBS"`
	OutputDir     string `env:"CAMPAIGN_OUTPUT_DIR"`
	CheckpointDir string `env:"CAMPAIGN_CHECKPOINT_DIR"`
	StorePath     string `env:"CAMPAIGN_STORE_PATH"`
}

// DefaultConfig returns the settings used for fields a file omits.
func DefaultConfig() Config {
	return Config{
		Replicas: 1,
		N:        1,
		NJobs:    1,
		Paths:    PathsConfig{OutputDir: "output"},
		Store:    StoreConfig{Backend: store.KindMemory},
		Trace:    TraceConfig{Level: string(trace.TraceLevelDecisions)},
	}
}

// LoadConfig reads path strictly, applies environment overrides and
// validates the result.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading campaign config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("campaign config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes YAML over DefaultConfig, rejecting unknown keys,
// then applies environment overrides and validates.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parsing: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from CAMPAIGN_* environment variables.
func (c *Config) ApplyEnv() error {
	o := envOverrides{
		NJobs:         c.NJobs,
		OutputDir:     c.Paths.OutputDir,
		CheckpointDir: c.Paths.CheckpointDir,
		StorePath:     c.Store.Path,
	}
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	c.NJobs = o.NJobs
	c.Paths.OutputDir = o.OutputDir
	c.Paths.CheckpointDir = o.CheckpointDir
	c.Store.Path = o.StorePath
	return nil
}

// Mode reports whether the config describes a dynamic or single-policy run.
func (c Config) Mode() string {
	if c.PolicyPerformanceTuner != nil {
		return ModeDynamic
	}
	return ModeSingle
}

// Validate checks the configuration before any work is dispatched.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name must be set")
	}
	if c.Replicas < 1 {
		return fmt.Errorf("replicas must be >= 1, got %d", c.Replicas)
	}
	if c.N < 1 {
		return fmt.Errorf("n must be >= 1, got %d", c.N)
	}
	if c.NJobs < 1 {
		return fmt.Errorf("n_jobs must be >= 1, got %d", c.NJobs)
	}
	if c.Paths.OutputDir == "" {
		return fmt.Errorf("paths.output_dir must be set")
	}
	if err := c.Experiment.Validate(); err != nil {
		return err
	}
	for i, p := range c.CampaignParameters {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("campaign_parameters[%d]: %w", i, err)
		}
	}
	switch c.Store.Backend {
	case "", store.KindMemory:
	case store.KindSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q; valid: memory, sqlite", c.Store.Backend)
	}
	if !trace.IsValidTraceLevel(c.Trace.Level) {
		return fmt.Errorf("unknown trace.level %q; valid: none, decisions", c.Trace.Level)
	}
	if c.Trace.TopK < 0 {
		return fmt.Errorf("trace.top_k must be non-negative, got %d", c.Trace.TopK)
	}

	if c.Mode() == ModeSingle {
		if len(c.CampaignParameters) == 0 {
			return fmt.Errorf("campaign_parameters must list at least one policy")
		}
		if len(c.CandidateParameters) > 0 {
			return fmt.Errorf("candidate_parameters requires policy_performance_tuner")
		}
		return nil
	}

	t := c.PolicyPerformanceTuner
	if t.LookAhead < evaluation.MinLookAhead {
		return fmt.Errorf("policy_performance_tuner.look_ahead must be >= %d, got %d", evaluation.MinLookAhead, t.LookAhead)
	}
	if t.Dreams < 1 {
		return fmt.Errorf("policy_performance_tuner.dreams must be >= 1, got %d", t.Dreams)
	}
	if len(c.CandidateParameters) == 0 {
		return fmt.Errorf("candidate_parameters must list at least one policy")
	}
	for i, p := range c.CandidateParameters {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("candidate_parameters[%d]: %w", i, err)
		}
	}
	return nil
}

// BaseParameters returns the parameters decided policies are applied to.
func (c Config) BaseParameters() sim.Parameters {
	if len(c.CampaignParameters) == 0 {
		return sim.NewParameters(sim.MethodEI, nil).WithDefaultOptimizer()
	}
	return c.CampaignParameters[0].WithDefaultOptimizer()
}

// TraceSettings converts the trace section.
func (c Config) TraceSettings() trace.TraceConfig {
	return trace.TraceConfig{Level: trace.TraceLevel(c.Trace.Level), TopK: c.Trace.TopK}
}
