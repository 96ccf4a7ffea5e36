package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/campaign-sim/campaign-sim/sim/campaign"
	"github.com/campaign-sim/campaign-sim/sim/store"
)

// version is set at build time with -ldflags "-X .../cmd.version=...".
var version = "dev"

var (
	configPath string // Campaign YAML file
	logLevel   string // Log verbosity level
	seed       int64  // Overrides the config seed when set
	outputDir  string // Overrides paths.output_dir when set
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:     "campaign-sim",
	Short:   "Simulated Bayesian-optimization campaigns with dynamic policy selection",
	Version: version,
}

// runCmd executes every campaign described by the config file
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the campaigns described by a config file",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel(logLevel)

		cfg, err := loadCLIConfig(cmd)
		if err != nil {
			logrus.Fatalf("unable to load config: %v", err)
		}

		st, err := openStore(cmd.Context(), cfg.Store)
		if err != nil {
			logrus.Fatalf("unable to open store: %v", err)
		}
		defer func() {
			if err := store.CloseIfSupported(st); err != nil {
				logrus.Warnf("closing store: %v", err)
			}
		}()

		runner, err := campaign.NewRunner(cfg, st)
		if err != nil {
			logrus.Fatalf("invalid campaign: %v", err)
		}
		results, err := runner.Run(cmd.Context())
		if err != nil {
			logrus.Fatalf("campaign failed: %v", err)
		}
		if err := printResults(os.Stdout, results); err != nil {
			logrus.Fatalf("writing results: %v", err)
		}
		logrus.Info("Campaign complete.")
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func setLogLevel(name string) {
	level, err := logrus.ParseLevel(name)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", name)
	}
	logrus.SetLevel(level)
	logrus.Infof("Running campaign-sim version %s", version)
}

// loadCLIConfig reads --config and applies flag overrides. Flags win over
// both the file and the environment, but only when explicitly set.
func loadCLIConfig(cmd *cobra.Command) (campaign.Config, error) {
	if configPath == "" {
		return campaign.Config{}, fmt.Errorf("--config is required")
	}
	cfg, err := campaign.LoadConfig(configPath)
	if err != nil {
		return campaign.Config{}, err
	}
	applyFlagOverrides(cmd, &cfg)
	return cfg, cfg.Validate()
}

func applyFlagOverrides(cmd *cobra.Command, cfg *campaign.Config) {
	if cmd.Flags().Changed("seed") {
		logrus.Infof("CLI --seed %d overrides config seed %d", seed, cfg.Seed)
		cfg.Seed = seed
	}
	if cmd.Flags().Changed("output-dir") {
		cfg.Paths.OutputDir = outputDir
	}
}

func openStore(ctx context.Context, sc campaign.StoreConfig) (store.Store, error) {
	st, err := store.NewStore(sc.Backend, sc.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Init(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

type resultSummary struct {
	CampaignID       string   `json:"campaign_id"`
	Mode             string   `json:"mode"`
	Experiment       string   `json:"experiment"`
	Policy           string   `json:"policy,omitempty"`
	Seed             int64    `json:"seed"`
	Output           string   `json:"output"`
	Policies         []string `json:"policies,omitempty"`
	PolicySwitches   int      `json:"policy_switches,omitempty"`
	FailedJobs       int      `json:"failed_jobs,omitempty"`
	WallTimeSeconds  float64  `json:"wall_time_s"`
	MeanLearningRate *float64 `json:"mean_learning_rate,omitempty"`
}

// printResults writes one JSON line per campaign.
func printResults(w io.Writer, results []*campaign.Result) error {
	enc := json.NewEncoder(w)
	for _, r := range results {
		s := resultSummary{
			CampaignID:      r.CampaignID,
			Mode:            r.Mode,
			Experiment:      r.Experiment,
			Policy:          r.Policy,
			Seed:            r.Seed,
			Output:          r.OutputPath,
			WallTimeSeconds: r.WallTime.Seconds(),
		}
		for _, d := range r.Decisions {
			s.Policies = append(s.Policies, d.Key())
			s.FailedJobs += d.FailedJobs
		}
		if r.Summary != nil {
			s.PolicySwitches = r.Summary.PolicySwitches
			if r.Summary.TotalDecisions > 0 {
				mean := r.Summary.MeanLearningRate
				s.MeanLearningRate = &mean
			}
		}
		if err := enc.Encode(s); err != nil {
			return err
		}
	}
	return nil
}

// init sets up CLI flags and subcommands
func init() {
	for _, c := range []*cobra.Command{runCmd, evaluateCmd} {
		c.Flags().StringVar(&configPath, "config", "", "Campaign YAML config")
		c.Flags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
		c.Flags().Int64Var(&seed, "seed", 0, "Override the config seed")
	}
	runCmd.Flags().StringVar(&outputDir, "output-dir", "", "Override paths.output_dir")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(evaluateCmd)
}
