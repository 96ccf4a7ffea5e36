package cmd

import (
	"encoding/json"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/campaign-sim/campaign-sim/sim/campaign"
)

// evaluateCmd runs one policy evaluation from the initial design and
// prints the decision without taking a real step.
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Rank the candidate policies once from the initial design",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel(logLevel)

		cfg, err := loadCLIConfig(cmd)
		if err != nil {
			logrus.Fatalf("unable to load config: %v", err)
		}
		runner, err := campaign.NewRunner(cfg, nil)
		if err != nil {
			logrus.Fatalf("invalid campaign: %v", err)
		}
		sel, err := runner.Evaluate(cmd.Context())
		if err != nil {
			logrus.Fatalf("evaluation failed: %v", err)
		}
		if err := printSelection(os.Stdout, sel); err != nil {
			logrus.Fatalf("writing decision: %v", err)
		}
	},
}

type rankingEntry struct {
	Key          string  `json:"key"`
	LearningRate float64 `json:"learning_rate"`
}

type selectionOutput struct {
	Policy       string             `json:"policy"`
	Method       string             `json:"method"`
	Kwargs       map[string]float64 `json:"kwargs,omitempty"`
	LearningRate float64            `json:"learning_rate"`
	Ranking      []rankingEntry     `json:"ranking"`
	FailedJobs   int                `json:"failed_jobs"`
	Computed     int64              `json:"computed"`
	Loaded       int64              `json:"loaded"`
}

func printSelection(w io.Writer, sel campaign.Selection) error {
	out := selectionOutput{
		Policy:       sel.Decision.Key(),
		Method:       sel.Decision.Method,
		Kwargs:       sel.Decision.Kwargs,
		LearningRate: sel.Decision.LearningRate,
		FailedJobs:   len(sel.Failures),
		Computed:     sel.Stats.Computed,
		Loaded:       sel.Stats.Loaded,
	}
	for _, rp := range sel.Ranking {
		out.Ranking = append(out.Ranking, rankingEntry{Key: rp.Key, LearningRate: rp.LearningRate})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
