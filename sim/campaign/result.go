package campaign

import (
	"time"

	"github.com/campaign-sim/campaign-sim/sim/store"
	"github.com/campaign-sim/campaign-sim/sim/trace"
)

// Result bundles the outputs of one real campaign (one replica, or one
// policy x replica in single-policy mode).
type Result struct {
	CampaignID string
	Mode       string
	Experiment string
	Policy     string // fixed policy name; empty for dynamic runs
	Seed       int64
	OutputPath string

	Decisions []store.Decision     // one per real step; nil for single-policy runs
	Trace     *trace.CampaignTrace // nil if trace level is "none"
	Summary   *trace.TraceSummary  // nil if Trace is nil

	WallTime time.Duration
}

// NewResult constructs a Result, summarizing tr when present.
func NewResult(campaignID, mode, experimentName string, seed int64, outputPath string, decisions []store.Decision, tr *trace.CampaignTrace, wallTime time.Duration) *Result {
	r := &Result{
		CampaignID: campaignID,
		Mode:       mode,
		Experiment: experimentName,
		Seed:       seed,
		OutputPath: outputPath,
		Decisions:  decisions,
		Trace:      tr,
		WallTime:   wallTime,
	}
	if tr != nil {
		r.Summary = trace.Summarize(tr)
	}
	return r
}
