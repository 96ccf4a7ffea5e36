package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures every per-step policy decision.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
	TopK  int // ranked candidates kept per decision; 0 keeps all
}

// Enabled reports whether records should be collected.
func (c TraceConfig) Enabled() bool {
	return c.Level == TraceLevelDecisions
}

// CampaignTrace collects decision records during one real campaign.
type CampaignTrace struct {
	Config    TraceConfig
	Decisions []DecisionRecord
	Failures  []FailureRecord
}

// NewCampaignTrace creates a CampaignTrace ready for recording.
func NewCampaignTrace(config TraceConfig) *CampaignTrace {
	return &CampaignTrace{
		Config:    config,
		Decisions: make([]DecisionRecord, 0),
		Failures:  make([]FailureRecord, 0),
	}
}

// RecordDecision appends a decision record, computing its margin and
// truncating the candidate list to TopK.
func (ct *CampaignTrace) RecordDecision(record DecisionRecord) {
	if len(record.Candidates) > 1 {
		record.Margin = record.Candidates[1].LearningRate - record.Candidates[0].LearningRate
	}
	if k := ct.Config.TopK; k > 0 && len(record.Candidates) > k {
		record.Candidates = record.Candidates[:k]
	}
	record.Candidates = append([]CandidateScore(nil), record.Candidates...)
	record.NextPoints = append([]float64(nil), record.NextPoints...)
	ct.Decisions = append(ct.Decisions, record)
}

// RecordFailure appends a failed-job record.
func (ct *CampaignTrace) RecordFailure(record FailureRecord) {
	ct.Failures = append(ct.Failures, record)
}
