package trace

import "math"

// TraceSummary aggregates statistics from a CampaignTrace.
type TraceSummary struct {
	TotalDecisions     int
	FailedJobs         int
	PolicySwitches     int // consecutive decisions with different chosen keys
	MeanLearningRate   float64
	BestLearningRate   float64
	MeanMargin         float64
	UniquePolicies     int
	PolicyDistribution map[string]int // policy key → count of steps it was chosen
	MethodDistribution map[string]int // method → count of steps it was chosen
}

// Summarize computes aggregate statistics from a CampaignTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(ct *CampaignTrace) *TraceSummary {
	summary := &TraceSummary{
		PolicyDistribution: make(map[string]int),
		MethodDistribution: make(map[string]int),
	}
	if ct == nil {
		return summary
	}

	summary.FailedJobs = len(ct.Failures)
	summary.TotalDecisions = len(ct.Decisions)
	if summary.TotalDecisions == 0 {
		return summary
	}

	totalRate, totalMargin := 0.0, 0.0
	summary.BestLearningRate = math.Inf(1)
	for i, d := range ct.Decisions {
		summary.PolicyDistribution[d.ChosenKey]++
		summary.MethodDistribution[d.Method]++
		totalRate += d.LearningRate
		totalMargin += d.Margin
		if d.LearningRate < summary.BestLearningRate {
			summary.BestLearningRate = d.LearningRate
		}
		if i > 0 && ct.Decisions[i-1].ChosenKey != d.ChosenKey {
			summary.PolicySwitches++
		}
	}
	n := float64(summary.TotalDecisions)
	summary.MeanLearningRate = totalRate / n
	summary.MeanMargin = totalMargin / n
	summary.UniquePolicies = len(summary.PolicyDistribution)

	return summary
}
