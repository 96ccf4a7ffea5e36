// Package trace provides decision-trace recording for campaign policy analysis.
// This package has no dependencies on sim/ or its sub-packages; it stores pure data types.
package trace

// CandidateScore captures one ranked candidate policy at a decision.
type CandidateScore struct {
	Key          string
	LearningRate float64
}

// DecisionRecord captures the policy chosen at one real campaign step.
type DecisionRecord struct {
	Step         int
	ChosenKey    string
	Method       string
	LearningRate float64
	Candidates   []CandidateScore // ranked best first (truncated to TopK when set)
	Margin       float64          // runner-up rate - chosen rate; 0 with a single candidate
	NextPoints   []float64
}

// FailureRecord captures a simulation job that failed while deciding a step.
type FailureRecord struct {
	Step      int
	JobName   string
	PolicyKey string
	Reason    string
}
