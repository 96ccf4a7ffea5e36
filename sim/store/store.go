// Package store persists campaign runs and the policy decision taken at
// every real step, so a campaign's choices can be inspected after the fact.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/campaign-sim/campaign-sim/sim"
)

// Campaign identifies one real campaign run.
type Campaign struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Experiment string    `json:"experiment"`
	Seed       int64     `json:"seed"`
	Mode       string    `json:"mode"`
	StartedAt  time.Time `json:"started_at"`
}

// PolicyScore is one entry of a decision's ranking.
type PolicyScore struct {
	Key          string  `json:"key"`
	LearningRate float64 `json:"learning_rate"`
}

// Decision is the policy chosen at one real step and what it produced.
type Decision struct {
	CampaignID   string             `json:"campaign_id"`
	Step         int                `json:"step"`
	Method       string             `json:"method"`
	Kwargs       map[string]float64 `json:"kwargs,omitempty"`
	LearningRate float64            `json:"learning_rate"`
	Ranking      []PolicyScore      `json:"ranking"`
	NextPoints   []float64          `json:"next_points"`
	FailedJobs   int                `json:"failed_jobs"`
	WallTime     time.Duration      `json:"wall_time"`
}

// Key is the policy key of the chosen policy.
func (d Decision) Key() string {
	if beta, ok := d.Kwargs[sim.HyperparameterBeta]; ok {
		return d.Method + "-" + sim.FormatHyperparameter(beta)
	}
	return d.Method
}

// Store persists campaigns and their decisions.
type Store interface {
	Init(ctx context.Context) error
	SaveCampaign(ctx context.Context, campaign Campaign) error
	GetCampaign(ctx context.Context, id string) (Campaign, bool, error)
	// SaveDecision upserts by (CampaignID, Step).
	SaveDecision(ctx context.Context, decision Decision) error
	// ListDecisions returns a campaign's decisions ordered by step.
	ListDecisions(ctx context.Context, campaignID string) ([]Decision, error)
}

// NewCampaignID returns a fresh random campaign identifier.
func NewCampaignID() string {
	return uuid.NewString()
}

func validateDecision(d Decision) error {
	if d.CampaignID == "" {
		return fmt.Errorf("decision: campaign id is required")
	}
	if d.Step < 0 {
		return fmt.Errorf("decision: negative step %d", d.Step)
	}
	if d.Method == "" {
		return fmt.Errorf("decision: method is required")
	}
	return nil
}

func encodeDecision(d Decision) ([]byte, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode decision %s/%d: %w", d.CampaignID, d.Step, err)
	}
	return payload, nil
}

func decodeDecision(payload []byte) (Decision, error) {
	var d Decision
	if err := json.Unmarshal(payload, &d); err != nil {
		return Decision{}, err
	}
	return d, nil
}
