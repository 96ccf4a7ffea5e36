package store

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	campaigns   map[string]Campaign
	decisions   map[string]map[int]Decision
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.campaigns = make(map[string]Campaign)
	s.decisions = make(map[string]map[int]Decision)
	return nil
}

func (s *MemoryStore) SaveCampaign(_ context.Context, campaign Campaign) error {
	if campaign.ID == "" {
		return errors.New("campaign id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errors.New("memory store is not initialized")
	}

	s.campaigns[campaign.ID] = campaign
	return nil
}

func (s *MemoryStore) GetCampaign(_ context.Context, id string) (Campaign, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	campaign, ok := s.campaigns[id]
	return campaign, ok, nil
}

func (s *MemoryStore) SaveDecision(_ context.Context, decision Decision) error {
	if err := validateDecision(decision); err != nil {
		return err
	}
	// Round-trip through the codec so callers cannot mutate stored slices.
	payload, err := encodeDecision(decision)
	if err != nil {
		return err
	}
	stored, err := decodeDecision(payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errors.New("memory store is not initialized")
	}
	steps, ok := s.decisions[decision.CampaignID]
	if !ok {
		steps = make(map[int]Decision)
		s.decisions[decision.CampaignID] = steps
	}
	steps[decision.Step] = stored
	return nil
}

func (s *MemoryStore) ListDecisions(_ context.Context, campaignID string) ([]Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	steps := s.decisions[campaignID]
	out := make([]Decision, 0, len(steps))
	for _, d := range steps {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out, nil
}
