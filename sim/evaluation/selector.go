package evaluation

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/campaign-sim/campaign-sim/sim"
)

// RankedPolicy is one entry of the ranking, best first.
type RankedPolicy struct {
	Key          string  `json:"key"`
	LearningRate float64 `json:"learning_rate"`
}

// PolicyDecision is the winning policy decoded from its key.
type PolicyDecision struct {
	Method       string             `json:"method"`
	Kwargs       map[string]float64 `json:"kwargs"`
	LearningRate float64            `json:"learning_rate"`
}

// Key re-encodes the decision as a policy key.
func (d PolicyDecision) Key() string {
	if beta, ok := d.Kwargs[sim.HyperparameterBeta]; ok {
		return d.Method + "-" + sim.FormatHyperparameter(beta)
	}
	return d.Method
}

// Rank orders the ranked results by learning rate, most negative first.
// Ties are broken by key so the order is total.
func Rank(results map[string]*PolicyResult) []RankedPolicy {
	ranked := make([]RankedPolicy, 0, len(results))
	for key, r := range results {
		if !r.Ranked() {
			continue
		}
		ranked = append(ranked, RankedPolicy{Key: key, LearningRate: r.LearningRate})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].LearningRate != ranked[j].LearningRate {
			return ranked[i].LearningRate < ranked[j].LearningRate
		}
		return ranked[i].Key < ranked[j].Key
	})
	return ranked
}

// Select ranks results and decodes the best policy.
func Select(results map[string]*PolicyResult) (PolicyDecision, []RankedPolicy, error) {
	ranked := Rank(results)
	if len(ranked) == 0 {
		return PolicyDecision{}, nil, fmt.Errorf("select policy: %w", ErrNoReplicates)
	}
	method, kwargs, err := DecodePolicyKey(ranked[0].Key)
	if err != nil {
		return PolicyDecision{}, ranked, err
	}
	return PolicyDecision{Method: method, Kwargs: kwargs, LearningRate: ranked[0].LearningRate}, ranked, nil
}

// DecodePolicyKey splits a policy key into method and kwargs. "EI" has no
// kwargs; "<method>-<value>" yields {"beta": value}.
func DecodePolicyKey(key string) (string, map[string]float64, error) {
	if key == sim.MethodEI {
		return sim.MethodEI, nil, nil
	}
	method, raw, ok := strings.Cut(key, "-")
	if !ok || method == "" || method == sim.MethodEI || !sim.ValidAcquisitionMethods[method] {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidPolicyKey, key)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidPolicyKey, key)
	}
	return method, map[string]float64{sim.HyperparameterBeta: v}, nil
}
