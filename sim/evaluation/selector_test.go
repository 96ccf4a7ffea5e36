package evaluation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campaign-sim/campaign-sim/sim"
)

func TestDecodePolicyKey(t *testing.T) {
	tests := []struct {
		key        string
		wantMethod string
		wantKwargs map[string]float64
		wantErr    bool
	}{
		{key: "EI", wantMethod: "EI"},
		{key: "UCB-2.0", wantMethod: "UCB", wantKwargs: map[string]float64{"beta": 2}},
		{key: "UCB-0.25", wantMethod: "UCB", wantKwargs: map[string]float64{"beta": 0.25}},
		{key: "UCB-1e-3", wantMethod: "UCB", wantKwargs: map[string]float64{"beta": 0.001}},
		{key: "", wantErr: true},
		{key: "UCB", wantErr: true},
		{key: "UCB-", wantErr: true},
		{key: "UCB-abc", wantErr: true},
		{key: "UCB-NaN", wantErr: true},
		{key: "EI-2.0", wantErr: true},
		{key: "PI-2.0", wantErr: true},
		{key: "-2.0", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			method, kwargs, err := DecodePolicyKey(tc.key)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPolicyKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantMethod, method)
			assert.Equal(t, tc.wantKwargs, kwargs)
		})
	}
}

func TestDecodePolicyKey_RoundTripsAcqfKey(t *testing.T) {
	for _, beta := range []float64{0, 0.5, 2, 10, 1.0 / 3} {
		p := sim.NewParameters(sim.MethodUCB, map[string]float64{sim.HyperparameterBeta: beta})
		method, kwargs, err := DecodePolicyKey(p.AcqfKey())
		require.NoError(t, err)
		assert.Equal(t, p.AcqfKey(), PolicyDecision{Method: method, Kwargs: kwargs}.Key())
		assert.Equal(t, beta, kwargs[sim.HyperparameterBeta])
	}
}

func TestRank_OrdersByLearningRateThenKey(t *testing.T) {
	// GIVEN policies with known learning rates, one tie and one unranked
	results := map[string]*PolicyResult{
		"EI":      {Key: "EI", LearningRate: -0.5, Replicates: 2},
		"UCB-2.0": {Key: "UCB-2.0", LearningRate: -1.2, Replicates: 2},
		"UCB-1.0": {Key: "UCB-1.0", LearningRate: -0.5, Replicates: 2},
		"UCB-9.0": {Key: "UCB-9.0", LearningRate: -9, Replicates: 0, Skipped: 2},
	}

	// WHEN ranked
	ranked := Rank(results)

	// THEN the most negative rate leads and ties break by key
	assert.Equal(t, []RankedPolicy{
		{Key: "UCB-2.0", LearningRate: -1.2},
		{Key: "EI", LearningRate: -0.5},
		{Key: "UCB-1.0", LearningRate: -0.5},
	}, ranked)
}

func TestSelect_PicksLowerLearningRate(t *testing.T) {
	tests := []struct {
		name       string
		ei, ucb    float64
		wantMethod string
	}{
		{name: "EI faster", ei: -2, ucb: -1, wantMethod: "EI"},
		{name: "UCB faster", ei: 0.3, ucb: -0.1, wantMethod: "UCB"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			results := map[string]*PolicyResult{
				"EI":      {Key: "EI", LearningRate: tc.ei, Replicates: 1},
				"UCB-2.0": {Key: "UCB-2.0", LearningRate: tc.ucb, Replicates: 1},
			}
			decision, ranked, err := Select(results)
			require.NoError(t, err)
			assert.Equal(t, tc.wantMethod, decision.Method)
			assert.Equal(t, ranked[0].LearningRate, decision.LearningRate)
			if tc.wantMethod == "EI" {
				assert.Nil(t, decision.Kwargs)
			} else {
				assert.Equal(t, map[string]float64{"beta": 2}, decision.Kwargs)
			}
		})
	}
}

func TestSelect_InvalidWinningKeyFailsLoudly(t *testing.T) {
	results := map[string]*PolicyResult{"bogus": {Key: "bogus", LearningRate: -1, Replicates: 1}}
	_, _, err := Select(results)
	assert.ErrorIs(t, err, ErrInvalidPolicyKey)
}

func TestBestPolicy_IdempotentOnUnchangedHistory(t *testing.T) {
	ev, err := NewEvaluator(baseExperiment(), testConfig(""))
	require.NoError(t, err)
	_, err = ev.Run(context.Background(), candidates(), 2)
	require.NoError(t, err)

	d1, r1, err := ev.BestPolicy()
	require.NoError(t, err)
	d2, r2, err := ev.BestPolicy()
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.Equal(t, r1, r2)
}
