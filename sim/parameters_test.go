package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParameters_AcqfKey(t *testing.T) {
	tests := []struct {
		name   string
		params Parameters
		want   string
	}{
		{"baseline", NewParameters(MethodEI, nil), "EI"},
		{"integral beta keeps decimal", NewParameters(MethodUCB, map[string]float64{"beta": 2}), "UCB-2.0"},
		{"fractional beta", NewParameters(MethodUCB, map[string]float64{"beta": 0.25}), "UCB-0.25"},
		{"zero beta", NewParameters(MethodUCB, map[string]float64{"beta": 0}), "UCB-0.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.params.AcqfKey())
		})
	}
}

func TestParameters_Hash_StableAndContentBased(t *testing.T) {
	a := NewParameters(MethodUCB, map[string]float64{"beta": 2})
	b := NewParameters(MethodUCB, map[string]float64{"beta": 2})
	b.Name = "explorer"
	c := NewParameters(MethodUCB, map[string]float64{"beta": 3})

	assert.Equal(t, a.Hash(), b.Hash(), "name must not change the hash")
	assert.NotEqual(t, a.Hash(), c.Hash())
	assert.Len(t, a.Hash(), 64)
}

func TestParameters_WithDefaultOptimizer_ChangesHashOnlyWhenMissing(t *testing.T) {
	// GIVEN parameters without an optimizer
	p := NewParameters(MethodEI, nil)

	// WHEN the default is attached
	withDefault := p.WithDefaultOptimizer()

	// THEN the original is untouched and the copy carries the default
	assert.Nil(t, p.OptimizeGP)
	require.NotNil(t, withDefault.OptimizeGP)
	assert.Equal(t, DefaultOptimizerSpec(), *withDefault.OptimizeGP)

	// AND attaching twice is a no-op on the hash
	assert.Equal(t, withDefault.Hash(), withDefault.WithDefaultOptimizer().Hash())
}

func TestParameters_ForPolicy_DoesNotAliasBase(t *testing.T) {
	opt := OptimizerSpec{NumRestarts: 2, RawSamples: 16, MaxEvaluations: 10}
	base := Parameters{Name: "base", Acquisition: AcquisitionSpec{Method: MethodEI}, OptimizeGP: &opt}
	kwargs := map[string]float64{"beta": 1.5}

	derived := base.ForPolicy(MethodUCB, kwargs)
	kwargs["beta"] = 99
	derived.OptimizeGP.RawSamples = 1

	assert.Equal(t, "UCB-1.5", derived.AcqfKey())
	assert.Equal(t, "UCB-1.5", derived.DisplayName())
	assert.Equal(t, 16, base.OptimizeGP.RawSamples)
	assert.Equal(t, "base", base.DisplayName())
}

func TestParameters_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  Parameters
		wantErr bool
	}{
		{"EI ok", NewParameters(MethodEI, nil), false},
		{"UCB ok", NewParameters(MethodUCB, map[string]float64{"beta": 2}), false},
		{"unknown method", NewParameters("PI", nil), true},
		{"EI with kwargs", NewParameters(MethodEI, map[string]float64{"xi": 0.1}), true},
		{"UCB without beta", NewParameters(MethodUCB, nil), true},
		{"UCB negative beta", NewParameters(MethodUCB, map[string]float64{"beta": -1}), true},
		{"bad optimizer", Parameters{Acquisition: AcquisitionSpec{Method: MethodEI}, OptimizeGP: &OptimizerSpec{NumRestarts: 4, RawSamples: 2}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDomain_NormalizeRoundTrip(t *testing.T) {
	d := Domain{Lower: []float64{-5, 0}, Upper: []float64{10, 15}}
	require.NoError(t, d.Validate())

	x := []float64{2.5, 7.5}
	u := d.Normalize(x)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, u, 1e-12)
	assert.InDeltaSlice(t, x, d.Denormalize(u), 1e-12)
	assert.True(t, d.Contains(x))
	assert.False(t, d.Contains([]float64{11, 0}))
}

func TestDomain_Validate_RejectsInvertedBounds(t *testing.T) {
	assert.Error(t, Domain{Lower: []float64{1}, Upper: []float64{0}}.Validate())
	assert.Error(t, Domain{}.Validate())
	assert.NoError(t, NewUnitDomain(3).Validate())
}

func TestSnapshot_CloneIsIndependent(t *testing.T) {
	s := &Snapshot{
		Name:   "toy",
		Data:   Dataset{X: [][]float64{{0.1}}, Y: []float64{1}},
		Domain: NewUnitDomain(1),
		History: []Step{{
			Iteration:  0,
			PolicyKey:  "EI",
			OptimizeGP: StepResult{NextPoints: []float64{0.4}},
		}},
		Metadata: Metadata{
			RuntimeProperties: []RuntimeProperty{{PolicyKey: "EI", Steps: 1}},
			Optima:            &StepResult{NextPoints: []float64{0.5}},
		},
	}
	c := s.Clone()
	c.Data.X[0][0] = 9
	c.History[0].OptimizeGP.NextPoints[0] = 9
	c.Metadata.Optima.NextPoints[0] = 9
	c.Domain.Upper[0] = 9

	assert.Equal(t, 0.1, s.Data.X[0][0])
	assert.Equal(t, 0.4, s.History[0].OptimizeGP.NextPoints[0])
	assert.Equal(t, 0.5, s.Metadata.Optima.NextPoints[0])
	assert.Equal(t, 1.0, s.Domain.Upper[0])
	assert.Equal(t, "EI", c.PolicyKey())
}
