package acquisition

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/optimize"

	"github.com/campaign-sim/campaign-sim/sim"
)

// Model is the posterior a scorer is evaluated against.
type Model interface {
	PredictStandardized(u []float64) (mean, std float64)
}

// Candidate is a maximizer in unit-cube coordinates and its score.
type Candidate struct {
	U     []float64
	Value float64
}

// Maximize searches the unit cube for the point with the highest score.
// RawSamples uniform draws seed the search; the best NumRestarts are refined
// with Nelder-Mead, evaluated at points clamped to the cube. All randomness
// comes from rng.
func Maximize(model Model, scorer Scorer, dim int, opt sim.OptimizerSpec, rng *rand.Rand) (Candidate, error) {
	if dim < 1 {
		return Candidate{}, fmt.Errorf("acquisition: dimension must be >= 1, got %d", dim)
	}
	if err := opt.Validate(); err != nil {
		return Candidate{}, err
	}
	if rng == nil {
		return Candidate{}, fmt.Errorf("acquisition: nil rng")
	}

	score := func(u []float64) float64 {
		m, s := model.PredictStandardized(u)
		v := scorer.Score(m, s)
		if math.IsNaN(v) {
			return math.Inf(-1)
		}
		return v
	}

	raw := make([]Candidate, opt.RawSamples)
	for i := range raw {
		u := make([]float64, dim)
		for j := range u {
			u[j] = rng.Float64()
		}
		raw[i] = Candidate{U: u, Value: score(u)}
	}
	sort.SliceStable(raw, func(i, j int) bool { return raw[i].Value > raw[j].Value })

	best := raw[0]
	if opt.MaxEvaluations == 0 {
		return best, nil
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return -score(clampUnit(x))
		},
	}
	settings := &optimize.Settings{FuncEvaluations: opt.MaxEvaluations}
	for _, start := range raw[:opt.NumRestarts] {
		// Hitting the evaluation limit still leaves a usable location, so the
		// error is only fatal when no result came back.
		result, _ := optimize.Minimize(problem, append([]float64(nil), start.U...), settings, &optimize.NelderMead{})
		if result == nil {
			continue
		}
		u := clampUnit(result.X)
		if v := score(u); v > best.Value {
			best = Candidate{U: u, Value: v}
		}
	}
	return best, nil
}

func clampUnit(x []float64) []float64 {
	u := make([]float64, len(x))
	for i, v := range x {
		switch {
		case math.IsNaN(v), v < 0:
			u[i] = 0
		case v > 1:
			u[i] = 1
		default:
			u[i] = v
		}
	}
	return u
}
