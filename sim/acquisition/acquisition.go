// Package acquisition scores candidate points from a surrogate posterior
// and maximizes those scores over the unit cube.
package acquisition

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/campaign-sim/campaign-sim/sim"
)

// Scorer maps a posterior (mean, std) in standardized units to a score.
// Higher is better.
type Scorer interface {
	Score(mean, std float64) float64
	Name() string
}

// ExpectedImprovement scores the expected gain over Best.
type ExpectedImprovement struct {
	Best float64 // best observation so far, standardized
}

// Score implements Scorer for ExpectedImprovement.
func (ei ExpectedImprovement) Score(mean, std float64) float64 {
	if std <= 0 {
		return math.Max(mean-ei.Best, 0)
	}
	z := (mean - ei.Best) / std
	return (mean-ei.Best)*distuv.UnitNormal.CDF(z) + std*distuv.UnitNormal.Prob(z)
}

// Name implements Scorer for ExpectedImprovement.
func (ExpectedImprovement) Name() string { return sim.MethodEI }

// UpperConfidenceBound scores mean + sqrt(Beta)*std.
type UpperConfidenceBound struct {
	Beta float64
}

// Score implements Scorer for UpperConfidenceBound.
func (ucb UpperConfidenceBound) Score(mean, std float64) float64 {
	return mean + math.Sqrt(ucb.Beta)*std
}

// Name implements Scorer for UpperConfidenceBound.
func (UpperConfidenceBound) Name() string { return sim.MethodUCB }

// PosteriorMean scores the mean only. Used to locate the surrogate optimum.
type PosteriorMean struct{}

// Score implements Scorer for PosteriorMean.
func (PosteriorMean) Score(mean, _ float64) float64 { return mean }

// Name implements Scorer for PosteriorMean.
func (PosteriorMean) Name() string { return "posterior-mean" }

// New builds the scorer for spec. best is the best standardized
// observation, used by EI.
func New(spec sim.AcquisitionSpec, best float64) (Scorer, error) {
	if !sim.ValidAcquisitionMethods[spec.Method] {
		return nil, fmt.Errorf("unknown acquisition method %q", spec.Method)
	}
	switch spec.Method {
	case sim.MethodUCB:
		beta, ok := spec.Kwargs[sim.HyperparameterBeta]
		if !ok {
			return nil, fmt.Errorf("acquisition UCB requires kwargs.%s", sim.HyperparameterBeta)
		}
		if beta < 0 {
			return nil, fmt.Errorf("acquisition UCB beta must be non-negative, got %v", beta)
		}
		return UpperConfidenceBound{Beta: beta}, nil
	default:
		return ExpectedImprovement{Best: best}, nil
	}
}
