package experiment

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/campaign-sim/campaign-sim/sim"
	"github.com/campaign-sim/campaign-sim/sim/surrogate"
)

const (
	truthAnalytic = "analytic"
	truthGPSample = "gp-sample"

	// numFourierFeatures is the rank of the random-feature prior used for
	// dreamed ground truths.
	numFourierFeatures = 256
)

// truth is the hidden objective an experiment observes.
type truth interface {
	evaluate(x []float64) float64
	spec() truthSpec
}

// truthSpec is the serialized form of a truth.
type truthSpec struct {
	Kind      string    `json:"kind"`
	Objective string    `json:"objective,omitempty"`
	Sample    *gpSample `json:"gp_sample,omitempty"`
}

func (s truthSpec) build() (truth, error) {
	switch s.Kind {
	case truthAnalytic:
		obj, err := LookupObjective(s.Objective)
		if err != nil {
			return nil, err
		}
		return analyticTruth{name: s.Objective, fn: obj.Func}, nil
	case truthGPSample:
		if s.Sample == nil {
			return nil, fmt.Errorf("truth kind %q without gp_sample payload", s.Kind)
		}
		if err := s.Sample.validate(); err != nil {
			return nil, err
		}
		return s.Sample, nil
	default:
		return nil, fmt.Errorf("unknown truth kind %q", s.Kind)
	}
}

type analyticTruth struct {
	name string
	fn   func(x []float64) float64
}

func (a analyticTruth) evaluate(x []float64) float64 { return a.fn(x) }

func (a analyticTruth) spec() truthSpec {
	return truthSpec{Kind: truthAnalytic, Objective: a.name}
}

// gpSample is one draw from the GP posterior given the conditioning data:
// a random Fourier feature prior sample corrected by the pathwise update
// f(u) + k(u, X) (K + noise I)^-1 (y - f(X) - eps).
type gpSample struct {
	Domain      sim.Domain  `json:"domain"`
	Lengthscale float64     `json:"lengthscale"`
	YMean       float64     `json:"y_mean"`
	YStd        float64     `json:"y_std"`
	Omega       [][]float64 `json:"omega"`
	Phase       []float64   `json:"phase"`
	Weights     []float64   `json:"weights"`
	Inputs      [][]float64 `json:"inputs"`
	Update      []float64   `json:"update"`
}

// newGPSample fits a GP to the snapshot data and draws a posterior sample.
func newGPSample(snap *sim.Snapshot, cfg surrogate.Config, rng *rand.Rand) (*gpSample, error) {
	dim := snap.Domain.Dim()
	s := &gpSample{
		Domain:      snap.Domain.Clone(),
		Lengthscale: 0.2,
		YMean:       0,
		YStd:        1,
	}

	var g *surrogate.GP
	if snap.Data.Len() > 0 {
		inputs := make([][]float64, snap.Data.Len())
		for i, x := range snap.Data.X {
			inputs[i] = snap.Domain.Normalize(x)
		}
		var err error
		g, err = surrogate.Fit(inputs, snap.Data.Y, cfg)
		if err != nil {
			return nil, fmt.Errorf("fitting dream surrogate: %w", err)
		}
		s.Lengthscale = g.Lengthscale()
		s.YMean = g.Unstandardize(0)
		s.YStd = g.Unstandardize(1) - s.YMean
		s.Inputs = inputs
	}

	s.Omega = make([][]float64, numFourierFeatures)
	s.Phase = make([]float64, numFourierFeatures)
	s.Weights = make([]float64, numFourierFeatures)
	for j := 0; j < numFourierFeatures; j++ {
		s.Omega[j] = make([]float64, dim)
		for k := range s.Omega[j] {
			s.Omega[j][k] = rng.NormFloat64() / s.Lengthscale
		}
		s.Phase[j] = rng.Float64() * 2 * math.Pi
		s.Weights[j] = rng.NormFloat64()
	}

	if g != nil {
		sigma := math.Sqrt(g.Noise())
		residual := make([]float64, len(s.Inputs))
		for i, u := range s.Inputs {
			residual[i] = g.Standardize(snap.Data.Y[i]) - s.prior(u) - sigma*rng.NormFloat64()
		}
		update, err := g.Solve(residual)
		if err != nil {
			return nil, fmt.Errorf("conditioning dream sample: %w", err)
		}
		s.Update = update
	}
	return s, nil
}

func (s *gpSample) prior(u []float64) float64 {
	sum := 0.0
	for j, w := range s.Weights {
		dot := s.Phase[j]
		for k, o := range s.Omega[j] {
			dot += o * u[k]
		}
		sum += w * math.Cos(dot)
	}
	return math.Sqrt(2/float64(len(s.Weights))) * sum
}

func (s *gpSample) evaluate(x []float64) float64 {
	u := s.Domain.Normalize(x)
	f := s.prior(u)
	for i, xi := range s.Inputs {
		f += surrogate.RBF(u, xi, s.Lengthscale) * s.Update[i]
	}
	return s.YMean + s.YStd*f
}

func (s *gpSample) spec() truthSpec {
	return truthSpec{Kind: truthGPSample, Sample: s}
}

func (s *gpSample) validate() error {
	if err := s.Domain.Validate(); err != nil {
		return err
	}
	if s.Lengthscale <= 0 {
		return fmt.Errorf("gp_sample lengthscale must be positive, got %v", s.Lengthscale)
	}
	if len(s.Omega) != len(s.Phase) || len(s.Omega) != len(s.Weights) || len(s.Omega) == 0 {
		return fmt.Errorf("gp_sample feature arrays disagree: omega=%d phase=%d weights=%d", len(s.Omega), len(s.Phase), len(s.Weights))
	}
	for j, o := range s.Omega {
		if len(o) != s.Domain.Dim() {
			return fmt.Errorf("gp_sample omega[%d] has %d dims, domain has %d", j, len(o), s.Domain.Dim())
		}
	}
	if len(s.Inputs) != len(s.Update) {
		return fmt.Errorf("gp_sample inputs=%d but update=%d", len(s.Inputs), len(s.Update))
	}
	return nil
}
