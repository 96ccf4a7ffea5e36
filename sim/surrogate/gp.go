// Package surrogate implements the Gaussian-process regression model that
// campaigns use to propose points. Inputs are expected in the unit cube;
// outputs are standardized internally and reported back in original units.
package surrogate

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrNoData is returned when fitting on an empty dataset.
var ErrNoData = errors.New("surrogate: no observations to fit")

// Config holds the fitting grid.
type Config struct {
	// Lengthscales is the grid searched by log marginal likelihood.
	Lengthscales []float64
	// Noise is the observation noise variance in standardized units.
	Noise float64
}

// DefaultConfig returns the grid used by experiments.
func DefaultConfig() Config {
	return Config{
		Lengthscales: []float64{0.05, 0.1, 0.2, 0.35, 0.5, 1.0},
		Noise:        1e-6,
	}
}

// maxJitterAttempts bounds the diagonal jitter escalation when a kernel
// matrix is not numerically positive definite.
const maxJitterAttempts = 4

// GP is a fitted zero-mean GP with a unit-variance RBF kernel over
// standardized outputs.
type GP struct {
	x           [][]float64
	lengthscale float64
	noise       float64
	yMean       float64
	yStd        float64
	chol        mat.Cholesky
	alpha       *mat.VecDense
	lml         float64
}

// RBF is the unit-variance squared-exponential kernel.
func RBF(a, b []float64, lengthscale float64) float64 {
	d2 := 0.0
	for i := range a {
		d := a[i] - b[i]
		d2 += d * d
	}
	return math.Exp(-0.5 * d2 / (lengthscale * lengthscale))
}

// Fit selects the lengthscale with the highest log marginal likelihood.
// X rows must live in the unit cube.
func Fit(x [][]float64, y []float64, cfg Config) (*GP, error) {
	if len(y) == 0 {
		return nil, ErrNoData
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("surrogate: %d inputs but %d outputs", len(x), len(y))
	}
	if len(cfg.Lengthscales) == 0 {
		return nil, fmt.Errorf("surrogate: empty lengthscale grid")
	}

	mean, std := stat.PopMeanStdDev(y, nil)
	if std < 1e-12 || math.IsNaN(std) {
		std = 1
	}
	ys := make([]float64, len(y))
	for i, v := range y {
		ys[i] = (v - mean) / std
	}

	var best *GP
	for _, ls := range cfg.Lengthscales {
		g, err := fitFixed(x, ys, ls, cfg.Noise)
		if err != nil {
			continue
		}
		if best == nil || g.lml > best.lml {
			best = g
		}
	}
	if best == nil {
		return nil, fmt.Errorf("surrogate: kernel matrix not positive definite for any lengthscale in %v", cfg.Lengthscales)
	}
	best.yMean, best.yStd = mean, std
	return best, nil
}

func fitFixed(x [][]float64, ys []float64, ls, noise float64) (*GP, error) {
	n := len(ys)
	jitter := 0.0
	for attempt := 0; attempt < maxJitterAttempts; attempt++ {
		k := KernelMatrix(x, ls, noise+jitter)
		g := &GP{x: x, lengthscale: ls, noise: noise + jitter}
		if g.chol.Factorize(k) {
			g.alpha = mat.NewVecDense(n, nil)
			if err := g.chol.SolveVecTo(g.alpha, mat.NewVecDense(n, ys)); err != nil {
				return nil, err
			}
			yv := mat.NewVecDense(n, ys)
			g.lml = -0.5*mat.Dot(yv, g.alpha) - 0.5*g.chol.LogDet() - 0.5*float64(n)*math.Log(2*math.Pi)
			return g, nil
		}
		if jitter == 0 {
			jitter = 1e-8
		} else {
			jitter *= 100
		}
	}
	return nil, fmt.Errorf("surrogate: cholesky failed for lengthscale %v", ls)
}

// KernelMatrix builds K(X, X) + noise*I.
func KernelMatrix(x [][]float64, lengthscale, noise float64) *mat.SymDense {
	n := len(x)
	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := RBF(x[i], x[j], lengthscale)
			if i == j {
				v += noise
			}
			k.SetSym(i, j, v)
		}
	}
	return k
}

// CrossKernel returns k(u, X_i) for every training input.
func (g *GP) CrossKernel(u []float64) []float64 {
	ks := make([]float64, len(g.x))
	for i, xi := range g.x {
		ks[i] = RBF(u, xi, g.lengthscale)
	}
	return ks
}

// PredictStandardized returns posterior mean and standard deviation in
// standardized output units.
func (g *GP) PredictStandardized(u []float64) (float64, float64) {
	n := len(g.x)
	ks := mat.NewVecDense(n, g.CrossKernel(u))
	mean := mat.Dot(ks, g.alpha)

	v := mat.NewVecDense(n, nil)
	variance := 1.0
	if err := g.chol.SolveVecTo(v, ks); err == nil {
		variance -= mat.Dot(ks, v)
	}
	if variance < 1e-12 {
		variance = 1e-12
	}
	return mean, math.Sqrt(variance)
}

// Predict returns posterior mean and standard deviation in original units.
func (g *GP) Predict(u []float64) (float64, float64) {
	m, s := g.PredictStandardized(u)
	return g.yMean + g.yStd*m, g.yStd * s
}

// Solve returns (K + noise*I)^-1 b.
func (g *GP) Solve(b []float64) ([]float64, error) {
	out := mat.NewVecDense(len(b), nil)
	if err := g.chol.SolveVecTo(out, mat.NewVecDense(len(b), append([]float64(nil), b...))); err != nil {
		return nil, err
	}
	return out.RawVector().Data, nil
}

// Standardize maps an original-unit output into model units.
func (g *GP) Standardize(y float64) float64 { return (y - g.yMean) / g.yStd }

// Unstandardize maps a model-unit output back into original units.
func (g *GP) Unstandardize(z float64) float64 { return g.yMean + g.yStd*z }

// Lengthscale returns the selected kernel lengthscale.
func (g *GP) Lengthscale() float64 { return g.lengthscale }

// Noise returns the noise variance actually used (including jitter).
func (g *GP) Noise() float64 { return g.noise }

// LogMarginalLikelihood returns the fit's log marginal likelihood.
func (g *GP) LogMarginalLikelihood() float64 { return g.lml }

// Inputs returns the training inputs (unit cube). Callers must not mutate them.
func (g *GP) Inputs() [][]float64 { return g.x }
